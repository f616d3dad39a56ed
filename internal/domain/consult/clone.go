package consult

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func (d SOAPData) clone() SOAPData {
	d.Medications = cloneStrings(d.Medications)
	d.Supplements = cloneStrings(d.Supplements)
	d.Allergies = cloneStrings(d.Allergies)
	d.Diagnoses = cloneStrings(d.Diagnoses)
	d.Comorbidities = cloneStrings(d.Comorbidities)
	return d
}

func (p Prescription) clone() Prescription {
	if p.Pharmacy != nil {
		ph := *p.Pharmacy
		p.Pharmacy = &ph
	}
	return p
}

func (o LabOrder) clone() LabOrder {
	o.Diagnoses = cloneStrings(o.Diagnoses)
	if o.Requests != nil {
		reqs := make([]LabRequest, len(o.Requests))
		for i, r := range o.Requests {
			reqs[i] = LabRequest{Category: r.Category, Exams: cloneStrings(r.Exams)}
		}
		o.Requests = reqs
	}
	return o
}

func (o ImagingOrder) clone() ImagingOrder {
	o.Diagnoses = cloneStrings(o.Diagnoses)
	o.OtherStudies = cloneStrings(o.OtherStudies)
	if o.SelectedStudies != nil {
		studies := make([]ImagingStudy, len(o.SelectedStudies))
		copy(studies, o.SelectedStudies)
		o.SelectedStudies = studies
	}
	return o
}

func (o OutsideOrder) clone() OutsideOrder {
	if o.Providers != nil {
		providers := make([]Provider, len(o.Providers))
		copy(providers, o.Providers)
		o.Providers = providers
	}
	return o
}

func cloneEach[T any](items []T, fn func(T) T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}

// Clone returns a deep copy that shares no slices or pointers with s.
func (s ConsultState) Clone() ConsultState {
	s.SOAPNote = s.SOAPNote.clone()
	s.Prescriptions = cloneEach(s.Prescriptions, Prescription.clone)
	s.LabOrders = cloneEach(s.LabOrders, LabOrder.clone)
	s.ImagingOrders = cloneEach(s.ImagingOrders, ImagingOrder.clone)
	s.OutsideOrders = cloneEach(s.OutsideOrders, OutsideOrder.clone)
	return s
}
