package consult

// Patch types carry partial updates for list entities. A nil field is left
// unchanged; a non-nil field replaces the existing value (slices wholesale).

type PrescriptionPatch struct {
	Medicine      *string   `json:"medicine,omitempty"`
	QtyPerDose    *string   `json:"qtyPerDose,omitempty"`
	DoseUnit      *string   `json:"doseUnit,omitempty"`
	Formulation   *string   `json:"formulation,omitempty"`
	Route         *string   `json:"route,omitempty"`
	Frequency     *string   `json:"frequency,omitempty"`
	Duration      *string   `json:"duration,omitempty"`
	DurationUnit  *string   `json:"durationUnit,omitempty"`
	Refills       *string   `json:"refills,omitempty"`
	PRN           *bool     `json:"prn,omitempty"`
	SubsAllowed   *bool     `json:"subsAllowed,omitempty"`
	PatientNotes  *string   `json:"patientNotes,omitempty"`
	PharmacyNotes *string   `json:"pharmacyNotes,omitempty"`
	StartDate     *string   `json:"startDate,omitempty"`
	FillDate      *string   `json:"fillDate,omitempty"`
	Pharmacy      *Pharmacy `json:"pharmacy,omitempty"`
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (p PrescriptionPatch) apply(rx *Prescription) {
	assign(&rx.Medicine, p.Medicine)
	assign(&rx.QtyPerDose, p.QtyPerDose)
	assign(&rx.DoseUnit, p.DoseUnit)
	assign(&rx.Formulation, p.Formulation)
	assign(&rx.Route, p.Route)
	assign(&rx.Frequency, p.Frequency)
	assign(&rx.Duration, p.Duration)
	assign(&rx.DurationUnit, p.DurationUnit)
	assign(&rx.Refills, p.Refills)
	assign(&rx.PRN, p.PRN)
	assign(&rx.SubsAllowed, p.SubsAllowed)
	assign(&rx.PatientNotes, p.PatientNotes)
	assign(&rx.PharmacyNotes, p.PharmacyNotes)
	assign(&rx.StartDate, p.StartDate)
	assign(&rx.FillDate, p.FillDate)
	if p.Pharmacy != nil {
		ph := *p.Pharmacy
		rx.Pharmacy = &ph
	}
}

type LabOrderPatch struct {
	Diagnoses      *[]string     `json:"diagnoses,omitempty"`
	OtherDiagnosis *string       `json:"otherDiagnosis,omitempty"`
	Requests       *[]LabRequest `json:"requests,omitempty"`
}

func (p LabOrderPatch) apply(o *LabOrder) {
	if p.Diagnoses != nil {
		o.Diagnoses = cloneStrings(*p.Diagnoses)
	}
	assign(&o.OtherDiagnosis, p.OtherDiagnosis)
	if p.Requests != nil {
		o.Requests = LabOrder{Requests: *p.Requests}.clone().Requests
	}
}

type ImagingOrderPatch struct {
	Diagnoses       *[]string       `json:"diagnoses,omitempty"`
	SelectedStudies *[]ImagingStudy `json:"selectedStudies,omitempty"`
	OtherStudies    *[]string       `json:"otherStudies,omitempty"`
	Urgency         *string         `json:"urgency,omitempty"`
	Indication      *string         `json:"indication,omitempty"`
	ClinicalNotes   *string         `json:"clinicalNotes,omitempty"`
}

func (p ImagingOrderPatch) apply(o *ImagingOrder) {
	if p.Diagnoses != nil {
		o.Diagnoses = cloneStrings(*p.Diagnoses)
	}
	if p.SelectedStudies != nil {
		o.SelectedStudies = ImagingOrder{SelectedStudies: *p.SelectedStudies}.clone().SelectedStudies
	}
	if p.OtherStudies != nil {
		o.OtherStudies = cloneStrings(*p.OtherStudies)
	}
	assign(&o.Urgency, p.Urgency)
	assign(&o.Indication, p.Indication)
	assign(&o.ClinicalNotes, p.ClinicalNotes)
}

type OutsideOrderPatch struct {
	Type      *OutsideOrderType `json:"type,omitempty"`
	Content   *string           `json:"content,omitempty"`
	Specialty *string           `json:"specialty,omitempty"`
	Providers *[]Provider       `json:"providers,omitempty"`
}

func (p OutsideOrderPatch) apply(o *OutsideOrder) {
	assign(&o.Type, p.Type)
	assign(&o.Content, p.Content)
	assign(&o.Specialty, p.Specialty)
	if p.Providers != nil {
		o.Providers = OutsideOrder{Providers: *p.Providers}.clone().Providers
	}
}
