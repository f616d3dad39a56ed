package consult

import "strings"

// The predicates below decide whether a record counts as filled in. They are
// pure functions of the record so callers can evaluate drafts without a
// store.

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func positive(s string) bool {
	return parseNumber(s) > 0
}

// HasSOAPContent reports whether any narrative field, list or vitals input
// of the note carries content.
func HasSOAPContent(d SOAPData) bool {
	for _, s := range []string{d.ChiefComplaint, d.Observations, d.Assessment, d.Differential, d.Plan} {
		if !blank(s) {
			return true
		}
	}
	if len(d.Medications) > 0 || len(d.Supplements) > 0 || len(d.Allergies) > 0 ||
		len(d.Diagnoses) > 0 || len(d.Comorbidities) > 0 {
		return true
	}
	return HasVitals(d.Vitals)
}

// HasVitals reports whether any vitals value is non-blank.
func HasVitals(v Vitals) bool {
	for _, s := range []string{v.HeightFt, v.HeightIn, v.WeightLbs, v.Waist, v.Hip, v.BMI, v.BloodPressure, v.HeartRate, v.Temperature} {
		if !blank(s) {
			return true
		}
	}
	return false
}

// IsMeaningfulPrescription requires a medicine name plus at least one dosing
// detail. A name alone, or dosing without a name, does not count.
func IsMeaningfulPrescription(p Prescription) bool {
	if blank(p.Medicine) {
		return false
	}
	return positive(p.QtyPerDose) ||
		!blank(p.Formulation) ||
		!blank(p.Route) ||
		!blank(p.Frequency) ||
		positive(p.Duration)
}

// IsMeaningfulLabOrder requires a diagnosis, other-diagnosis text, or a
// request with at least one exam.
func IsMeaningfulLabOrder(o LabOrder) bool {
	if len(o.Diagnoses) > 0 || !blank(o.OtherDiagnosis) {
		return true
	}
	for _, r := range o.Requests {
		if len(r.Exams) > 0 {
			return true
		}
	}
	return false
}

// IsMeaningfulImagingOrder requires any of diagnoses, notes, indication,
// selected studies or free-text studies.
func IsMeaningfulImagingOrder(o ImagingOrder) bool {
	return len(o.Diagnoses) > 0 ||
		!blank(o.ClinicalNotes) ||
		!blank(o.Indication) ||
		len(o.SelectedStudies) > 0 ||
		len(o.OtherStudies) > 0
}

func anyOf[T any](items []T, pred func(T) bool) bool {
	for _, item := range items {
		if pred(item) {
			return true
		}
	}
	return false
}
