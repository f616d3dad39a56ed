package consult

import "testing"

func TestHasSOAPContent(t *testing.T) {
	tests := []struct {
		name string
		note SOAPData
		want bool
	}{
		{"empty", SOAPData{}, false},
		{"whitespace only", SOAPData{ChiefComplaint: "  \t", Plan: "\n"}, false},
		{"chief complaint", SOAPData{ChiefComplaint: "cough"}, true},
		{"differential", SOAPData{Differential: "viral vs bacterial"}, true},
		{"medication list", SOAPData{Medications: []string{"ibuprofen"}}, true},
		{"comorbidity list", SOAPData{Comorbidities: []string{"asthma"}}, true},
		{"vitals", SOAPData{Vitals: Vitals{HeartRate: "72"}}, true},
		{"blank vitals", SOAPData{Vitals: Vitals{HeartRate: " "}}, false},
		{"patient education alone", SOAPData{PatientEducation: "hydrate"}, false},
		{"follow up alone", SOAPData{FollowUpValue: "2", FollowUpUnit: "weeks"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasSOAPContent(tt.note); got != tt.want {
				t.Errorf("HasSOAPContent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMeaningfulPrescription(t *testing.T) {
	nameOnly := Prescription{Medicine: "Amoxicillin"}

	tests := []struct {
		name string
		rx   Prescription
		want bool
	}{
		{"name only", nameOnly, false},
		{"name with frequency", Prescription{Medicine: "Amoxicillin", Frequency: "BID"}, true},
		{"name with qty", Prescription{Medicine: "Amoxicillin", QtyPerDose: "2"}, true},
		{"name with zero qty", Prescription{Medicine: "Amoxicillin", QtyPerDose: "0"}, false},
		{"name with negative duration", Prescription{Medicine: "Amoxicillin", Duration: "-3"}, false},
		{"name with duration", Prescription{Medicine: "Amoxicillin", Duration: "7"}, true},
		{"name with route", Prescription{Medicine: "Amoxicillin", Route: "oral"}, true},
		{"name with formulation", Prescription{Medicine: "Amoxicillin", Formulation: "capsule"}, true},
		{"dosing without name", Prescription{QtyPerDose: "1", Frequency: "BID", Route: "oral"}, false},
		{"blank name", Prescription{Medicine: "   ", Frequency: "BID"}, false},
		{"refills do not count", Prescription{Medicine: "Amoxicillin", Refills: "2", PRN: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMeaningfulPrescription(tt.rx); got != tt.want {
				t.Errorf("IsMeaningfulPrescription = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMeaningfulLabOrder(t *testing.T) {
	tests := []struct {
		name  string
		order LabOrder
		want  bool
	}{
		{"empty", LabOrder{ID: "l1"}, false},
		{"empty requests", LabOrder{ID: "l1", Requests: []LabRequest{}}, false},
		{"request without exams", LabOrder{Requests: []LabRequest{{Category: "CBC"}}}, false},
		{"request with exam", LabOrder{Requests: []LabRequest{{Category: "CBC", Exams: []string{"CBC w/ diff"}}}}, true},
		{"diagnosis", LabOrder{Diagnoses: []string{"J20.9"}}, true},
		{"other diagnosis", LabOrder{OtherDiagnosis: "fatigue"}, true},
		{"blank other diagnosis", LabOrder{OtherDiagnosis: "  "}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMeaningfulLabOrder(tt.order); got != tt.want {
				t.Errorf("IsMeaningfulLabOrder = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMeaningfulImagingOrder(t *testing.T) {
	tests := []struct {
		name  string
		order ImagingOrder
		want  bool
	}{
		{"empty", ImagingOrder{ID: "i1"}, false},
		{"urgency only", ImagingOrder{Urgency: "stat"}, false},
		{"diagnosis", ImagingOrder{Diagnoses: []string{"R05"}}, true},
		{"clinical notes", ImagingOrder{ClinicalNotes: "persistent cough"}, true},
		{"indication", ImagingOrder{Indication: "rule out pneumonia"}, true},
		{"selected study", ImagingOrder{SelectedStudies: []ImagingStudy{{OrderID: "x1", Name: "Chest X-ray", Modality: "XR"}}}, true},
		{"other study", ImagingOrder{OtherStudies: []string{"Sinus CT"}}, true},
		{"blank notes", ImagingOrder{ClinicalNotes: " ", Indication: "\t"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMeaningfulImagingOrder(tt.order); got != tt.want {
				t.Errorf("IsMeaningfulImagingOrder = %v, want %v", got, tt.want)
			}
		})
	}
}
