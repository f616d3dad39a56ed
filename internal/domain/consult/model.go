package consult

// Vitals holds the raw vitals inputs of a SOAP note. BMI is derived from
// height and weight by the store and is never set directly.
type Vitals struct {
	HeightFt      string `json:"heightFt"`
	HeightIn      string `json:"heightIn"`
	WeightLbs     string `json:"weightLbs"`
	Waist         string `json:"waist"`
	Hip           string `json:"hip"`
	BMI           string `json:"bmi"`
	BloodPressure string `json:"bloodPressure"`
	HeartRate     string `json:"heartRate"`
	Temperature   string `json:"temperature"`
}

// SOAPData is the draft clinical note. List fields keep insertion order and
// permit duplicates.
type SOAPData struct {
	ChiefComplaint   string   `json:"chiefComplaint"`
	Observations     string   `json:"observations"`
	Assessment       string   `json:"assessment"`
	Differential     string   `json:"differential"`
	Plan             string   `json:"plan"`
	PatientEducation string   `json:"patientEducation"`
	FollowUpValue    string   `json:"followUpValue"`
	FollowUpUnit     string   `json:"followUpUnit"`
	Medications      []string `json:"medications"`
	Supplements      []string `json:"supplements"`
	Allergies        []string `json:"allergies"`
	Diagnoses        []string `json:"diagnoses"`
	Comorbidities    []string `json:"comorbidities"`
	Vitals           Vitals   `json:"vitals"`
}

// Pharmacy is the dispensing pharmacy selected for a prescription.
type Pharmacy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Prescription is a drafted medication order. Quantity and duration are the
// raw form inputs.
type Prescription struct {
	ID            string    `json:"id"`
	Medicine      string    `json:"medicine"`
	QtyPerDose    string    `json:"qtyPerDose"`
	DoseUnit      string    `json:"doseUnit"`
	Formulation   string    `json:"formulation"`
	Route         string    `json:"route"`
	Frequency     string    `json:"frequency"`
	Duration      string    `json:"duration"`
	DurationUnit  string    `json:"durationUnit"`
	Refills       string    `json:"refills"`
	PRN           bool      `json:"prn"`
	SubsAllowed   bool      `json:"subsAllowed"`
	PatientNotes  string    `json:"patientNotes"`
	PharmacyNotes string    `json:"pharmacyNotes"`
	StartDate     string    `json:"startDate"`
	FillDate      string    `json:"fillDate"`
	Pharmacy      *Pharmacy `json:"pharmacy,omitempty"`
}

// LabRequest groups exams under one lab category.
type LabRequest struct {
	Category string   `json:"category"`
	Exams    []string `json:"exams"`
}

// LabOrder is a drafted lab requisition.
type LabOrder struct {
	ID             string       `json:"id"`
	Diagnoses      []string     `json:"diagnoses"`
	OtherDiagnosis string       `json:"otherDiagnosis"`
	Requests       []LabRequest `json:"requests"`
}

// ImagingStudy is a study picked from the imaging catalog.
type ImagingStudy struct {
	OrderID    string `json:"orderId"`
	Name       string `json:"name"`
	Modality   string `json:"modality"`
	Contrast   string `json:"contrast,omitempty"`
	Laterality string `json:"laterality,omitempty"`
}

// ImagingOrder is a drafted imaging requisition. OtherStudies holds free-text
// study names not found in the catalog.
type ImagingOrder struct {
	ID              string         `json:"id"`
	Diagnoses       []string       `json:"diagnoses"`
	SelectedStudies []ImagingStudy `json:"selectedStudies"`
	OtherStudies    []string       `json:"otherStudies"`
	Urgency         string         `json:"urgency"`
	Indication      string         `json:"indication"`
	ClinicalNotes   string         `json:"clinicalNotes"`
}

// OutsideOrderType discriminates OutsideOrder variants.
type OutsideOrderType string

const (
	// OutsideExternal is a free-text referral to an outside practice.
	OutsideExternal OutsideOrderType = "external"
	// OutsideInternal is a referral to a specialty or to listed providers.
	OutsideInternal OutsideOrderType = "internal"
)

// Provider is a clinician selectable for an internal referral.
type Provider struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Degree       string `json:"degree"`
	Availability string `json:"availability"`
	TokenCost    int    `json:"tokenCost"`
}

// OutsideOrder is a referral. External referrals use Content; internal
// referrals use either Specialty or Providers.
type OutsideOrder struct {
	ID        string           `json:"id"`
	Type      OutsideOrderType `json:"type"`
	Content   string           `json:"content,omitempty"`
	Specialty string           `json:"specialty,omitempty"`
	Providers []Provider       `json:"providers,omitempty"`
}

// NewExternalReferral builds an external referral.
func NewExternalReferral(id, content string) OutsideOrder {
	return OutsideOrder{ID: id, Type: OutsideExternal, Content: content}
}

// NewSpecialtyReferral builds an internal referral to a specialty.
func NewSpecialtyReferral(id, specialty string) OutsideOrder {
	return OutsideOrder{ID: id, Type: OutsideInternal, Specialty: specialty}
}

// NewProviderReferral builds an internal referral to specific providers.
func NewProviderReferral(id string, providers ...Provider) OutsideOrder {
	return OutsideOrder{ID: id, Type: OutsideInternal, Providers: providers}
}

// UIState is presentation state that lives with the draft but is never
// persisted.
type UIState struct {
	ActiveSection     string `json:"activeSection"`
	PatientDrawerOpen bool   `json:"patientDrawerOpen"`
}

// ConsultState is the aggregate root for one encounter's working draft.
type ConsultState struct {
	PatientID     string         `json:"patientId"`
	EncounterID   string         `json:"encounterId"`
	ConsultDate   string         `json:"consultDate"`
	SOAPNote      SOAPData       `json:"soapNote"`
	Prescriptions []Prescription `json:"prescriptions"`
	LabOrders     []LabOrder     `json:"labOrders"`
	ImagingOrders []ImagingOrder `json:"imagingOrders"`
	OutsideOrders []OutsideOrder `json:"outsideOrders"`
	PrivateNotes  string         `json:"privateNotes"`
	IsAIVisible   bool           `json:"isAIVisible"`
	Finished      bool           `json:"finished"`
	LastSaved     string         `json:"lastSaved"`
	UI            UIState        `json:"ui"`
}

// initialState returns the documented defaults: empty note, empty lists,
// AI suggestions visible, not finished.
func initialState() ConsultState {
	return ConsultState{
		SOAPNote: SOAPData{
			Medications:   []string{},
			Supplements:   []string{},
			Allergies:     []string{},
			Diagnoses:     []string{},
			Comorbidities: []string{},
		},
		Prescriptions: []Prescription{},
		LabOrders:     []LabOrder{},
		ImagingOrders: []ImagingOrder{},
		OutsideOrders: []OutsideOrder{},
		IsAIVisible:   true,
	}
}
