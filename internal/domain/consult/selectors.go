package consult

// Completeness flags which sections of a draft carry content. Navigation and
// summary views use HasData to decide whether to show placeholders.
type Completeness struct {
	HasSoapContent    bool `json:"hasSoapContent"`
	HasRxContent      bool `json:"hasRxContent"`
	HasLabContent     bool `json:"hasLabContent"`
	HasImagingContent bool `json:"hasImagingContent"`
	HasOutsideContent bool `json:"hasOutsideContent"`
	HasPrivateNotes   bool `json:"hasPrivateNotes"`
	HasData           bool `json:"hasData"`
}

// Evaluate computes completeness from a state snapshot.
func Evaluate(st ConsultState) Completeness {
	c := Completeness{
		HasSoapContent:    HasSOAPContent(st.SOAPNote),
		HasRxContent:      anyOf(st.Prescriptions, IsMeaningfulPrescription),
		HasLabContent:     anyOf(st.LabOrders, IsMeaningfulLabOrder),
		HasImagingContent: anyOf(st.ImagingOrders, IsMeaningfulImagingOrder),
		HasOutsideContent: len(st.OutsideOrders) > 0,
		HasPrivateNotes:   !blank(st.PrivateNotes),
	}
	c.HasData = c.HasSoapContent || c.HasRxContent || c.HasLabContent ||
		c.HasImagingContent || c.HasOutsideContent || c.HasPrivateNotes
	return c
}

// PatientInfo groups the session identity.
type PatientInfo struct {
	PatientID   string `json:"patientId"`
	EncounterID string `json:"encounterId"`
	ConsultDate string `json:"consultDate"`
	Finished    bool   `json:"finished"`
}

// Orders groups every order list of the draft.
type Orders struct {
	Prescriptions []Prescription `json:"prescriptions"`
	LabOrders     []LabOrder     `json:"labOrders"`
	ImagingOrders []ImagingOrder `json:"imagingOrders"`
	OutsideOrders []OutsideOrder `json:"outsideOrders"`
}

// Selectors is a read-only view over a Store. Nothing is cached: every call
// reads the current state.
type Selectors struct {
	store *Store
}

// NewSelectors returns selectors reading from store.
func NewSelectors(store *Store) Selectors {
	return Selectors{store: store}
}

func (s Selectors) Completeness() Completeness { return Evaluate(s.store.State()) }

func (s Selectors) HasSoapContent() bool    { return s.Completeness().HasSoapContent }
func (s Selectors) HasRxContent() bool      { return s.Completeness().HasRxContent }
func (s Selectors) HasLabContent() bool     { return s.Completeness().HasLabContent }
func (s Selectors) HasImagingContent() bool { return s.Completeness().HasImagingContent }
func (s Selectors) HasOutsideContent() bool { return s.Completeness().HasOutsideContent }
func (s Selectors) HasPrivateNotes() bool   { return s.Completeness().HasPrivateNotes }
func (s Selectors) HasData() bool           { return s.Completeness().HasData }

func (s Selectors) PatientInfo() PatientInfo {
	st := s.store.State()
	return PatientInfo{
		PatientID:   st.PatientID,
		EncounterID: st.EncounterID,
		ConsultDate: st.ConsultDate,
		Finished:    st.Finished,
	}
}

func (s Selectors) SOAP() SOAPData {
	return s.store.State().SOAPNote
}

func (s Selectors) Orders() Orders {
	st := s.store.State()
	return Orders{
		Prescriptions: st.Prescriptions,
		LabOrders:     st.LabOrders,
		ImagingOrders: st.ImagingOrders,
		OutsideOrders: st.OutsideOrders,
	}
}
