// Package consult holds the working draft of one clinical encounter: the
// SOAP note, prescriptions, lab/imaging/outside orders and private notes.
//
// A Store owns one encounter's ConsultState. Every mutation stamps
// lastSaved, notifies subscribers and schedules a debounced write of the
// persisted subset to storage. Mutations never fail: unknown ids and
// out-of-range indexes are no-ops. Business validation (required fields
// before sending a prescription, for example) belongs to callers.
package consult

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbrdigital/goldcare-sub000/internal/platform/debounce"
	"github.com/rbrdigital/goldcare-sub000/internal/platform/storage"
)

// DefaultPersistDelay is the trailing-edge debounce for storage writes.
const DefaultPersistDelay = 500 * time.Millisecond

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// SOAPField names a scalar field of the SOAP note.
type SOAPField string

const (
	FieldChiefComplaint   SOAPField = "chiefComplaint"
	FieldObservations     SOAPField = "observations"
	FieldAssessment       SOAPField = "assessment"
	FieldDifferential     SOAPField = "differential"
	FieldPlan             SOAPField = "plan"
	FieldPatientEducation SOAPField = "patientEducation"
	FieldFollowUpValue    SOAPField = "followUpValue"
	FieldFollowUpUnit     SOAPField = "followUpUnit"
)

func (d *SOAPData) field(f SOAPField) *string {
	switch f {
	case FieldChiefComplaint:
		return &d.ChiefComplaint
	case FieldObservations:
		return &d.Observations
	case FieldAssessment:
		return &d.Assessment
	case FieldDifferential:
		return &d.Differential
	case FieldPlan:
		return &d.Plan
	case FieldPatientEducation:
		return &d.PatientEducation
	case FieldFollowUpValue:
		return &d.FollowUpValue
	case FieldFollowUpUnit:
		return &d.FollowUpUnit
	}
	return nil
}

// Valid reports whether f names a SOAP scalar field.
func (f SOAPField) Valid() bool {
	var d SOAPData
	return d.field(f) != nil
}

// ListField names one of the SOAP note's string lists.
type ListField string

const (
	ListMedications   ListField = "medications"
	ListSupplements   ListField = "supplements"
	ListAllergies     ListField = "allergies"
	ListDiagnoses     ListField = "diagnoses"
	ListComorbidities ListField = "comorbidities"
)

func (d *SOAPData) list(f ListField) *[]string {
	switch f {
	case ListMedications:
		return &d.Medications
	case ListSupplements:
		return &d.Supplements
	case ListAllergies:
		return &d.Allergies
	case ListDiagnoses:
		return &d.Diagnoses
	case ListComorbidities:
		return &d.Comorbidities
	}
	return nil
}

// Valid reports whether f names a SOAP list.
func (f ListField) Valid() bool {
	var d SOAPData
	return d.list(f) != nil
}

// Option configures a Store.
type Option func(*Store)

// WithStorage mirrors the persisted subset of state to st under key.
func WithStorage(st storage.Storage, key string) Option {
	return func(s *Store) {
		s.storage = st
		s.key = key
	}
}

// WithPersistDelay overrides DefaultPersistDelay.
func WithPersistDelay(d time.Duration) Option {
	return func(s *Store) { s.delay = d }
}

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the single source of truth for one consultation draft. It is safe
// for concurrent use.
type Store struct {
	mu        sync.Mutex
	state     ConsultState
	lastSaved time.Time
	now       func() time.Time

	storage   storage.Storage
	key       string
	delay     time.Duration
	debouncer *debounce.Debouncer
	persistMu sync.Mutex
	discarded bool // guarded by persistMu
	logger    zerolog.Logger

	listeners  map[uint64]func(ConsultState)
	listenerID uint64
}

// NewStore creates a store holding the initial defaults.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:     initialState(),
		now:       time.Now,
		delay:     DefaultPersistDelay,
		logger:    zerolog.Nop(),
		listeners: make(map[uint64]func(ConsultState)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.storage != nil {
		s.debouncer = debounce.New(s.delay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.persist(ctx)
		})
	}
	return s
}

// State returns a deep copy of the current state.
func (s *Store) State() ConsultState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Key returns the storage key, or "" when the store is not persisted.
func (s *Store) Key() string {
	return s.key
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned func removes the subscription.
func (s *Store) Subscribe(fn func(ConsultState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listenerID++
	id := s.listenerID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// mutate applies fn under the lock, stamps lastSaved, schedules
// persistence and notifies subscribers outside the lock.
func (s *Store) mutate(fn func(st *ConsultState)) {
	s.mu.Lock()
	fn(&s.state)
	s.touch()
	var (
		snapshot  ConsultState
		listeners []func(ConsultState)
	)
	if len(s.listeners) > 0 {
		snapshot = s.state.Clone()
		listeners = make([]func(ConsultState), 0, len(s.listeners))
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	if s.debouncer != nil {
		s.debouncer.Trigger()
	}
	for _, l := range listeners {
		l(snapshot.Clone())
	}
}

// touch advances lastSaved, never moving it backwards.
func (s *Store) touch() {
	t := s.now().UTC()
	if t.Before(s.lastSaved) {
		t = s.lastSaved
	}
	s.lastSaved = t
	s.state.LastSaved = formatTimestamp(t)
}

// -- Session --

// InitializeSession stamps the session identity and consult date. Content
// is kept when the identity is unchanged or was empty; switching to a
// different patient or encounter resets the draft first so one patient's
// content never carries into another's session.
func (s *Store) InitializeSession(patientID, encounterID string) {
	s.mutate(func(st *ConsultState) {
		hadIdentity := st.PatientID != "" || st.EncounterID != ""
		if hadIdentity && (st.PatientID != patientID || st.EncounterID != encounterID) {
			s.logger.Info().
				Str("from_patient_id", st.PatientID).
				Str("from_encounter_id", st.EncounterID).
				Str("patient_id", patientID).
				Str("encounter_id", encounterID).
				Msg("session identity changed, clearing draft")
			*st = initialState()
		}
		st.PatientID = patientID
		st.EncounterID = encounterID
		st.ConsultDate = formatTimestamp(s.now())
	})
}

// ClearSession resets everything to the initial defaults and restamps the
// consult date.
func (s *Store) ClearSession() {
	s.mutate(func(st *ConsultState) {
		*st = initialState()
		st.ConsultDate = formatTimestamp(s.now())
	})
}

// -- SOAP --

// SetSOAPField replaces one scalar SOAP field. Unknown fields leave the note
// untouched.
func (s *Store) SetSOAPField(field SOAPField, value string) {
	s.mutate(func(st *ConsultState) {
		if p := st.SOAPNote.field(field); p != nil {
			*p = value
		}
	})
}

// UpdateVitals replaces one vitals field, recomputing BMI when height or
// weight changes.
func (s *Store) UpdateVitals(field VitalField, value string) {
	s.mutate(func(st *ConsultState) {
		st.SOAPNote.Vitals.set(field, value)
	})
}

// AddListItem appends value to the named SOAP list. Duplicates are kept.
func (s *Store) AddListItem(field ListField, value string) {
	s.mutate(func(st *ConsultState) {
		if l := st.SOAPNote.list(field); l != nil {
			*l = append(cloneStrings(*l), value)
		}
	})
}

// RemoveListItem removes the element at index from the named SOAP list. An
// index outside the list is a no-op.
func (s *Store) RemoveListItem(field ListField, index int) {
	s.mutate(func(st *ConsultState) {
		if l := st.SOAPNote.list(field); l != nil {
			*l = removeAt(*l, index)
		}
	})
}

func removeAt(items []string, index int) []string {
	if index < 0 || index >= len(items) {
		return items
	}
	out := make([]string, 0, len(items)-1)
	out = append(out, items[:index]...)
	return append(out, items[index+1:]...)
}

func (s *Store) AddMedication(v string)  { s.AddListItem(ListMedications, v) }
func (s *Store) RemoveMedication(i int)  { s.RemoveListItem(ListMedications, i) }
func (s *Store) AddSupplement(v string)  { s.AddListItem(ListSupplements, v) }
func (s *Store) RemoveSupplement(i int)  { s.RemoveListItem(ListSupplements, i) }
func (s *Store) AddAllergy(v string)     { s.AddListItem(ListAllergies, v) }
func (s *Store) RemoveAllergy(i int)     { s.RemoveListItem(ListAllergies, i) }
func (s *Store) AddDiagnosis(v string)   { s.AddListItem(ListDiagnoses, v) }
func (s *Store) RemoveDiagnosis(i int)   { s.RemoveListItem(ListDiagnoses, i) }
func (s *Store) AddComorbidity(v string) { s.AddListItem(ListComorbidities, v) }
func (s *Store) RemoveComorbidity(i int) { s.RemoveListItem(ListComorbidities, i) }

// -- Prescriptions and orders --
//
// Ids are supplied by the caller and used as-is. Update merges a patch into
// the element with the matching id; update or remove of an unknown id
// leaves the list as it was.

func (s *Store) AddPrescription(rx Prescription) {
	rx = rx.clone()
	s.mutate(func(st *ConsultState) {
		st.Prescriptions = append(st.Prescriptions, rx)
	})
}

func (s *Store) UpdatePrescription(id string, patch PrescriptionPatch) {
	s.mutate(func(st *ConsultState) {
		st.Prescriptions = updateByID(st.Prescriptions, id, func(p Prescription) string { return p.ID }, func(p *Prescription) {
			patch.apply(p)
		})
	})
}

func (s *Store) RemovePrescription(id string) {
	s.mutate(func(st *ConsultState) {
		st.Prescriptions = removeByID(st.Prescriptions, id, func(p Prescription) string { return p.ID })
	})
}

func (s *Store) AddLabOrder(o LabOrder) {
	o = o.clone()
	s.mutate(func(st *ConsultState) {
		st.LabOrders = append(st.LabOrders, o)
	})
}

func (s *Store) UpdateLabOrder(id string, patch LabOrderPatch) {
	s.mutate(func(st *ConsultState) {
		st.LabOrders = updateByID(st.LabOrders, id, func(o LabOrder) string { return o.ID }, func(o *LabOrder) {
			patch.apply(o)
		})
	})
}

func (s *Store) RemoveLabOrder(id string) {
	s.mutate(func(st *ConsultState) {
		st.LabOrders = removeByID(st.LabOrders, id, func(o LabOrder) string { return o.ID })
	})
}

func (s *Store) AddImagingOrder(o ImagingOrder) {
	o = o.clone()
	s.mutate(func(st *ConsultState) {
		st.ImagingOrders = append(st.ImagingOrders, o)
	})
}

func (s *Store) UpdateImagingOrder(id string, patch ImagingOrderPatch) {
	s.mutate(func(st *ConsultState) {
		st.ImagingOrders = updateByID(st.ImagingOrders, id, func(o ImagingOrder) string { return o.ID }, func(o *ImagingOrder) {
			patch.apply(o)
		})
	})
}

func (s *Store) RemoveImagingOrder(id string) {
	s.mutate(func(st *ConsultState) {
		st.ImagingOrders = removeByID(st.ImagingOrders, id, func(o ImagingOrder) string { return o.ID })
	})
}

func (s *Store) AddOutsideOrder(o OutsideOrder) {
	o = o.clone()
	s.mutate(func(st *ConsultState) {
		st.OutsideOrders = append(st.OutsideOrders, o)
	})
}

func (s *Store) UpdateOutsideOrder(id string, patch OutsideOrderPatch) {
	s.mutate(func(st *ConsultState) {
		st.OutsideOrders = updateByID(st.OutsideOrders, id, func(o OutsideOrder) string { return o.ID }, func(o *OutsideOrder) {
			patch.apply(o)
		})
	})
}

func (s *Store) RemoveOutsideOrder(id string) {
	s.mutate(func(st *ConsultState) {
		st.OutsideOrders = removeByID(st.OutsideOrders, id, func(o OutsideOrder) string { return o.ID })
	})
}

// updateByID copies items and applies fn to every element whose id matches.
func updateByID[T any](items []T, id string, idOf func(T) string, fn func(*T)) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := range out {
		if idOf(out[i]) == id {
			fn(&out[i])
		}
	}
	return out
}

// removeByID filters out every element whose id matches.
func removeByID[T any](items []T, id string, idOf func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

// -- Notes and flags --

func (s *Store) SetPrivateNotes(notes string) {
	s.mutate(func(st *ConsultState) { st.PrivateNotes = notes })
}

// SetFinished flips the finished flag. It does not lock the draft; callers
// that want an immutable finished consult must enforce that themselves.
func (s *Store) SetFinished(finished bool) {
	s.mutate(func(st *ConsultState) { st.Finished = finished })
}

// ToggleAIVisibility flips whether AI suggestion chips are shown.
func (s *Store) ToggleAIVisibility() {
	s.mutate(func(st *ConsultState) { st.IsAIVisible = !st.IsAIVisible })
}

func (s *Store) SetActiveSection(section string) {
	s.mutate(func(st *ConsultState) { st.UI.ActiveSection = section })
}

func (s *Store) SetPatientDrawerOpen(open bool) {
	s.mutate(func(st *ConsultState) { st.UI.PatientDrawerOpen = open })
}
