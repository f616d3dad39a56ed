package consult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rbrdigital/goldcare-sub000/internal/platform/storage"
)

// PersistedState is the whitelisted subset of ConsultState mirrored to
// storage. UI state is deliberately absent and resets on rehydration.
type PersistedState struct {
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
}

// StorageKey is the storage key for one session.
func StorageKey(prefix, patientID, encounterID string) string {
	return fmt.Sprintf("%sconsult:%s:%s", prefix, patientID, encounterID)
}

// Partialize projects state onto the persisted whitelist.
func Partialize(st ConsultState) PersistedState {
	st = st.Clone()
	return PersistedState{
		PatientID:     st.PatientID,
		EncounterID:   st.EncounterID,
		ConsultDate:   st.ConsultDate,
		SOAPNote:      st.SOAPNote,
		Prescriptions: st.Prescriptions,
		LabOrders:     st.LabOrders,
		ImagingOrders: st.ImagingOrders,
		OutsideOrders: st.OutsideOrders,
		PrivateNotes:  st.PrivateNotes,
		IsAIVisible:   st.IsAIVisible,
		Finished:      st.Finished,
		LastSaved:     st.LastSaved,
	}
}

// Rehydrate builds a full state from persisted fields; everything outside
// the whitelist takes its initial default. Missing lists come back empty.
func Rehydrate(p PersistedState) ConsultState {
	st := initialState()
	st.PatientID = p.PatientID
	st.EncounterID = p.EncounterID
	st.ConsultDate = p.ConsultDate
	st.SOAPNote = p.SOAPNote.clone()
	st.PrivateNotes = p.PrivateNotes
	st.IsAIVisible = p.IsAIVisible
	st.Finished = p.Finished
	st.LastSaved = p.LastSaved

	for _, l := range []*[]string{
		&st.SOAPNote.Medications, &st.SOAPNote.Supplements, &st.SOAPNote.Allergies,
		&st.SOAPNote.Diagnoses, &st.SOAPNote.Comorbidities,
	} {
		if *l == nil {
			*l = []string{}
		}
	}
	if p.Prescriptions != nil {
		st.Prescriptions = cloneEach(p.Prescriptions, Prescription.clone)
	}
	if p.LabOrders != nil {
		st.LabOrders = cloneEach(p.LabOrders, LabOrder.clone)
	}
	if p.ImagingOrders != nil {
		st.ImagingOrders = cloneEach(p.ImagingOrders, ImagingOrder.clone)
	}
	if p.OutsideOrders != nil {
		st.OutsideOrders = cloneEach(p.OutsideOrders, OutsideOrder.clone)
	}
	return st
}

// Hydrate loads the persisted draft, replacing in-memory state. It reports
// whether a draft was found. A missing draft is not an error; a malformed
// one is reported and leaves the store untouched.
func (s *Store) Hydrate(ctx context.Context) (bool, error) {
	if s.storage == nil {
		return false, nil
	}

	raw, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load draft %s: %w", s.key, err)
	}

	var p PersistedState
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return false, fmt.Errorf("decode draft %s: %w", s.key, err)
	}

	st := Rehydrate(p)
	var saved time.Time
	if st.LastSaved != "" {
		if t, err := time.Parse(time.RFC3339Nano, st.LastSaved); err == nil {
			saved = t.UTC()
		}
	}

	s.mu.Lock()
	if saved.Before(s.lastSaved) {
		saved = s.lastSaved
	}
	if !saved.IsZero() {
		st.LastSaved = formatTimestamp(saved)
	}
	s.state = st
	s.lastSaved = saved
	s.mu.Unlock()
	return true, nil
}

// persist writes the whitelisted projection. Writes are serialized so an
// older snapshot never lands after a newer one.
func (s *Store) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.discarded {
		return nil
	}

	s.mu.Lock()
	payload, err := json.Marshal(Partialize(s.state))
	s.mu.Unlock()
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("encode draft")
		return fmt.Errorf("encode draft: %w", err)
	}

	if err := s.storage.Set(ctx, s.key, string(payload)); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("persist draft")
		return fmt.Errorf("persist draft %s: %w", s.key, err)
	}
	s.logger.Debug().Str("key", s.key).Int("bytes", len(payload)).Msg("draft persisted")
	return nil
}

// Flush cancels any pending debounced write and persists the current state
// now. It is a no-op when the store is not persisted. Once Flush returns, the
// stored draft reflects every mutation made before the call.
func (s *Store) Flush(ctx context.Context) error {
	if s.debouncer == nil {
		return nil
	}
	s.debouncer.Cancel()
	return s.persist(ctx)
}

// Close flushes pending work and stops the debouncer. Mutations after Close
// still apply in memory but are no longer persisted.
func (s *Store) Close(ctx context.Context) error {
	if s.debouncer == nil {
		return nil
	}
	s.debouncer.Stop()
	return s.persist(ctx)
}

// Discard removes the persisted draft and stops persisting later mutations.
// A write already in flight completes before the draft is removed.
func (s *Store) Discard(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.debouncer != nil {
		s.debouncer.Stop()
	}
	s.discarded = true
	if err := s.storage.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove draft %s: %w", s.key, err)
	}
	return nil
}

// abandon stops a store that lost a registration race without writing.
func (s *Store) abandon() {
	if s.debouncer != nil {
		s.debouncer.Stop()
	}
}
