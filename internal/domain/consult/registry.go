package consult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbrdigital/goldcare-sub000/internal/platform/storage"
	"github.com/rbrdigital/goldcare-sub000/internal/platform/websocket"
)

// ErrInvalidSession is returned when a patient or encounter id is empty.
var ErrInvalidSession = errors.New("patient and encounter ids are required")

// SessionInfo summarises one open session.
type SessionInfo struct {
	Key         string `json:"key"`
	PatientID   string `json:"patientId"`
	EncounterID string `json:"encounterId"`
	ConsultDate string `json:"consultDate"`
	LastSaved   string `json:"lastSaved"`
	Finished    bool   `json:"finished"`
	HasData     bool   `json:"hasData"`
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Storage      storage.Storage
	KeyPrefix    string
	PersistDelay time.Duration
	Publisher    websocket.EventPublisher
	Logger       zerolog.Logger
}

type entry struct {
	store       *Store
	unsubscribe func()
}

// Registry owns one Store per patient encounter. Stores are created and
// hydrated lazily on first Open.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*entry
	cfg    RegistryConfig
	logger zerolog.Logger
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.PersistDelay <= 0 {
		cfg.PersistDelay = DefaultPersistDelay
	}
	return &Registry{
		stores: make(map[string]*entry),
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "consult_registry").Logger(),
	}
}

// Open returns the store for the session, creating it on first use. A new
// store is hydrated from storage and then initialized for the session, so
// a reload resumes the saved draft. Storage is read without holding the
// registry lock; when two callers race, the first store registered wins.
func (r *Registry) Open(ctx context.Context, patientID, encounterID string) (*Store, error) {
	if patientID == "" || encounterID == "" {
		return nil, ErrInvalidSession
	}
	key := StorageKey(r.cfg.KeyPrefix, patientID, encounterID)

	if store, ok := r.lookup(key); ok {
		return store, nil
	}

	logger := r.logger.With().Str("patient_id", patientID).Str("encounter_id", encounterID).Logger()
	opts := []Option{WithLogger(logger), WithPersistDelay(r.cfg.PersistDelay)}
	if r.cfg.Storage != nil {
		opts = append(opts, WithStorage(r.cfg.Storage, key))
	}
	store := NewStore(opts...)

	found, err := store.Hydrate(ctx)
	if err != nil {
		// Unreadable drafts are replaced by a fresh session.
		logger.Error().Err(err).Msg("discarding unreadable draft")
	}
	if st := store.State(); !found || st.PatientID != patientID || st.EncounterID != encounterID {
		store.InitializeSession(patientID, encounterID)
	}

	r.mu.Lock()
	if e, ok := r.stores[key]; ok {
		r.mu.Unlock()
		store.abandon()
		return e.store, nil
	}
	e := &entry{store: store}
	if r.cfg.Publisher != nil {
		e.unsubscribe = store.Subscribe(func(st ConsultState) {
			r.publish(websocket.EventConsultUpdated, patientID, encounterID, st)
		})
	}
	r.stores[key] = e
	r.mu.Unlock()

	if r.cfg.Publisher != nil {
		r.publish(websocket.EventConsultOpened, patientID, encounterID, store.State())
	}
	logger.Info().Bool("resumed", found).Msg("consult session opened")
	return store, nil
}

func (r *Registry) lookup(key string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[key]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Peek returns the session's state without opening it. An open session is
// read from memory; otherwise the persisted draft is decoded. ok is false
// when neither exists.
func (r *Registry) Peek(ctx context.Context, patientID, encounterID string) (ConsultState, bool, error) {
	if patientID == "" || encounterID == "" {
		return ConsultState{}, false, ErrInvalidSession
	}
	key := StorageKey(r.cfg.KeyPrefix, patientID, encounterID)

	if store, ok := r.lookup(key); ok {
		return store.State(), true, nil
	}
	if r.cfg.Storage == nil {
		return ConsultState{}, false, nil
	}

	raw, err := r.cfg.Storage.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return ConsultState{}, false, nil
	}
	if err != nil {
		return ConsultState{}, false, fmt.Errorf("load draft %s: %w", key, err)
	}
	var p PersistedState
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ConsultState{}, false, fmt.Errorf("decode draft %s: %w", key, err)
	}
	if p.PatientID != patientID || p.EncounterID != encounterID {
		return ConsultState{}, false, nil
	}
	return Rehydrate(p), true, nil
}

// Get returns an already-open store.
func (r *Registry) Get(patientID, encounterID string) (*Store, bool) {
	return r.lookup(StorageKey(r.cfg.KeyPrefix, patientID, encounterID))
}

// Sessions lists open sessions ordered by key.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	out := make([]SessionInfo, 0, len(r.stores))
	for key, e := range r.stores {
		st := e.store.State()
		out = append(out, SessionInfo{
			Key:         key,
			PatientID:   st.PatientID,
			EncounterID: st.EncounterID,
			ConsultDate: st.ConsultDate,
			LastSaved:   st.LastSaved,
			Finished:    st.Finished,
			HasData:     Evaluate(st).HasData,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Clear wipes the session's draft back to defaults while keeping it open
// under the same identity.
func (r *Registry) Clear(ctx context.Context, patientID, encounterID string) (*Store, error) {
	store, err := r.Open(ctx, patientID, encounterID)
	if err != nil {
		return nil, err
	}
	store.ClearSession()
	store.InitializeSession(patientID, encounterID)
	if r.cfg.Publisher != nil {
		r.publish(websocket.EventConsultCleared, patientID, encounterID, store.State())
	}
	r.logger.Info().Str("patient_id", patientID).Str("encounter_id", encounterID).Msg("consult draft cleared")
	return store, nil
}

// Close flushes and forgets one session. Closing an unknown session is a
// no-op.
func (r *Registry) Close(ctx context.Context, patientID, encounterID string) error {
	key := StorageKey(r.cfg.KeyPrefix, patientID, encounterID)

	r.mu.Lock()
	e, ok := r.stores[key]
	delete(r.stores, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	err := e.store.Close(ctx)
	if r.cfg.Publisher != nil {
		r.publish(websocket.EventConsultClosed, patientID, encounterID, e.store.State())
	}
	return err
}

// Discard forgets the session and deletes its persisted draft, whether or not
// the session is open.
func (r *Registry) Discard(ctx context.Context, patientID, encounterID string) error {
	if patientID == "" || encounterID == "" {
		return ErrInvalidSession
	}
	key := StorageKey(r.cfg.KeyPrefix, patientID, encounterID)

	r.mu.Lock()
	e, ok := r.stores[key]
	delete(r.stores, key)
	r.mu.Unlock()

	if ok {
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		if err := e.store.Discard(ctx); err != nil {
			return err
		}
	} else if r.cfg.Storage != nil {
		if err := r.cfg.Storage.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove draft %s: %w", key, err)
		}
	}

	if r.cfg.Publisher != nil {
		r.publish(websocket.EventConsultDiscarded, patientID, encounterID, initialState())
	}
	r.logger.Info().Str("patient_id", patientID).Str("encounter_id", encounterID).Msg("consult draft discarded")
	return nil
}

// Shutdown flushes every open store and empties the registry.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	entries := r.stores
	r.stores = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for key, e := range entries {
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
		if err := e.store.Close(ctx); err != nil {
			r.logger.Error().Err(err).Str("key", key).Msg("flush on shutdown")
			errs = append(errs, err)
		}
	}
	r.logger.Info().Int("sessions", len(entries)).Msg("consult registry shut down")
	return errors.Join(errs...)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Snapshot is the payload of consult events and GET responses.
type Snapshot struct {
	State        ConsultState `json:"state"`
	Completeness Completeness `json:"completeness"`
}

func NewSnapshot(st ConsultState) Snapshot {
	return Snapshot{State: st, Completeness: Evaluate(st)}
}

func (r *Registry) publish(eventType, patientID, encounterID string, st ConsultState) {
	data, err := json.Marshal(NewSnapshot(st))
	if err != nil {
		r.logger.Error().Err(err).Str("event", eventType).Msg("encode consult event")
		return
	}
	ev := websocket.Event{
		Type:        eventType,
		Topic:       websocket.ConsultTopic(patientID, encounterID),
		PatientID:   patientID,
		EncounterID: encounterID,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}
	if err := r.cfg.Publisher.Publish(context.Background(), ev); err != nil {
		r.logger.Warn().Err(err).Str("event", eventType).Msg("publish consult event")
	}
}
