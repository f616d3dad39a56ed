package consult

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbrdigital/goldcare-sub000/internal/platform/storage"
	"github.com/rbrdigital/goldcare-sub000/internal/platform/websocket"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func (p *recordingPublisher) last() websocket.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func newTestRegistry(st storage.Storage, pub websocket.EventPublisher) *Registry {
	return NewRegistry(RegistryConfig{
		Storage:      st,
		KeyPrefix:    "test:",
		PersistDelay: time.Hour,
		Publisher:    pub,
		Logger:       zerolog.Nop(),
	})
}

func TestRegistry_OpenRequiresIdentity(t *testing.T) {
	r := newTestRegistry(nil, nil)
	ctx := context.Background()

	for _, ids := range [][2]string{{"", "e-1"}, {"p-1", ""}, {"", ""}} {
		if _, err := r.Open(ctx, ids[0], ids[1]); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Open(%q, %q): expected ErrInvalidSession, got %v", ids[0], ids[1], err)
		}
	}
	if err := r.Discard(ctx, "", "e-1"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Discard: expected ErrInvalidSession, got %v", err)
	}
}

func TestRegistry_OpenInitializesAndReuses(t *testing.T) {
	r := newTestRegistry(storage.NewMemory(), nil)
	ctx := context.Background()

	s1, err := r.Open(ctx, "p-1", "e-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	st := s1.State()
	if st.PatientID != "p-1" || st.EncounterID != "e-1" || st.ConsultDate == "" {
		t.Errorf("expected session initialized, got %+v", st)
	}
	if s1.Key() != testKey {
		t.Errorf("expected key %s, got %s", testKey, s1.Key())
	}

	s2, _ := r.Open(ctx, "p-1", "e-1")
	if s1 != s2 {
		t.Error("expected the same store for the same session")
	}
	s3, _ := r.Open(ctx, "p-1", "e-2")
	if s3 == s1 {
		t.Error("expected separate stores per encounter")
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", r.Len())
	}

	s3.SetPrivateNotes("only in e-2")
	if s1.State().PrivateNotes != "" {
		t.Error("expected sessions to be isolated")
	}
}

func TestRegistry_OpenResumesPersistedDraft(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()

	first := newTestRegistry(mem, nil)
	s, _ := first.Open(ctx, "p-1", "e-1")
	s.SetSOAPField(FieldChiefComplaint, "back pain")
	consultDate := s.State().ConsultDate
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	second := newTestRegistry(mem, nil)
	resumed, err := second.Open(ctx, "p-1", "e-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	st := resumed.State()
	if st.SOAPNote.ChiefComplaint != "back pain" {
		t.Errorf("expected draft resumed, got %q", st.SOAPNote.ChiefComplaint)
	}
	if st.ConsultDate != consultDate {
		t.Errorf("expected consult date kept on resume, got %s want %s", st.ConsultDate, consultDate)
	}
}

func TestRegistry_OpenReplacesUnreadableDraft(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	_ = mem.Set(ctx, testKey, "garbage")

	r := newTestRegistry(mem, nil)
	s, err := r.Open(ctx, "p-1", "e-1")
	if err != nil {
		t.Fatalf("expected unreadable draft to be replaced, got %v", err)
	}
	if s.State().PatientID != "p-1" {
		t.Error("expected a fresh session")
	}
}

func TestRegistry_OpenIgnoresDraftForOtherIdentity(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	raw, _ := json.Marshal(PersistedState{PatientID: "p-9", EncounterID: "e-9", PrivateNotes: "other patient"})
	_ = mem.Set(ctx, testKey, string(raw))

	r := newTestRegistry(mem, nil)
	s, _ := r.Open(ctx, "p-1", "e-1")
	st := s.State()
	if st.PatientID != "p-1" || st.PrivateNotes != "" {
		t.Errorf("expected mismatched draft discarded, got %+v", st)
	}
}

func TestRegistry_Sessions(t *testing.T) {
	r := newTestRegistry(nil, nil)
	ctx := context.Background()

	b, _ := r.Open(ctx, "p-2", "e-1")
	r.Open(ctx, "p-1", "e-1")
	b.SetPrivateNotes("notes")

	sessions := r.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].PatientID != "p-1" || sessions[1].PatientID != "p-2" {
		t.Errorf("expected sessions sorted by key, got %+v", sessions)
	}
	if sessions[0].HasData || !sessions[1].HasData {
		t.Errorf("unexpected hasData flags %+v", sessions)
	}

	if _, ok := r.Get("p-2", "e-1"); !ok {
		t.Error("expected Get to find open session")
	}
	if _, ok := r.Get("p-3", "e-1"); ok {
		t.Error("expected Get to miss unknown session")
	}
}

func TestRegistry_ClearKeepsIdentity(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestRegistry(nil, pub)
	ctx := context.Background()

	s, _ := r.Open(ctx, "p-1", "e-1")
	s.AddDiagnosis("I10")

	cleared, err := r.Clear(ctx, "p-1", "e-1")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	st := cleared.State()
	if st.PatientID != "p-1" || st.EncounterID != "e-1" {
		t.Errorf("expected identity kept, got %s/%s", st.PatientID, st.EncounterID)
	}
	if len(st.SOAPNote.Diagnoses) != 0 {
		t.Error("expected content cleared")
	}
	if pub.last().Type != websocket.EventConsultCleared {
		t.Errorf("expected cleared event last, got %v", pub.types())
	}
}

func TestRegistry_CloseFlushesAndForgets(t *testing.T) {
	mem := storage.NewMemory()
	pub := &recordingPublisher{}
	r := newTestRegistry(mem, pub)
	ctx := context.Background()

	s, _ := r.Open(ctx, "p-1", "e-1")
	s.SetPrivateNotes("closing")

	if err := r.Close(ctx, "p-1", "e-1"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected session released, got %d", r.Len())
	}
	if !mem.Has(testKey) {
		t.Error("expected draft flushed on close")
	}
	if pub.last().Type != websocket.EventConsultClosed {
		t.Errorf("expected closed event last, got %v", pub.types())
	}

	if err := r.Close(ctx, "p-1", "e-1"); err != nil {
		t.Errorf("expected closing an unknown session to be a no-op, got %v", err)
	}
}

func TestRegistry_Discard(t *testing.T) {
	mem := storage.NewMemory()
	pub := &recordingPublisher{}
	r := newTestRegistry(mem, pub)
	ctx := context.Background()

	s, _ := r.Open(ctx, "p-1", "e-1")
	s.SetPrivateNotes("discard me")
	_ = s.Flush(ctx)

	if err := r.Discard(ctx, "p-1", "e-1"); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if mem.Has(testKey) || r.Len() != 0 {
		t.Error("expected open draft removed")
	}
	ev := pub.last()
	if ev.Type != websocket.EventConsultDiscarded || ev.Topic != websocket.ConsultTopic("p-1", "e-1") {
		t.Errorf("unexpected event %+v", ev)
	}

	// a draft left by an earlier process is removed without opening it
	_ = mem.Set(ctx, StorageKey("test:", "p-2", "e-2"), "{}")
	if err := r.Discard(ctx, "p-2", "e-2"); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if mem.Len() != 0 {
		t.Errorf("expected stored draft removed, %d left", mem.Len())
	}
}

func TestRegistry_PublishesMutations(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestRegistry(nil, pub)
	ctx := context.Background()

	s, _ := r.Open(ctx, "p-1", "e-1")
	s.SetSOAPField(FieldChiefComplaint, "rash")

	types := pub.types()
	if len(types) < 2 || types[0] != websocket.EventConsultOpened {
		t.Fatalf("expected opened event first, got %v", types)
	}

	ev := pub.last()
	if ev.Type != websocket.EventConsultUpdated || ev.PatientID != "p-1" || ev.EncounterID != "e-1" {
		t.Errorf("unexpected event %+v", ev)
	}
	var snap Snapshot
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State.SOAPNote.ChiefComplaint != "rash" || !snap.Completeness.HasSoapContent {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	r.Close(ctx, "p-1", "e-1")
	n := len(pub.types())
	s.SetPrivateNotes("after close")
	if len(pub.types()) != n {
		t.Error("expected no events from a closed session")
	}
}

func TestRegistry_PublishesThroughHub(t *testing.T) {
	hub := websocket.NewHub(zerolog.Nop())
	client := websocket.NewClient(websocket.ConsultTopic("p-1", "e-1"))
	hub.Register(client)
	defer hub.Unregister(client)

	r := newTestRegistry(nil, hub)
	s, _ := r.Open(context.Background(), "p-1", "e-1")
	s.AddAllergy("latex")

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case msg := <-client.Send:
			var ev websocket.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			got[ev.Type] = true
		case <-time.After(time.Second):
			t.Fatalf("expected opened and updated events, got %v", got)
		}
	}
	if !got[websocket.EventConsultOpened] || !got[websocket.EventConsultUpdated] {
		t.Errorf("unexpected events %v", got)
	}
}

func TestRegistry_ShutdownFlushesAll(t *testing.T) {
	cs := newCountingStorage()
	r := newTestRegistry(cs, nil)
	ctx := context.Background()

	a, _ := r.Open(ctx, "p-1", "e-1")
	b, _ := r.Open(ctx, "p-2", "e-2")
	a.SetPrivateNotes("a")
	b.SetPrivateNotes("b")

	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected registry emptied, got %d", r.Len())
	}
	if n := len(cs.Writes()); n != 2 {
		t.Errorf("expected one write per session, got %d", n)
	}
}

func TestRegistry_ShutdownJoinsErrors(t *testing.T) {
	cs := newCountingStorage()
	cs.failSet = true
	r := newTestRegistry(cs, nil)
	ctx := context.Background()

	r.Open(ctx, "p-1", "e-1")
	r.Open(ctx, "p-2", "e-2")

	if err := r.Shutdown(ctx); err == nil {
		t.Error("expected joined flush errors")
	}
}

// gatedStorage blocks Get until release is closed.
type gatedStorage struct {
	*storage.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStorage) Get(ctx context.Context, key string) (string, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Memory.Get(ctx, key)
}

func TestRegistry_SlowHydrateDoesNotBlockOtherSessions(t *testing.T) {
	gated := &gatedStorage{Memory: storage.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	r := newTestRegistry(gated, nil)
	ctx := context.Background()

	opened := make(chan *Store, 1)
	go func() {
		s, _ := r.Open(ctx, "p-1", "e-1")
		opened <- s
	}()
	<-gated.entered

	done := make(chan struct{})
	go func() {
		r.Sessions()
		r.Len()
		r.Get("p-9", "e-9")
		r.Close(ctx, "p-9", "e-9")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry blocked behind a slow hydrate")
	}

	close(gated.release)
	select {
	case s := <-opened:
		if s == nil || s.State().PatientID != "p-1" {
			t.Errorf("expected session opened after release")
		}
	case <-time.After(time.Second):
		t.Fatal("Open never completed")
	}
}

func TestRegistry_ConcurrentOpenSharesOneStore(t *testing.T) {
	r := newTestRegistry(storage.NewMemory(), nil)
	ctx := context.Background()
	const n = 20

	stores := make([]*Store, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			stores[i], _ = r.Open(ctx, "p-1", "e-1")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if stores[i] != stores[0] {
			t.Fatal("expected every caller to get the same store")
		}
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 session, got %d", r.Len())
	}
}

func TestRegistry_Peek(t *testing.T) {
	mem := storage.NewMemory()
	r := newTestRegistry(mem, nil)
	ctx := context.Background()

	if _, ok, err := r.Peek(ctx, "p-1", "e-1"); ok || err != nil {
		t.Errorf("expected unknown session, ok=%v err=%v", ok, err)
	}
	if _, _, err := r.Peek(ctx, "", "e-1"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}

	s, _ := r.Open(ctx, "p-1", "e-1")
	s.SetPrivateNotes("open")
	st, ok, err := r.Peek(ctx, "p-1", "e-1")
	if !ok || err != nil || st.PrivateNotes != "open" {
		t.Errorf("expected open session state, got ok=%v err=%v %+v", ok, err, st)
	}

	if err := r.Close(ctx, "p-1", "e-1"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	st, ok, _ = r.Peek(ctx, "p-1", "e-1")
	if !ok || st.PrivateNotes != "open" || r.Len() != 0 {
		t.Errorf("expected persisted draft read without reopening, ok=%v len=%d", ok, r.Len())
	}

	_ = mem.Set(ctx, StorageKey("test:", "p-2", "e-2"), "not json")
	if _, _, err := r.Peek(ctx, "p-2", "e-2"); err == nil {
		t.Error("expected decode error for a corrupt draft")
	}
}
