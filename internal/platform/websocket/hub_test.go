package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive event", c.ID)
	}
	return Event{}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Send:
		t.Fatalf("client %s should not have received an event", c.ID)
	default:
	}
}

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestConsultTopic(t *testing.T) {
	if got := ConsultTopic("p-1", "e-9"); got != "Consult/p-1/e-9" {
		t.Errorf("expected Consult/p-1/e-9, got %s", got)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := newTestHub()
	topic := ConsultTopic("p-1", "e-1")
	client := NewClient(topic)

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(topic) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount(topic))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount(topic) != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.TopicCount(topic))
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed after unregister")
	}

	// second unregister must not panic on the closed channel
	hub.Unregister(client)
}

func TestHub_PublishReachesOnlySessionSubscribers(t *testing.T) {
	hub := newTestHub()
	sub := NewClient(ConsultTopic("p-1", "e-1"))
	other := NewClient(ConsultTopic("p-1", "e-2"))
	hub.Register(sub)
	hub.Register(other)

	err := hub.Publish(context.Background(), Event{
		Type:        EventConsultUpdated,
		PatientID:   "p-1",
		EncounterID: "e-1",
		Data:        json.RawMessage(`{"hasData":true}`),
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	ev := receive(t, sub)
	if ev.Type != EventConsultUpdated {
		t.Errorf("expected %s, got %s", EventConsultUpdated, ev.Type)
	}
	if ev.Topic != "Consult/p-1/e-1" {
		t.Errorf("expected topic to be derived from ids, got %s", ev.Topic)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be stamped")
	}
	if string(ev.Data) != `{"hasData":true}` {
		t.Errorf("unexpected payload %s", ev.Data)
	}
	assertSilent(t, other)
}

func TestHub_PublishToEmptyTopic(t *testing.T) {
	hub := newTestHub()
	if err := hub.Publish(context.Background(), Event{Type: EventConsultCleared, Topic: "Consult/x/y"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := newTestHub()
	topic := ConsultTopic("p", "e")
	client := &Client{ID: "slow", Topics: []string{topic}, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast(topic, Event{Type: EventConsultUpdated, Topic: topic})
	hub.Broadcast(topic, Event{Type: EventConsultUpdated, Topic: topic})

	if hub.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", hub.Dropped())
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := newTestHub()
	client := NewClient()
	hub.Register(client)

	a, b := ConsultTopic("p", "1"), ConsultTopic("p", "2")
	hub.Subscribe(client, []string{a, b, a})
	if len(client.Topics) != 2 {
		t.Fatalf("expected duplicate topic to be ignored, got %v", client.Topics)
	}
	if hub.TopicCount(a) != 1 || hub.TopicCount(b) != 1 {
		t.Fatalf("expected one subscriber per topic")
	}

	hub.Unsubscribe(client, []string{a})
	if hub.TopicCount(a) != 0 {
		t.Errorf("expected 0 on %s, got %d", a, hub.TopicCount(a))
	}
	if len(client.Topics) != 1 || client.Topics[0] != b {
		t.Errorf("expected only %s remaining, got %v", b, client.Topics)
	}
}

func TestHub_SubscribeUnregisteredClientIgnored(t *testing.T) {
	hub := newTestHub()
	client := NewClient()
	hub.Subscribe(client, []string{ConsultTopic("p", "e")})
	if hub.TopicCount(ConsultTopic("p", "e")) != 0 {
		t.Error("unregistered client should not be subscribed")
	}
}

func TestHub_ProcessMessageFiltersForeignTopics(t *testing.T) {
	hub := newTestHub()
	client := NewClient()
	hub.Register(client)

	var msg ClientMessage
	raw := `{"action":"subscribe","topics":["Consult/p-1/e-1","Patient/123"]}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	hub.ProcessMessage(client, msg)

	if hub.TopicCount("Consult/p-1/e-1") != 1 {
		t.Error("expected consult topic to be subscribed")
	}
	if hub.TopicCount("Patient/123") != 0 {
		t.Error("expected foreign topic to be ignored")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"Consult/p-1/e-1"}})
	if hub.TopicCount("Consult/p-1/e-1") != 0 {
		t.Error("expected consult topic to be unsubscribed")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "bogus", Topics: []string{"Consult/p-1/e-1"}})
	if hub.TopicCount("Consult/p-1/e-1") != 0 {
		t.Error("unknown action must not subscribe")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	const n = 100

	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = NewClient(ConsultTopic("p", "concurrent"))
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(c *Client) {
			defer wg.Done()
			hub.Register(c)
			hub.Publish(context.Background(), Event{Type: EventConsultUpdated, PatientID: "p", EncounterID: "concurrent"})
			hub.Unregister(c)
		}(clients[i])
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(newTestHub(), nil).RegisterRoutes(e)

	found := false
	for _, r := range e.Routes() {
		if r.Path == "/ws" && r.Method == http.MethodGet {
			found = true
		}
	}
	if !found {
		t.Fatal("expected GET /ws route to be registered")
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()

	err := NewHandler(newTestHub(), nil).HandleConnect(e.NewContext(req, rec))
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_StreamsSessionEvents(t *testing.T) {
	hub := newTestHub()
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?patientId=p-1&encounterId=e-1"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	topic := ConsultTopic("p-1", "e-1")
	deadline := time.Now().Add(time.Second)
	for hub.TopicCount(topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(context.Background(), Event{Type: EventConsultUpdated, PatientID: "p-1", EncounterID: "e-1"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != EventConsultUpdated || ev.Topic != topic {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestHandler_OriginAllowList(t *testing.T) {
	h := NewHandler(newTestHub(), []string{"https://app.example.com"})

	ok := httptest.NewRequest(http.MethodGet, "/ws", nil)
	ok.Header.Set("Origin", "https://app.example.com")
	if !h.upgrader.CheckOrigin(ok) {
		t.Error("expected listed origin to be allowed")
	}

	bad := httptest.NewRequest(http.MethodGet, "/ws", nil)
	bad.Header.Set("Origin", "https://evil.example.com")
	if h.upgrader.CheckOrigin(bad) {
		t.Error("expected unlisted origin to be rejected")
	}

	open := NewHandler(newTestHub(), []string{"*"})
	if !open.upgrader.CheckOrigin(bad) {
		t.Error("expected wildcard to allow any origin")
	}
}
