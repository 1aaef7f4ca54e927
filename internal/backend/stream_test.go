package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newStreamTestClient(t *testing.T, handler http.HandlerFunc, idle time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:           srv.URL + "/api",
		RequestTimeout:    5 * time.Second,
		StreamIdleTimeout: idle,
	}, nil)
}

func sseHandler(t *testing.T, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/stream/conversation" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("message"); got == "" {
			t.Error("Expected message query parameter")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

func collect(seq func(yield func(*StreamEvent, error) bool)) (events []*StreamEvent, errs []error) {
	for ev, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func TestOpenMessageStreamDeliversTokensThenComplete(t *testing.T) {
	frames := []string{
		"retry: 5000\n\n",
		"id: 1\nevent: token\ndata: {\"token\":\"Hel\"}\n\n",
		"id: 2\nevent: token\ndata: {\"token\":\"lo\"}\n\n",
		"id: 3\nevent: complete\ndata: {\"pointsEarned\":10,\"messageId\":\"srv-1\"}\n\n",
	}
	c := newStreamTestClient(t, sseHandler(t, frames), time.Minute)

	events, errs := collect(c.OpenMessageStream(context.Background(), "user-1", "conv-1", "hello"))
	if len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	var text strings.Builder
	for _, ev := range events[:2] {
		if ev.Type != StreamToken {
			t.Errorf("Expected token event, got %s", ev.Type)
		}
		text.WriteString(ev.Token)
	}
	if text.String() != "Hello" {
		t.Errorf("Expected concatenated %q, got %q", "Hello", text.String())
	}

	last := events[2]
	if last.Type != StreamComplete || last.PointsEarned != 10 || last.MessageID != "srv-1" {
		t.Errorf("Unexpected terminal event: %+v", last)
	}
}

func TestOpenMessageStreamErrorEvent(t *testing.T) {
	frames := []string{
		"event: token\ndata: {\"token\":\"Par\"}\n\n",
		"event: error\ndata: {\"error\":\"model unavailable\"}\n\n",
	}
	c := newStreamTestClient(t, sseHandler(t, frames), time.Minute)

	events, errs := collect(c.OpenMessageStream(context.Background(), "user-1", "conv-1", "hello"))
	if len(events) != 1 || events[0].Token != "Par" {
		t.Errorf("Expected the token before the failure, got %+v", events)
	}
	if len(errs) != 1 {
		t.Fatalf("Expected one error, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "model unavailable") {
		t.Errorf("Expected server error detail, got %v", errs[0])
	}
}

func TestOpenMessageStreamIgnoresUnknownEventsAndComments(t *testing.T) {
	frames := []string{
		"id: 1\nevent: connected\ndata: {\"status\":\"connected\"}\n\n",
		": keep-alive\n",
		"event: ping\ndata: {\"status\":\"alive\"}\n\n",
		"event: complete\ndata: {\"pointsEarned\":10,\"messageId\":\"srv-1\"}\n\n",
	}
	c := newStreamTestClient(t, sseHandler(t, frames), time.Minute)

	events, errs := collect(c.OpenMessageStream(context.Background(), "user-1", "conv-1", "hello"))
	if len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(events) != 1 || events[0].Type != StreamComplete {
		t.Errorf("Expected only the complete event, got %+v", events)
	}
}

func TestOpenMessageStreamStallTripsWatchdog(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: token\ndata: {\"token\":\"He\"}\n\n")
		flusher.Flush()
		// Then go silent until the client tears the connection down.
		<-r.Context().Done()
	}
	c := newStreamTestClient(t, handler, 50*time.Millisecond)

	events, errs := collect(c.OpenMessageStream(context.Background(), "user-1", "conv-1", "hello"))
	if len(events) != 1 {
		t.Errorf("Expected the delivered token, got %+v", events)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrStreamStalled) {
		t.Errorf("Expected ErrStreamStalled, got %v", errs)
	}
}

func TestOpenMessageStreamContextCancellation(t *testing.T) {
	started := make(chan struct{})
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: token\ndata: {\"token\":\"He\"}\n\n")
		flusher.Flush()
		close(started)
		<-r.Context().Done()
	}
	c := newStreamTestClient(t, handler, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, errs := collect(c.OpenMessageStream(ctx, "user-1", "conv-1", "hello"))
	if len(errs) != 1 || !errors.Is(errs[0], context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", errs)
	}
}

func TestOpenMessageStreamEarlyCloseWithoutTerminal(t *testing.T) {
	frames := []string{"event: token\ndata: {\"token\":\"He\"}\n\n"}
	c := newStreamTestClient(t, sseHandler(t, frames), time.Minute)

	events, errs := collect(c.OpenMessageStream(context.Background(), "user-1", "conv-1", "hello"))
	if len(events) != 1 {
		t.Errorf("Expected the delivered token, got %+v", events)
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "unexpected EOF") {
		t.Errorf("Expected unexpected EOF, got %v", errs)
	}
}

func TestOpenMessageStreamHTTPErrorStatus(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"conversation has ended"}`)
	}
	c := newStreamTestClient(t, handler, time.Minute)

	events, errs := collect(c.OpenMessageStream(context.Background(), "user-1", "conv-1", "hello"))
	if len(events) != 0 {
		t.Errorf("Expected no events, got %+v", events)
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "conversation has ended") {
		t.Errorf("Expected status error detail, got %v", errs)
	}
}
