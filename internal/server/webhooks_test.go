package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"plugline/internal/config"
	"plugline/internal/events"
)

type received struct {
	mu      sync.Mutex
	events  []webhookEvent
	headers []http.Header
}

func (r *received) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(req.Body).Decode(&evt)
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.headers = append(r.headers, req.Header.Clone())
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestWebhookDeliversNewEventsOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.Events.Append(ctx, nil, events.RunStarted, "", "tester", nil); err != nil {
		t.Fatal(err)
	}

	var got received
	hookSrv := httptest.NewServer(got.handler(http.StatusOK))
	defer hookSrv.Close()

	d := NewWebhookDispatcher(e, []config.WebhookConfig{{
		URL:    hookSrv.URL,
		Events: []string{events.RunFinished},
		Secret: "shh",
	}}, nil)
	d.DispatchAll(ctx)
	if len(got.events) != 0 {
		t.Fatalf("pre-existing events must not be delivered, got %d", len(got.events))
	}

	seedRuns(t, e, 1)
	if err := e.Events.Append(ctx, nil, events.RunFinished, "run-0", "tester", events.EventPayload{"state": "committed"}); err != nil {
		t.Fatal(err)
	}
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	if len(got.events) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got.events))
	}
	evt := got.events[0]
	if evt.Type != events.RunFinished || evt.RunID != "run-0" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	h := got.headers[0]
	if h.Get("X-Plugline-Event") != events.RunFinished || h.Get("X-Plugline-Secret") != "shh" || h.Get("X-Plugline-Run") != "run-0" {
		t.Fatalf("unexpected headers: %v", h)
	}
}

func TestWebhookRetriesAfterFailure(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var got received
	hookSrv := httptest.NewServer(got.handler(http.StatusInternalServerError))
	defer hookSrv.Close()

	d := NewWebhookDispatcher(e, []config.WebhookConfig{{URL: hookSrv.URL}}, nil)
	d.DispatchAll(ctx)
	seedRuns(t, e, 1)
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)
	if len(got.events) != 2 {
		t.Fatalf("failed delivery should be retried, got %d attempts", len(got.events))
	}
}

func TestWebhookDisabled(t *testing.T) {
	e := newTestEngine(t)
	var got received
	hookSrv := httptest.NewServer(got.handler(http.StatusOK))
	defer hookSrv.Close()
	off := false
	d := NewWebhookDispatcher(e, []config.WebhookConfig{{URL: hookSrv.URL, Enabled: &off}}, nil)
	d.DispatchAll(context.Background())
	seedRuns(t, e, 1)
	d.DispatchAll(context.Background())
	if len(got.events) != 0 {
		t.Fatalf("disabled hook received %d events", len(got.events))
	}
}

func TestEventFilter(t *testing.T) {
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter should match all")
	}
	if !newEventFilter([]string{" ", ""}).match("run.state") {
		t.Fatalf("blank entries should match all")
	}
	f := newEventFilter([]string{"run.failed"})
	if f.match("run.state") || !f.match("run.failed") {
		t.Fatalf("unexpected filter behavior")
	}
}
