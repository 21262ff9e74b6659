package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmakart/api/internal/events"
)

type recordingBus struct {
	published []events.Event
	results   []events.ReactionResult
}

func (b *recordingBus) Dispatch(_ context.Context, event events.Event) []events.ReactionResult {
	b.published = append(b.published, event)
	return b.results
}

func newInternalRouter(bus events.Redispatcher) http.Handler {
	router := chi.NewRouter()
	router.Route("/internal", NewInternalEventHandlers(bus).Routes)
	return router
}

func pushBody(t *testing.T, envelope map[string]any) string {
	t.Helper()

	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return fmt.Sprintf(`{"message": {"data": %q, "messageId": "msg-1"}, "subscription": "projects/p/subscriptions/s"}`,
		base64.StdEncoding.EncodeToString(data))
}

func TestInternalEventsProcessesKnownEvent(t *testing.T) {
	bus := &recordingBus{
		results: []events.ReactionResult{
			{Handler: "orders", Success: true},
			{Handler: "push", Success: false},
		},
	}

	body := pushBody(t, map[string]any{
		"name":       "order.created",
		"entityType": "order",
		"entityId":   "ord_1",
		"occurredAt": time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		"payload": map[string]any{
			"Order": map[string]any{"ID": "ord_1"},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/internal/events", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newInternalRouter(bus).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(bus.published))
	}
	created, ok := bus.published[0].(events.OrderCreated)
	if !ok {
		t.Fatalf("published %T, want OrderCreated", bus.published[0])
	}
	if created.Order.ID != "ord_1" {
		t.Fatalf("unexpected order id: %s", created.Order.ID)
	}

	var resp struct {
		Status    string `json:"status"`
		Event     string `json:"event"`
		Reactions int    `json:"reactions"`
		Failed    int    `json:"failed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "processed" || resp.Event != "order.created" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Reactions != 2 || resp.Failed != 1 {
		t.Fatalf("unexpected reaction counts: %+v", resp)
	}
}

func TestInternalEventsDoesNotReachCatchAllSubscribers(t *testing.T) {
	dispatcher, err := events.NewDispatcher(events.DispatcherDeps{
		Logger: func(context.Context, string, map[string]any) {},
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	mirrored, reacted := 0, 0
	dispatcher.SubscribeAll("pubsub_mirror", func(context.Context, events.Event) events.ReactionResult {
		mirrored++
		return events.ReactionResult{Success: true}
	})
	dispatcher.Subscribe(events.NameOrderCreated, "orders", func(context.Context, events.Event) events.ReactionResult {
		reacted++
		return events.ReactionResult{Success: true}
	})

	body := pushBody(t, map[string]any{
		"name":    "order.created",
		"payload": map[string]any{"Order": map[string]any{"ID": "ord_7"}},
	})

	req := httptest.NewRequest(http.MethodPost, "/internal/events", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newInternalRouter(dispatcher).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if reacted != 1 {
		t.Fatalf("named handler ran %d times, want 1", reacted)
	}
	if mirrored != 0 {
		t.Fatalf("mirror ran %d times, want 0: a redelivered event must not go back to the topic", mirrored)
	}
}

func TestInternalEventsAcksUnknownEvent(t *testing.T) {
	bus := &recordingBus{}

	body := pushBody(t, map[string]any{
		"name":    "order.teleported",
		"payload": map[string]any{},
	})

	req := httptest.NewRequest(http.MethodPost, "/internal/events", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newInternalRouter(bus).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 ack, got %d", rr.Code)
	}
	if len(bus.published) != 0 {
		t.Fatalf("expected no published events, got %d", len(bus.published))
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "skipped" {
		t.Fatalf("unexpected status: %s", resp.Status)
	}
}

func TestInternalEventsRejectsEmptyDelivery(t *testing.T) {
	bus := &recordingBus{}

	req := httptest.NewRequest(http.MethodPost, "/internal/events", strings.NewReader(`{"message": {"messageId": "msg-1"}}`))
	rr := httptest.NewRecorder()
	newInternalRouter(bus).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "VALIDATION_ERROR")
}
