package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/platform/httpx"
	"github.com/pharmakart/api/internal/platform/requestctx"
)

// InternalEventHandlers receives Pub/Sub push deliveries of mirrored domain
// events and feeds them back into the reaction bus. Used when reactions run
// in a separate deployment from the API that produced the event. Redelivered
// events go through Dispatch, never Publish: a push delivery already went
// over the topic once, and re-mirroring it would loop forever.
type InternalEventHandlers struct {
	bus events.Redispatcher
}

// NewInternalEventHandlers constructs InternalEventHandlers.
func NewInternalEventHandlers(bus events.Redispatcher) *InternalEventHandlers {
	return &InternalEventHandlers{bus: bus}
}

// Routes registers the /internal endpoints.
func (h *InternalEventHandlers) Routes(r chi.Router) {
	r.Post("/events", h.receiveEvent)
}

// pushRequest is the Pub/Sub push delivery wrapper.
type pushRequest struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// eventEnvelope mirrors the wire shape published by the Pub/Sub mirror. The
// payload is kept raw until the event name selects a concrete type.
type eventEnvelope struct {
	Name       string          `json:"name"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func (h *InternalEventHandlers) receiveEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var push pushRequest
	if err := decodeJSON(r, &push); err != nil {
		writeValidation(w, r, "invalid push delivery: "+err.Error())
		return
	}
	if len(push.Message.Data) == 0 {
		writeValidation(w, r, "push delivery has no message data")
		return
	}

	var env eventEnvelope
	if err := json.Unmarshal(push.Message.Data, &env); err != nil {
		writeValidation(w, r, "invalid event envelope: "+err.Error())
		return
	}

	event, err := events.Decode(env.Name, env.Payload)
	if err != nil {
		// Unknown events are acknowledged, not retried: redelivering a
		// payload this deployment cannot decode never helps.
		if errors.Is(err, events.ErrUnknownEvent) {
			requestctx.Logger(ctx).Warn("skipping unknown event",
				zap.String("event", env.Name),
				zap.String("message_id", push.Message.MessageID),
			)
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "skipped"})
			return
		}
		writeValidation(w, r, err.Error())
		return
	}

	results := h.bus.Dispatch(ctx, event)
	failed := 0
	for _, result := range results {
		if !result.Success {
			failed++
		}
	}

	// Reactions are best-effort, so delivery is acknowledged even when some
	// handlers failed. Failures are already logged and counted by the bus.
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "processed",
		"event":     env.Name,
		"reactions": len(results),
		"failed":    failed,
	})
}
