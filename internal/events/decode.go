package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent indicates an event name with no registered payload shape.
var ErrUnknownEvent = errors.New("events: unknown event name")

// Decode rehydrates a typed event from the payload mirrored onto the Pub/Sub
// topic. The inverse of the envelope written by PubSubMirror.
func Decode(name string, payload []byte) (Event, error) {
	switch name {
	case NameOrderCreated:
		return decodeInto[OrderCreated](name, payload)
	case NameOrderStatusChanged:
		return decodeInto[OrderStatusChanged](name, payload)
	case NameRefundRequested:
		return decodeInto[RefundRequested](name, payload)
	case NamePharmacyCreated:
		return decodeInto[PharmacyCreated](name, payload)
	case NamePharmacyStatusChanged:
		return decodeInto[PharmacyStatusChanged](name, payload)
	case NameProductCreated:
		return decodeInto[ProductCreated](name, payload)
	case NameProductUpdated:
		return decodeInto[ProductUpdated](name, payload)
	case NameProductDeleted:
		return decodeInto[ProductDeleted](name, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func decodeInto[E Event](name string, payload []byte) (Event, error) {
	var event E
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("events: decode %s: %w", name, err)
	}
	return event, nil
}
