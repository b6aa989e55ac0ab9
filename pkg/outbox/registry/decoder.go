package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/angelmondragon/careforall-backend/pkg/outbox/payloads"
)

// DecodeFunc turns envelope data into a typed payload.
type DecodeFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecodeFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecodeFunc)}
}

// NewPledgeDecoders registers the v1 decoders for every pledge event.
func NewPledgeDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventPledgeCreated, 1, decodeInto[payloads.PledgeCreatedEvent])
	reg.Register(enums.EventPledgeCaptured, 1, decodeInto[payloads.PledgeCapturedEvent])
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecodeFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

func decodeInto[T any](payload json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
