package signaling

import (
	"fmt"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

// HandlerFunc handles one relay message.
type HandlerFunc func(*protocol.Message) error

// Handler routes incoming relay messages by type.
type Handler struct {
	routes  map[string]HandlerFunc
	unknown HandlerFunc
}

// NewHandler creates an empty routing table.
func NewHandler() *Handler {
	return &Handler{routes: make(map[string]HandlerFunc)}
}

// On registers fn for msgType, replacing any earlier registration.
func (h *Handler) On(msgType string, fn HandlerFunc) *Handler {
	h.routes[msgType] = fn
	return h
}

// OnUnknown registers the fallback for unrouted types.
func (h *Handler) OnUnknown(fn HandlerFunc) *Handler {
	h.unknown = fn
	return h
}

// Dispatch calls the handler registered for msg.Type.
func (h *Handler) Dispatch(msg *protocol.Message) error {
	if fn, ok := h.routes[msg.Type]; ok {
		if err := fn(msg); err != nil {
			return fmt.Errorf("handle %s: %w", msg.Type, err)
		}
		return nil
	}
	if h.unknown != nil {
		return h.unknown(msg)
	}
	return nil
}
