package provider

import (
	"sync"

	"github.com/google/uuid"
)

// historyStore keeps conversation message history per handle for backends
// whose API is stateless (all three SDKs replay full history per call).
type historyStore struct {
	mu       sync.Mutex
	sessions map[string][]Turn
}

func newHistoryStore() *historyStore {
	return &historyStore{sessions: make(map[string][]Turn)}
}

// open returns the history for handle, creating a fresh conversation when
// handle is empty. Returns the (possibly new) handle and a copy of the
// prior history.
func (h *historyStore) open(handle string) (string, []Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if handle == "" {
		handle = uuid.New().String()
		h.sessions[handle] = nil
		return handle, nil, nil
	}
	turns, ok := h.sessions[handle]
	if !ok {
		return "", nil, ErrUnknownHandle
	}
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return handle, cp, nil
}

// commit appends the user message and assistant reply to the handle's
// history after a successful exchange.
func (h *historyStore) commit(handle, message, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[handle]; !ok {
		return
	}
	h.sessions[handle] = append(h.sessions[handle],
		Turn{Role: RoleUser, Text: message},
		Turn{Role: RoleAssistant, Text: reply},
	)
}

// drop discards the conversation for handle.
func (h *historyStore) drop(handle string) {
	h.mu.Lock()
	delete(h.sessions, handle)
	h.mu.Unlock()
}
