package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryStoreRoundTrip(t *testing.T) {
	h := newHistoryStore()

	handle, turns, err := h.open("")
	require.NoError(t, err)
	require.NotEmpty(t, handle)
	assert.Empty(t, turns)

	h.commit(handle, "question", "answer")

	_, turns, err = h.open(handle)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Text: "question"}, turns[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Text: "answer"}, turns[1])
}

func TestHistoryStoreUnknownHandle(t *testing.T) {
	h := newHistoryStore()
	_, _, err := h.open("no-such-handle")
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestHistoryStoreDrop(t *testing.T) {
	h := newHistoryStore()
	handle, _, err := h.open("")
	require.NoError(t, err)
	h.commit(handle, "question", "answer")

	h.drop(handle)
	_, _, err = h.open(handle)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	h.drop("already-gone") // no-op
}

func TestHistoryStoreOpenReturnsCopy(t *testing.T) {
	h := newHistoryStore()
	handle, _, err := h.open("")
	require.NoError(t, err)
	h.commit(handle, "question", "answer")

	_, turns, err := h.open(handle)
	require.NoError(t, err)
	turns[0].Text = "mutated"

	_, fresh, err := h.open(handle)
	require.NoError(t, err)
	assert.Equal(t, "question", fresh[0].Text)
}
