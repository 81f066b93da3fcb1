package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedConversation(t *testing.T, b Backend, opts Options) *Conversation {
	t.Helper()
	c := NewConversation(b, opts)
	require.NoError(t, c.Start(ContextDescriptor{LinkID: "doc001", Kind: KindDocument, DisplayName: "report.pdf"}))
	return c
}

func TestStartSeedsGreeting(t *testing.T) {
	c := NewConversation(newFakeBackend(), Options{})
	assert.Equal(t, StateUninitialized, c.Snapshot().State)

	require.NoError(t, c.Start(ContextDescriptor{
		LinkID: "col001", Kind: KindCollection, DocumentCount: 2, Filenames: []string{"a.txt", "b.txt"},
	}))
	snap := c.Snapshot()
	assert.Equal(t, StateAwaitingFirstContext, snap.State)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, RoleAssistant, snap.Messages[0].Role)
	assert.Equal(t, 0, snap.Messages[0].Index)
	assert.Equal(t, "Connected to **2 documents**: a.txt, b.txt\n\nWhat would you like to know?", snap.Messages[0].Content)

	assert.ErrorIs(t, c.Start(ContextDescriptor{LinkID: "x"}), ErrValidation)
}

func TestAskBeforeStart(t *testing.T) {
	c := NewConversation(newFakeBackend(), Options{})
	_, err := c.Ask(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestAskEmptyQuestion(t *testing.T) {
	b := newFakeBackend()
	c := startedConversation(t, b, Options{})
	_, err := c.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, b.countCalls("query"))
}

func TestAskAdoptsConversationIDOnce(t *testing.T) {
	b := newFakeBackend()
	calls := 0
	b.queryFn = func(req QueryRequest) (QueryResponse, error) {
		calls++
		return QueryResponse{Answer: "a", ConversationID: fmt.Sprintf("conv-%d", calls)}, nil
	}
	c := startedConversation(t, b, Options{ShareBaseURL: "http://localhost:3000"})
	assert.Empty(t, c.ShareURL())

	msg, err := c.Ask(context.Background(), "What is this?")
	require.NoError(t, err)
	assert.Equal(t, 2, msg.Index)
	assert.Equal(t, 3, c.Len())
	id, ok := c.ConversationID()
	require.True(t, ok)
	assert.Equal(t, "conv-1", id)
	assert.Equal(t, StateActive, c.Snapshot().State)

	_, err = c.Ask(context.Background(), "And then?")
	require.NoError(t, err)
	id2, _ := c.ConversationID()
	assert.Equal(t, id, id2)
	assert.Equal(t, "conv-1", b.queries[1].ConversationID)
	assert.Empty(t, b.queries[0].ConversationID)
	assert.Equal(t, "http://localhost:3000/conversation/conv-1", c.ShareURL())
}

func TestContextWindowIsLastTenMessages(t *testing.T) {
	b := newFakeBackend()
	c := startedConversation(t, b, Options{})

	for i := 0; i < 8; i++ {
		_, err := c.Ask(context.Background(), fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}
	require.Len(t, b.queries, 8)
	for k, q := range b.queries {
		historyAtSubmission := 1 + 2*k + 1 // greeting, k exchanges, the new question
		want := historyAtSubmission
		if want > MaxContextWindow {
			want = MaxContextWindow
		}
		assert.Len(t, q.ContextWindow, want, "query %d", k)
		last := q.ContextWindow[len(q.ContextWindow)-1]
		assert.Equal(t, RoleUser, last.Role)
		assert.Equal(t, fmt.Sprintf("q%d", k), last.Content)
		assert.Equal(t, last.Index, q.MessageIndex)
	}
	assert.Equal(t, 17, c.Len())
	assert.Equal(t, 0, c.Snapshot().Messages[0].Index)
}

func TestAskWhileInFlightIsRejected(t *testing.T) {
	b := newFakeBackend()
	b.queryGate = make(chan struct{})
	b.queryStarted = make(chan struct{}, 1)
	c := startedConversation(t, b, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Ask(context.Background(), "first")
		done <- err
	}()
	<-b.queryStarted

	_, err := c.Ask(context.Background(), "second")
	assert.ErrorIs(t, err, ErrQueryInFlight)
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Snapshot().InFlight)

	close(b.queryGate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, b.countCalls("query"))
	assert.Equal(t, 3, c.Len())
}

func TestAskFailureKeepsUserMessage(t *testing.T) {
	b := newFakeBackend()
	b.queryErr = ErrConnectivity
	c := startedConversation(t, b, Options{})

	_, err := c.Ask(context.Background(), "hello?")
	assert.ErrorIs(t, err, ErrConnectivity)
	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[1].Role)
	assert.False(t, snap.InFlight)
	assert.ErrorIs(t, c.Errors().Current(), ErrConnectivity)

	b.queryErr = nil
	_, err = c.Ask(context.Background(), "again")
	require.NoError(t, err)
	assert.Nil(t, c.Errors().Current())
	assert.Equal(t, 4, c.Len())

	// The retried question keeps its own local index so the server can
	// store the exchange where the client shows it.
	require.Len(t, b.queries, 2)
	assert.Equal(t, 1, b.queries[0].MessageIndex)
	assert.Equal(t, 2, b.queries[1].MessageIndex)
}

func TestResetDropsInFlightAnswer(t *testing.T) {
	b := newFakeBackend()
	b.queryGate = make(chan struct{})
	b.queryStarted = make(chan struct{}, 1)
	c := startedConversation(t, b, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Ask(context.Background(), "first")
		done <- err
	}()
	<-b.queryStarted
	c.Reset()
	close(b.queryGate)

	assert.ErrorIs(t, <-done, ErrStaleResponse)
	assert.Equal(t, 0, c.Len())
	_, ok := c.ConversationID()
	assert.False(t, ok)
	assert.Nil(t, c.Errors().Current())
}

func TestWriteOnce(t *testing.T) {
	var w WriteOnce[string]
	_, ok := w.Get()
	assert.False(t, ok)
	require.NoError(t, w.Set("a"))
	assert.ErrorIs(t, w.Set("b"), ErrAlreadySet)
	v, ok := w.Get()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}
