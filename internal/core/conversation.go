package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type ConversationState int

const (
	StateUninitialized ConversationState = iota
	StateAwaitingFirstContext
	StateActive
)

func (s ConversationState) String() string {
	switch s {
	case StateAwaitingFirstContext:
		return "awaiting_first_context"
	case StateActive:
		return "active"
	}
	return "uninitialized"
}

// ConversationSnapshot is a read-only copy of the conversation for rendering.
type ConversationSnapshot struct {
	State          ConversationState
	ConversationID string
	LinkID         string
	Context        ContextDescriptor
	Messages       []Message
	InFlight       bool
}

// Conversation owns the message history of one receiver session and the
// conversation identifier the server assigns on the first answered query.
type Conversation struct {
	backend Backend
	opts    Options
	log     *zap.Logger

	mu             sync.Mutex
	generation     uint64
	state          ConversationState
	context        ContextDescriptor
	messages       []Message
	conversationID WriteOnce[string]
	inFlight       bool
	errs           ErrorState
}

func NewConversation(backend Backend, opts Options) *Conversation {
	return &Conversation{
		backend: backend,
		opts:    opts,
		log:     opts.logger().Named("conversation"),
	}
}

// Start binds the conversation to a resolved context and seeds the greeting at index 0.
func (c *Conversation) Start(desc ContextDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		return fmt.Errorf("%w: conversation already started for link %q", ErrValidation, c.context.LinkID)
	}
	c.context = desc
	c.messages = []Message{{Role: RoleAssistant, Content: greeting(desc), Index: 0}}
	c.state = StateAwaitingFirstContext
	return nil
}

func greeting(desc ContextDescriptor) string {
	if desc.Kind == KindCollection {
		return fmt.Sprintf("Connected to **%d documents**: %s\n\nWhat would you like to know?",
			desc.DocumentCount, strings.Join(desc.Filenames, ", "))
	}
	return fmt.Sprintf("Connected to **%s**\n\nWhat would you like to know?", desc.DisplayName)
}

// Ask sends question upstream and returns the assistant's answer. The user's
// message is appended before the call and kept even if the call fails. A second
// Ask while one is outstanding returns ErrQueryInFlight without side effects.
func (c *Conversation) Ask(ctx context.Context, question string) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, ErrEmptyQuestion
	}

	c.mu.Lock()
	if c.state == StateUninitialized {
		c.mu.Unlock()
		return Message{}, ErrNoContext
	}
	if c.inFlight {
		c.mu.Unlock()
		return Message{}, ErrQueryInFlight
	}
	c.inFlight = true
	c.state = StateActive
	asked := c.appendLocked(Message{Role: RoleUser, Content: question})
	req := QueryRequest{
		LinkID:        c.context.LinkID,
		Question:      question,
		ContextWindow: c.windowLocked(),
		MessageIndex:  asked.Index,
	}
	req.ConversationID, _ = c.conversationID.Get()
	gen := c.generation
	c.errs.Dismiss()
	c.mu.Unlock()

	c.log.Debug("query sent",
		zap.String("link_id", req.LinkID),
		zap.String("conversation_id", req.ConversationID),
		zap.Int("window", len(req.ContextWindow)))
	resp, err := c.backend.Query(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.log.Debug("dropping stale query response", zap.Uint64("generation", gen))
		return Message{}, ErrStaleResponse
	}
	c.inFlight = false
	if err != nil {
		err = fmt.Errorf("query: %w", err)
		c.errs.Set(err)
		return Message{}, err
	}

	if resp.ConversationID != "" {
		if err := c.conversationID.Set(resp.ConversationID); err != nil {
			if current, _ := c.conversationID.Get(); current != resp.ConversationID {
				c.log.Warn("ignoring reassigned conversation id",
					zap.String("current", current), zap.String("received", resp.ConversationID))
			}
		}
	}
	msg := c.appendLocked(Message{Role: RoleAssistant, Content: resp.Answer, Sources: resp.Sources})
	return msg, nil
}

func (c *Conversation) appendLocked(m Message) Message {
	m.Index = len(c.messages)
	c.messages = append(c.messages, m)
	return m
}

// windowLocked copies the last MaxContextWindow messages of the history.
func (c *Conversation) windowLocked() []Message {
	start := len(c.messages) - MaxContextWindow
	if start < 0 {
		start = 0
	}
	window := make([]Message, len(c.messages)-start)
	copy(window, c.messages[start:])
	return window
}

// ConversationID reports the server-assigned identifier once it exists.
func (c *Conversation) ConversationID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID.Get()
}

// Len is the number of messages in the history, including the greeting.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) Snapshot() ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, _ := c.conversationID.Get()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return ConversationSnapshot{
		State:          c.state,
		ConversationID: id,
		LinkID:         c.context.LinkID,
		Context:        c.context,
		Messages:       msgs,
		InFlight:       c.inFlight,
	}
}

// ShareURL links to the conversation on the web front end, or "" before the
// server has assigned an identifier.
func (c *Conversation) ShareURL() string {
	id, ok := c.ConversationID()
	if !ok {
		return ""
	}
	return c.opts.shareURL("conversation", id)
}

func (c *Conversation) Errors() *ErrorState { return &c.errs }

// Reset tears the session down. An Ask still waiting on the backend returns
// ErrStaleResponse when its response arrives.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.generation++
	c.state = StateUninitialized
	c.context = ContextDescriptor{}
	c.messages = nil
	c.conversationID = WriteOnce[string]{}
	c.inFlight = false
	c.mu.Unlock()
	c.errs.Dismiss()
}
