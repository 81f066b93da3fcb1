package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultAuthor is used for comments when no author name is given.
const DefaultAuthor = "Anonymous"

// refreshConcurrency bounds the fetches issued by a bulk refresh.
const refreshConcurrency = 8

// ConversationView is what the Synchronizer needs to know about a conversation.
type ConversationView interface {
	ConversationID() (string, bool)
	Len() int
}

type cacheState int

const (
	cacheStale cacheState = iota
	cacheFresh
)

type reactionEntry struct {
	state  cacheState
	counts ReactionCounts
}

type commentEntry struct {
	state    cacheState
	comments []Comment
}

type syncMark struct {
	conversationID string
	messages       int
}

// Synchronizer caches reactions and comments per message index. Cached values
// only ever come from the server: fetches overwrite, reactions are replaced by
// the aggregate the server returns, and comments append the server's echo.
// Index 0 is the context greeting and is never annotated.
type Synchronizer struct {
	backend Backend
	conv    ConversationView
	log     *zap.Logger

	mu         sync.Mutex
	generation uint64
	reactions  map[int]*reactionEntry
	comments   map[int]*commentEntry
	drafts     map[int]string
	writeLocks map[int]*sync.Mutex
	synced     syncMark
}

func NewSynchronizer(backend Backend, conv ConversationView, opts Options) *Synchronizer {
	s := &Synchronizer{
		backend: backend,
		conv:    conv,
		log:     opts.logger().Named("annotations"),
	}
	s.clearLocked()
	return s
}

func (s *Synchronizer) clearLocked() {
	s.reactions = make(map[int]*reactionEntry)
	s.comments = make(map[int]*commentEntry)
	s.drafts = make(map[int]string)
	s.writeLocks = make(map[int]*sync.Mutex)
	s.synced = syncMark{}
}

// target returns the conversation id when index can carry annotations.
func (s *Synchronizer) target(index int) (string, bool) {
	id, ok := s.conv.ConversationID()
	if !ok {
		return "", false
	}
	if index < 1 || index >= s.conv.Len() {
		return "", false
	}
	return id, true
}

func (s *Synchronizer) writeLock(index int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.writeLocks[index]
	if !ok {
		l = &sync.Mutex{}
		s.writeLocks[index] = l
	}
	return l
}

func (s *Synchronizer) gen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// FetchReactions replaces the cached reactions for index with the server's.
// It does nothing before a conversation id exists or for unknown indices.
func (s *Synchronizer) FetchReactions(ctx context.Context, index int) error {
	convID, ok := s.target(index)
	if !ok {
		return nil
	}
	gen := s.gen()
	counts, err := s.backend.GetReactions(ctx, convID, index)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrStaleResponse
	}
	if err != nil {
		return fmt.Errorf("fetch reactions for message %d: %w", index, err)
	}
	s.reactions[index] = &reactionEntry{state: cacheFresh, counts: counts.clone()}
	return nil
}

// FetchComments replaces the cached comment thread for index with the server's.
func (s *Synchronizer) FetchComments(ctx context.Context, index int) error {
	convID, ok := s.target(index)
	if !ok {
		return nil
	}
	gen := s.gen()
	comments, err := s.backend.GetComments(ctx, convID, index)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrStaleResponse
	}
	if err != nil {
		return fmt.Errorf("fetch comments for message %d: %w", index, err)
	}
	thread := make([]Comment, len(comments))
	copy(thread, comments)
	s.comments[index] = &commentEntry{state: cacheFresh, comments: thread}
	return nil
}

// AddReaction records symbol on message index and adopts the aggregate the
// server returns. Nothing is counted locally.
func (s *Synchronizer) AddReaction(ctx context.Context, index int, symbol string) (ReactionCounts, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, ErrEmptyReaction
	}
	if _, ok := s.conv.ConversationID(); !ok {
		return nil, ErrNoConversation
	}
	convID, ok := s.target(index)
	if !ok {
		return nil, fmt.Errorf("%w: message %d cannot be annotated", ErrValidation, index)
	}

	l := s.writeLock(index)
	l.Lock()
	defer l.Unlock()

	gen := s.gen()
	counts, err := s.backend.AddReaction(ctx, convID, index, symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrStaleResponse
	}
	if err != nil {
		return nil, fmt.Errorf("add reaction to message %d: %w", index, err)
	}
	s.reactions[index] = &reactionEntry{state: cacheFresh, counts: counts.clone()}
	return counts.clone(), nil
}

// AddComment posts text on message index, appends the server's echo to the
// local thread and clears the draft for that index.
func (s *Synchronizer) AddComment(ctx context.Context, index int, text, author string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, ErrEmptyComment
	}
	author = strings.TrimSpace(author)
	if author == "" {
		author = DefaultAuthor
	}
	if _, ok := s.conv.ConversationID(); !ok {
		return Comment{}, ErrNoConversation
	}
	convID, ok := s.target(index)
	if !ok {
		return Comment{}, fmt.Errorf("%w: message %d cannot be annotated", ErrValidation, index)
	}

	l := s.writeLock(index)
	l.Lock()
	defer l.Unlock()

	gen := s.gen()
	comment, err := s.backend.AddComment(ctx, convID, index, text, author)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return Comment{}, ErrStaleResponse
	}
	if err != nil {
		return Comment{}, fmt.Errorf("add comment to message %d: %w", index, err)
	}
	entry, ok := s.comments[index]
	if !ok {
		entry = &commentEntry{state: cacheFresh}
		s.comments[index] = entry
	}
	entry.comments = append(entry.comments, comment)
	delete(s.drafts, index)
	return comment, nil
}

// Sync refreshes every annotatable message when the history has grown or the
// conversation id has just become available since the last successful sync.
func (s *Synchronizer) Sync(ctx context.Context) error {
	convID, ok := s.conv.ConversationID()
	n := s.conv.Len()

	s.mu.Lock()
	if s.synced.conversationID != "" && s.synced.conversationID != convID {
		// The conversation was reset or replaced; nothing cached belongs to it.
		s.generation++
		s.clearLocked()
	}
	s.pruneLocked(n)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	mark := syncMark{conversationID: convID, messages: n}
	if s.synced == mark {
		s.mu.Unlock()
		return nil
	}
	for _, e := range s.reactions {
		e.state = cacheStale
	}
	for _, e := range s.comments {
		e.state = cacheStale
	}
	s.mu.Unlock()

	if err := s.RefreshAll(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.synced = mark
	s.mu.Unlock()
	return nil
}

// pruneLocked drops cached entries for indices the conversation does not have.
func (s *Synchronizer) pruneLocked(n int) {
	for i := range s.reactions {
		if i >= n {
			delete(s.reactions, i)
		}
	}
	for i := range s.comments {
		if i >= n {
			delete(s.comments, i)
		}
	}
	for i := range s.drafts {
		if i >= n {
			delete(s.drafts, i)
		}
	}
}

// RefreshAll fetches reactions and comments for every annotatable message.
// Fetches run concurrently; a failed fetch leaves that index's cache untouched.
func (s *Synchronizer) RefreshAll(ctx context.Context) error {
	if _, ok := s.conv.ConversationID(); !ok {
		return nil
	}
	n := s.conv.Len()

	var g errgroup.Group
	g.SetLimit(refreshConcurrency)
	for i := 1; i < n; i++ {
		index := i
		g.Go(func() error { return s.FetchReactions(ctx, index) })
		g.Go(func() error { return s.FetchComments(ctx, index) })
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("annotation refresh incomplete", zap.Error(err))
		return err
	}
	return nil
}

// Reactions returns the cached reactions for index and whether they are fresh.
func (s *Synchronizer) Reactions(index int) (ReactionCounts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.reactions[index]
	if !ok {
		return ReactionCounts{}, false
	}
	return e.counts.clone(), e.state == cacheFresh
}

// Comments returns the cached thread for index and whether it is fresh.
func (s *Synchronizer) Comments(index int) ([]Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.comments[index]
	if !ok {
		return nil, false
	}
	out := make([]Comment, len(e.comments))
	copy(out, e.comments)
	return out, e.state == cacheFresh
}

// ReactionState snapshots every cached reaction aggregate.
func (s *Synchronizer) ReactionState() map[int]ReactionCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]ReactionCounts, len(s.reactions))
	for i, e := range s.reactions {
		out[i] = e.counts.clone()
	}
	return out
}

// CommentThreads snapshots every cached comment thread.
func (s *Synchronizer) CommentThreads() map[int][]Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int][]Comment, len(s.comments))
	for i, e := range s.comments {
		thread := make([]Comment, len(e.comments))
		copy(thread, e.comments)
		out[i] = thread
	}
	return out
}

func (s *Synchronizer) SetDraft(index int, text string) {
	s.mu.Lock()
	s.drafts[index] = text
	s.mu.Unlock()
}

func (s *Synchronizer) Draft(index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[index]
}

// Reset drops every cached annotation; responses still in flight are discarded.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.generation++
	s.clearLocked()
	s.mu.Unlock()
}
