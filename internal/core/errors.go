package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrConnectivity        = errors.New("backend unreachable")
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrPartialBatchFailure = errors.New("some uploads failed")
	ErrFullBatchFailure    = errors.New("all uploads failed")
	ErrStaleResponse       = errors.New("response belongs to a superseded session")

	ErrEmptyQuestion = fmt.Errorf("%w: question is empty", ErrValidation)
	ErrEmptyComment  = fmt.Errorf("%w: comment is empty", ErrValidation)
	ErrEmptyReaction = fmt.Errorf("%w: reaction symbol is empty", ErrValidation)
	ErrEmptyLink     = fmt.Errorf("%w: link identifier is empty", ErrValidation)
	ErrNoFiles       = fmt.Errorf("%w: no files selected", ErrValidation)

	ErrQueryInFlight  = errors.New("a query is already in flight")
	ErrNoContext      = errors.New("conversation has no resolved context")
	ErrNoConversation = errors.New("conversation identifier not assigned yet")
	ErrAlreadySet     = errors.New("value already set")
)

// ErrorState holds the single current session-level error. Setting a new error
// replaces the previous one; stale responses are never recorded.
type ErrorState struct {
	mu  sync.Mutex
	err error
}

func (s *ErrorState) Set(err error) {
	if err == nil || errors.Is(err, ErrStaleResponse) {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *ErrorState) Current() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ErrorState) Dismiss() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}
