package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// probe looks a link up as one specific kind.
type probe struct {
	kind ContextKind
	run  func(ctx context.Context, b Backend, linkID string) (ContextDescriptor, error)
}

// linkProbes is tried in order. Collections come first so a multi-document link
// is never reported as a single document. This assumes document and collection
// ids never collide; if a backend lets them overlap, the collection wins.
var linkProbes = []probe{
	{kind: KindCollection, run: probeCollection},
	{kind: KindDocument, run: probeDocument},
}

func probeCollection(ctx context.Context, b Backend, linkID string) (ContextDescriptor, error) {
	c, err := b.GetCollection(ctx, linkID)
	if err != nil {
		return ContextDescriptor{}, err
	}
	names := make([]string, 0, len(c.Documents))
	for _, d := range c.Documents {
		names = append(names, d.Filename)
	}
	return ContextDescriptor{
		LinkID:        linkID,
		Kind:          KindCollection,
		DocumentCount: len(c.Documents),
		Filenames:     names,
	}, nil
}

func probeDocument(ctx context.Context, b Backend, linkID string) (ContextDescriptor, error) {
	d, err := b.GetDocument(ctx, linkID)
	if err != nil {
		return ContextDescriptor{}, err
	}
	return ContextDescriptor{LinkID: linkID, Kind: KindDocument, DisplayName: d.Filename}, nil
}

// resolveLink runs the probe chain. The returned error always matches
// ErrNotFound, and also ErrConnectivity when any probe failed to reach the backend.
func resolveLink(ctx context.Context, b Backend, linkID string, log *zap.Logger) (ContextDescriptor, error) {
	var failures []error
	for _, p := range linkProbes {
		desc, err := p.run(ctx, b, linkID)
		if err == nil {
			return desc, nil
		}
		log.Debug("link probe failed", zap.String("link_id", linkID), zap.Stringer("kind", p.kind), zap.Error(err))
		failures = append(failures, err)
	}
	cause := errors.Join(failures...)
	return ContextDescriptor{}, fmt.Errorf("%w: link %q: %w", ErrNotFound, linkID, cause)
}

// Resolver turns a link identifier into a ContextDescriptor. A successful
// resolution is cached for the rest of the session and never retried.
type Resolver struct {
	backend Backend
	log     *zap.Logger

	mu         sync.Mutex
	generation uint64
	descriptor *ContextDescriptor
	errs       ErrorState
}

func NewResolver(backend Backend, opts Options) *Resolver {
	return &Resolver{backend: backend, log: opts.logger().Named("resolver")}
}

func (r *Resolver) Resolve(ctx context.Context, linkID string) (ContextDescriptor, error) {
	linkID = strings.TrimSpace(linkID)
	if linkID == "" {
		return ContextDescriptor{}, ErrEmptyLink
	}

	r.mu.Lock()
	if r.descriptor != nil {
		desc := *r.descriptor
		r.mu.Unlock()
		if desc.LinkID != linkID {
			return ContextDescriptor{}, fmt.Errorf("%w: session already bound to link %q", ErrValidation, desc.LinkID)
		}
		return desc, nil
	}
	gen := r.generation
	r.mu.Unlock()

	desc, err := resolveLink(ctx, r.backend, linkID, r.log)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		r.log.Debug("dropping stale resolution", zap.String("link_id", linkID))
		return ContextDescriptor{}, ErrStaleResponse
	}
	if err != nil {
		r.errs.Set(err)
		return ContextDescriptor{}, err
	}
	if r.descriptor != nil {
		// a concurrent Resolve won the race
		return *r.descriptor, nil
	}
	r.descriptor = &desc
	r.errs.Dismiss()
	r.log.Debug("link resolved", zap.String("link_id", linkID), zap.Stringer("kind", desc.Kind))
	return desc, nil
}

// Descriptor returns the resolved context, if any.
func (r *Resolver) Descriptor() (ContextDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.descriptor == nil {
		return ContextDescriptor{}, false
	}
	return *r.descriptor, true
}

func (r *Resolver) Errors() *ErrorState { return &r.errs }

func (r *Resolver) Reset() {
	r.mu.Lock()
	r.generation++
	r.descriptor = nil
	r.mu.Unlock()
	r.errs.Dismiss()
}
