package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type ProgressKind int

const (
	ProgressCollectionCreated ProgressKind = iota
	ProgressFileStarted
	ProgressFileSucceeded
	ProgressFileFailed
)

// ProgressEvent reports one step of a submission. Index is the file's position
// in the selection; it is -1 for collection events.
type ProgressEvent struct {
	Kind         ProgressKind
	Index        int
	Name         string
	CollectionID string
	Summary      *DocumentSummary
	Err          error
}

type ProgressFunc func(ProgressEvent)

// UploadSessionResult is the outcome of one Submit call.
type UploadSessionResult struct {
	LinkID       string // empty when no upload succeeded
	IsCollection bool
	Documents    []DocumentSummary
	Failures     []UploadItem
	ShareURL     string
}

// Err classifies the batch: nil when every file succeeded.
func (r UploadSessionResult) Err() error {
	switch {
	case len(r.Failures) == 0:
		return nil
	case len(r.Documents) == 0:
		return fmt.Errorf("%w: %d of %d", ErrFullBatchFailure, len(r.Failures), len(r.Failures))
	default:
		return fmt.Errorf("%w: %d of %d", ErrPartialBatchFailure, len(r.Failures), len(r.Failures)+len(r.Documents))
	}
}

// Orchestrator uploads a selection of files, grouping them into a collection
// when there is more than one. Files are uploaded one at a time in selection order.
type Orchestrator struct {
	backend Backend
	opts    Options
	log     *zap.Logger

	mu         sync.Mutex
	generation uint64
	items      []UploadItem
	collection *Collection
	errs       ErrorState
}

func NewOrchestrator(backend Backend, opts Options) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		opts:    opts,
		log:     opts.logger().Named("upload"),
	}
}

// Submit starts a fresh upload session for files. Any earlier session, finished
// or still running, is superseded. The returned error is non-nil only for
// session-level failures; per-file failures are reported in the result.
func (o *Orchestrator) Submit(ctx context.Context, files []LocalFile, progress ProgressFunc) (UploadSessionResult, error) {
	if progress == nil {
		progress = func(ProgressEvent) {}
	}
	if len(files) == 0 {
		o.errs.Set(ErrNoFiles)
		return UploadSessionResult{}, ErrNoFiles
	}

	gen := o.begin(files)
	isCollection := len(files) > 1

	var collectionID string
	if isCollection {
		id, err := o.backend.CreateCollection(ctx)
		if o.stale(gen) {
			return UploadSessionResult{}, ErrStaleResponse
		}
		if err != nil {
			err = fmt.Errorf("create collection: %w", err)
			o.errs.Set(err)
			o.failRemaining(gen, "collection could not be created")
			return UploadSessionResult{}, err
		}
		collectionID = id
		o.mu.Lock()
		o.collection = &Collection{CollectionID: id}
		o.mu.Unlock()
		o.log.Debug("collection created", zap.String("collection_id", id))
		progress(ProgressEvent{Kind: ProgressCollectionCreated, Index: -1, CollectionID: id})
	}

	for i, f := range files {
		if !o.setStatus(gen, i, StatusUploading, "", nil) {
			return UploadSessionResult{}, ErrStaleResponse
		}
		progress(ProgressEvent{Kind: ProgressFileStarted, Index: i, Name: f.Name})

		summary, err := o.backend.UploadFile(ctx, f, collectionID)
		if err != nil {
			if !o.setStatus(gen, i, StatusFailed, err.Error(), nil) {
				return UploadSessionResult{}, ErrStaleResponse
			}
			o.log.Warn("upload failed", zap.String("file", f.Name), zap.Error(err))
			progress(ProgressEvent{Kind: ProgressFileFailed, Index: i, Name: f.Name, Err: err})
			continue
		}
		if !o.setStatus(gen, i, StatusSucceeded, "", &summary) {
			return UploadSessionResult{}, ErrStaleResponse
		}
		progress(ProgressEvent{Kind: ProgressFileSucceeded, Index: i, Name: f.Name, Summary: &summary})
	}

	result := o.result(isCollection, collectionID)
	if len(result.Documents) == 0 {
		err := result.Err()
		o.errs.Set(err)
		return result, err
	}
	return result, nil
}

// Items returns a snapshot of the current session's upload items.
func (o *Orchestrator) Items() []UploadItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]UploadItem, len(o.items))
	copy(out, o.items)
	return out
}

// Collection returns a snapshot of the session's collection, if one was created.
func (o *Orchestrator) Collection() (Collection, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.collection == nil {
		return Collection{}, false
	}
	c := Collection{CollectionID: o.collection.CollectionID}
	c.Documents = append(c.Documents, o.collection.Documents...)
	return c, true
}

func (o *Orchestrator) Errors() *ErrorState { return &o.errs }

// Reset discards the session. Responses still in flight are dropped when they arrive.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.generation++
	o.items = nil
	o.collection = nil
	o.mu.Unlock()
	o.errs.Dismiss()
}

func (o *Orchestrator) begin(files []LocalFile) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	o.collection = nil
	o.items = make([]UploadItem, len(files))
	for i, f := range files {
		o.items[i] = UploadItem{File: f, DisplayName: f.Name, Status: StatusPending}
	}
	o.errs.Dismiss()
	return o.generation
}

func (o *Orchestrator) stale(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		o.log.Debug("dropping stale upload response", zap.Uint64("generation", gen))
		return true
	}
	return false
}

// setStatus updates item i and reports false if the session was superseded.
func (o *Orchestrator) setStatus(gen uint64, i int, status UploadStatus, errText string, summary *DocumentSummary) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		o.log.Debug("dropping stale upload response", zap.Uint64("generation", gen))
		return false
	}
	item := &o.items[i]
	item.Status = status
	item.Error = errText
	item.Result = summary
	if status == StatusSucceeded && o.collection != nil {
		o.collection.Documents = append(o.collection.Documents, *summary)
	}
	return true
}

func (o *Orchestrator) failRemaining(gen uint64, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return
	}
	for i := range o.items {
		if o.items[i].Status == StatusPending || o.items[i].Status == StatusUploading {
			o.items[i].Status = StatusFailed
			o.items[i].Error = reason
		}
	}
}

func (o *Orchestrator) result(isCollection bool, collectionID string) UploadSessionResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := UploadSessionResult{IsCollection: isCollection}
	for _, item := range o.items {
		if item.Status == StatusSucceeded {
			res.Documents = append(res.Documents, *item.Result)
		} else {
			res.Failures = append(res.Failures, item)
		}
	}
	if len(res.Documents) == 0 {
		return res
	}
	if isCollection {
		res.LinkID = collectionID
	} else {
		res.LinkID = res.Documents[0].DocumentID
	}
	res.ShareURL = o.opts.shareURL("chat", res.LinkID)
	return res
}
