package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// fakeBackend is an in-memory Backend that records every call it receives.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	collections map[string]Collection
	documents   map[string]DocumentSummary
	reactions   map[string]ReactionCounts
	comments    map[string][]Comment
	activity    map[string]Activity
	nextID      int

	createCollectionErr error
	uploadErr           map[string]error // by file name
	getErr              error
	queryErr            error
	reactionErr         error
	commentErr          error

	queryFn      func(QueryRequest) (QueryResponse, error)
	queryGate    chan struct{} // when set, Query blocks until it is closed
	queryStarted chan struct{}
	queries      []QueryRequest
	uploads      []string // collection id passed with each upload
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		collections: make(map[string]Collection),
		documents:   make(map[string]DocumentSummary),
		reactions:   make(map[string]ReactionCounts),
		comments:    make(map[string][]Comment),
		activity:    make(map[string]Activity),
		uploadErr:   make(map[string]error),
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBackend) countCalls(prefix string) int {
	n := 0
	for _, c := range f.callLog() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%03d", prefix, f.nextID)
}

func key(conv string, index int) string { return fmt.Sprintf("%s_%d", conv, index) }

func (f *fakeBackend) CreateCollection(ctx context.Context) (string, error) {
	f.record("create_collection")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createCollectionErr != nil {
		return "", f.createCollectionErr
	}
	id := f.id("col")
	f.collections[id] = Collection{CollectionID: id}
	return id, nil
}

func (f *fakeBackend) UploadFile(ctx context.Context, file LocalFile, collectionID string) (DocumentSummary, error) {
	f.record("upload:" + file.Name)
	rc, err := file.Open()
	if err != nil {
		return DocumentSummary{}, err
	}
	body, _ := io.ReadAll(rc)
	rc.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, collectionID)
	if err := f.uploadErr[file.Name]; err != nil {
		return DocumentSummary{}, err
	}
	doc := DocumentSummary{DocumentID: f.id("doc"), Filename: file.Name, FileType: "text", ChunkCount: len(body)/100 + 1}
	f.documents[doc.DocumentID] = doc
	if collectionID != "" {
		c := f.collections[collectionID]
		c.Documents = append(c.Documents, doc)
		f.collections[collectionID] = c
	}
	return doc, nil
}

func (f *fakeBackend) GetDocument(ctx context.Context, id string) (DocumentSummary, error) {
	f.record("get_document:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return DocumentSummary{}, f.getErr
	}
	d, ok := f.documents[id]
	if !ok {
		return DocumentSummary{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeBackend) GetCollection(ctx context.Context, id string) (Collection, error) {
	f.record("get_collection:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return Collection{}, f.getErr
	}
	c, ok := f.collections[id]
	if !ok {
		return Collection{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeBackend) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	f.record("query")
	f.mu.Lock()
	f.queries = append(f.queries, req)
	gate, started := f.queryGate, f.queryStarted
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if f.queryErr != nil {
		return QueryResponse{}, f.queryErr
	}
	if f.queryFn != nil {
		return f.queryFn(req)
	}
	id := req.ConversationID
	if id == "" {
		id = "conv-1"
	}
	return QueryResponse{Answer: "answer to " + req.Question, Sources: []string{"excerpt"}, ConversationID: id}, nil
}

func (f *fakeBackend) AddReaction(ctx context.Context, conv string, index int, symbol string) (ReactionCounts, error) {
	f.record(fmt.Sprintf("add_reaction:%d", index))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactionErr != nil {
		return nil, f.reactionErr
	}
	k := key(conv, index)
	if f.reactions[k] == nil {
		f.reactions[k] = ReactionCounts{}
	}
	f.reactions[k][symbol]++
	return f.reactions[k].clone(), nil
}

func (f *fakeBackend) GetReactions(ctx context.Context, conv string, index int) (ReactionCounts, error) {
	f.record(fmt.Sprintf("get_reactions:%d", index))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactionErr != nil {
		return nil, f.reactionErr
	}
	return f.reactions[key(conv, index)].clone(), nil
}

func (f *fakeBackend) AddComment(ctx context.Context, conv string, index int, text, author string) (Comment, error) {
	f.record(fmt.Sprintf("add_comment:%d", index))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return Comment{}, f.commentErr
	}
	c := Comment{ID: f.id("cm"), Author: author, Text: text, Timestamp: time.Now()}
	k := key(conv, index)
	f.comments[k] = append(f.comments[k], c)
	return c, nil
}

func (f *fakeBackend) GetComments(ctx context.Context, conv string, index int) ([]Comment, error) {
	f.record(fmt.Sprintf("get_comments:%d", index))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	out := make([]Comment, len(f.comments[key(conv, index)]))
	copy(out, f.comments[key(conv, index)])
	return out, nil
}

func (f *fakeBackend) GetActivity(ctx context.Context, linkID string) (Activity, error) {
	f.record("get_activity:" + linkID)
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activity[linkID]
	if !ok {
		return Activity{}, ErrNotFound
	}
	return a, nil
}

func memFile(name, content string) LocalFile {
	return LocalFile{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}
