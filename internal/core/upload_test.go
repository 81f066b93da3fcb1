package core

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitSingleFile(t *testing.T) {
	b := newFakeBackend()
	o := NewOrchestrator(b, Options{ShareBaseURL: "http://localhost:3000/"})

	res, err := o.Submit(context.Background(), []LocalFile{memFile("notes.txt", "hello")}, nil)
	require.NoError(t, err)

	assert.False(t, res.IsCollection)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, res.Documents[0].DocumentID, res.LinkID)
	assert.Equal(t, "http://localhost:3000/chat/"+res.LinkID, res.ShareURL)
	assert.Empty(t, res.Failures)
	assert.NoError(t, res.Err())
	assert.Equal(t, 0, b.countCalls("create_collection"))
	assert.Equal(t, []string{""}, b.uploads)

	_, ok := o.Collection()
	assert.False(t, ok)
}

func TestSubmitBatchCreatesOneCollectionFirst(t *testing.T) {
	b := newFakeBackend()
	o := NewOrchestrator(b, Options{})
	files := []LocalFile{memFile("a.txt", "a"), memFile("b.txt", "b"), memFile("c.txt", "c")}

	var events []ProgressKind
	res, err := o.Submit(context.Background(), files, func(e ProgressEvent) { events = append(events, e.Kind) })
	require.NoError(t, err)

	assert.Equal(t, []string{"create_collection", "upload:a.txt", "upload:b.txt", "upload:c.txt"}, b.callLog())
	require.Len(t, b.uploads, 3)
	for _, id := range b.uploads {
		assert.Equal(t, res.LinkID, id)
	}
	assert.True(t, res.IsCollection)
	assert.Len(t, res.Documents, 3)
	assert.Equal(t, []ProgressKind{
		ProgressCollectionCreated,
		ProgressFileStarted, ProgressFileSucceeded,
		ProgressFileStarted, ProgressFileSucceeded,
		ProgressFileStarted, ProgressFileSucceeded,
	}, events)

	col, ok := o.Collection()
	require.True(t, ok)
	assert.Equal(t, res.LinkID, col.CollectionID)
	assert.Len(t, col.Documents, 3)
}

func TestSubmitPartialFailureContinues(t *testing.T) {
	b := newFakeBackend()
	b.uploadErr["b.txt"] = errors.New("unsupported file type")
	o := NewOrchestrator(b, Options{})
	files := []LocalFile{memFile("a.txt", "a"), memFile("b.txt", "b"), memFile("c.txt", "c")}

	res, err := o.Submit(context.Background(), files, nil)
	require.NoError(t, err)

	assert.Len(t, res.Documents, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b.txt", res.Failures[0].DisplayName)
	assert.Equal(t, StatusFailed, res.Failures[0].Status)
	assert.Contains(t, res.Failures[0].Error, "unsupported")
	assert.ErrorIs(t, res.Err(), ErrPartialBatchFailure)
	assert.NotEmpty(t, res.LinkID)
	assert.Nil(t, o.Errors().Current())

	col, _ := o.Collection()
	assert.LessOrEqual(t, len(col.Documents), 2)

	for _, item := range o.Items() {
		assert.Contains(t, []UploadStatus{StatusSucceeded, StatusFailed}, item.Status)
	}
}

func TestSubmitFullFailureHasNoLink(t *testing.T) {
	b := newFakeBackend()
	b.uploadErr["a.txt"] = errors.New("boom")
	b.uploadErr["b.txt"] = errors.New("boom")
	o := NewOrchestrator(b, Options{ShareBaseURL: "http://localhost:3000"})

	res, err := o.Submit(context.Background(), []LocalFile{memFile("a.txt", "a"), memFile("b.txt", "b")}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFullBatchFailure)
	assert.Empty(t, res.LinkID)
	assert.Empty(t, res.ShareURL)
	assert.Len(t, res.Failures, 2)
	assert.ErrorIs(t, o.Errors().Current(), ErrFullBatchFailure)

	o.Errors().Dismiss()
	assert.Nil(t, o.Errors().Current())
}

func TestSubmitCollectionCreateFailureAborts(t *testing.T) {
	b := newFakeBackend()
	b.createCollectionErr = ErrConnectivity
	o := NewOrchestrator(b, Options{})

	_, err := o.Submit(context.Background(), []LocalFile{memFile("a.txt", "a"), memFile("b.txt", "b")}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Equal(t, 0, b.countCalls("upload:"))
	for _, item := range o.Items() {
		assert.Equal(t, StatusFailed, item.Status)
	}
}

func TestSubmitOpenFailureIsPerFile(t *testing.T) {
	b := newFakeBackend()
	o := NewOrchestrator(b, Options{})
	broken := LocalFile{Name: "gone.txt", Open: func() (io.ReadCloser, error) { return nil, errors.New("no such file") }}

	res, err := o.Submit(context.Background(), []LocalFile{broken, memFile("ok.txt", "ok")}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Documents, 1)
	assert.Len(t, res.Failures, 1)
}

func TestSubmitNoFiles(t *testing.T) {
	o := NewOrchestrator(newFakeBackend(), Options{})
	_, err := o.Submit(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResubmitStartsFreshCollection(t *testing.T) {
	b := newFakeBackend()
	o := NewOrchestrator(b, Options{})
	files := []LocalFile{memFile("a.txt", "a"), memFile("b.txt", "b")}

	first, err := o.Submit(context.Background(), files, nil)
	require.NoError(t, err)
	o.Reset()
	assert.Empty(t, o.Items())

	second, err := o.Submit(context.Background(), files, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.LinkID, second.LinkID)
	assert.Equal(t, 2, b.countCalls("create_collection"))
}

func TestResetDuringSubmitDropsLateResponses(t *testing.T) {
	b := newFakeBackend()
	o := NewOrchestrator(b, Options{})
	files := []LocalFile{memFile("a.txt", "a"), memFile("b.txt", "b"), memFile("c.txt", "c")}

	_, err := o.Submit(context.Background(), files, func(e ProgressEvent) {
		if e.Kind == ProgressFileSucceeded && e.Index == 0 {
			o.Reset()
		}
	})
	assert.ErrorIs(t, err, ErrStaleResponse)
	assert.Empty(t, o.Items())
	assert.Nil(t, o.Errors().Current())
	assert.Equal(t, 1, b.countCalls("upload:"))
}
