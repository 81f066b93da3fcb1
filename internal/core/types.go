package core

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// MaxContextWindow is the number of trailing messages sent upstream with a query.
const MaxContextWindow = 10

type UploadStatus int

const (
	StatusPending UploadStatus = iota
	StatusUploading
	StatusSucceeded
	StatusFailed
)

func (s UploadStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusUploading:
		return "uploading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// LocalFile is a file selected for upload. Open is called once per upload attempt.
type LocalFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FilesFromPaths builds LocalFiles backed by the given paths, keeping their order.
func FilesFromPaths(paths []string) []LocalFile {
	files := make([]LocalFile, 0, len(paths))
	for _, p := range paths {
		path := p
		files = append(files, LocalFile{
			Name: filepath.Base(path),
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return files
}

type UploadItem struct {
	File        LocalFile
	DisplayName string
	Status      UploadStatus
	Error       string
	Result      *DocumentSummary
}

type DocumentSummary struct {
	DocumentID string
	Filename   string
	FileType   string
	ChunkCount int
}

type Collection struct {
	CollectionID string
	Documents    []DocumentSummary
}

type ContextKind int

const (
	KindDocument ContextKind = iota
	KindCollection
)

func (k ContextKind) String() string {
	if k == KindCollection {
		return "collection"
	}
	return "document"
}

// ContextDescriptor is what a link identifier resolved to.
type ContextDescriptor struct {
	LinkID        string
	Kind          ContextKind
	DisplayName   string   // filename, documents only
	DocumentCount int      // collections only
	Filenames     []string // collections only, in upload order
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
	Sources []string
	Index   int
}

type ReactionCounts map[string]int

func (r ReactionCounts) clone() ReactionCounts {
	out := make(ReactionCounts, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Total sums the counts across every symbol.
func (r ReactionCounts) Total() int {
	n := 0
	for _, v := range r {
		n += v
	}
	return n
}

type Comment struct {
	ID        string
	Author    string
	Text      string
	Timestamp time.Time
}

// AnnotatedMessage is a message as recorded by the backend, with its annotations.
type AnnotatedMessage struct {
	Message
	Timestamp time.Time
	Reactions ReactionCounts
	Comments  []Comment
}

type ConversationActivity struct {
	ConversationID string
	CreatedAt      time.Time
	MessageCount   int
	Messages       []AnnotatedMessage
}

// Activity aggregates every conversation held against one link.
type Activity struct {
	LinkID             string
	TotalConversations int
	TotalReactions     int
	TotalComments      int
	Conversations      []ConversationActivity
}
