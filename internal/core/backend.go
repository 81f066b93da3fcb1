package core

import "context"

type QueryRequest struct {
	LinkID         string
	Question       string
	ConversationID string // empty until the server has assigned one
	ContextWindow  []Message
	MessageIndex   int // index of the question in the local history
}

type QueryResponse struct {
	Answer         string
	Sources        []string
	ConversationID string
}

// Backend is the remote processing service. Implementations report transport
// failures as ErrConnectivity and missing resources as ErrNotFound.
type Backend interface {
	CreateCollection(ctx context.Context) (string, error)
	UploadFile(ctx context.Context, file LocalFile, collectionID string) (DocumentSummary, error)
	GetDocument(ctx context.Context, documentID string) (DocumentSummary, error)
	GetCollection(ctx context.Context, collectionID string) (Collection, error)
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
	AddReaction(ctx context.Context, conversationID string, index int, symbol string) (ReactionCounts, error)
	GetReactions(ctx context.Context, conversationID string, index int) (ReactionCounts, error)
	AddComment(ctx context.Context, conversationID string, index int, text, author string) (Comment, error)
	GetComments(ctx context.Context, conversationID string, index int) ([]Comment, error)
	GetActivity(ctx context.Context, linkID string) (Activity, error)
}
