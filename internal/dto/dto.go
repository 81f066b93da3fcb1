// Package dto holds the JSON bodies exchanged between the client and the
// document service.
package dto

import "time"

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status             string `json:"status"`
	DocumentsCount     int    `json:"documents_count"`
	CollectionsCount   int    `json:"collections_count"`
	ConversationsCount int    `json:"conversations_count"`
}

type CreateCollectionResponse struct {
	CollectionID string `json:"collection_id"`
	Message      string `json:"message"`
}

type UploadResponse struct {
	LinkID        string  `json:"link_id"`
	CollectionID  *string `json:"collection_id"`
	Filename      string  `json:"filename"`
	FileType      string  `json:"file_type"`
	ChunksCreated int     `json:"chunks_created"`
	ShareableURL  string  `json:"shareable_url"`
	Message       string  `json:"message"`
}

type DocumentResponse struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	Chunks       int       `json:"chunks"`
	CollectionID *string   `json:"collection_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type CollectionResponse struct {
	ID            string             `json:"id"`
	DocumentCount int                `json:"document_count"`
	Documents     []DocumentResponse `json:"documents"`
	CreatedAt     time.Time          `json:"created_at"`
}

type HistoryMessage struct {
	Role    string   `json:"role" validate:"required,oneof=user assistant"`
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
}

type QueryRequest struct {
	LinkID              string           `json:"link_id" validate:"required"`
	Question            string           `json:"question" validate:"required"`
	ConversationHistory []HistoryMessage `json:"conversation_history" validate:"max=10,dive"`
	ConversationID      *string          `json:"conversation_id"`
	MessageIndex        *int             `json:"message_index,omitempty" validate:"omitempty,min=1"`
}

type QueryResponse struct {
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	LinkID         string   `json:"link_id"`
	Type           string   `json:"type"`
	DocumentCount  int      `json:"document_count,omitempty"`
	ConversationID string   `json:"conversation_id"`
}

type ReactionRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	MessageIndex   int    `json:"message_index" validate:"gte=0"`
	Reaction       string `json:"reaction" validate:"required,max=32"`
}

type ReactionsResponse struct {
	ConversationID string         `json:"conversation_id"`
	MessageIndex   int            `json:"message_index"`
	Reactions      map[string]int `json:"reactions"`
}

type CommentRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	MessageIndex   int    `json:"message_index" validate:"gte=0"`
	CommentText    string `json:"comment_text" validate:"required,max=4000"`
	UserName       string `json:"user_name" validate:"max=100"`
}

type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

type CommentResponse struct {
	ConversationID string  `json:"conversation_id"`
	MessageIndex   int     `json:"message_index"`
	Comment        Comment `json:"comment"`
	TotalComments  int     `json:"total_comments"`
}

type CommentsResponse struct {
	ConversationID string    `json:"conversation_id"`
	MessageIndex   int       `json:"message_index"`
	Comments       []Comment `json:"comments"`
}

type ConversationMessage struct {
	Index     int            `json:"index"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Sources   []string       `json:"sources,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Reactions map[string]int `json:"reactions"`
	Comments  []Comment      `json:"comments"`
}

type ConversationResponse struct {
	ID        string                `json:"id"`
	LinkID    string                `json:"link_id"`
	CreatedAt time.Time             `json:"created_at"`
	Messages  []ConversationMessage `json:"messages"`
}

type ShareResponse struct {
	ConversationID string `json:"conversation_id"`
	ShareableURL   string `json:"shareable_url"`
	Message        string `json:"message"`
}

type ActivityConversation struct {
	ConversationID string                `json:"conversation_id"`
	CreatedAt      time.Time             `json:"created_at"`
	Messages       []ConversationMessage `json:"messages"`
	MessageCount   int                   `json:"message_count"`
}

type ActivityResponse struct {
	LinkID             string                 `json:"link_id"`
	TotalConversations int                    `json:"total_conversations"`
	TotalReactions     int                    `json:"total_reactions"`
	TotalComments      int                    `json:"total_comments"`
	Conversations      []ActivityConversation `json:"conversations"`
}
