package store

import "time"

type Collection struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Document struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	Chunks       int       `json:"chunks"`
	CollectionID *string   `json:"collection_id"` // Nullable
	CreatedAt    time.Time `json:"created_at"`
}

type DataChunk struct {
	ID            int64     `json:"id"`
	DocumentID    string    `json:"document_id"`
	Position      int       `json:"position"`
	Content       string    `json:"content"`
	Embedding     []float32 `json:"-"` // Internal, nil when no embedder is configured
	EmbeddingJSON string    `json:"-"`
}

type Conversation struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"link_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ConversationID string    `json:"conversation_id"`
	Index          int       `json:"index"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	Sources        []string  `json:"sources,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type Comment struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	MessageIndex   int       `json:"message_index"`
	Text           string    `json:"text"`
	UserName       string    `json:"user_name"`
	Timestamp      time.Time `json:"timestamp"`
}

type Stats struct {
	Documents     int
	Collections   int
	Conversations int
}
