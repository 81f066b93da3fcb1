package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// FirstMessageIndex is the index of the first stored message in a conversation.
// Index 0 belongs to the greeting clients show before the first question.
const FirstMessageIndex = 1

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps file-less DSNs consistent.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS collections (
        id TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY,
        filename TEXT NOT NULL,
        file_type TEXT NOT NULL,
        chunks INTEGER NOT NULL DEFAULT 0,
        collection_id TEXT,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (collection_id) REFERENCES collections (id)
    );

    CREATE TABLE IF NOT EXISTS data_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        document_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT, -- JSON array of float32, NULL without an embedder
        FOREIGN KEY (document_id) REFERENCES documents (id)
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        link_id TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        conversation_id TEXT NOT NULL,
        idx INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        sources_json TEXT,
        timestamp DATETIME NOT NULL,
        PRIMARY KEY (conversation_id, idx),
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE TABLE IF NOT EXISTS reactions (
        conversation_id TEXT NOT NULL,
        message_index INTEGER NOT NULL,
        symbol TEXT NOT NULL,
        count INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (conversation_id, message_index, symbol)
    );

    CREATE TABLE IF NOT EXISTS comments (
        id TEXT PRIMARY KEY,
        conversation_id TEXT NOT NULL,
        message_index INTEGER NOT NULL,
        text TEXT NOT NULL,
        user_name TEXT NOT NULL,
        timestamp DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection_id);
    CREATE INDEX IF NOT EXISTS idx_chunks_document ON data_chunks (document_id);
    CREATE INDEX IF NOT EXISTS idx_conversations_link ON conversations (link_id);
    CREATE INDEX IF NOT EXISTS idx_comments_message ON comments (conversation_id, message_index);
    `
	_, err := s.db.Exec(schema)
	return err
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// newLinkID returns an 8-character id unused by both documents and collections,
// so a link never names both kinds.
func (s *SQLiteStore) newLinkID() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id := shortID(8)
		var n int
		err := s.db.QueryRow(
			"SELECT (SELECT COUNT(*) FROM documents WHERE id = ?) + (SELECT COUNT(*) FROM collections WHERE id = ?)",
			id, id).Scan(&n)
		if err != nil {
			return "", fmt.Errorf("failed to check link id: %w", err)
		}
		if n == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique link id")
}

// Collection methods
func (s *SQLiteStore) CreateCollection() (*Collection, error) {
	id, err := s.newLinkID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := s.db.Exec("INSERT INTO collections (id, created_at) VALUES (?, ?)", id, now); err != nil {
		return nil, fmt.Errorf("failed to insert collection: %w", err)
	}
	return &Collection{ID: id, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetCollection(id string) (*Collection, error) {
	var c Collection
	err := s.db.QueryRow("SELECT id, created_at FROM collections WHERE id = ?", id).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &c, nil
}

// Document methods

// CreateDocument stores a document and its chunks in one transaction.
func (s *SQLiteStore) CreateDocument(filename, fileType string, collectionID *string, chunks []DataChunk) (*Document, error) {
	id, err := s.newLinkID()
	if err != nil {
		return nil, err
	}
	doc := &Document{
		ID:           id,
		Filename:     filename,
		FileType:     fileType,
		Chunks:       len(chunks),
		CollectionID: collectionID,
		CreatedAt:    time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin document insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO documents (id, filename, file_type, chunks, collection_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		doc.ID, doc.Filename, doc.FileType, doc.Chunks, doc.CollectionID, doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO data_chunks (document_id, position, content, embedding_json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data_chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		chunk := &chunks[i]
		chunk.DocumentID = doc.ID
		chunk.Position = i
		var embeddingJSON sql.NullString
		if len(chunk.Embedding) > 0 {
			b, err := json.Marshal(chunk.Embedding)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal embedding: %w", err)
			}
			chunk.EmbeddingJSON = string(b)
			embeddingJSON = sql.NullString{String: chunk.EmbeddingJSON, Valid: true}
		}
		res, err := stmt.Exec(chunk.DocumentID, chunk.Position, chunk.Content, embeddingJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to insert data_chunk %d: %w", i, err)
		}
		chunk.ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}
	return doc, nil
}

const documentColumns = "id, filename, file_type, chunks, collection_id, created_at"

func scanDocument(sc interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var collectionID sql.NullString
	if err := sc.Scan(&d.ID, &d.Filename, &d.FileType, &d.Chunks, &collectionID, &d.CreatedAt); err != nil {
		return nil, err
	}
	if collectionID.Valid {
		d.CollectionID = &collectionID.String
	}
	return &d, nil
}

func (s *SQLiteStore) GetDocument(id string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

// GetDocumentsByCollection returns a collection's documents in upload order.
func (s *SQLiteStore) GetDocumentsByCollection(collectionID string) ([]Document, error) {
	rows, err := s.db.Query("SELECT "+documentColumns+" FROM documents WHERE collection_id = ? ORDER BY created_at ASC, rowid ASC", collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// GetChunksByDocumentIDs loads every chunk of the given documents, ordered by position.
func (s *SQLiteStore) GetChunksByDocumentIDs(documentIDs []string) ([]DataChunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(documentIDs)), ",")
	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		args[i] = id
	}
	rows, err := s.db.Query("SELECT id, document_id, position, content, embedding_json FROM data_chunks WHERE document_id IN ("+placeholders+") ORDER BY document_id, position", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query data_chunks: %w", err)
	}
	defer rows.Close()

	var chunks []DataChunk
	for rows.Next() {
		var chunk DataChunk
		var embeddingJSON sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan data_chunk row: %w", err)
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			chunk.EmbeddingJSON = embeddingJSON.String
			if err := json.Unmarshal([]byte(embeddingJSON.String), &chunk.Embedding); err != nil {
				// fall back to lexical scoring for this chunk
				chunk.Embedding = nil
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Conversation methods
func (s *SQLiteStore) CreateConversation(id, linkID string) (*Conversation, error) {
	if id == "" {
		id = shortID(12)
	}
	now := time.Now().UTC()
	_, err := s.db.Exec("INSERT INTO conversations (id, link_id, created_at) VALUES (?, ?, ?)", id, linkID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return &Conversation{ID: id, LinkID: linkID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow("SELECT id, link_id, created_at FROM conversations WHERE id = ?", id).Scan(&c.ID, &c.LinkID, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

// ListConversationsByLink returns the conversations held against a link, newest first.
func (s *SQLiteStore) ListConversationsByLink(linkID string) ([]Conversation, error) {
	rows, err := s.db.Query("SELECT id, link_id, created_at FROM conversations WHERE link_id = ? ORDER BY created_at DESC, rowid DESC", linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.LinkID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// AppendMessages stores msgs at the next free indices of the conversation and
// returns them with Index and Timestamp filled in.
func (s *SQLiteStore) AppendMessages(conversationID string, msgs ...Message) ([]Message, error) {
	return s.AppendMessagesAt(conversationID, 0, msgs...)
}

// AppendMessagesAt stores msgs with consecutive indices starting at first, or
// at the next free index when first is not past the last stored message.
// Indices skipped this way stay empty.
func (s *SQLiteStore) AppendMessagesAt(conversationID string, first int, msgs ...Message) ([]Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin message insert: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRow("SELECT COALESCE(MAX(idx) + 1, ?) FROM messages WHERE conversation_id = ?", FirstMessageIndex, conversationID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to find next message index: %w", err)
	}
	if first > next {
		next = first
	}

	now := time.Now().UTC()
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		m.ConversationID = conversationID
		m.Index = next
		m.Timestamp = now
		var sources sql.NullString
		if len(m.Sources) > 0 {
			b, _ := json.Marshal(m.Sources)
			sources = sql.NullString{String: string(b), Valid: true}
		}
		_, err := tx.Exec("INSERT INTO messages (conversation_id, idx, role, content, sources_json, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
			m.ConversationID, m.Index, m.Role, m.Content, sources, m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}
		out = append(out, m)
		next++
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit messages: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) MessageExists(conversationID string, messageIndex int) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND idx = ?", conversationID, messageIndex).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query("SELECT conversation_id, idx, role, content, sources_json, timestamp FROM messages WHERE conversation_id = ? ORDER BY idx ASC", conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var sources sql.NullString
		if err := rows.Scan(&m.ConversationID, &m.Index, &m.Role, &m.Content, &sources, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if sources.Valid {
			_ = json.Unmarshal([]byte(sources.String), &m.Sources)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Reaction methods

// AddReaction increments symbol on a message and returns the message's aggregate.
func (s *SQLiteStore) AddReaction(conversationID string, messageIndex int, symbol string) (map[string]int, error) {
	_, err := s.db.Exec(`INSERT INTO reactions (conversation_id, message_index, symbol, count) VALUES (?, ?, ?, 1)
        ON CONFLICT (conversation_id, message_index, symbol) DO UPDATE SET count = count + 1`,
		conversationID, messageIndex, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert reaction: %w", err)
	}
	return s.GetReactions(conversationID, messageIndex)
}

func (s *SQLiteStore) GetReactions(conversationID string, messageIndex int) (map[string]int, error) {
	rows, err := s.db.Query("SELECT symbol, count FROM reactions WHERE conversation_id = ? AND message_index = ?", conversationID, messageIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var symbol string
		var n int
		if err := rows.Scan(&symbol, &n); err != nil {
			return nil, fmt.Errorf("failed to scan reaction row: %w", err)
		}
		counts[symbol] = n
	}
	return counts, rows.Err()
}

// Comment methods

// AddComment stores a comment and returns it with the message's new comment total.
func (s *SQLiteStore) AddComment(conversationID string, messageIndex int, text, userName string) (*Comment, int, error) {
	c := &Comment{
		ID:             shortID(8),
		ConversationID: conversationID,
		MessageIndex:   messageIndex,
		Text:           text,
		UserName:       userName,
		Timestamp:      time.Now().UTC(),
	}
	_, err := s.db.Exec("INSERT INTO comments (id, conversation_id, message_index, text, user_name, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.ConversationID, c.MessageIndex, c.Text, c.UserName, c.Timestamp)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to insert comment: %w", err)
	}
	var total int
	err = s.db.QueryRow("SELECT COUNT(*) FROM comments WHERE conversation_id = ? AND message_index = ?", conversationID, messageIndex).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return c, total, nil
}

func (s *SQLiteStore) GetComments(conversationID string, messageIndex int) ([]Comment, error) {
	rows, err := s.db.Query("SELECT id, conversation_id, message_index, text, user_name, timestamp FROM comments WHERE conversation_id = ? AND message_index = ? ORDER BY timestamp ASC, rowid ASC",
		conversationID, messageIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.MessageIndex, &c.Text, &c.UserName, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// AnnotationTotals sums reaction counts and comments over every message index
// of a conversation.
func (s *SQLiteStore) AnnotationTotals(conversationID string) (reactions, comments int, err error) {
	err = s.db.QueryRow(
		"SELECT (SELECT COALESCE(SUM(count), 0) FROM reactions WHERE conversation_id = ?), (SELECT COUNT(*) FROM comments WHERE conversation_id = ?)",
		conversationID, conversationID).Scan(&reactions, &comments)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to total annotations: %w", err)
	}
	return reactions, comments, nil
}

func (s *SQLiteStore) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT
        (SELECT COUNT(*) FROM documents),
        (SELECT COUNT(*) FROM collections),
        (SELECT COUNT(*) FROM conversations)`).Scan(&st.Documents, &st.Collections, &st.Conversations)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return st, nil
}
