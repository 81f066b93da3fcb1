package rag

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"pythagorean.app/linkchat/internal/store"
)

const DefaultUserName = "Anonymous"

var (
	ErrLinkNotFound         = errors.New("document not found")
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrEmptyCollection      = errors.New("collection is empty")
)

// Link kinds reported in query results.
const (
	LinkTypeDocument   = "document"
	LinkTypeCollection = "collection"
)

type ChatService struct {
	dbStore    *store.SQLiteStore
	ragService *RAGService
	log        *zap.Logger
}

func NewChatService(db *store.SQLiteStore, rag *RAGService, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{dbStore: db, ragService: rag, log: log.Named("chat")}
}

func (s *ChatService) CreateCollection() (*store.Collection, error) {
	return s.dbStore.CreateCollection()
}

// Upload ingests a file, optionally into an existing collection.
func (s *ChatService) Upload(ctx context.Context, filename string, r io.Reader, collectionID *string) (*store.Document, error) {
	if collectionID != nil {
		col, err := s.dbStore.GetCollection(*collectionID)
		if err != nil {
			return nil, err
		}
		if col == nil {
			return nil, ErrCollectionNotFound
		}
	}
	return s.ragService.Ingest(ctx, filename, r, collectionID)
}

// GetCollection returns nil, nil, nil when the collection does not exist.
func (s *ChatService) GetCollection(id string) (*store.Collection, []store.Document, error) {
	col, err := s.dbStore.GetCollection(id)
	if err != nil || col == nil {
		return nil, nil, err
	}
	docs, err := s.dbStore.GetDocumentsByCollection(id)
	if err != nil {
		return nil, nil, err
	}
	return col, docs, nil
}

func (s *ChatService) GetDocument(id string) (*store.Document, error) {
	return s.dbStore.GetDocument(id)
}

type QueryInput struct {
	LinkID         string
	Question       string
	ConversationID string // minted when empty
	History        []Turn
	// MessageIndex is the question's index in the caller's history. Zero
	// appends after the last stored message.
	MessageIndex int
}

type QueryResult struct {
	Answer         string
	Sources        []string
	LinkType       string
	DocumentCount  int
	ConversationID string
}

// Query answers a question against a document or collection and records the
// exchange in the conversation.
func (s *ChatService) Query(ctx context.Context, in QueryInput) (*QueryResult, error) {
	res := &QueryResult{}
	var docIDs []string

	col, docs, err := s.GetCollection(in.LinkID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up link: %w", err)
	}
	if col != nil {
		if len(docs) == 0 {
			return nil, ErrEmptyCollection
		}
		for _, d := range docs {
			docIDs = append(docIDs, d.ID)
		}
		res.LinkType = LinkTypeCollection
		res.DocumentCount = len(docs)
	} else {
		doc, err := s.dbStore.GetDocument(in.LinkID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up link: %w", err)
		}
		if doc == nil {
			return nil, ErrLinkNotFound
		}
		docIDs = []string{doc.ID}
		res.LinkType = LinkTypeDocument
	}

	res.Answer, res.Sources, err = s.ragService.Answer(ctx, docIDs, in.Question, in.History)
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %w", res.LinkType, err)
	}

	conv, err := s.ensureConversation(in.ConversationID, in.LinkID)
	if err != nil {
		return nil, err
	}
	res.ConversationID = conv.ID

	_, err = s.dbStore.AppendMessagesAt(conv.ID, in.MessageIndex,
		store.Message{Role: "user", Content: in.Question},
		store.Message{Role: "assistant", Content: res.Answer, Sources: res.Sources})
	if err != nil {
		return nil, fmt.Errorf("failed to record exchange: %w", err)
	}
	return res, nil
}

func (s *ChatService) ensureConversation(id, linkID string) (*store.Conversation, error) {
	if id != "" {
		conv, err := s.dbStore.GetConversation(id)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}
	conv, err := s.dbStore.CreateConversation(id, linkID)
	if err != nil {
		return nil, err
	}
	s.log.Info("conversation started", zap.String("conversation_id", conv.ID), zap.String("link_id", linkID))
	return conv, nil
}

// requireMessage checks that an annotation target was stored.
func (s *ChatService) requireMessage(conversationID string, messageIndex int) error {
	conv, err := s.dbStore.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	ok, err := s.dbStore.MessageExists(conversationID, messageIndex)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMessageNotFound
	}
	return nil
}

func (s *ChatService) AddReaction(conversationID string, messageIndex int, symbol string) (map[string]int, error) {
	if err := s.requireMessage(conversationID, messageIndex); err != nil {
		return nil, err
	}
	return s.dbStore.AddReaction(conversationID, messageIndex, symbol)
}

func (s *ChatService) GetReactions(conversationID string, messageIndex int) (map[string]int, error) {
	return s.dbStore.GetReactions(conversationID, messageIndex)
}

func (s *ChatService) AddComment(conversationID string, messageIndex int, text, userName string) (*store.Comment, int, error) {
	if err := s.requireMessage(conversationID, messageIndex); err != nil {
		return nil, 0, err
	}
	if userName == "" {
		userName = DefaultUserName
	}
	return s.dbStore.AddComment(conversationID, messageIndex, text, userName)
}

func (s *ChatService) GetComments(conversationID string, messageIndex int) ([]store.Comment, error) {
	return s.dbStore.GetComments(conversationID, messageIndex)
}

type AnnotatedMessage struct {
	store.Message
	Reactions map[string]int
	Comments  []store.Comment
}

type ConversationDetail struct {
	store.Conversation
	Messages []AnnotatedMessage
}

// GetConversation returns nil, nil when the conversation does not exist.
func (s *ChatService) GetConversation(id string) (*ConversationDetail, error) {
	conv, err := s.dbStore.GetConversation(id)
	if err != nil || conv == nil {
		return nil, err
	}
	return s.annotate(*conv)
}

func (s *ChatService) annotate(conv store.Conversation) (*ConversationDetail, error) {
	msgs, err := s.dbStore.GetMessages(conv.ID)
	if err != nil {
		return nil, err
	}
	detail := &ConversationDetail{Conversation: conv, Messages: make([]AnnotatedMessage, 0, len(msgs))}
	for _, m := range msgs {
		reactions, err := s.dbStore.GetReactions(conv.ID, m.Index)
		if err != nil {
			return nil, err
		}
		comments, err := s.dbStore.GetComments(conv.ID, m.Index)
		if err != nil {
			return nil, err
		}
		detail.Messages = append(detail.Messages, AnnotatedMessage{Message: m, Reactions: reactions, Comments: comments})
	}
	return detail, nil
}

type Activity struct {
	LinkID         string
	TotalReactions int
	TotalComments  int
	Conversations  []ConversationDetail // newest first
}

// Activity collects every conversation held against a document or collection.
func (s *ChatService) Activity(linkID string) (*Activity, error) {
	col, err := s.dbStore.GetCollection(linkID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		doc, err := s.dbStore.GetDocument(linkID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, ErrLinkNotFound
		}
	}

	convs, err := s.dbStore.ListConversationsByLink(linkID)
	if err != nil {
		return nil, err
	}
	act := &Activity{LinkID: linkID, Conversations: make([]ConversationDetail, 0, len(convs))}
	for _, c := range convs {
		detail, err := s.annotate(c)
		if err != nil {
			return nil, err
		}
		reactions, comments, err := s.dbStore.AnnotationTotals(c.ID)
		if err != nil {
			return nil, err
		}
		act.TotalReactions += reactions
		act.TotalComments += comments
		act.Conversations = append(act.Conversations, *detail)
	}
	return act, nil
}

func (s *ChatService) Stats() (store.Stats, error) {
	return s.dbStore.Stats()
}
