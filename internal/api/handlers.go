package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"pythagorean.app/linkchat/internal/dto"
	"pythagorean.app/linkchat/internal/metrics"
	"pythagorean.app/linkchat/internal/rag"
	"pythagorean.app/linkchat/internal/store"
)

const activityCacheTTL = 30 * time.Second

type APIHandler struct {
	chatService  *rag.ChatService
	validate     *validator.Validate
	activity     *cache.Cache // link id -> dto.ActivityResponse
	metrics      *metrics.Metrics
	log          *zap.Logger
	shareBaseURL string
}

func NewAPIHandler(cs *rag.ChatService, m *metrics.Metrics, shareBaseURL string, log *zap.Logger) *APIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &APIHandler{
		chatService:  cs,
		validate:     validator.New(),
		activity:     cache.New(activityCacheTTL, 2*activityCacheTTL),
		metrics:      m,
		log:          log.Named("api"),
		shareBaseURL: strings.TrimRight(shareBaseURL, "/"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, dto.ErrorResponse{Detail: detail})
}

// decodeAndValidate reads a JSON body into v and runs its validate tags.
func (h *APIHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationDetail(err))
		return false
	}
	return true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return "Validation failed: " + strings.Join(parts, "; ")
}

func (h *APIHandler) internalError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	h.log.Error(msg, append(fields, zap.Error(err))...)
	writeError(w, http.StatusInternalServerError, msg)
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Pythagorean API is running!"})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.chatService.Stats()
	if err != nil {
		h.internalError(w, "Failed to read stats", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.HealthResponse{
		Status:             "healthy",
		DocumentsCount:     st.Documents,
		CollectionsCount:   st.Collections,
		ConversationsCount: st.Conversations,
	})
}

// Documents

func (h *APIHandler) CreateCollectionHandler(w http.ResponseWriter, r *http.Request) {
	col, err := h.chatService.CreateCollection()
	if err != nil {
		h.internalError(w, "Failed to create collection", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CreateCollectionResponse{CollectionID: col.ID, Message: "Collection created"})
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rag.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field: "+err.Error())
		return
	}
	defer file.Close()

	var collectionID *string
	if id := r.URL.Query().Get("collection_id"); id != "" {
		collectionID = &id
	}

	doc, err := h.chatService.Upload(r.Context(), header.Filename, file, collectionID)
	h.metrics.Upload(err == nil)
	switch {
	case errors.Is(err, rag.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported file type: "+strings.TrimPrefix(err.Error(), rag.ErrUnsupportedType.Error()+": "))
		return
	case errors.Is(err, rag.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	case err != nil:
		h.internalError(w, "Failed to process file", err, zap.String("filename", header.Filename))
		return
	}

	linkID := doc.ID
	if collectionID != nil {
		linkID = *collectionID
	}
	writeJSON(w, http.StatusOK, dto.UploadResponse{
		LinkID:        doc.ID,
		CollectionID:  collectionID,
		Filename:      doc.Filename,
		FileType:      doc.FileType,
		ChunksCreated: doc.Chunks,
		ShareableURL:  h.shareBaseURL + "/chat/" + linkID,
		Message:       "File processed and ready for questions!",
	})
}

func documentResponse(d store.Document) dto.DocumentResponse {
	return dto.DocumentResponse{
		ID:           d.ID,
		Filename:     d.Filename,
		FileType:     d.FileType,
		Chunks:       d.Chunks,
		CollectionID: d.CollectionID,
		CreatedAt:    d.CreatedAt,
	}
}

func (h *APIHandler) GetCollectionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "collectionID")
	col, docs, err := h.chatService.GetCollection(id)
	if err != nil {
		h.internalError(w, "Failed to get collection", err, zap.String("collection_id", id))
		return
	}
	if col == nil {
		writeError(w, http.StatusNotFound, "Collection not found")
		return
	}
	resp := dto.CollectionResponse{
		ID:            col.ID,
		DocumentCount: len(docs),
		Documents:     make([]dto.DocumentResponse, 0, len(docs)),
		CreatedAt:     col.CreatedAt,
	}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, documentResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "linkID")
	doc, err := h.chatService.GetDocument(id)
	if err != nil {
		h.internalError(w, "Failed to get document", err, zap.String("document_id", id))
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(*doc))
}

// Queries

func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req dto.QueryRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question cannot be empty")
		return
	}

	in := rag.QueryInput{LinkID: req.LinkID, Question: req.Question}
	if req.MessageIndex != nil {
		in.MessageIndex = *req.MessageIndex
	}
	if req.ConversationID != nil {
		in.ConversationID = *req.ConversationID
	}
	for _, m := range req.ConversationHistory {
		in.History = append(in.History, rag.Turn{Role: m.Role, Content: m.Content})
	}

	res, err := h.chatService.Query(r.Context(), in)
	if err != nil {
		h.metrics.Query("", false)
		switch {
		case errors.Is(err, rag.ErrLinkNotFound):
			writeError(w, http.StatusNotFound, "Document not found")
		case errors.Is(err, rag.ErrEmptyCollection):
			writeError(w, http.StatusBadRequest, "Collection is empty")
		default:
			h.internalError(w, "Error querying document", err, zap.String("link_id", req.LinkID))
		}
		return
	}
	h.metrics.Query(res.LinkType, true)
	h.activity.Delete(req.LinkID)

	writeJSON(w, http.StatusOK, dto.QueryResponse{
		Answer:         res.Answer,
		Sources:        res.Sources,
		LinkID:         req.LinkID,
		Type:           res.LinkType,
		DocumentCount:  res.DocumentCount,
		ConversationID: res.ConversationID,
	})
}

// Collaboration

func messageIndexParam(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "messageIndex"))
	if err != nil || idx < 0 {
		writeError(w, http.StatusBadRequest, "message_index must be a non-negative integer")
		return "", 0, false
	}
	return chi.URLParam(r, "conversationID"), idx, true
}

func (h *APIHandler) AddReactionHandler(w http.ResponseWriter, r *http.Request) {
	var req dto.ReactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	counts, err := h.chatService.AddReaction(req.ConversationID, req.MessageIndex, req.Reaction)
	if errors.Is(err, rag.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if errors.Is(err, rag.ErrMessageNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		h.internalError(w, "Failed to add reaction", err, zap.String("conversation_id", req.ConversationID))
		return
	}
	h.metrics.Annotation("reaction")
	h.activity.Flush()
	writeJSON(w, http.StatusOK, dto.ReactionsResponse{
		ConversationID: req.ConversationID,
		MessageIndex:   req.MessageIndex,
		Reactions:      counts,
	})
}

func (h *APIHandler) GetReactionsHandler(w http.ResponseWriter, r *http.Request) {
	convID, idx, ok := messageIndexParam(w, r)
	if !ok {
		return
	}
	counts, err := h.chatService.GetReactions(convID, idx)
	if err != nil {
		h.internalError(w, "Failed to get reactions", err, zap.String("conversation_id", convID))
		return
	}
	writeJSON(w, http.StatusOK, dto.ReactionsResponse{ConversationID: convID, MessageIndex: idx, Reactions: counts})
}

func commentDTO(c store.Comment) dto.Comment {
	return dto.Comment{ID: c.ID, Text: c.Text, UserName: c.UserName, Timestamp: c.Timestamp}
}

func commentDTOs(cs []store.Comment) []dto.Comment {
	out := make([]dto.Comment, 0, len(cs))
	for _, c := range cs {
		out = append(out, commentDTO(c))
	}
	return out
}

func (h *APIHandler) AddCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req dto.CommentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CommentText) == "" {
		writeError(w, http.StatusBadRequest, "Comment text cannot be empty")
		return
	}
	c, total, err := h.chatService.AddComment(req.ConversationID, req.MessageIndex, req.CommentText, req.UserName)
	if errors.Is(err, rag.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if errors.Is(err, rag.ErrMessageNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		h.internalError(w, "Failed to add comment", err, zap.String("conversation_id", req.ConversationID))
		return
	}
	h.metrics.Annotation("comment")
	h.activity.Flush()
	writeJSON(w, http.StatusOK, dto.CommentResponse{
		ConversationID: req.ConversationID,
		MessageIndex:   req.MessageIndex,
		Comment:        commentDTO(*c),
		TotalComments:  total,
	})
}

func (h *APIHandler) GetCommentsHandler(w http.ResponseWriter, r *http.Request) {
	convID, idx, ok := messageIndexParam(w, r)
	if !ok {
		return
	}
	comments, err := h.chatService.GetComments(convID, idx)
	if err != nil {
		h.internalError(w, "Failed to get comments", err, zap.String("conversation_id", convID))
		return
	}
	writeJSON(w, http.StatusOK, dto.CommentsResponse{ConversationID: convID, MessageIndex: idx, Comments: commentDTOs(comments)})
}

func conversationMessages(msgs []rag.AnnotatedMessage) []dto.ConversationMessage {
	out := make([]dto.ConversationMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, dto.ConversationMessage{
			Index:     m.Index,
			Role:      m.Role,
			Content:   m.Content,
			Sources:   m.Sources,
			Timestamp: m.Timestamp,
			Reactions: m.Reactions,
			Comments:  commentDTOs(m.Comments),
		})
	}
	return out
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	conv, err := h.chatService.GetConversation(id)
	if err != nil {
		h.internalError(w, "Failed to get conversation", err, zap.String("conversation_id", id))
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, dto.ConversationResponse{
		ID:        conv.ID,
		LinkID:    conv.LinkID,
		CreatedAt: conv.CreatedAt,
		Messages:  conversationMessages(conv.Messages),
	})
}

func (h *APIHandler) ShareConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	conv, err := h.chatService.GetConversation(id)
	if err != nil {
		h.internalError(w, "Failed to get conversation", err, zap.String("conversation_id", id))
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, dto.ShareResponse{
		ConversationID: id,
		ShareableURL:   h.shareBaseURL + "/conversation/" + id,
		Message:        "Share this link to let others view this conversation",
	})
}

// Activity

func (h *APIHandler) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkID")
	if cached, ok := h.activity.Get(linkID); ok {
		writeJSON(w, http.StatusOK, cached.(dto.ActivityResponse))
		return
	}

	act, err := h.chatService.Activity(linkID)
	if errors.Is(err, rag.ErrLinkNotFound) {
		writeError(w, http.StatusNotFound, "Document/Collection not found")
		return
	}
	if err != nil {
		h.internalError(w, "Failed to load activity", err, zap.String("link_id", linkID))
		return
	}

	resp := dto.ActivityResponse{
		LinkID:             linkID,
		TotalConversations: len(act.Conversations),
		TotalReactions:     act.TotalReactions,
		TotalComments:      act.TotalComments,
		Conversations:      make([]dto.ActivityConversation, 0, len(act.Conversations)),
	}
	for _, c := range act.Conversations {
		resp.Conversations = append(resp.Conversations, dto.ActivityConversation{
			ConversationID: c.ID,
			CreatedAt:      c.CreatedAt,
			Messages:       conversationMessages(c.Messages),
			MessageCount:   len(c.Messages),
		})
	}
	h.activity.Set(linkID, resp, cache.DefaultExpiration)
	writeJSON(w, http.StatusOK, resp)
}
