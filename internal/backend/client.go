// Package backend talks to the document service over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pythagorean.app/linkchat/internal/core"
	"pythagorean.app/linkchat/internal/dto"
)

// APIError is a non-2xx answer other than 404.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *zap.Logger
}

var _ core.Backend = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  log.Named("backend"),
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	res, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrConnectivity, req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	c.log().Debug("backend call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		detail := readDetail(res.Body)
		if res.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", core.ErrNotFound, detail)
		}
		return &APIError{Status: res.StatusCode, Detail: detail}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	var e dto.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) CreateCollection(ctx context.Context) (string, error) {
	var resp dto.CreateCollectionResponse
	if err := c.postJSON(ctx, "/collection/create", nil, &resp); err != nil {
		return "", err
	}
	if resp.CollectionID == "" {
		return "", fmt.Errorf("create collection: empty collection id")
	}
	return resp.CollectionID, nil
}

// UploadFile streams file as multipart form data.
func (c *Client) UploadFile(ctx context.Context, file core.LocalFile, collectionID string) (core.DocumentSummary, error) {
	rc, err := file.Open()
	if err != nil {
		return core.DocumentSummary{}, fmt.Errorf("open %s: %w", file.Name, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer rc.Close()
		part, err := mw.CreateFormFile("file", file.Name)
		if err == nil {
			_, err = io.Copy(part, rc)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	path := "/upload"
	if collectionID != "" {
		path += "?" + url.Values{"collection_id": {collectionID}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, pr)
	if err != nil {
		pr.CloseWithError(err)
		return core.DocumentSummary{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp dto.UploadResponse
	if err := c.do(req, &resp); err != nil {
		pr.CloseWithError(err)
		return core.DocumentSummary{}, fmt.Errorf("upload %s: %w", file.Name, err)
	}
	return core.DocumentSummary{
		DocumentID: resp.LinkID,
		Filename:   resp.Filename,
		FileType:   resp.FileType,
		ChunkCount: resp.ChunksCreated,
	}, nil
}

func (c *Client) GetDocument(ctx context.Context, documentID string) (core.DocumentSummary, error) {
	var resp dto.DocumentResponse
	if err := c.getJSON(ctx, "/document/"+url.PathEscape(documentID), &resp); err != nil {
		return core.DocumentSummary{}, err
	}
	return documentSummary(resp), nil
}

func (c *Client) GetCollection(ctx context.Context, collectionID string) (core.Collection, error) {
	var resp dto.CollectionResponse
	if err := c.getJSON(ctx, "/collection/"+url.PathEscape(collectionID), &resp); err != nil {
		return core.Collection{}, err
	}
	col := core.Collection{CollectionID: resp.ID}
	for _, d := range resp.Documents {
		col.Documents = append(col.Documents, documentSummary(d))
	}
	return col, nil
}

func documentSummary(d dto.DocumentResponse) core.DocumentSummary {
	return core.DocumentSummary{DocumentID: d.ID, Filename: d.Filename, FileType: d.FileType, ChunkCount: d.Chunks}
}

func (c *Client) Query(ctx context.Context, q core.QueryRequest) (core.QueryResponse, error) {
	body := dto.QueryRequest{
		LinkID:              q.LinkID,
		Question:            q.Question,
		ConversationHistory: make([]dto.HistoryMessage, 0, len(q.ContextWindow)),
	}
	if q.ConversationID != "" {
		id := q.ConversationID
		body.ConversationID = &id
	}
	if q.MessageIndex > 0 {
		idx := q.MessageIndex
		body.MessageIndex = &idx
	}
	for _, m := range q.ContextWindow {
		body.ConversationHistory = append(body.ConversationHistory, dto.HistoryMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Sources: m.Sources,
		})
	}

	var resp dto.QueryResponse
	if err := c.postJSON(ctx, "/query", body, &resp); err != nil {
		return core.QueryResponse{}, err
	}
	return core.QueryResponse{Answer: resp.Answer, Sources: resp.Sources, ConversationID: resp.ConversationID}, nil
}

func (c *Client) AddReaction(ctx context.Context, conversationID string, index int, symbol string) (core.ReactionCounts, error) {
	body := dto.ReactionRequest{ConversationID: conversationID, MessageIndex: index, Reaction: symbol}
	var resp dto.ReactionsResponse
	if err := c.postJSON(ctx, "/reaction/add", body, &resp); err != nil {
		return nil, err
	}
	return core.ReactionCounts(resp.Reactions), nil
}

func (c *Client) GetReactions(ctx context.Context, conversationID string, index int) (core.ReactionCounts, error) {
	var resp dto.ReactionsResponse
	if err := c.getJSON(ctx, annotationPath("reaction", conversationID, index), &resp); err != nil {
		return nil, err
	}
	return core.ReactionCounts(resp.Reactions), nil
}

func (c *Client) AddComment(ctx context.Context, conversationID string, index int, text, author string) (core.Comment, error) {
	body := dto.CommentRequest{ConversationID: conversationID, MessageIndex: index, CommentText: text, UserName: author}
	var resp dto.CommentResponse
	if err := c.postJSON(ctx, "/comment/add", body, &resp); err != nil {
		return core.Comment{}, err
	}
	return comment(resp.Comment), nil
}

func (c *Client) GetComments(ctx context.Context, conversationID string, index int) ([]core.Comment, error) {
	var resp dto.CommentsResponse
	if err := c.getJSON(ctx, annotationPath("comment", conversationID, index), &resp); err != nil {
		return nil, err
	}
	out := make([]core.Comment, 0, len(resp.Comments))
	for _, cm := range resp.Comments {
		out = append(out, comment(cm))
	}
	return out, nil
}

func annotationPath(kind, conversationID string, index int) string {
	return "/" + kind + "/" + url.PathEscape(conversationID) + "/" + strconv.Itoa(index)
}

func comment(c dto.Comment) core.Comment {
	return core.Comment{ID: c.ID, Author: c.UserName, Text: c.Text, Timestamp: c.Timestamp}
}

func (c *Client) GetActivity(ctx context.Context, linkID string) (core.Activity, error) {
	var resp dto.ActivityResponse
	if err := c.getJSON(ctx, "/document/"+url.PathEscape(linkID)+"/activity", &resp); err != nil {
		return core.Activity{}, err
	}
	act := core.Activity{
		LinkID:             resp.LinkID,
		TotalConversations: resp.TotalConversations,
		TotalReactions:     resp.TotalReactions,
		TotalComments:      resp.TotalComments,
	}
	for _, conv := range resp.Conversations {
		ca := core.ConversationActivity{
			ConversationID: conv.ConversationID,
			CreatedAt:      conv.CreatedAt,
			MessageCount:   conv.MessageCount,
		}
		for _, m := range conv.Messages {
			am := core.AnnotatedMessage{
				Message: core.Message{
					Role:    core.Role(m.Role),
					Content: m.Content,
					Sources: m.Sources,
					Index:   m.Index,
				},
				Timestamp: m.Timestamp,
				Reactions: core.ReactionCounts(m.Reactions),
			}
			for _, cm := range m.Comments {
				am.Comments = append(am.Comments, comment(cm))
			}
			ca.Messages = append(ca.Messages, am)
		}
		act.Conversations = append(act.Conversations, ca)
	}
	return act, nil
}
