package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	chatSystemInstruction = "You are a helpful AI assistant that answers questions based on the provided document context.\n\n" +
		"Rules:\n" +
		"- Answer ONLY based on the context provided\n" +
		"- If the context doesn't contain the answer, say so clearly\n" +
		"- Cite your sources (e.g., \"According to Source 1...\")\n" +
		"- Be concise but complete\n" +
		"- If you're not sure, say so"
)

// Turn is one prior message handed to the model.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Generator produces embeddings and answers. RAGService works without one.
type Generator interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	GetChatCompletion(ctx context.Context, history []Turn, prompt string) (string, error)
}

type LLMService struct {
	client *genai.Client
	log    *zap.Logger
}

var _ Generator = (*LLMService)(nil)

func NewLLMService(ctx context.Context, apiKey string, log *zap.Logger) (*LLMService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, log: log.Named("llm")}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Warn("error closing GenAI client", zap.Error(err))
		} else {
			s.log.Info("GenAI client closed")
		}
	}
}

func (s *LLMService) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) GetChatCompletion(ctx context.Context, history []Turn, prompt string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}
	maxTokens := int32(1024)
	model.GenerationConfig = genai.GenerationConfig{MaxOutputTokens: &maxTokens}

	// Gemini requires the history to open with a user turn.
	for len(history) > 0 && history[0].Role != "user" {
		history = history[1:]
	}

	chatSession := model.StartChat()
	for _, t := range history {
		role := "user"
		if t.Role == "assistant" {
			role = "model"
		}
		chatSession.History = append(chatSession.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}

	resp, err := chatSession.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		s.log.Warn("gemini response was empty or had no valid candidates")
		return "I'm sorry, I couldn't generate a response at this time. Please try again.", nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			s.log.Debug("gemini response part was not text", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	if responseText.Len() == 0 {
		return "I received an empty or non-text response, please try rephrasing your question.", nil
	}
	return responseText.String(), nil
}
