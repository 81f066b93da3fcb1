// Package rag ingests uploaded documents and answers questions against them.
package rag

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"pythagorean.app/linkchat/internal/store"
	"pythagorean.app/linkchat/internal/utils"
)

const (
	NumRetrievedChunks = 5 // Chunks placed in the prompt
	NumSourceChunks    = 3 // Chunks quoted back as sources
	SourcePreviewRunes = 200
	HistoryTurns       = 5 // Prior messages forwarded to the model
	extractPreviewRune = 600

	NoContextAnswer = "I couldn't find any relevant information in the document to answer your question."
)

type RAGService struct {
	dbStore *store.SQLiteStore
	llm     Generator // nil selects lexical retrieval and extractive answers
	log     *zap.Logger
}

func NewRAGService(db *store.SQLiteStore, llm Generator, log *zap.Logger) *RAGService {
	if log == nil {
		log = zap.NewNop()
	}
	if llm == nil {
		log.Info("no language model configured, using lexical retrieval")
	}
	return &RAGService{dbStore: db, llm: llm, log: log.Named("rag")}
}

// Ingest extracts, chunks and stores an uploaded file.
func (s *RAGService) Ingest(ctx context.Context, filename string, r io.Reader, collectionID *string) (*store.Document, error) {
	fileType, err := FileType(filename)
	if err != nil {
		return nil, err
	}
	text, err := ExtractText(fileType, r)
	if err != nil {
		return nil, err
	}

	pieces := utils.ChunkText(text, utils.DefaultChunkSize, utils.DefaultChunkOverlap)
	chunks := make([]store.DataChunk, len(pieces))
	for i, p := range pieces {
		chunks[i].Content = p
	}
	if s.llm != nil {
		s.embedChunks(ctx, chunks)
	}

	doc, err := s.dbStore.CreateDocument(filename, fileType, collectionID, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	s.log.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", doc.Chunks))
	return doc, nil
}

// embedChunks attaches embeddings to every chunk, or to none if any request fails.
func (s *RAGService) embedChunks(ctx context.Context, chunks []store.DataChunk) {
	for i := range chunks {
		emb, err := s.llm.GetEmbedding(ctx, chunks[i].Content)
		if err != nil {
			s.log.Warn("embedding failed, storing chunks without embeddings", zap.Error(err))
			for j := range chunks {
				chunks[j].Embedding = nil
			}
			return
		}
		chunks[i].Embedding = emb
	}
}

// Answer retrieves the most relevant chunks of docIDs and answers question.
// Sources are previews of the top retrieved chunks.
func (s *RAGService) Answer(ctx context.Context, docIDs []string, question string, history []Turn) (string, []string, error) {
	all, err := s.dbStore.GetChunksByDocumentIDs(docIDs)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(all) == 0 {
		return NoContextAnswer, []string{}, nil
	}

	top := s.retrieve(ctx, all, question)
	sources := make([]string, 0, NumSourceChunks)
	for i := 0; i < len(top) && i < NumSourceChunks; i++ {
		sources = append(sources, utils.Truncate(top[i].Content, SourcePreviewRunes)+"...")
	}

	if s.llm == nil {
		return extractiveAnswer(top), sources, nil
	}

	if len(history) > HistoryTurns {
		history = history[len(history)-HistoryTurns:]
	}
	answer, err := s.llm.GetChatCompletion(ctx, history, buildPrompt(top, question))
	if err != nil {
		return "", nil, fmt.Errorf("failed to get LLM completion: %w", err)
	}
	return answer, sources, nil
}

// retrieve ranks chunks by embedding similarity when possible and by token overlap otherwise.
func (s *RAGService) retrieve(ctx context.Context, chunks []store.DataChunk, question string) []store.DataChunk {
	var queryEmbedding []float32
	if s.llm != nil {
		emb, err := s.llm.GetEmbedding(ctx, question)
		if err != nil {
			s.log.Warn("failed to embed question, falling back to lexical retrieval", zap.Error(err))
		} else {
			queryEmbedding = emb
		}
	}

	scores := make([]utils.Scored, 0, len(chunks))
	for i, c := range chunks {
		score := utils.OverlapScore(question, c.Content)
		if queryEmbedding != nil && len(c.Embedding) > 0 {
			if sim, err := utils.CosineSimilarity(queryEmbedding, c.Embedding); err == nil {
				score = sim
			} else {
				s.log.Debug("similarity failed", zap.Int64("chunk_id", c.ID), zap.Error(err))
			}
		}
		scores = append(scores, utils.Scored{Index: i, Score: score})
	}

	ranked := utils.TopK(scores, NumRetrievedChunks)
	out := make([]store.DataChunk, len(ranked))
	for i, r := range ranked {
		out[i] = chunks[r.Index]
	}
	return out
}

func buildPrompt(chunks []store.DataChunk, question string) string {
	var b strings.Builder
	b.WriteString("DOCUMENT CONTEXT:\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source %d]:\n%s", i+1, c.Content)
	}
	fmt.Fprintf(&b, "\n\nUSER QUESTION: %s\n\nPlease answer the question based only on the context above.", question)
	return b.String()
}

func extractiveAnswer(top []store.DataChunk) string {
	return "According to Source 1:\n\n" + utils.Truncate(top[0].Content, extractPreviewRune)
}
