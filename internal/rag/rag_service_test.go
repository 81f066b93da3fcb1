package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pythagorean.app/linkchat/internal/store"
)

// fakeGenerator embeds text as [count("alpha"), count("beta")].
type fakeGenerator struct {
	embedErr error
	history  []Turn
	prompt   string
}

func (f *fakeGenerator) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{float32(strings.Count(text, "alpha")), float32(strings.Count(text, "beta"))}, nil
}

func (f *fakeGenerator) GetChatCompletion(_ context.Context, history []Turn, prompt string) (string, error) {
	f.history = history
	f.prompt = prompt
	return "generated", nil
}

func newTestService(t *testing.T, llm Generator) (*RAGService, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "rag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRAGService(db, llm, nil), db
}

func TestFileType(t *testing.T) {
	ft, err := FileType("Notes.MD")
	require.NoError(t, err)
	assert.Equal(t, "text", ft)

	ft, err = FileType("data.csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", ft)

	_, err = FileType("report.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = FileType("README")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestExtractTextIndentsJSON(t *testing.T) {
	text, err := ExtractText("json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", text)
}

func TestIngestRejectsUnsupported(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Ingest(context.Background(), "x.exe", strings.NewReader("MZ"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestLexicalAnswer(t *testing.T) {
	svc, db := newTestService(t, nil)
	ctx := context.Background()

	doc, err := svc.Ingest(ctx, "fruit.txt", strings.NewReader("Bananas are yellow and grow in bunches."), nil)
	require.NoError(t, err)
	other, err := svc.Ingest(ctx, "sky.md", strings.NewReader("The sky is blue on a clear day."), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Chunks)

	stored, err := db.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "text", stored.FileType)

	answer, sources, err := svc.Answer(ctx, []string{doc.ID, other.ID}, "what colour is the sky?", nil)
	require.NoError(t, err)
	assert.Contains(t, answer, "The sky is blue")
	require.Len(t, sources, 2)
	assert.Equal(t, "The sky is blue on a clear day....", sources[0])
}

func TestAnswerWithoutChunks(t *testing.T) {
	svc, _ := newTestService(t, nil)
	answer, sources, err := svc.Answer(context.Background(), []string{"missing"}, "anything?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, answer)
	assert.Empty(t, sources)
}

func TestEmbeddingRetrievalAndHistoryTrim(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen)
	ctx := context.Background()

	a, err := svc.Ingest(ctx, "a.txt", strings.NewReader("alpha alpha alpha"), nil)
	require.NoError(t, err)
	b, err := svc.Ingest(ctx, "b.txt", strings.NewReader("beta beta"), nil)
	require.NoError(t, err)

	history := make([]Turn, 8)
	for i := range history {
		history[i] = Turn{Role: "user", Content: string(rune('a' + i))}
	}
	answer, sources, err := svc.Answer(ctx, []string{a.ID, b.ID}, "tell me about beta", history)
	require.NoError(t, err)
	assert.Equal(t, "generated", answer)
	require.NotEmpty(t, sources)
	assert.True(t, strings.HasPrefix(sources[0], "beta beta"))
	assert.Len(t, gen.history, HistoryTurns)
	assert.Equal(t, "d", gen.history[0].Content)
	assert.Contains(t, gen.prompt, "[Source 1]:\nbeta beta")
	assert.Contains(t, gen.prompt, "USER QUESTION: tell me about beta")
}

func TestEmbeddingFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{embedErr: errors.New("quota")}
	svc, db := newTestService(t, gen)
	ctx := context.Background()

	doc, err := svc.Ingest(ctx, "a.txt", strings.NewReader("lexical retrieval still works"), nil)
	require.NoError(t, err)
	chunks, err := db.GetChunksByDocumentIDs([]string{doc.ID})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].Embedding)

	_, sources, err := svc.Answer(ctx, []string{doc.ID}, "lexical?", nil)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}
