package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCollectionWithDocuments(t *testing.T) {
	s := newTestStore(t)

	col, err := s.CreateCollection()
	require.NoError(t, err)
	assert.Len(t, col.ID, 8)

	a, err := s.CreateDocument("a.txt", "text", &col.ID, []DataChunk{{Content: "alpha"}, {Content: "beta", Embedding: []float32{0.5, 1}}})
	require.NoError(t, err)
	b, err := s.CreateDocument("b.md", "text", &col.ID, []DataChunk{{Content: "gamma"}})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, a.Chunks)

	docs, err := s.GetDocumentsByCollection(col.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Filename)
	assert.Equal(t, "b.md", docs[1].Filename)
	require.NotNil(t, docs[0].CollectionID)
	assert.Equal(t, col.ID, *docs[0].CollectionID)

	chunks, err := s.GetChunksByDocumentIDs([]string{a.ID})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha", chunks[0].Content)
	assert.Nil(t, chunks[0].Embedding)
	assert.Equal(t, []float32{0.5, 1}, chunks[1].Embedding)
}

func TestMissingRowsReturnNil(t *testing.T) {
	s := newTestStore(t)

	col, err := s.GetCollection("missing")
	require.NoError(t, err)
	assert.Nil(t, col)

	doc, err := s.GetDocument("missing")
	require.NoError(t, err)
	assert.Nil(t, doc)

	conv, err := s.GetConversation("missing")
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestStandaloneDocument(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.CreateDocument("solo.txt", "text", nil, nil)
	require.NoError(t, err)

	got, err := s.GetDocument(doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.CollectionID)
	assert.Equal(t, 0, got.Chunks)
}

func TestMessagesStartAtFirstIndex(t *testing.T) {
	s := newTestStore(t)

	conv, err := s.CreateConversation("", "doc00001")
	require.NoError(t, err)
	assert.Len(t, conv.ID, 12)

	first, err := s.AppendMessages(conv.ID,
		Message{Role: "user", Content: "q1"},
		Message{Role: "assistant", Content: "a1", Sources: []string{"src..."}})
	require.NoError(t, err)
	assert.Equal(t, FirstMessageIndex, first[0].Index)
	assert.Equal(t, FirstMessageIndex+1, first[1].Index)

	second, err := s.AppendMessages(conv.ID, Message{Role: "user", Content: "q2"})
	require.NoError(t, err)
	assert.Equal(t, FirstMessageIndex+2, second[0].Index)

	msgs, err := s.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"src..."}, msgs[1].Sources)
	assert.Nil(t, msgs[0].Sources)
}

func TestAppendMessagesAtSkipsIndices(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.CreateConversation("", "doc00001")
	require.NoError(t, err)

	got, err := s.AppendMessagesAt(conv.ID, 2,
		Message{Role: "user", Content: "q"},
		Message{Role: "assistant", Content: "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, 3, got[1].Index)

	// An index at or below the last stored one never overwrites.
	again, err := s.AppendMessagesAt(conv.ID, 1, Message{Role: "user", Content: "q2"})
	require.NoError(t, err)
	assert.Equal(t, 4, again[0].Index)

	ok, err := s.MessageExists(conv.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.MessageExists(conv.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnnotationTotals(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddReaction("conv", 2, "👍")
	require.NoError(t, err)
	_, err = s.AddReaction("conv", 2, "👍")
	require.NoError(t, err)
	_, err = s.AddReaction("conv", 4, "🔥")
	require.NoError(t, err)
	_, _, err = s.AddComment("conv", 9, "orphan", "Ada")
	require.NoError(t, err)
	_, err = s.AddReaction("other", 2, "👍")
	require.NoError(t, err)

	reactions, comments, err := s.AnnotationTotals("conv")
	require.NoError(t, err)
	assert.Equal(t, 3, reactions)
	assert.Equal(t, 1, comments)
}

func TestReactionsAggregate(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddReaction("conv", 2, "👍")
	require.NoError(t, err)
	_, err = s.AddReaction("conv", 2, "👍")
	require.NoError(t, err)
	counts, err := s.AddReaction("conv", 2, "🔥")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"👍": 2, "🔥": 1}, counts)

	other, err := s.GetReactions("conv", 3)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCommentsInOrder(t *testing.T) {
	s := newTestStore(t)

	_, total, err := s.AddComment("conv", 2, "first", "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	c, total, err := s.AddComment("conv", 2, "second", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, c.ID, 8)

	comments, err := s.GetComments("conv", 2)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Text)
	assert.Equal(t, "bob", comments[1].UserName)
}

func TestConversationsByLinkAndStats(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateConversation("older0000001", "doc1")
	require.NoError(t, err)
	_, err = s.CreateConversation("newer0000001", "doc1")
	require.NoError(t, err)
	_, err = s.CreateConversation("", "doc2")
	require.NoError(t, err)

	convs, err := s.ListConversationsByLink("doc1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "newer0000001", convs[0].ID)

	_, err = s.CreateCollection()
	require.NoError(t, err)
	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Documents: 0, Collections: 1, Conversations: 3}, st)
}
