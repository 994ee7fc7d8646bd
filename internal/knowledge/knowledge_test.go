package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAdd(t *testing.T) {
	s := NewSet()

	t.Run("adds new document", func(t *testing.T) {
		require.True(t, s.Add(Document{Name: "aml.txt", Text: "AML rules"}))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("duplicate name is silently dropped", func(t *testing.T) {
		assert.False(t, s.Add(Document{Name: "aml.txt", Text: "other text"}))
		assert.Equal(t, 1, s.Len())

		doc, ok := s.Get("aml.txt")
		require.True(t, ok)
		assert.Equal(t, "AML rules", doc.Text)
	})

	t.Run("preserves insertion order", func(t *testing.T) {
		s.Add(Document{Name: "kyc.txt", Text: "KYC"})
		s.Add(Document{Name: "gdpr.txt", Text: "GDPR"})
		docs := s.Documents()
		require.Len(t, docs, 3)
		assert.Equal(t, "aml.txt", docs[0].Name)
		assert.Equal(t, "kyc.txt", docs[1].Name)
		assert.Equal(t, "gdpr.txt", docs[2].Name)
	})
}

func TestSetRemoveAndClear(t *testing.T) {
	s := NewSet()
	s.Add(Document{Name: "a", Text: "x"})
	s.Add(Document{Name: "b", Text: "y"})

	require.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestPlainTextExtractor(t *testing.T) {
	e := PlainTextExtractor{}

	t.Run("returns trimmed text", func(t *testing.T) {
		text, err := e.ExtractText("note.txt", strings.NewReader("  hello world \n"))
		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
	})

	t.Run("empty content fails", func(t *testing.T) {
		_, err := e.ExtractText("empty.txt", strings.NewReader("   \n\t"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("respects byte cap", func(t *testing.T) {
		e := PlainTextExtractor{MaxBytes: 5}
		text, err := e.ExtractText("big.txt", strings.NewReader("0123456789"))
		require.NoError(t, err)
		assert.Equal(t, "01234", text)
	})
}
