package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrdering(t *testing.T) {
	tr := New()
	tr.Append(SenderUser, "first")
	tr.Append(SenderAI, "second")
	tr.Append(SenderSystem, "third")

	msgs := tr.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, SenderAI, msgs[1].Sender)
	assert.Equal(t, "third", msgs[2].Text)

	for _, m := range msgs {
		assert.NotEmpty(t, m.ID)
	}
}

func TestEditText(t *testing.T) {
	tr := New()
	id := tr.Append(SenderAI, "draft")

	t.Run("edits existing message in place", func(t *testing.T) {
		require.True(t, tr.EditText(id, "final"))
		msgs := tr.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "final", msgs[0].Text)
		assert.Equal(t, id, msgs[0].ID)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		assert.False(t, tr.EditText("missing", "x"))
		assert.Equal(t, 1, tr.Len())
	})
}

func TestDelete(t *testing.T) {
	tr := New()
	a := tr.Append(SenderUser, "a")
	tr.Append(SenderAI, "b")

	require.True(t, tr.Delete(a))
	msgs := tr.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Text)

	assert.False(t, tr.Delete(a))
}

func TestReset(t *testing.T) {
	tr := New()
	tr.Append(SenderUser, "one")
	tr.Append(SenderAI, "two")

	tr.Reset("welcome")

	msgs := tr.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SenderAI, msgs[0].Sender)
	assert.Equal(t, "welcome", msgs[0].Text)
}

func TestLast(t *testing.T) {
	tr := New()
	_, ok := tr.Last()
	assert.False(t, ok)

	tr.Append(SenderUser, "hello")
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "hello", last.Text)
}

func TestMessagesReturnsCopy(t *testing.T) {
	tr := New()
	tr.Append(SenderUser, "original")

	msgs := tr.Messages()
	msgs[0].Text = "mutated"

	assert.Equal(t, "original", tr.Messages()[0].Text)
}
