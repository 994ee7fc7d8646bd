package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	docs := []Document{
		{Name: "aml.txt", Text: "anti money laundering"},
		{Name: "kyc.txt", Text: "know your customer"},
	}
	require.NoError(t, store.SaveSources(docs))
	require.NoError(t, store.SaveTemplates([]Document{{Name: "letter.txt", Text: "Dear client"}}))

	loaded, err := store.LoadSources()
	require.NoError(t, err)
	assert.Equal(t, docs, loaded)

	templates, err := store.LoadTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "letter.txt", templates[0].Name)
}

func TestStoreSaveReplacesSet(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveSources([]Document{{Name: "old", Text: "x"}}))
	require.NoError(t, store.SaveSources([]Document{{Name: "new", Text: "y"}}))

	loaded, err := store.LoadSources()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].Name)
}

func TestStorePreferences(t *testing.T) {
	store := newTestStore(t)

	value, err := store.Preference(PrefVoiceReplies, "false")
	require.NoError(t, err)
	assert.Equal(t, "false", value)

	require.NoError(t, store.SetPreference(PrefVoiceReplies, "true"))
	require.NoError(t, store.SetPreference(PrefVoiceReplies, "false"))

	value, err = store.Preference(PrefVoiceReplies, "true")
	require.NoError(t, err)
	assert.Equal(t, "false", value)
}

func TestStoreEmbeddings(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveEmbedding("aml.txt", []float32{0.1, 0.2}))
	require.NoError(t, store.SaveEmbedding("aml.txt", []float32{0.3, 0.4}))

	vecs, err := store.LoadEmbeddings()
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.InDelta(t, 0.3, vecs["aml.txt"][0], 1e-6)
}
