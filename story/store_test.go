package story

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-video-pipeline/types"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	st := &types.Story{
		Title:   "The Lighthouse",
		Content: "Once upon a time.",
		Genre:   "mystery",
		ContentChunks: []*types.ContentChunk{
			{Content: "Once upon a time.", AudioDuration: 4.2},
		},
		HasAudios: true,
	}
	require.NoError(t, s.Save(st))

	loaded, err := s.Load("The Lighthouse")
	require.NoError(t, err)
	assert.Equal(t, st.Title, loaded.Title)
	assert.Equal(t, st.Genre, loaded.Genre)
	assert.True(t, loaded.HasAudios)
	require.Len(t, loaded.ContentChunks, 1)
	assert.InDelta(t, 4.2, loaded.ContentChunks[0].AudioDuration, 1e-9)
}

func TestLoadMissingStory(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("nope")
	require.Error(t, err)
}

func TestFolderCreatesNestedDirs(t *testing.T) {
	s := NewStore(t.TempDir())

	dir, err := s.Folder("My Story", "audios")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(s.Root, "My Story", "audios"), dir)
}

func TestEnsureFromListSeedsNewStories(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	list := []*types.Story{
		{Title: "First", Content: "one"},
		{Title: "Second", Content: "two"},
	}
	listPath := filepath.Join(root, "stories.json")
	data, err := json.Marshal(list)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(listPath, data, 0644))

	titles, err := s.EnsureFromList(listPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second"}, titles)

	first, err := s.Load("First")
	require.NoError(t, err)
	assert.Equal(t, "one", first.Content)
}

func TestEnsureFromListKeepsExistingRecords(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	// The story already progressed; re-listing it must not reset it.
	require.NoError(t, s.Save(&types.Story{Title: "First", Content: "one", HasAudios: true}))

	list := []*types.Story{{Title: "First", Content: "rewritten"}}
	listPath := filepath.Join(root, "stories.json")
	data, _ := json.Marshal(list)
	require.NoError(t, os.WriteFile(listPath, data, 0644))

	_, err := s.EnsureFromList(listPath)
	require.NoError(t, err)

	loaded, err := s.Load("First")
	require.NoError(t, err)
	assert.Equal(t, "one", loaded.Content)
	assert.True(t, loaded.HasAudios)
}

func TestEnsureFromListWithoutListFile(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	require.NoError(t, s.Save(&types.Story{Title: "Existing"}))

	titles, err := s.EnsureFromList(filepath.Join(root, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Existing"}, titles)
}
