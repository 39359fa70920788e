// Package story persists the per-story JSON record that every pipeline
// stage reads at its start and rewrites at its end.
package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"story-video-pipeline/types"
)

// Store lays stories out as <root>/<title>/story.json with images/,
// audios/ and videos/ subfolders created on demand.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

// Folder returns (and creates) the story's folder.
func (s *Store) Folder(title string, parts ...string) (string, error) {
	path := filepath.Join(append([]string{s.Root, title}, parts...)...)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create story folder: %w", err)
	}
	return path, nil
}

func (s *Store) jsonPath(title string) string {
	return filepath.Join(s.Root, title, "story.json")
}

// Load reads the persisted story record.
func (s *Store) Load(title string) (*types.Story, error) {
	data, err := os.ReadFile(s.jsonPath(title))
	if err != nil {
		return nil, fmt.Errorf("load story %q: %w", title, err)
	}
	var st types.Story
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse story %q: %w", title, err)
	}
	return &st, nil
}

// Save rewrites the story record. Partial artifacts referenced by the
// record stay on disk even when a later stage fails, so a rerun resumes
// instead of regenerating.
func (s *Store) Save(st *types.Story) error {
	if _, err := s.Folder(st.Title); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal story %q: %w", st.Title, err)
	}
	if err := os.WriteFile(s.jsonPath(st.Title), data, 0644); err != nil {
		return fmt.Errorf("save story %q: %w", st.Title, err)
	}
	return nil
}

// EnsureFromList seeds story folders from the authored story list and
// returns the titles in list order. Stories that already have a
// story.json are left untouched.
func (s *Store) EnsureFromList(listPath string) ([]string, error) {
	data, err := os.ReadFile(listPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s.existingTitles()
		}
		return nil, fmt.Errorf("read story list: %w", err)
	}

	var stories []*types.Story
	if err := json.Unmarshal(data, &stories); err != nil {
		return nil, fmt.Errorf("parse story list: %w", err)
	}

	titles := make([]string, 0, len(stories))
	for _, st := range stories {
		titles = append(titles, st.Title)
		if _, err := os.Stat(s.jsonPath(st.Title)); err == nil {
			continue
		}
		if err := s.Save(st); err != nil {
			return nil, err
		}
	}
	return titles, nil
}

func (s *Store) existingTitles() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var titles []string
	for _, e := range entries {
		if e.IsDir() {
			if _, err := os.Stat(s.jsonPath(e.Name())); err == nil {
				titles = append(titles, e.Name())
			}
		}
	}
	return titles, nil
}
