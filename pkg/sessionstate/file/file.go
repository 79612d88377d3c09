// Package file stores session state as JSON files under a directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/dukex/dagstudio/pkg/models"
	"github.com/dukex/dagstudio/pkg/sessionstate"
)

var _ sessionstate.Store = (*Store)(nil)

const (
	viewportsFile = "viewports.json"
	draftFile     = "draft.json"
)

// Store keeps viewports.json and draft.json under root.
type Store struct {
	root string
}

// NewStore creates a file store rooted at root. A "file://" prefix is accepted.
func NewStore(root string) *Store {
	return &Store{root: strings.TrimPrefix(root, "file://")}
}

func (s *Store) LoadViewports(_ context.Context) (map[string]models.Viewport, error) {
	viewports := map[string]models.Viewport{}

	found, err := s.read(viewportsFile, &viewports)
	if err != nil || !found {
		return viewports, err
	}

	return viewports, nil
}

func (s *Store) SaveViewports(_ context.Context, viewports map[string]models.Viewport) error {
	return s.write(viewportsFile, viewports)
}

func (s *Store) LoadDraft(_ context.Context) (*sessionstate.Draft, error) {
	var draft sessionstate.Draft

	found, err := s.read(draftFile, &draft)
	if err != nil || !found {
		return nil, err
	}

	return &draft, nil
}

func (s *Store) SaveDraft(_ context.Context, draft *sessionstate.Draft) error {
	if draft == nil {
		err := os.Remove(path.Join(s.root, draftFile))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove draft: %w", err)
		}

		return nil
	}

	return s.write(draftFile, draft)
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) read(name string, v any) (bool, error) {
	data, err := os.ReadFile(path.Join(s.root, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	return true, nil
}

func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := path.Join(s.root, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	return os.Rename(tmp, path.Join(s.root, name))
}
