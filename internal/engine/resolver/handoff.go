package resolver

import (
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// WriteHandoff renders list into the requirements file below dir and returns its path.
// The file appears atomically; a reader never observes a partial list.
func WriteHandoff(dir string, list *domain.RequirementList) (string, error) {
	path := filepath.Join(dir, domain.RequirementsFileName)
	if err := WriteRequirements(path, list); err != nil {
		return "", err
	}
	return path, nil
}

// WriteRequirements atomically replaces the file at path with the rendered list.
func WriteRequirements(path string, list *domain.RequirementList) error {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrHandoffFailed.Error()), "path", path)
	}
	if err := renameio.WriteFile(path, list.Render(), domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrHandoffFailed.Error()), "path", path)
	}
	return nil
}

// ReadHandoff parses the requirements file at path.
func ReadHandoff(path string) (*domain.RequirementList, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is the handoff file written by WriteHandoff
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrHandoffFailed.Error()), "path", path)
	}
	list, err := domain.ParseRequirementList(data)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrHandoffFailed.Error()), "path", path)
	}
	return list, nil
}
