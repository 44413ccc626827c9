// Package ledger persists submitted job handles as a single JSON file.
// The file is the only state shared between the scheduler and collector
// processes: each scheduling run writes a fresh, self-contained ledger
// (overwrite, never append), and each collection run reads it once.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/humus/internal/models"
)

// DefaultPath is the conventional ledger file name.
const DefaultPath = "sm_tasks.json"

var (
	// ErrNotFound is returned by Load when the ledger file is absent.
	// Fatal for a collector run.
	ErrNotFound = errors.New("task ledger not found")

	// ErrCorrupt is returned by Load when the ledger file is not valid
	// JSON. Fatal for a collector run; no partial recovery.
	ErrCorrupt = errors.New("task ledger corrupt")
)

// Save serializes the handle sequence as JSON, replacing any prior file
// at path.
func Save(handles []models.JobHandle, path string) error {
	if handles == nil {
		handles = []models.JobHandle{}
	}

	data, err := json.MarshalIndent(handles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task ledger: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write task ledger %s: %w", path, err)
	}

	return nil
}

// Load reads the handle sequence back from path.
func Load(path string) ([]models.JobHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read task ledger %s: %w", path, err)
	}

	var handles []models.JobHandle
	if err := json.Unmarshal(data, &handles); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	return handles, nil
}
