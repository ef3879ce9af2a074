// Package opledger keeps a local, file-based ledger of the remote operations
// the CLI submitted, so that they can be listed and inspected after the
// command that drove them has exited.
package opledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/3leaps/gohops/pkg/operation"
)

const recordFile = "record.json"

// Store persists and loads Records from an on-disk directory.
//
// Directory layout:
//
//	<root>/<id>/record.json
//
// Root is expected to be under the app data dir.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) RecordDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) RecordPath(id string) string {
	return filepath.Join(s.RecordDir(id), recordFile)
}

func (s *Store) ensureRoot() error {
	if s.root == "" {
		return fmt.Errorf("operation ledger root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Write stores record, replacing any previous version atomically.
func (s *Store) Write(record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return fmt.Errorf("record id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	dir := s.RecordDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, recordFile+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, s.RecordPath(id)); err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

// Get loads the record with the exact id.
func (s *Store) Get(id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("record id is required")
	}
	b, err := os.ReadFile(s.RecordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("operation %s: %w", id, operation.ErrNotFound)
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("%s is empty", recordFile)
	}

	var record Record
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse %s: %w", recordFile, err)
	}
	return &record, nil
}

// List returns all readable records, newest first.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger root: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Resolve expands input to a full record id: an exact id first, then a
// unique id prefix.
func (s *Store) Resolve(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("record id is required")
	}
	if _, err := s.Get(input); err == nil {
		return input, nil
	}

	records, err := s.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, r := range records {
		if strings.HasPrefix(r.ID, input) {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("operation %s: %w", input, operation.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("operation id prefix %s matches %d records: %w", input, len(matches), operation.ErrAmbiguous)
	}
}

// GCResult summarizes a garbage collection pass.
type GCResult struct {
	Deleted     int  `json:"deleted"`
	WouldDelete int  `json:"would_delete"`
	DryRun      bool `json:"dry_run"`
}

// GC deletes terminal records that ended more than maxAge before now.
// Running records are never deleted.
func (s *Store) GC(maxAge time.Duration, now time.Time, dryRun bool) (GCResult, error) {
	if maxAge <= 0 {
		return GCResult{}, fmt.Errorf("max age must be > 0")
	}
	records, err := s.List()
	if err != nil {
		return GCResult{}, err
	}

	res := GCResult{DryRun: dryRun}
	for _, r := range records {
		if !r.Status.Terminal() || r.EndedAt == nil {
			continue
		}
		if now.Sub(r.EndedAt.UTC()) <= maxAge {
			continue
		}
		if dryRun {
			res.WouldDelete++
			continue
		}
		if err := os.RemoveAll(s.RecordDir(r.ID)); err != nil {
			return res, fmt.Errorf("delete record %s: %w", r.ID, err)
		}
		res.Deleted++
	}
	return res, nil
}
