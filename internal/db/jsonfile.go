package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Ratchadaporn07043/astrobot/internal/helper"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

// JSONPath is <dir>/<collection><suffix>.
func JSONPath(dir, collection, suffix string) string {
	return filepath.Join(dir, collection+suffix)
}

// WriteJSON writes records as an indented json array, replacing any previous file.
func WriteJSON(dir, collection, suffix string, records []models.Record) (string, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return "", err
	}
	if records == nil {
		records = []models.Record{}
	}

	path := JSONPath(dir, collection, suffix)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, f.Close()
}

// ReadJSON loads a file written by WriteJSON.
func ReadJSON(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// JSONStore keeps each collection in a json file under dir. It backs the
// fallback path and lets retrieval run against fallback output.
type JSONStore struct {
	dir        string
	originalDB string
}

func NewJSONStore(dir, originalDB string) *JSONStore {
	return &JSONStore{dir: dir, originalDB: originalDB}
}

func (s *JSONStore) suffix(database string) string {
	if database == s.originalDB {
		return models.OriginalFileSuffix
	}
	return models.ProcessedFileSuffix
}

// Path returns the file backing one collection.
func (s *JSONStore) Path(database, collection string) string {
	return JSONPath(s.dir, collection, s.suffix(database))
}

func (s *JSONStore) Ping(context.Context) error {
	return helper.CreateFolder(s.dir)
}

func (s *JSONStore) Clear(_ context.Context, database, collection string) error {
	err := os.Remove(s.Path(database, collection))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear %s: %w", collection, err)
	}
	return nil
}

func (s *JSONStore) InsertMany(ctx context.Context, database, collection string, records []models.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	existing, err := s.FindAll(ctx, database, collection)
	if err != nil {
		return 0, err
	}
	if _, err := WriteJSON(s.dir, collection, s.suffix(database), append(existing, records...)); err != nil {
		return 0, err
	}
	return len(records), nil
}

// FindAll treats a missing file as an empty collection.
func (s *JSONStore) FindAll(_ context.Context, database, collection string) ([]models.Record, error) {
	path := s.Path(database, collection)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	records, err := ReadJSON(path)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].StoreID = strconv.Itoa(i + 1)
	}
	return records, nil
}

func (s *JSONStore) Close(context.Context) error { return nil }
