package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/review-scraper/internal/models"
)

const timestampLayout = "20060102_150405"

// FileStorage writes each scrape result as a JSON array of reviews, one file
// per run, named {company}_{source}_{YYYYMMDD_HHMMSS}.json.
type FileStorage struct {
	mu     sync.Mutex
	dir    string
	now    func() time.Time
	logger *slog.Logger

	lastPath string
}

func NewFileStorage(dir string, logger *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStorage{
		dir:    dir,
		now:    time.Now,
		logger: logger.With("component", "storage"),
	}, nil
}

// Save implements scraper.Sink.
func (fs *FileStorage) Save(_ context.Context, result *models.ScrapeResult) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	reviews := result.Reviews
	if reviews == nil {
		reviews = []models.Review{}
	}

	data, err := json.MarshalIndent(reviews, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode reviews: %w", err)
	}

	path := filepath.Join(fs.dir, FileName(result.Target, result.Source, fs.now()))

	// Write to temp file first for atomicity
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpFile, err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	fs.lastPath = path
	fs.logger.Info("saved reviews", "path", path, "count", len(reviews), "run_id", result.RunID)
	return nil
}

// LastPath is the file written by the most recent successful Save.
func (fs *FileStorage) LastPath() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastPath
}

// Load reads a file previously written by Save.
func Load(path string) ([]models.Review, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var reviews []models.Review
	if err := json.Unmarshal(data, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return reviews, nil
}

func FileName(company string, source models.Source, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", sanitize(company), source, at.Format(timestampLayout))
}

// sanitize keeps the company name readable while making it a single path
// element.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), "_")
	if name == "" || name == "." || name == ".." {
		return "company"
	}
	return name
}
