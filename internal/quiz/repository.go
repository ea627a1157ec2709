package quiz

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rickgao/autowhitelist/internal/config"
)

// Repository reads and writes quiz files named <dir>/<client id>.json.
// In self-hosted mode every id resolves to the one configured file and
// passes are delivered to the configured key.
type Repository struct {
	cfg    config.QuizConfig
	logger *slog.Logger
}

// NewRepository creates a Repository over cfg.
func NewRepository(cfg config.QuizConfig, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{cfg: cfg, logger: logger}
}

// SelfHosted reports whether the repository serves a single local quiz.
func (r *Repository) SelfHosted() bool {
	return r.cfg.SelfHosted
}

// DeliveryKey returns the key a pass on q is routed to.
func (r *Repository) DeliveryKey(q *Quiz) string {
	if r.cfg.SelfHosted {
		return r.cfg.SelfHostedKey
	}
	return q.ClientKey
}

func (r *Repository) path(id int64) string {
	if r.cfg.SelfHosted {
		return r.cfg.SelfHostedFile
	}
	return filepath.Join(r.cfg.Dir, strconv.FormatInt(id, 10)+".json")
}

// Load reads and parses the quiz for id.
func (r *Repository) Load(id int64) (*Quiz, error) {
	path := r.path(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read quiz %s: %w", path, err)
	}

	q, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse quiz %s: %w", path, err)
	}
	return q, nil
}

// Save validates data and stores it as the quiz for id, replacing any
// previous version.
func (r *Repository) Save(id int64, data []byte) (*Quiz, error) {
	q, err := Parse(data)
	if err != nil {
		return nil, err
	}

	path := r.path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create quiz directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".quiz-*.json")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write quiz: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close quiz: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("replace quiz: %w", err)
	}

	r.logger.Info("quiz saved", "client_id", id, "questions", len(q.Questions))
	return q, nil
}
