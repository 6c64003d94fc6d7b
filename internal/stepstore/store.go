package stepstore

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"
)

// Config holds the engine settings of a store.
type Config struct {
	// Path is the store directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the store in RAM only. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// NumVersionsToKeep is passed through to BadgerDB.
	NumVersionsToKeep int

	// Compression is one of "none", "snappy" or "zstd".
	Compression string
}

func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		Compression:       "zstd",
	}
}

func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		NumVersionsToKeep: 1,
		Compression:       "none",
	}
}

func compressionType(name string) (options.CompressionType, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return options.None, nil
	case "snappy":
		return options.Snappy, nil
	case "zstd":
		return options.ZSTD, nil
	default:
		return options.None, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// badgerLogger forwards BadgerDB's internal log lines to zap. Info lines are
// demoted to debug; badger is chatty on open and close.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store is one step-oriented dataset.
type Store struct {
	db     *badger.DB
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	writing bool
	closed  bool
}

// Open opens or creates the store described by cfg. A nil logger disables
// engine logging.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("stepstore: path is required for a persistent store")
	}
	comp, err := compressionType(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.NumVersionsToKeep < 1 {
		cfg.NumVersionsToKeep = 1
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(cfg.NumVersionsToKeep).
		WithCompression(comp)

	if logger == nil {
		logger = zap.NewNop()
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(&badgerLogger{log: logger.Named("badger").Sugar()})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Path, err)
	}
	return &Store{db: db, path: cfg.Path, logger: logger}, nil
}

func (s *Store) Path() string { return s.path }

// NewWriter truncates the store and returns its writer. Only one writer may
// be active at a time.
func (s *Store) NewWriter() (*StoreWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.writing {
		return nil, ErrWriterActive
	}
	if err := s.db.DropAll(); err != nil {
		return nil, fmt.Errorf("truncate store: %w", err)
	}
	w := newWriter(s)
	if err := w.saveManifest(); err != nil {
		return nil, err
	}
	s.writing = true
	return w, nil
}

func (s *Store) releaseWriter() {
	s.mu.Lock()
	s.writing = false
	s.mu.Unlock()
}

// NewReader returns a reader positioned before the first committed step.
func (s *Store) NewReader() *StoreReader {
	return &StoreReader{store: s, current: -1}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Manifest describes a dataset as a whole.
type Manifest struct {
	RunID          string            `json:"run_id"`
	CreatedAt      time.Time         `json:"created_at"`
	ClosedAt       *time.Time        `json:"closed_at,omitempty"`
	StepsCommitted int               `json:"steps_committed"`
	StepsAborted   int               `json:"steps_aborted"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

type commitRecord struct {
	Step        int        `json:"step"`
	Variables   []Variable `json:"variables"`
	CommittedAt time.Time  `json:"committed_at"`
}

const (
	manifestKey  = "m"
	commitPrefix = "c/"
)

func commitKey(step int) []byte {
	return []byte(fmt.Sprintf("%s%012d", commitPrefix, step))
}

func dataKey(step int, name string) []byte {
	return []byte(fmt.Sprintf("d/%012d/%s", step, name))
}
