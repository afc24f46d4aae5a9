// SPDX-License-Identifier: Apache-2.0

package reference

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/jllopis/allot/pkg/errors"
)

// Source provides the reference table for one operation. Implementations
// return a snapshot that stays valid and unchanged for as long as the caller
// holds it.
type Source interface {
	Table(ctx context.Context) (*Table, error)
}

// Static serves a fixed table.
type Static struct {
	table *Table
}

// NewStatic wraps t as a Source.
func NewStatic(t *Table) *Static { return &Static{table: t} }

func (s *Static) Table(context.Context) (*Table, error) {
	if s.table == nil {
		return nil, errors.New(errors.CodeDataUnavailable, "reference table not loaded", nil)
	}
	return s.table, nil
}

// Format identifies a reference file encoding.
type Format string

const (
	FormatAuto   Format = "auto"
	FormatCSV    Format = "csv"
	FormatYAML   Format = "yaml"
	FormatTOML   Format = "toml"
	FormatSQLite Format = "sqlite"
)

// DetectFormat resolves FormatAuto (or "") from the file extension.
func DetectFormat(path string, format Format) Format {
	if format != "" && format != FormatAuto {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatCSV
	}
}

// Parse decodes data in a text format. FormatSQLite is not a text format.
func Parse(data []byte, format Format, defaultCapacity int) (*Table, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(bytes.NewReader(data), defaultCapacity)
	case FormatYAML:
		return ParseYAML(data, defaultCapacity)
	case FormatTOML:
		return ParseTOML(data, defaultCapacity)
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unsupported reference format %q", format)
	}
}

// LoadFile reads a CSV, YAML or TOML table from path. Any failure is reported
// as CodeDataUnavailable wrapping the cause.
func LoadFile(path string, format Format, defaultCapacity int) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeDataUnavailable, "cannot read reference table", err).
			WithContext("path", path)
	}
	t, err := Parse(data, DetectFormat(path, format), defaultCapacity)
	if err != nil {
		return nil, errors.New(errors.CodeDataUnavailable, "cannot parse reference table", err).
			WithContext("path", path)
	}
	return t, nil
}

// FileSource serves a table loaded from a file and, once Watch is called,
// swaps in a new snapshot whenever the file changes. A failed reload keeps
// the previous snapshot.
type FileSource struct {
	path            string
	format          Format
	defaultCapacity int
	logger          *slog.Logger

	current atomic.Pointer[Table]

	mu        sync.Mutex
	listeners []func(*Table)
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithFormat overrides extension-based format detection.
func WithFormat(f Format) FileOption {
	return func(s *FileSource) { s.format = f }
}

// WithDefaultCapacity sets the capacity used when the file does not give one.
func WithDefaultCapacity(c int) FileOption {
	return func(s *FileSource) {
		if c > 0 {
			s.defaultCapacity = c
		}
	}
}

// WithLogger sets the logger used to report reloads.
func WithLogger(logger *slog.Logger) FileOption {
	return func(s *FileSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileSource loads path once. The source does not watch until Watch is called.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	s := &FileSource{
		path:            path,
		format:          FormatAuto,
		defaultCapacity: DefaultCapacity,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.format = DetectFormat(path, s.format)
	if s.format == FormatSQLite {
		return nil, errors.New(errors.CodeInvalidInput, "sqlite tables are served by SQLiteSource", nil)
	}
	t, err := LoadFile(path, s.format, s.defaultCapacity)
	if err != nil {
		return nil, err
	}
	s.current.Store(t)
	return s, nil
}

// Table returns the current snapshot.
func (s *FileSource) Table(context.Context) (*Table, error) {
	return s.current.Load(), nil
}

// OnChange registers fn to run after every successful reload.
func (s *FileSource) OnChange(fn func(*Table)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload reads the file again and swaps the snapshot on success.
func (s *FileSource) Reload() error {
	t, err := LoadFile(s.path, s.format, s.defaultCapacity)
	if err != nil {
		s.logger.Error("reference reload failed, keeping previous table", "path", s.path, "error", err)
		return err
	}
	s.current.Store(t)
	agents, roles := t.Dims()
	s.logger.Info("reference table reloaded", "path", s.path, "agents", agents, "roles", roles)

	s.mu.Lock()
	listeners := make([]func(*Table), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(t)
	}
	return nil
}

// Watch starts reloading on file changes until ctx is done or Close is
// called. The parent directory is watched so that editors replacing the
// file by rename are noticed.
func (s *FileSource) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New(errors.CodeDataUnavailable, "cannot watch reference table", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return errors.New(errors.CodeDataUnavailable, "cannot watch reference table", err).
			WithContext("path", s.path)
	}
	s.watcher = w
	s.done = make(chan struct{})
	go s.watch(ctx, w, s.done)
	return nil
}

func (s *FileSource) watch(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	base := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				_ = s.Reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("reference watcher error", "path", s.path, "error", err)
		}
	}
}

// Close stops watching.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// SQLiteSource reads the table from a database on every call, so edits to
// the database are visible to the next operation.
type SQLiteSource struct {
	db              *sql.DB
	defaultCapacity int
	owned           bool
}

// NewSQLiteSource serves tables from db.
func NewSQLiteSource(db *sql.DB, defaultCapacity int) *SQLiteSource {
	return &SQLiteSource{db: db, defaultCapacity: defaultCapacity}
}

// OpenSQLiteSource opens the database at dsn with the modernc driver.
func OpenSQLiteSource(dsn string, defaultCapacity int) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.CodeDataUnavailable, "cannot open reference database", err)
	}
	return &SQLiteSource{db: db, defaultCapacity: defaultCapacity, owned: true}, nil
}

func (s *SQLiteSource) Table(ctx context.Context) (*Table, error) {
	t, err := LoadSQLite(ctx, s.db, s.defaultCapacity)
	if err != nil {
		return nil, errors.New(errors.CodeDataUnavailable, "cannot load reference table from database", err)
	}
	return t, nil
}

// Close closes the database when the source opened it.
func (s *SQLiteSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Open builds the Source for path: SQLiteSource for database files and
// FileSource otherwise. The returned source may implement io.Closer.
func Open(path string, format Format, defaultCapacity int, logger *slog.Logger) (Source, error) {
	if path == "" {
		return nil, errors.New(errors.CodeDataUnavailable, "no reference table configured", nil)
	}
	if DetectFormat(path, format) == FormatSQLite {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New(errors.CodeDataUnavailable, "cannot open reference database", err).
				WithContext("path", path)
		}
		src, err := OpenSQLiteSource(path, defaultCapacity)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := NewFileSource(path, WithFormat(format), WithDefaultCapacity(defaultCapacity), WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return src, nil
}
