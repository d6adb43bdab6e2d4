// Package filestore persists credentials to a YAML file so command-line sessions survive
// between invocations.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	domainauth "github.com/target/bizdesk/internal/domain/auth"
	"gopkg.in/yaml.v3"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// Store is a file-backed credential store. A single process serializes access with a mutex;
// concurrent processes race with last-writer-wins semantics.
type Store struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	Path   string
	Now    func() time.Time
	Logger *slog.Logger
}

type document struct {
	Entries map[string]entry `yaml:"entries"`
}

type entry struct {
	Value     string     `yaml:"value"`
	ExpiresAt *time.Time `yaml:"expires_at,omitempty"`
	Path      string     `yaml:"path,omitempty"`
	Secure    bool       `yaml:"secure"`
	SameSite  string     `yaml:"same_site,omitempty"`
}

// NewStore creates a Store writing to opts.Path.
func NewStore(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("credential file path is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: filepath.Clean(opts.Path), now: now, logger: logger}, nil
}

// Path returns the file the store writes to.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		s.logger.DebugContext(ctx, "credential file unreadable", "path", s.path, "error", err)
		return "", false
	}
	e, ok := doc.Entries[name]
	if !ok || e.Value == "" {
		return "", false
	}
	if e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt) {
		return "", false
	}
	return e.Value, true
}

func (s *Store) Set(_ context.Context, name, value string, opts domainauth.CookieOptions) error {
	if name == "" {
		return errors.New("credential name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking new writes.
		doc = document{}
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]entry)
	}

	e := entry{
		Value:    value,
		Path:     opts.Path,
		Secure:   opts.Secure,
		SameSite: sameSiteName(opts.SameSite),
	}
	if opts.MaxAge > 0 {
		exp := s.now().Add(opts.MaxAge).UTC()
		e.ExpiresAt = &exp
	}
	doc.Entries[name] = e
	return s.save(doc)
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		doc = document{}
	}
	if _, ok := doc.Entries[name]; !ok && err == nil {
		return nil
	}
	delete(doc.Entries, name)
	return s.save(doc)
}

func (s *Store) load() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return doc, nil
}

// save writes through a temp file and rename so readers never see a partial document.
func (s *Store) save(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

func sameSiteName(v http.SameSite) string {
	switch v {
	case http.SameSiteStrictMode:
		return "strict"
	case http.SameSiteLaxMode:
		return "lax"
	case http.SameSiteNoneMode:
		return "none"
	default:
		return ""
	}
}
