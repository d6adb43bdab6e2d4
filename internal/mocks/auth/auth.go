// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/target/bizdesk/internal/domain/auth"
	"github.com/target/bizdesk/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialStore = (*MemoryStore)(nil)
	_ ports.Navigator       = (*RecordingNavigator)(nil)
)

// MemoryStore is an in-memory credential store for unit tests.
// It records the options of the last write per name and counts operations.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	options map[string]domainauth.CookieOptions

	// SetErr, when non-nil, is returned by every Set call.
	SetErr error

	gets    int
	sets    int
	deletes int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]string),
		options: make(map[string]domainauth.CookieOptions),
	}
}

func (m *MemoryStore) Get(_ context.Context, name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.values[name]
	return v, ok
}

func (m *MemoryStore) Set(_ context.Context, name, value string, opts domainauth.CookieOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.SetErr != nil {
		return m.SetErr
	}
	if name == "" {
		return errors.New("name cannot be empty")
	}
	m.values[name] = value
	m.options[name] = opts
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.values, name)
	delete(m.options, name)
	return nil
}

// Options returns the attributes used for the last write of name.
func (m *MemoryStore) Options(name string) (domainauth.CookieOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.options[name]
	return o, ok
}

// Seed writes a value without counting it as a Set.
func (m *MemoryStore) Seed(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	m.options[name] = domainauth.CookieOptions{MaxAge: time.Hour, Path: "/"}
}

// Counts returns the number of Get, Set and Delete calls observed.
func (m *MemoryStore) Counts() (gets, sets, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.sets, m.deletes
}

// RecordingNavigator stores navigation targets instead of acting on them.
type RecordingNavigator struct {
	mu      sync.Mutex
	Path    string
	targets []string
}

func (n *RecordingNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Path
}

func (n *RecordingNavigator) Navigate(_ context.Context, target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
}

// Targets returns a copy of the navigation history.
func (n *RecordingNavigator) Targets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

// SetPath changes the current view path.
func (n *RecordingNavigator) SetPath(p string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Path = p
}
