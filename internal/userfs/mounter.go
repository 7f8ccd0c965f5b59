package userfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MimeLyc/cloudmaint/pkg/log"
)

const (
	filesDirName = "files"
	trashDirName = "files_trashbin"
)

// Mounter hands out per-user filesystem scopes rooted at <dataDir>/<user>.
type Mounter struct {
	dataDir string

	mu     sync.Mutex
	active map[string]map[*Scope]struct{}
}

func NewMounter(dataDir string) *Mounter {
	return &Mounter{
		dataDir: dataDir,
		active:  make(map[string]map[*Scope]struct{}),
	}
}

// Setup prepares the user's directories and returns a scope for them. The
// caller must Release it.
func (m *Mounter) Setup(user string) (*Scope, error) {
	if user == "" || user == "." || user == ".." || strings.ContainsAny(user, `/\`) {
		return nil, fmt.Errorf("invalid user %q", user)
	}
	s := &Scope{
		mounter: m,
		user:    user,
		root:    filepath.Join(m.dataDir, user),
	}
	for _, dir := range []string{s.FilesDir(), s.TrashDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("setup filesystem of %s: %w", user, err)
		}
	}

	m.mu.Lock()
	if m.active[user] == nil {
		m.active[user] = make(map[*Scope]struct{})
	}
	m.active[user][s] = struct{}{}
	m.mu.Unlock()
	return s, nil
}

// TearDown releases every scope still held for user.
func (m *Mounter) TearDown(user string) {
	m.mu.Lock()
	scopes := m.active[user]
	delete(m.active, user)
	m.mu.Unlock()

	for s := range scopes {
		s.markReleased()
	}
	if len(scopes) > 0 {
		log.Debug("Tore down %d filesystem scope(s) of %s", len(scopes), user)
	}
}

// Active reports how many scopes of user are held.
func (m *Mounter) Active(user string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active[user])
}

func (m *Mounter) release(s *Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if scopes, ok := m.active[s.user]; ok {
		delete(scopes, s)
		if len(scopes) == 0 {
			delete(m.active, s.user)
		}
	}
}

// Scope is one user's view of the data directory.
type Scope struct {
	mounter *Mounter
	user    string
	root    string

	once     sync.Once
	released bool
	mu       sync.Mutex
}

func (s *Scope) User() string     { return s.user }
func (s *Scope) Root() string     { return s.root }
func (s *Scope) FilesDir() string { return filepath.Join(s.root, filesDirName) }
func (s *Scope) TrashDir() string { return filepath.Join(s.root, trashDirName, filesDirName) }

// Release gives the scope back. Calling it more than once is harmless.
func (s *Scope) Release() {
	s.once.Do(func() {
		s.mounter.release(s)
		s.markReleased()
	})
}

func (s *Scope) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Scope) markReleased() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}
