package inmemory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/sufield/signet/internal/ports"
)

type container struct {
	password   string
	unlocked   bool
	identities []string
}

// Security is a SecurityBackend that keeps containers in memory and drops a
// marker file at each container path so cleanup can be observed on disk.
type Security struct {
	mu         sync.Mutex
	containers map[string]*container
	deleted    map[string]int

	FailCreate  error
	FailDelete  error
	FailImports map[string]error // by file path
}

var _ ports.SecurityBackend = (*Security)(nil)

// NewSecurity returns an empty backend.
func NewSecurity() *Security {
	return &Security{
		containers:  make(map[string]*container),
		deleted:     make(map[string]int),
		FailImports: make(map[string]error),
	}
}

func (s *Security) CreateContainer(ctx context.Context, path, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return s.FailCreate
	}
	if _, ok := s.containers[path]; ok {
		return fmt.Errorf("container %s already exists", path)
	}
	if err := os.WriteFile(path, []byte("inmemory-container"), 0o600); err != nil {
		return err
	}
	s.containers[path] = &container{password: password}
	return nil
}

func (s *Security) UnlockContainer(ctx context.Context, path, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[path]
	if !ok {
		return fmt.Errorf("container %s: %w", path, ports.ErrNotFound)
	}
	if c.password != password {
		return fmt.Errorf("container %s: wrong password", path)
	}
	c.unlocked = true
	return nil
}

func (s *Security) ImportIdentity(ctx context.Context, path, file, filePassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[path]
	if !ok {
		return fmt.Errorf("container %s: %w", path, ports.ErrNotFound)
	}
	if !c.unlocked {
		return fmt.Errorf("container %s is locked", path)
	}
	if err := s.FailImports[file]; err != nil {
		return fmt.Errorf("import %s: %w", file, err)
	}
	c.identities = append(c.identities, file)
	return nil
}

func (s *Security) DeleteContainer(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		err := s.FailDelete
		s.FailDelete = nil
		return err
	}
	if _, ok := s.containers[path]; !ok {
		return fmt.Errorf("container %s: %w", path, ports.ErrNotFound)
	}
	delete(s.containers, path)
	s.deleted[path]++
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Live returns the paths of containers that still exist.
func (s *Security) Live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.containers))
	for p := range s.containers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Deletions returns how many times path was deleted.
func (s *Security) Deletions(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[path]
}

// Identities returns the files imported into path.
func (s *Security) Identities(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.containers[path]; ok {
		return slices.Clone(c.identities)
	}
	return nil
}
