package inmemory

import (
	"fmt"
	"sync"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// Passwords is an in-memory PasswordSource.
type Passwords struct {
	mu sync.Mutex
	m  map[domain.TeamID]string
}

var _ ports.PasswordSource = (*Passwords)(nil)

func NewPasswords() *Passwords {
	return &Passwords{m: make(map[domain.TeamID]string)}
}

func (p *Passwords) Password(team domain.TeamID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pw, ok := p.m[team]
	if !ok {
		return "", fmt.Errorf("password for %s: %w", team, ports.ErrNotFound)
	}
	return pw, nil
}

func (p *Passwords) StorePassword(team domain.TeamID, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[team] = password
	return nil
}
