package domain

import (
	"fmt"
	"slices"
	"sync"
)

// ContainerState is a lifecycle state of an ephemeral credential container.
type ContainerState string

const (
	ContainerCreated   ContainerState = "created"
	ContainerUnlocked  ContainerState = "unlocked"
	ContainerPopulated ContainerState = "populated"
	ContainerInUse     ContainerState = "in_use"
	ContainerFailed    ContainerState = "failed"
	ContainerCleaned   ContainerState = "cleaned"
)

var containerTransitions = map[ContainerState][]ContainerState{
	ContainerCreated:   {ContainerUnlocked, ContainerFailed, ContainerCleaned},
	ContainerUnlocked:  {ContainerPopulated, ContainerInUse, ContainerFailed, ContainerCleaned},
	ContainerPopulated: {ContainerPopulated, ContainerInUse, ContainerFailed, ContainerCleaned},
	ContainerInUse:     {ContainerFailed, ContainerCleaned},
	ContainerFailed:    {ContainerCleaned},
}

// Container is a short-lived, uniquely named, password-protected signing
// material store owned by exactly one run. Every container that reaches
// Created must reach Cleaned.
type Container struct {
	mu      sync.Mutex
	name    string
	path    string
	scopeID string
	history []ContainerState
}

// NewContainer returns a container in the Created state.
func NewContainer(name, path, scopeID string) *Container {
	return &Container{
		name:    name,
		path:    path,
		scopeID: scopeID,
		history: []ContainerState{ContainerCreated},
	}
}

func (c *Container) Name() string    { return c.name }
func (c *Container) Path() string    { return c.path }
func (c *Container) ScopeID() string { return c.scopeID }

// State returns the current state.
func (c *Container) State() ContainerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history[len(c.history)-1]
}

// History returns every state visited, in order.
func (c *Container) History() []ContainerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// Transition moves to next or returns ErrInvalidTransition.
func (c *Container) Transition(next ContainerState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.history[len(c.history)-1]
	if !slices.Contains(containerTransitions[cur], next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	c.history = append(c.history, next)
	return nil
}

// IsCleaned reports whether the container reached its terminal state.
func (c *Container) IsCleaned() bool {
	return c.State() == ContainerCleaned
}
