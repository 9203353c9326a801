// Package permission decides whether a caller may use the cooperate request surface.
package permission

import "sync"

// Checker verifies a caller token. Both checks are synchronous and cheap.
type Checker interface {
	// IsSystemCalling reports whether the token belongs to a system component.
	IsSystemCalling(tokenID uint32) bool
	// CheckCooperatePermission reports whether the token holds the cooperate manager grant.
	CheckCooperatePermission(tokenID uint32) bool
}

// Static is an allow-list Checker keyed by token id (the caller uid on D-Bus).
type Static struct {
	mu        sync.RWMutex
	system    map[uint32]bool
	cooperate map[uint32]bool
}

// NewStatic creates a checker. Granted tokens must also be listed as system tokens
// to pass both checks.
func NewStatic(system, granted []uint32) *Static {
	s := &Static{}
	s.Set(system, granted)
	return s
}

// Set replaces both lists.
func (s *Static) Set(system, granted []uint32) {
	sys := make(map[uint32]bool, len(system))
	for _, id := range system {
		sys[id] = true
	}
	coop := make(map[uint32]bool, len(granted))
	for _, id := range granted {
		coop[id] = true
	}
	s.mu.Lock()
	s.system, s.cooperate = sys, coop
	s.mu.Unlock()
}

func (s *Static) IsSystemCalling(tokenID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.system[tokenID]
}

func (s *Static) CheckCooperatePermission(tokenID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cooperate[tokenID]
}

// AllowAll passes every check. Used when no allow-list is configured in development.
type AllowAll struct{}

func (AllowAll) IsSystemCalling(uint32) bool          { return true }
func (AllowAll) CheckCooperatePermission(uint32) bool { return true }
