package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Notes          int    `json:"notes"`
	Categories     int    `json:"categories"`
	ActiveNoteID   string `json:"active_note_id,omitempty"`
	RepositoryType string `json:"repository_type"`
	Transactional  bool   `json:"transactional"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repoType := "unknown"
	if s.repo != nil {
		repoType = "repository"
		if comp, ok := s.repo.(introspection.Component); ok {
			repoType = comp.ComponentType()
		}
	}
	_, transactional := s.repo.(TransactionalRepository)

	return ServiceState{
		Notes:          len(s.notes),
		Categories:     len(s.categories),
		ActiveNoteID:   s.activeNoteID,
		RepositoryType: repoType,
		Transactional:  transactional,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
