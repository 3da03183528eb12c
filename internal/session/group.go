package session

import (
	"ArchiveExtractor/internal/domain"
)

// Group holds one manager per source.
type Group struct {
	managers map[domain.SourceID]*Manager
	order    []domain.SourceID
}

// NewGroup indexes managers by source; a later manager for the same source wins.
func NewGroup(managers ...*Manager) *Group {
	g := &Group{managers: map[domain.SourceID]*Manager{}}
	for _, m := range managers {
		if m == nil {
			continue
		}
		if _, exists := g.managers[m.Source()]; !exists {
			g.order = append(g.order, m.Source())
		}
		g.managers[m.Source()] = m
	}
	return g
}

// Get returns the manager of a source.
func (g *Group) Get(source domain.SourceID) (*Manager, bool) {
	m, ok := g.managers[source]
	return m, ok
}

// Managers lists managers in registration order.
func (g *Group) Managers() []*Manager {
	out := make([]*Manager, 0, len(g.order))
	for _, s := range g.order {
		out = append(out, g.managers[s])
	}
	return out
}

// Statuses reports every manager.
func (g *Group) Statuses() []Status {
	out := make([]Status, 0, len(g.order))
	for _, m := range g.Managers() {
		out = append(out, m.Status())
	}
	return out
}

// CleanupAll releases every manager's resources.
func (g *Group) CleanupAll() {
	for _, m := range g.Managers() {
		m.Cleanup()
	}
}
