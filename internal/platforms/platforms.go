// Package platforms tracks which messaging platforms the user has connected
// and which ones a tier entitles them to.
package platforms

import (
	"sort"
	"strings"
	"sync"
)

// Registry is the local projection of connected platforms.
type Registry struct {
	mu        sync.RWMutex
	connected map[string]struct{}
}

// NewRegistry creates a registry seeded with already-connected platforms.
func NewRegistry(connected ...string) *Registry {
	r := &Registry{connected: make(map[string]struct{})}
	for _, p := range connected {
		if p = normalize(p); p != "" {
			r.connected[p] = struct{}{}
		}
	}
	return r
}

func normalize(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// MarkConnected records that a platform has been connected.
func (r *Registry) MarkConnected(platform string) {
	platform = normalize(platform)
	if platform == "" {
		return
	}
	r.mu.Lock()
	r.connected[platform] = struct{}{}
	r.mu.Unlock()
}

// IsConnected reports whether the platform is already connected.
func (r *Registry) IsConnected(platform string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connected[normalize(platform)]
	return ok
}

// Connected returns the sorted list of connected platforms.
func (r *Registry) Connected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.connected))
	for p := range r.connected {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Diff returns the entitled platforms that are not yet connected, sorted.
// Pure set arithmetic; no network calls.
func (r *Registry) Diff(entitled []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []string
	seen := make(map[string]struct{})
	for _, p := range entitled {
		p = normalize(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, ok := r.connected[p]; !ok {
			pending = append(pending, p)
		}
	}
	sort.Strings(pending)
	return pending
}
