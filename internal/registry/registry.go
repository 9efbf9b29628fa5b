package registry

import (
	"sync"

	"github.com/samber/lo"

	"horde-monitor/internal/horde"
)

// Snapshot is a point-in-time copy of the tracked ids.
type Snapshot struct {
	Image []string `json:"image"`
	Text  []string `json:"text"`
}

// Registry tracks the outstanding generation ids per type. Every successful
// poll replaces both sets; Cancel removes single ids in between.
type Registry struct {
	mu    sync.RWMutex
	image []string
	text  []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{image: []string{}, text: []string{}}
}

// ReplaceAll swaps in new id sets. Duplicates and empty ids are dropped;
// order of first appearance is kept.
func (r *Registry) ReplaceAll(imageIDs, textIDs []string) {
	image := lo.Uniq(lo.Compact(imageIDs))
	text := lo.Uniq(lo.Compact(textIDs))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.image, r.text = image, text
}

// Cancel removes id from the named set and reports whether it was present.
// The removal is local only and is not undone if a remote call later fails.
func (r *Registry) Cancel(id string, kind horde.GenerationType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case horde.GenerationImage:
		found := lo.Contains(r.image, id)
		r.image = lo.Without(r.image, id)
		return found
	case horde.GenerationText:
		found := lo.Contains(r.text, id)
		r.text = lo.Without(r.text, id)
		return found
	default:
		return false
	}
}

// Contains reports whether id is tracked under kind.
func (r *Registry) Contains(id string, kind horde.GenerationType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch kind {
	case horde.GenerationImage:
		return lo.Contains(r.image, id)
	case horde.GenerationText:
		return lo.Contains(r.text, id)
	default:
		return false
	}
}

// Snapshot copies both sets.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Snapshot{
		Image: append([]string{}, r.image...),
		Text:  append([]string{}, r.text...),
	}
}

// Clear empties both sets.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image, r.text = []string{}, []string{}
}
