package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/storage"
)

// FrameTracker follows the frames produced during one call.
type FrameTracker interface {
	// Track registers fr and returns it.
	Track(fr *domain.Frame) *domain.Frame
	// Release drops every tracked frame except the given survivors. It is idempotent.
	Release(except ...*domain.Frame)
}

// TrackerObserver is notified of tracker activity.
type TrackerObserver interface {
	FrameTracked(operation string)
	FrameReleased(kept bool)
}

// CompositeTracker forwards to its children in order.
type CompositeTracker struct {
	children []FrameTracker
}

// NewCompositeTracker creates a tracker forwarding to children.
func NewCompositeTracker(children ...FrameTracker) *CompositeTracker {
	return &CompositeTracker{children: append([]FrameTracker(nil), children...)}
}

// Track passes fr through every child.
func (c *CompositeTracker) Track(fr *domain.Frame) *domain.Frame {
	for _, child := range c.children {
		fr = child.Track(fr)
	}
	return fr
}

// Release releases every child.
func (c *CompositeTracker) Release(except ...*domain.Frame) {
	for _, child := range c.children {
		child.Release(except...)
	}
}

// ConsistentKeyTracker keeps the identity of the input frame visible on every
// frame derived from it: each tracked frame records the input key as its
// origin, and anonymous frames get a key derived from it. The input and the
// other caller frames are read-only and pass through unstamped.
type ConsistentKeyTracker struct {
	origin   domain.Key
	readOnly map[*domain.Frame]struct{}
}

// NewConsistentKeyTracker creates a tracker for frames derived from input.
// readOnly lists further caller frames a stage may hand back unchanged.
func NewConsistentKeyTracker(input *domain.Frame, readOnly ...*domain.Frame) *ConsistentKeyTracker {
	t := &ConsistentKeyTracker{readOnly: make(map[*domain.Frame]struct{}, len(readOnly)+1)}
	if input != nil {
		t.origin = input.Key()
		if input.Origin() != "" {
			t.origin = input.Origin()
		}
		t.readOnly[input] = struct{}{}
	}
	for _, fr := range readOnly {
		if fr != nil {
			t.readOnly[fr] = struct{}{}
		}
	}
	return t
}

// Origin returns the key stamped on tracked frames.
func (t *ConsistentKeyTracker) Origin() domain.Key {
	return t.origin
}

// Track stamps fr unless it is a caller frame.
func (t *ConsistentKeyTracker) Track(fr *domain.Frame) *domain.Frame {
	if fr == nil {
		return nil
	}
	if _, ok := t.readOnly[fr]; ok {
		return fr
	}
	if fr.Origin() == "" && fr.Key() != t.origin {
		fr.SetOrigin(t.origin)
	}
	if fr.Key() == "" {
		fr.SetKey(t.NewKey("frame"))
	}
	return fr
}

// Release is a no-op; the tracker holds no frames.
func (t *ConsistentKeyTracker) Release(...*domain.Frame) {}

// NewKey derives a unique key for a frame produced by stage.
func (t *ConsistentKeyTracker) NewKey(stage string) domain.Key {
	return derivedKey(t.origin, stage)
}

func derivedKey(base domain.Key, stage string) domain.Key {
	if base == "" {
		base = "frame"
	}
	return domain.Key(fmt.Sprintf("%s_%s_%s", base, stage, uuid.NewString()[:8]))
}

// ScopeOptions configures a ScopeTracker.
type ScopeOptions struct {
	// Safe frames are never stored nor removed; they belong to the caller.
	Safe []*domain.Frame
	// Operation labels observer notifications.
	Operation string
	Observer  TrackerObserver
}

// ScopeTracker stores tracked frames in a frame store for the duration of a
// call and removes them on release.
type ScopeTracker struct {
	mu       sync.Mutex
	store    storage.FrameStore
	opts     ScopeOptions
	safe     map[*domain.Frame]struct{}
	safeKeys map[domain.Key]struct{}
	seen     map[*domain.Frame]struct{}
	tracked  []*domain.Frame
	released bool
	removed  int
	kept     int
}

// NewScopeTracker creates a tracker backed by store.
func NewScopeTracker(store storage.FrameStore, opts ScopeOptions) *ScopeTracker {
	t := &ScopeTracker{
		store:    store,
		opts:     opts,
		safe:     make(map[*domain.Frame]struct{}),
		safeKeys: make(map[domain.Key]struct{}),
		seen:     make(map[*domain.Frame]struct{}),
	}
	for _, fr := range opts.Safe {
		if fr == nil {
			continue
		}
		t.safe[fr] = struct{}{}
		if fr.Key() != "" {
			t.safeKeys[fr.Key()] = struct{}{}
		}
	}
	return t
}

// Track stores fr until release.
func (t *ScopeTracker) Track(fr *domain.Frame) *domain.Frame {
	if fr == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isSafe(fr) || t.released {
		return fr
	}
	if _, dup := t.seen[fr]; dup {
		return fr
	}
	t.seen[fr] = struct{}{}
	t.tracked = append(t.tracked, fr)
	if fr.Key() != "" {
		_ = t.store.Put(fr)
	}
	if t.opts.Observer != nil {
		t.opts.Observer.FrameTracked(t.opts.Operation)
	}
	return fr
}

// Release removes every tracked frame from the store except the survivors.
// Frames already removed by someone else are skipped.
func (t *ScopeTracker) Release(except ...*domain.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return
	}
	t.released = true

	keep := make(map[*domain.Frame]struct{}, len(except))
	keepKeys := make(map[domain.Key]struct{}, len(except))
	for _, fr := range except {
		if fr == nil {
			continue
		}
		keep[fr] = struct{}{}
		if fr.Key() != "" {
			keepKeys[fr.Key()] = struct{}{}
		}
	}

	for _, fr := range t.tracked {
		_, kept := keep[fr]
		if !kept && fr.Key() != "" {
			_, kept = keepKeys[fr.Key()]
		}
		if kept {
			t.kept++
		} else {
			if fr.Key() != "" {
				t.store.Remove(fr.Key())
			}
			t.removed++
		}
		if t.opts.Observer != nil {
			t.opts.Observer.FrameReleased(kept)
		}
	}
	t.tracked = nil
}

// Stats reports how many frames the release removed and kept.
func (t *ScopeTracker) Stats() (removed, kept int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removed, t.kept
}

func (t *ScopeTracker) isSafe(fr *domain.Frame) bool {
	if _, ok := t.safe[fr]; ok {
		return true
	}
	if fr.Key() == "" {
		return false
	}
	_, ok := t.safeKeys[fr.Key()]
	return ok
}
