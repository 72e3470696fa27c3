package conversation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"parley/log"
)

// Provider owns the authoritative item list.
type Provider interface {
	Items() []Item
	DeleteItem(ctx context.Context, id string) error
}

// Player receives streamed assistant audio keyed by item id.
type Player interface {
	AddSamples(samples []int16, trackID string)
}

// Decoder turns a complete utterance into a playable file and returns its URL.
type Decoder interface {
	Decode(ctx context.Context, samples []int16, sourceRate, targetRate int) (string, error)
}

type Config struct {
	Provider   Provider
	Player     Player
	Decoder    Decoder
	SampleRate int

	// OnPublish receives every new projection. It runs while the reconciler
	// is locked and must not call back into it.
	OnPublish func(items []Item)
	// OnComplete runs once per item id the first time it is seen completed.
	OnComplete func(item Item)
}

// Reconciler keeps a read-only projection of the provider's item list. The
// projection is rebuilt from scratch after every update, never patched.
type Reconciler struct {
	cfg Config

	mu        sync.Mutex
	items     []Item
	files     map[string]File
	failed    map[string]error
	completed map[string]bool

	decodes atomic.Int64
}

func New(cfg Config) *Reconciler {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	r := &Reconciler{cfg: cfg}
	r.resetLocked()
	return r
}

// OnUpdate handles one incremental update for item and returns the new
// projection. Updates are processed one at a time.
func (r *Reconciler) OnUpdate(ctx context.Context, item Item, delta *Delta) []Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	if delta != nil && len(delta.Audio) > 0 && r.cfg.Player != nil {
		r.cfg.Player.AddSamples(delta.Audio, item.ID)
	}

	if item.Status == StatusCompleted && len(item.Formatted.Audio) > 0 {
		r.decodeLocked(ctx, item)
	}

	return r.publishLocked()
}

func (r *Reconciler) decodeLocked(ctx context.Context, item Item) {
	if item.Formatted.File != nil || r.cfg.Decoder == nil {
		return
	}
	if _, ok := r.files[item.ID]; ok {
		return
	}
	if _, ok := r.failed[item.ID]; ok {
		return
	}

	r.decodes.Add(1)
	url, err := r.cfg.Decoder.Decode(ctx, item.Formatted.Audio, r.cfg.SampleRate, r.cfg.SampleRate)
	if err != nil {
		r.failed[item.ID] = err
		log.DecodeFailed(item.ID, err)
		return
	}
	r.files[item.ID] = File{URL: url}
}

// Refresh rebuilds the projection from the provider without an update.
func (r *Reconciler) Refresh() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publishLocked()
}

func (r *Reconciler) publishLocked() []Item {
	var src []Item
	if r.cfg.Provider != nil {
		src = r.cfg.Provider.Items()
	}
	next := make([]Item, len(src))
	for i, it := range src {
		it = it.Clone()
		if it.Formatted.File == nil {
			if f, ok := r.files[it.ID]; ok {
				it.Formatted.File = &f
			}
		}
		next[i] = it

		if it.Status == StatusCompleted && !r.completed[it.ID] {
			r.completed[it.ID] = true
			if r.cfg.OnComplete != nil {
				r.cfg.OnComplete(it)
			}
		}
	}
	r.items = next

	if r.cfg.OnPublish != nil {
		r.cfg.OnPublish(slices.Clone(next))
	}
	return slices.Clone(next)
}

// Items returns the current projection.
func (r *Reconciler) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

// DeleteItem asks the provider to delete id. The projection catches up on
// the next update or Refresh.
func (r *Reconciler) DeleteItem(ctx context.Context, id string) error {
	if r.cfg.Provider == nil {
		return fmt.Errorf("delete %s: no item provider", id)
	}
	if err := r.cfg.Provider.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Reset empties the projection and forgets decoded files.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
}

func (r *Reconciler) resetLocked() {
	r.items = nil
	r.files = make(map[string]File)
	r.failed = make(map[string]error)
	r.completed = make(map[string]bool)
}

// Decodes reports how many decode calls were issued.
func (r *Reconciler) Decodes() int64 { return r.decodes.Load() }

// DecodeError returns the recorded decode failure for id, if any.
func (r *Reconciler) DecodeError(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[id]
}
