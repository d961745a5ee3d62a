package adgate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"cinegate/pkg/metrics"
)

const ToggleKey = "adgate:ads_enabled"

// Toggle is the site-wide "ads enabled" cell. Ads start enabled until Load
// reads a stored value.
type Toggle struct {
	store Store
	log   *logrus.Entry

	// notifyMu orders change delivery so subscribers see changes in the
	// order they were stored.
	notifyMu sync.Mutex

	mu      sync.RWMutex
	enabled bool
	subs    map[int]func(bool)
	nextSub int
}

func NewToggle(store Store, log *logrus.Entry) *Toggle {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	metrics.AdsEnabled.Set(1)
	return &Toggle{
		store:   store,
		log:     log.WithField("component", "ads_toggle"),
		enabled: true,
		subs:    make(map[int]func(bool)),
	}
}

// Load reads the persisted value. A missing key keeps the current value.
func (t *Toggle) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	raw, err := t.store.Get(ctx, ToggleKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load ads toggle: %w", err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("parse ads toggle %q: %w", raw, err)
	}
	t.apply(v)
	return nil
}

func (t *Toggle) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Set persists v and updates the cell. The in-memory value changes even when
// the store write fails; that error is returned for the caller to report.
func (t *Toggle) Set(ctx context.Context, v bool) error {
	var err error
	if t.store != nil {
		if err = t.store.Set(ctx, ToggleKey, strconv.FormatBool(v), 0); err != nil {
			err = fmt.Errorf("persist ads toggle: %w", err)
			t.log.WithError(err).Warn("ads toggle not persisted")
		}
	}
	t.apply(v)
	return err
}

// apply stores v and notifies subscribers when the value changed.
func (t *Toggle) apply(v bool) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if t.enabled == v {
		t.mu.Unlock()
		return
	}
	t.enabled = v
	subs := make([]func(bool), 0, len(t.subs))
	for i := 0; i < t.nextSub; i++ {
		if fn, ok := t.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	if v {
		metrics.AdsEnabled.Set(1)
	} else {
		metrics.AdsEnabled.Set(0)
	}
	t.log.WithField("enabled", v).Info("ads toggle changed")
	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe registers fn for change notifications and returns a cancel func.
// fn runs on the goroutine that changed the value and must not call Set.
func (t *Toggle) Subscribe(fn func(bool)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}
