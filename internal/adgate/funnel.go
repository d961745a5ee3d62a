package adgate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cinegate/pkg/metrics"
	"cinegate/pkg/models"
)

type Kind string

const (
	// KindMulti opens the ad on the first two clicks and continues on the third.
	KindMulti Kind = "multi"
	// KindSingle opens the ad and continues on the first click; later clicks
	// in the window only continue.
	KindSingle Kind = "single"
)

// DefaultWindow is how long a click sequence stays alive without a click.
const DefaultWindow = 60 * time.Second

// Key is the store key for one visitor and content id.
func Key(kind Kind, visitor, contentID string) string {
	return "adgate:" + string(kind) + ":" + visitor + ":" + contentID
}

type Outcome struct {
	Count     int    `json:"count"`
	AdOpened  bool   `json:"ad_opened"`
	Continued bool   `json:"continued"`
	Bypassed  bool   `json:"bypassed,omitempty"`
	AdURL     string `json:"ad_url,omitempty"`
}

type Funnel struct {
	kind      Kind
	threshold int
	window    time.Duration
	adURL     string

	store    Store
	fallback *MemoryStore
	toggle   *Toggle
	log      *logrus.Entry
	locks    keyedMutex
	now      func() time.Time

	// OnAd runs after an ad is opened, outside any lock.
	OnAd func(visitor, contentID, adURL string)
}

func newFunnel(kind Kind, threshold int, store Store, toggle *Toggle, adURL string, log *logrus.Entry) *Funnel {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Funnel{
		kind:      kind,
		threshold: threshold,
		window:    DefaultWindow,
		adURL:     adURL,
		store:     store,
		fallback:  NewMemoryStore(),
		toggle:    toggle,
		log:       log.WithFields(logrus.Fields{"component": "adgate", "funnel": string(kind)}),
		locks:     keyedMutex{locks: make(map[string]*refLock)},
		now:       time.Now,
	}
}

// NewMultiClick builds the download-step funnel (two ads, then continue).
func NewMultiClick(store Store, toggle *Toggle, adURL string, log *logrus.Entry) *Funnel {
	return newFunnel(KindMulti, 2, store, toggle, adURL, log)
}

// NewSingleClick builds the watch-step funnel (ad plus continue once).
func NewSingleClick(store Store, toggle *Toggle, adURL string, log *logrus.Entry) *Funnel {
	return newFunnel(KindSingle, 1, store, toggle, adURL, log)
}

func (f *Funnel) Kind() Kind { return f.kind }

// Click records one click and decides between the ad and next. next is
// called at most once, after the state write.
func (f *Funnel) Click(ctx context.Context, visitor, contentID string, next func()) Outcome {
	if f.toggle != nil && !f.toggle.Enabled() {
		metrics.FunnelClicks.WithLabelValues(string(f.kind), "bypass").Inc()
		if next != nil {
			next()
		}
		return Outcome{Continued: true, Bypassed: true}
	}

	key := Key(f.kind, visitor, contentID)
	count := f.advance(ctx, key)

	out := Outcome{Count: count}
	if count <= f.threshold {
		out.AdOpened = true
		out.AdURL = f.adURL
		// single-click continues alongside its ad
		out.Continued = f.kind == KindSingle
	} else {
		out.Continued = true
	}

	switch {
	case out.AdOpened && out.Continued:
		metrics.FunnelClicks.WithLabelValues(string(f.kind), "ad_continue").Inc()
	case out.AdOpened:
		metrics.FunnelClicks.WithLabelValues(string(f.kind), "ad").Inc()
	default:
		metrics.FunnelClicks.WithLabelValues(string(f.kind), "continue").Inc()
	}

	if out.AdOpened && f.OnAd != nil {
		f.OnAd(visitor, contentID, f.adURL)
	}
	if out.Continued && next != nil {
		next()
	}
	return out
}

// advance runs the read-reset-increment-write cycle under the key lock and
// returns the new count.
func (f *Funnel) advance(ctx context.Context, key string) int {
	unlock := f.locks.lock(key)
	defer unlock()

	now := f.now()
	st := f.load(ctx, key)
	if st.Expired(now, f.window) {
		f.clear(ctx, key)
		st = models.ClickState{}
	}
	st.Count++
	st.LastUpdatedAt = now.UnixMilli()
	f.save(ctx, key, st)
	return st.Count
}

func (f *Funnel) load(ctx context.Context, key string) models.ClickState {
	raw, err := f.store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		f.log.WithError(err).Debug("click state read failed, using memory")
		raw, err = f.fallback.Get(ctx, key)
	}
	if err != nil {
		return models.ClickState{}
	}
	var st models.ClickState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		f.log.WithError(err).WithField("key", key).Debug("discarding unreadable click state")
		return models.ClickState{}
	}
	return st
}

func (f *Funnel) save(ctx context.Context, key string, st models.ClickState) {
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	ttl := 2 * f.window
	if err := f.store.Set(ctx, key, string(raw), ttl); err != nil {
		f.log.WithError(err).Debug("click state write failed, using memory")
		_ = f.fallback.Set(ctx, key, string(raw), ttl)
	}
}

func (f *Funnel) clear(ctx context.Context, key string) {
	if err := f.store.Del(ctx, key); err != nil {
		f.log.WithError(err).Debug("click state delete failed")
	}
	_ = f.fallback.Del(ctx, key)
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// validVisitor rejects ids that would break the key layout.
func validVisitor(v string) bool {
	return v != "" && len(v) <= 64 && !strings.ContainsAny(v, ": \t\n")
}
