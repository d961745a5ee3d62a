package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"

	"cinegate/internal/tmdb"
	"cinegate/pkg/metrics"
	"cinegate/pkg/models"
)

var (
	ErrNotFound = errors.New("content not found")

	// ErrSuperseded is returned when a newer browse request from the same
	// session started while this one was fetching.
	ErrSuperseded = errors.New("browse superseded by a newer request")
)

// Curated is the read side of the curated store.
type Curated interface {
	ListApproved(ctx context.Context, ctype models.ContentType) ([]models.ContentRecord, error)
	GetByID(ctx context.Context, id string) (*models.ContentRecord, error)
	ListGenres(ctx context.Context) ([]models.Genre, error)
}

// Remote is the metadata API surface the service needs.
type Remote interface {
	Popular(ctx context.Context, kind tmdb.Kind, page int) (tmdb.ResultPage, error)
	Discover(ctx context.Context, kind tmdb.Kind, genreID string, page int) (tmdb.ResultPage, error)
	Search(ctx context.Context, query string, page int) (tmdb.ResultPage, error)
	Details(ctx context.Context, kind tmdb.Kind, id int64) (*models.ContentRecord, error)
	Genres(ctx context.Context) ([]models.Genre, error)
}

type Query struct {
	Search   string `json:"q,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Type     string `json:"type,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type Service struct {
	curated Curated
	remote  Remote
	log     *logrus.Entry

	// remote pages fetched per listing endpoint
	remotePages  int
	fetchTimeout time.Duration

	flight   singleflight.Group
	sessions *sessions
}

func NewService(curated Curated, remote Remote, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		curated:      curated,
		remote:       remote,
		log:          log.WithField("component", "catalog"),
		remotePages:  2,
		fetchTimeout: 20 * time.Second,
		sessions:     newSessions(10000),
	}
}

type fetched struct {
	curated []models.ContentRecord
	remote  []models.ContentRecord
}

// Browse fetches both sources for q and returns the requested page. When
// session is non-empty and a newer Browse for the same session began before
// this one finished, ErrSuperseded is returned instead.
func (s *Service) Browse(ctx context.Context, session string, q Query) (Page, error) {
	gen := s.sessions.begin(session)

	genreID, genreName, externalID := s.resolveGenre(ctx, q.Genre)
	key := fetchKey(q, externalID)

	v, err, shared := s.flight.Do(key, func() (any, error) {
		// shared between callers, so it must not die with the first caller's request
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(fctx, q, externalID), nil
	})
	if err != nil {
		return Page{}, err
	}
	if shared {
		s.log.WithField("key", key).Debug("browse fetch shared")
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if !s.sessions.current(session, gen) {
		return Page{}, ErrSuperseded
	}

	set := v.(fetched)
	return Apply(set.curated, set.remote, Filter{
		Type:      q.Type,
		GenreID:   genreID,
		GenreName: genreName,
		Search:    q.Search,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}), nil
}

func fetchKey(q Query, externalGenre string) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(q.Search)),
		externalGenre,
		strings.ToLower(strings.TrimSpace(q.Type)),
	}, "\x1f")
}

// resolveGenre maps the selected genre to its name and TMDB id. A numeric
// selection is its own TMDB id.
func (s *Service) resolveGenre(ctx context.Context, sel string) (id, name, external string) {
	id = strings.TrimSpace(sel)
	if id == "" || strings.EqualFold(id, TypeAll) {
		return "", "", ""
	}
	if isNumeric(id) {
		external = id
	}
	curated, remote := s.sourceGenres(ctx)
	for _, g := range append(curated, remote...) {
		if g.ID == id || (g.ExternalID != "" && g.ExternalID == id) {
			name = g.Name
			if external == "" {
				external = g.ExternalID
			}
			break
		}
	}
	return id, name, external
}

func (s *Service) fetch(ctx context.Context, q Query, externalGenre string) fetched {
	var out fetched
	var wg conc.WaitGroup

	wg.Go(func() {
		recs, err := s.curated.ListApproved(ctx, curatedType(q.Type))
		if err != nil {
			s.degrade("curated", err)
			return
		}
		out.curated = recs
	})
	wg.Go(func() {
		out.remote = s.fetchRemote(ctx, q, externalGenre)
	})

	wg.Wait()
	return out
}

type remoteCall func(ctx context.Context) (tmdb.ResultPage, error)

func (s *Service) remoteCalls(q Query, externalGenre string) []remoteCall {
	var calls []remoteCall
	pages := s.remotePages

	if term := strings.TrimSpace(q.Search); term != "" {
		for p := 1; p <= pages; p++ {
			calls = append(calls, func(ctx context.Context) (tmdb.ResultPage, error) {
				return s.remote.Search(ctx, term, p)
			})
		}
		return calls
	}

	kinds := remoteKinds(q.Type)
	switch {
	case externalGenre != "":
		for _, kind := range kinds {
			for p := 1; p <= pages; p++ {
				calls = append(calls, func(ctx context.Context) (tmdb.ResultPage, error) {
					return s.remote.Discover(ctx, kind, externalGenre, p)
				})
			}
		}
	default:
		for _, kind := range kinds {
			for p := 1; p <= pages; p++ {
				calls = append(calls, func(ctx context.Context) (tmdb.ResultPage, error) {
					return s.remote.Popular(ctx, kind, p)
				})
			}
		}
	}

	if strings.EqualFold(strings.TrimSpace(q.Type), TypeAnimation) && externalGenre != AnimationGenreID {
		for _, kind := range kinds {
			calls = append(calls, func(ctx context.Context) (tmdb.ResultPage, error) {
				return s.remote.Discover(ctx, kind, AnimationGenreID, 1)
			})
		}
	}
	return calls
}

// fetchRemote runs the listing calls concurrently. Results keep call order so
// the merged list is stable for identical queries.
func (s *Service) fetchRemote(ctx context.Context, q Query, externalGenre string) []models.ContentRecord {
	if s.remote == nil {
		return nil
	}
	calls := s.remoteCalls(q, externalGenre)
	results := make([][]models.ContentRecord, len(calls))

	var wg conc.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			page, err := call(ctx)
			if err != nil {
				s.degrade("tmdb", err)
				return
			}
			results[i] = page.Items
		})
	}
	wg.Wait()

	var out []models.ContentRecord
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (s *Service) degrade(source string, err error) {
	if errors.Is(err, tmdb.ErrNotConfigured) {
		s.log.WithField("source", source).Debug("source not configured")
		return
	}
	metrics.GatewayFailures.WithLabelValues(source).Inc()
	s.log.WithError(err).WithField("source", source).Warn("source fetch failed, using empty set")
}

// Detail looks the id up in the curated store first, then on TMDB when the id
// is numeric. kind narrows the TMDB lookup to movie or tv.
func (s *Service) Detail(ctx context.Context, id, kind string) (*models.ContentRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	rec, err := s.curated.GetByID(ctx, id)
	if err != nil {
		s.degrade("curated", err)
	} else if rec != nil && rec.Status == models.StatusApproved {
		return rec, nil
	}

	if s.remote == nil || !isNumeric(id) {
		return nil, ErrNotFound
	}
	tmdbID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}

	for _, k := range detailKinds(kind) {
		rec, err := s.remote.Details(ctx, k, tmdbID)
		if errors.Is(err, tmdb.ErrNotFound) {
			continue
		}
		if err != nil {
			s.degrade("tmdb", err)
			return nil, ErrNotFound
		}
		return rec, nil
	}
	return nil, ErrNotFound
}

// Genres returns curated genres followed by TMDB genres whose names are not
// already present.
func (s *Service) Genres(ctx context.Context) []models.Genre {
	curated, remote := s.sourceGenres(ctx)

	seen := make(map[string]struct{}, len(curated)+len(remote))
	out := make([]models.Genre, 0, len(curated)+len(remote))
	for _, g := range append(curated, remote...) {
		k := strings.ToLower(strings.TrimSpace(g.Name))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, g)
	}
	return out
}

func (s *Service) sourceGenres(ctx context.Context) (curated, remote []models.Genre) {
	var wg conc.WaitGroup
	wg.Go(func() {
		g, err := s.curated.ListGenres(ctx)
		if err != nil {
			s.degrade("curated", err)
			return
		}
		curated = g
	})
	if s.remote != nil {
		wg.Go(func() {
			g, err := s.remote.Genres(ctx)
			if err != nil {
				s.degrade("tmdb", err)
				return
			}
			remote = g
		})
	}
	wg.Wait()
	return curated, remote
}

func curatedType(t string) models.ContentType {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case TypeMovie:
		return models.ContentMovie
	case TypeTV, "series":
		return models.ContentSeries
	default:
		return ""
	}
}

func remoteKinds(t string) []tmdb.Kind {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case TypeMovie:
		return []tmdb.Kind{tmdb.KindMovie}
	case TypeTV, "series":
		return []tmdb.Kind{tmdb.KindTV}
	default:
		return []tmdb.Kind{tmdb.KindMovie, tmdb.KindTV}
	}
}

func detailKinds(kind string) []tmdb.Kind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "movie":
		return []tmdb.Kind{tmdb.KindMovie}
	case "tv", "series":
		return []tmdb.Kind{tmdb.KindTV}
	default:
		return []tmdb.Kind{tmdb.KindMovie, tmdb.KindTV}
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sessions tracks the latest browse generation per session id.
type sessions struct {
	mu    sync.Mutex
	limit int
	gens  map[string]uint64
	seq   uint64
}

func newSessions(limit int) *sessions {
	return &sessions{limit: limit, gens: make(map[string]uint64)}
}

func (s *sessions) begin(id string) uint64 {
	if id == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gens[id]; !ok && len(s.gens) >= s.limit {
		clear(s.gens)
	}
	s.seq++
	s.gens[id] = s.seq
	return s.seq
}

// current reports whether gen is still the newest for id. Forgotten sessions
// count as current.
func (s *sessions) current(id string, gen uint64) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, ok := s.gens[id]
	return !ok || latest == gen
}
