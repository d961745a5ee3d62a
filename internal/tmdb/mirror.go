package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Mirror is an offline copy of the TMDB lists the gateway reads. It is written
// by export-mirror and served by mirror-server so the api-server can run
// against TMDB_BASE_URL without network access or an API key quota.
type Mirror struct {
	FetchedAt time.Time             `json:"fetched_at"`
	Language  string                `json:"language,omitempty"`
	Genres    map[Kind][]GenreEntry `json:"genres"`
	Titles    map[Kind][]Result     `json:"titles"`
}

var snapshotLists = []string{"popular", "top_rated"}

// Snapshot copies the genre lists plus the popular and top-rated lists of
// both kinds, up to pages pages each. Titles are deduped per kind and tagged
// with their media_type so they survive search/multi filtering.
func (c *Client) Snapshot(ctx context.Context, pages int) (*Mirror, error) {
	if pages < 1 {
		pages = 1
	}
	m := &Mirror{
		FetchedAt: time.Now().UTC(),
		Language:  c.language,
		Genres:    make(map[Kind][]GenreEntry, 2),
		Titles:    make(map[Kind][]Result, 2),
	}

	for _, kind := range []Kind{KindMovie, KindTV} {
		var gl genreListResponse
		if err := c.get(ctx, nil, &gl, "genre", string(kind), "list"); err != nil {
			return nil, fmt.Errorf("snapshot %s genres: %w", kind, err)
		}
		m.Genres[kind] = gl.Genres

		seen := make(map[int64]bool)
		for _, list := range snapshotLists {
			for page := 1; page <= pages; page++ {
				var lr listResponse
				if err := c.get(ctx, pageParams(page), &lr, string(kind), list); err != nil {
					return nil, fmt.Errorf("snapshot %s/%s page %d: %w", kind, list, page, err)
				}
				for _, r := range lr.Results {
					if r.ID <= 0 || seen[r.ID] {
						continue
					}
					seen[r.ID] = true
					r.MediaType = string(kind)
					m.Titles[kind] = append(m.Titles[kind], r)
				}
				if page >= lr.TotalPages {
					break
				}
			}
		}
		c.log.WithField("kind", kind).WithField("titles", len(m.Titles[kind])).Info("snapshot fetched")
	}
	return m, nil
}

// LoadMirror reads a mirror file from fsys.
func LoadMirror(fsys afero.Fs, path string) (*Mirror, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	var m Mirror
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode mirror %s: %w", path, err)
	}
	if m.Genres == nil {
		m.Genres = map[Kind][]GenreEntry{}
	}
	if m.Titles == nil {
		m.Titles = map[Kind][]Result{}
	}
	return &m, nil
}

// Save writes the mirror through a temp file in the same directory and
// renames it into place.
func (m *Mirror) Save(fsys afero.Fs, path string) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := afero.TempFile(fsys, dir, ".mirror-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		_ = fsys.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmp.Name())
		return err
	}
	return fsys.Rename(tmp.Name(), path)
}

// Count is the number of titles across both kinds.
func (m *Mirror) Count() int {
	n := 0
	for _, items := range m.Titles {
		n += len(items)
	}
	return n
}
