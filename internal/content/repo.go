// Package content is the curated content store: admin-managed titles with
// their genres, cast and streaming links, kept in SQLite.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cinegate/pkg/models"
)

var ErrNotFound = errors.New("content not found")

type Repo struct {
	DB *sql.DB

	// MediaBaseURL resolves poster paths stored without a scheme.
	MediaBaseURL string
}

type ListQuery struct {
	Status string             // pending | approved | "" for both
	Type   models.ContentType // "" for both
	Q      string             // keyword search in title
	Limit  int                // 0 means no limit
	Offset int
}

type CastInput struct {
	Name       string `json:"name"`
	Character  string `json:"character,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

type LinkInput struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
}

// Input is the writable shape of a curated title.
type Input struct {
	Title       string      `json:"title"`
	ContentType string      `json:"content_type"`
	Overview    string      `json:"overview,omitempty"`
	ReleaseDate string      `json:"release_date,omitempty"`
	ReleaseYear int         `json:"release_year,omitempty"`
	PosterURL   string      `json:"poster_url,omitempty"`
	Rating      *float64    `json:"rating,omitempty"`
	TMDBID      int64       `json:"tmdb_id,omitempty"`
	Status      string      `json:"status,omitempty"`
	Genres      []string    `json:"genres,omitempty"` // genre ids or names
	Cast        []CastInput `json:"cast,omitempty"`
	Links       []LinkInput `json:"streaming_links,omitempty"`
}

// Validate normalizes the input in place.
func (in *Input) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return errors.New("title required")
	}
	ct, ok := models.ParseContentType(in.ContentType)
	if !ok {
		return errors.New("content_type must be movie or series")
	}
	in.ContentType = string(ct)

	switch strings.ToLower(strings.TrimSpace(in.Status)) {
	case "", models.StatusPending:
		in.Status = models.StatusPending
	case models.StatusApproved:
		in.Status = models.StatusApproved
	default:
		return errors.New("status must be pending or approved")
	}

	if in.Rating != nil && (*in.Rating < 0 || *in.Rating > 10) {
		return errors.New("rating must be between 0 and 10")
	}
	for _, l := range in.Links {
		if strings.TrimSpace(l.URL) == "" || strings.TrimSpace(l.Platform) == "" {
			return errors.New("streaming links need url and platform")
		}
	}
	return nil
}

func NewRepo(db *sql.DB, mediaBaseURL string) *Repo {
	return &Repo{DB: db, MediaBaseURL: strings.TrimRight(mediaBaseURL, "/")}
}

const contentColumns = `id, title, content_type, overview, release_date, release_year, poster_url, rating, tmdb_id, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repo) scanContent(row rowScanner) (models.ContentRecord, error) {
	var (
		m           models.ContentRecord
		ctype       string
		overview    sql.NullString
		releaseDate sql.NullString
		releaseYear sql.NullInt64
		poster      sql.NullString
		rating      sql.NullFloat64
		tmdbID      sql.NullInt64
	)
	if err := row.Scan(
		&m.ID, &m.Title, &ctype, &overview, &releaseDate, &releaseYear,
		&poster, &rating, &tmdbID, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return m, err
	}

	m.ContentType = models.ContentType(ctype)
	m.Overview = overview.String
	m.ReleaseDate = releaseDate.String
	if releaseYear.Valid {
		m.ReleaseYear = int(releaseYear.Int64)
	}
	m.PosterPath = poster.String
	m.PosterURL = r.resolvePoster(poster.String)
	if rating.Valid {
		v := rating.Float64
		m.Rating = &v
	}
	if tmdbID.Valid {
		m.TMDBID = tmdbID.Int64
	}
	m.Source = models.SourceCurated
	m.Genres = []models.Genre{}
	return m, nil
}

// resolvePoster turns a stored relative path into a displayable URL.
func (r *Repo) resolvePoster(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || r.MediaBaseURL == "" {
		return p
	}
	return r.MediaBaseURL + "/" + strings.TrimPrefix(p, "/")
}

func (r *Repo) GetByID(ctx context.Context, id string) (*models.ContentRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content WHERE id = ?`, id)
	m, err := r.scanContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getByID: %w", err)
	}

	out := []models.ContentRecord{m}
	if err := r.attach(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// ListApproved returns every approved title, newest first, with relations.
func (r *Repo) ListApproved(ctx context.Context, ctype models.ContentType) ([]models.ContentRecord, error) {
	return r.List(ctx, ListQuery{Status: models.StatusApproved, Type: ctype})
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.ContentRecord, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.ContentRecord, 0)
	for rows.Next() {
		m, err := r.scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	if err := r.attach(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// buildListSQL builds either COUNT(*) or the SELECT list.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	sqlStr := `SELECT ` + contentColumns + ` FROM content`
	if countOnly {
		sqlStr = `SELECT COUNT(*) FROM content`
	}

	var where []string
	var args []any

	if s := strings.TrimSpace(q.Status); s != "" {
		where = append(where, "status = ?")
		args = append(args, strings.ToLower(s))
	}
	if q.Type != "" {
		where = append(where, "content_type = ?")
		args = append(args, string(q.Type))
	}
	if kw := strings.TrimSpace(q.Q); kw != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}

	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	if countOnly {
		return sqlStr, args
	}

	sqlStr += " ORDER BY created_at DESC, id ASC"
	if q.Limit > 0 {
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		sqlStr += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, offset)
	}
	return sqlStr, args
}

// attachBatch bounds the IN lists in attach below SQLite's bound-parameter limit.
const attachBatch = 500

// attach loads genres, cast and streaming links for the given records.
func (r *Repo) attach(ctx context.Context, items []models.ContentRecord) error {
	if len(items) == 0 {
		return nil
	}
	index := make(map[string]int, len(items))
	for i := range items {
		index[items[i].ID] = i
	}
	for lo := 0; lo < len(items); lo += attachBatch {
		hi := min(lo+attachBatch, len(items))
		ids := make([]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			ids = append(ids, items[i].ID)
		}
		if err := r.attachIDs(ctx, items, index, ids); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) attachIDs(ctx context.Context, items []models.ContentRecord, index map[string]int, ids []any) error {
	in := placeholders(len(ids))

	rows, err := r.DB.QueryContext(ctx, `
		SELECT cg.content_id, g.id, g.name, g.tmdb_id
		FROM content_genres cg
		JOIN genres g ON g.id = cg.genre_id
		WHERE cg.content_id IN (`+in+`)
		ORDER BY g.name ASC
	`, ids...)
	if err != nil {
		return fmt.Errorf("load genres: %w", err)
	}
	for rows.Next() {
		var contentID string
		var g models.Genre
		var tmdbID sql.NullInt64
		if err := rows.Scan(&contentID, &g.ID, &g.Name, &tmdbID); err != nil {
			rows.Close()
			return fmt.Errorf("scan genre: %w", err)
		}
		if tmdbID.Valid {
			g.ExternalID = strconv.FormatInt(tmdbID.Int64, 10)
		}
		i := index[contentID]
		items[i].Genres = append(items[i].Genres, g)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("load genres: %w", err)
	}

	rows, err = r.DB.QueryContext(ctx, `
		SELECT cc.content_id, m.id, m.name, cc.character, m.profile_url
		FROM content_cast cc
		JOIN cast_members m ON m.id = cc.cast_id
		WHERE cc.content_id IN (`+in+`)
		ORDER BY cc.position ASC
	`, ids...)
	if err != nil {
		return fmt.Errorf("load cast: %w", err)
	}
	for rows.Next() {
		var contentID string
		var m models.CastMember
		var character, profile sql.NullString
		if err := rows.Scan(&contentID, &m.ID, &m.Name, &character, &profile); err != nil {
			rows.Close()
			return fmt.Errorf("scan cast: %w", err)
		}
		m.Character = character.String
		m.ProfileURL = profile.String
		i := index[contentID]
		items[i].Cast = append(items[i].Cast, m)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("load cast: %w", err)
	}

	rows, err = r.DB.QueryContext(ctx, `
		SELECT content_id, id, url, platform
		FROM streaming_links
		WHERE content_id IN (`+in+`)
		ORDER BY position ASC, id ASC
	`, ids...)
	if err != nil {
		return fmt.Errorf("load streaming links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var contentID string
		var l models.StreamingLink
		if err := rows.Scan(&contentID, &l.ID, &l.URL, &l.Platform); err != nil {
			return fmt.Errorf("scan streaming link: %w", err)
		}
		i := index[contentID]
		items[i].StreamingLinks = append(items[i].StreamingLinks, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load streaming links: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (r *Repo) Create(ctx context.Context, in Input) (*models.ContentRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO content (`+contentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.Title, in.ContentType, nullString(in.Overview), nullString(in.ReleaseDate),
			nullInt(int64(in.ReleaseYear)), nullString(in.PosterURL), nullFloat(in.Rating),
			nullInt(in.TMDBID), in.Status, now, now); err != nil {
			return fmt.Errorf("insert content: %w", err)
		}
		return writeRelations(ctx, tx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update replaces the title's fields and relations.
func (r *Repo) Update(ctx context.Context, id string, in Input) (*models.ContentRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE content
			SET title = ?, content_type = ?, overview = ?, release_date = ?, release_year = ?,
			    poster_url = ?, rating = ?, tmdb_id = ?, status = ?, updated_at = ?
			WHERE id = ?
		`, in.Title, in.ContentType, nullString(in.Overview), nullString(in.ReleaseDate),
			nullInt(int64(in.ReleaseYear)), nullString(in.PosterURL), nullFloat(in.Rating),
			nullInt(in.TMDBID), in.Status, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("update content: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		for _, table := range []string{"content_genres", "content_cast", "streaming_links"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE content_id = ?`, id); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return writeRelations(ctx, tx, id, in)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *Repo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete content: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) SetStatus(ctx context.Context, id, status string) error {
	if status != models.StatusApproved && status != models.StatusPending {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE content SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceCast swaps the title's cast list, creating cast members by name.
func (r *Repo) ReplaceCast(ctx context.Context, id string, cast []CastInput) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureContent(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_cast WHERE content_id = ?`, id); err != nil {
			return fmt.Errorf("clear cast: %w", err)
		}
		return writeCast(ctx, tx, id, cast)
	})
}

func (r *Repo) AddLink(ctx context.Context, contentID string, in LinkInput) (*models.StreamingLink, error) {
	in.URL = strings.TrimSpace(in.URL)
	in.Platform = strings.TrimSpace(in.Platform)
	if in.URL == "" || in.Platform == "" {
		return nil, errors.New("url and platform required")
	}

	link := models.StreamingLink{ID: uuid.NewString(), URL: in.URL, Platform: in.Platform}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureContent(ctx, tx, contentID); err != nil {
			return err
		}
		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position) + 1, 0) FROM streaming_links WHERE content_id = ?
		`, contentID).Scan(&next); err != nil {
			return fmt.Errorf("next link position: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO streaming_links (id, content_id, url, platform, position) VALUES (?, ?, ?, ?, ?)
		`, link.ID, contentID, link.URL, link.Platform, next); err != nil {
			return fmt.Errorf("insert streaming link: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *Repo) DeleteLink(ctx context.Context, linkID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM streaming_links WHERE id = ?`, linkID)
	if err != nil {
		return false, fmt.Errorf("delete streaming link: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) ListGenres(ctx context.Context) ([]models.Genre, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, tmdb_id FROM genres ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}
	defer rows.Close()

	out := make([]models.Genre, 0)
	for rows.Next() {
		var g models.Genre
		var tmdbID sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Name, &tmdbID); err != nil {
			return nil, fmt.Errorf("scan genre: %w", err)
		}
		if tmdbID.Valid {
			g.ExternalID = strconv.FormatInt(tmdbID.Int64, 10)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertGenre creates a genre by name or updates its TMDB mapping.
func (r *Repo) UpsertGenre(ctx context.Context, name string, tmdbID int64) (*models.Genre, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("genre name required")
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO genres (id, name, tmdb_id) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET tmdb_id = COALESCE(excluded.tmdb_id, genres.tmdb_id)
	`, uuid.NewString(), name, nullInt(tmdbID)); err != nil {
		return nil, fmt.Errorf("upsert genre: %w", err)
	}

	var g models.Genre
	var ext sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, tmdb_id FROM genres WHERE name = ?
	`, name).Scan(&g.ID, &g.Name, &ext); err != nil {
		return nil, fmt.Errorf("read genre: %w", err)
	}
	if ext.Valid {
		g.ExternalID = strconv.FormatInt(ext.Int64, 10)
	}
	return &g, nil
}

func (r *Repo) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func ensureContent(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM content WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup content: %w", err)
	}
	return nil
}

func writeRelations(ctx context.Context, tx *sql.Tx, id string, in Input) error {
	for _, ref := range in.Genres {
		gid, err := resolveGenre(ctx, tx, ref)
		if err != nil {
			return err
		}
		if gid == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO content_genres (content_id, genre_id) VALUES (?, ?)
		`, id, gid); err != nil {
			return fmt.Errorf("link genre: %w", err)
		}
	}

	if err := writeCast(ctx, tx, id, in.Cast); err != nil {
		return err
	}

	for pos, l := range in.Links {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO streaming_links (id, content_id, url, platform, position) VALUES (?, ?, ?, ?, ?)
		`, uuid.NewString(), id, strings.TrimSpace(l.URL), strings.TrimSpace(l.Platform), pos); err != nil {
			return fmt.Errorf("insert streaming link: %w", err)
		}
	}
	return nil
}

// resolveGenre finds a genre by id or case-insensitive name, creating it by name when missing.
func resolveGenre(ctx context.Context, tx *sql.Tx, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM genres WHERE id = ? OR name = ?`, ref, ref).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup genre: %w", err)
	}
	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO genres (id, name) VALUES (?, ?)`, id, ref); err != nil {
		return "", fmt.Errorf("create genre: %w", err)
	}
	return id, nil
}

func writeCast(ctx context.Context, tx *sql.Tx, id string, cast []CastInput) error {
	for pos, c := range cast {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cast_members (id, name, profile_url) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET profile_url = COALESCE(excluded.profile_url, cast_members.profile_url)
		`, uuid.NewString(), name, nullString(c.ProfileURL)); err != nil {
			return fmt.Errorf("upsert cast member: %w", err)
		}
		var castID string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM cast_members WHERE name = ?`, name).Scan(&castID); err != nil {
			return fmt.Errorf("read cast member: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO content_cast (content_id, cast_id, character, position) VALUES (?, ?, ?, ?)
		`, id, castID, nullString(c.Character), pos); err != nil {
			return fmt.Errorf("link cast member: %w", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
