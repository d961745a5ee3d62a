package content

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cinegate/pkg/models"
)

// CSVHeader is the column layout written by ExportCSV and read by ImportCSV.
// Genres are "|"-separated names; links are "|"-separated platform=url pairs.
var CSVHeader = []string{
	"id", "title", "content_type", "status", "overview", "release_date", "release_year",
	"rating", "tmdb_id", "poster_url", "genres", "links",
}

type ImportResult struct {
	Created int
	Updated int
	Skipped int
}

// ImportCSV creates a title for every row, or updates it when the row's id
// already exists. Rows without a title are skipped. The file carries no cast,
// so updates keep the stored cast.
func ImportCSV(ctx context.Context, repo *Repo, r io.Reader) (ImportResult, error) {
	var res ImportResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		in, err := inputFromRow(header, row)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if in.Title == "" {
			res.Skipped++
			continue
		}

		id := valueAt(header, row, "id")
		if id != "" {
			existing, err := repo.GetByID(ctx, id)
			if err != nil {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			if existing != nil {
				for _, c := range existing.Cast {
					in.Cast = append(in.Cast, CastInput{Name: c.Name, Character: c.Character, ProfileURL: c.ProfileURL})
				}
				if _, err := repo.Update(ctx, id, in); err != nil {
					return res, fmt.Errorf("line %d: %w", line, err)
				}
				res.Updated++
				continue
			}
		}

		if _, err := repo.Create(ctx, in); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		res.Created++
	}
	return res, nil
}

func inputFromRow(header map[string]int, row []string) (Input, error) {
	in := Input{
		Title:       valueAt(header, row, "title"),
		ContentType: valueAt(header, row, "content_type"),
		Status:      valueAt(header, row, "status"),
		Overview:    valueAt(header, row, "overview"),
		ReleaseDate: valueAt(header, row, "release_date"),
		PosterURL:   valueAt(header, row, "poster_url"),
	}

	if v := valueAt(header, row, "release_year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return in, fmt.Errorf("parse release_year: %w", err)
		}
		in.ReleaseYear = n
	}
	if v := valueAt(header, row, "rating"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, fmt.Errorf("parse rating: %w", err)
		}
		in.Rating = &f
	}
	if v := valueAt(header, row, "tmdb_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return in, fmt.Errorf("parse tmdb_id: %w", err)
		}
		in.TMDBID = n
	}

	for _, g := range strings.Split(valueAt(header, row, "genres"), "|") {
		if g = strings.TrimSpace(g); g != "" {
			in.Genres = append(in.Genres, g)
		}
	}
	for _, l := range strings.Split(valueAt(header, row, "links"), "|") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		platform, url, ok := strings.Cut(l, "=")
		if !ok {
			return in, fmt.Errorf("link %q: want platform=url", l)
		}
		in.Links = append(in.Links, LinkInput{Platform: strings.TrimSpace(platform), URL: strings.TrimSpace(url)})
	}
	return in, nil
}

// ExportCSV writes every curated title, pending ones included.
func ExportCSV(ctx context.Context, repo *Repo, w io.Writer) (int, error) {
	items, err := repo.List(ctx, ListQuery{})
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, err
	}
	for _, m := range items {
		if err := cw.Write(rowFromRecord(m)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(items), cw.Error()
}

func rowFromRecord(m models.ContentRecord) []string {
	genres := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		genres = append(genres, g.Name)
	}
	links := make([]string, 0, len(m.StreamingLinks))
	for _, l := range m.StreamingLinks {
		links = append(links, l.Platform+"="+l.URL)
	}

	year, rating, tmdbID := "", "", ""
	if m.ReleaseYear > 0 {
		year = strconv.Itoa(m.ReleaseYear)
	}
	if m.Rating != nil {
		rating = strconv.FormatFloat(*m.Rating, 'f', -1, 64)
	}
	if m.TMDBID > 0 {
		tmdbID = strconv.FormatInt(m.TMDBID, 10)
	}

	return []string{
		m.ID, m.Title, string(m.ContentType), m.Status, m.Overview, m.ReleaseDate, year,
		rating, tmdbID, m.PosterPath, strings.Join(genres, "|"), strings.Join(links, "|"),
	}
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
