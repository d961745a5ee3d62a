package catalog

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegate/pkg/models"
)

func rec(id, title string, ct models.ContentType, genres ...models.Genre) models.ContentRecord {
	return models.ContentRecord{ID: id, Title: title, ContentType: ct, Genres: genres}
}

func ids(items []models.ContentRecord) []string {
	out := make([]string, 0, len(items))
	for _, r := range items {
		out = append(out, r.ID)
	}
	return out
}

func TestApplyCuratedWinsOnDuplicateID(t *testing.T) {
	curated := []models.ContentRecord{
		{ID: "603", Title: "The Matrix (curated)", ContentType: models.ContentMovie, Source: models.SourceCurated},
	}
	remote := []models.ContentRecord{
		{ID: "603", Title: "The Matrix", ContentType: models.ContentMovie, Source: models.SourceRemote},
		{ID: "604", Title: "The Matrix Reloaded", ContentType: models.ContentMovie, Source: models.SourceRemote},
	}

	page := Apply(curated, remote, Filter{})

	require.Len(t, page.Items, 2)
	assert.Equal(t, []string{"603", "604"}, ids(page.Items))
	assert.Equal(t, models.SourceCurated, page.Items[0].Source)
	assert.Equal(t, "The Matrix (curated)", page.Items[0].Title)
}

func TestApplySkipsEmptyIDs(t *testing.T) {
	page := Apply([]models.ContentRecord{{Title: "no id", ContentType: models.ContentMovie}}, nil, Filter{})
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.TotalPages)
}

func TestApplyTypeFilter(t *testing.T) {
	anim := models.Genre{ID: "16", ExternalID: "16", Name: "Animation"}
	localAnim := models.Genre{ID: "g-1", Name: "Japanese Animation"}
	items := []models.ContentRecord{
		rec("1", "Heat", models.ContentMovie),
		rec("2", "The Wire", models.ContentSeries),
		rec("3", "Spirited Away", models.ContentMovie, anim),
		rec("4", "Cowboy Bebop", models.ContentSeries, localAnim),
	}

	cases := []struct {
		typ  string
		want []string
	}{
		{"", []string{"1", "2", "3", "4"}},
		{"all", []string{"1", "2", "3", "4"}},
		{"movie", []string{"1", "3"}},
		{"tv", []string{"2", "4"}},
		{"animation", []string{"3", "4"}},
		{"documentary", []string{"1", "2", "3", "4"}},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			page := Apply(items, nil, Filter{Type: tc.typ})
			assert.Equal(t, tc.want, ids(page.Items))
		})
	}
}

func TestApplyGenreMatchesByIDExternalIDOrName(t *testing.T) {
	curatedMapped := rec("c1", "Curated mapped", models.ContentMovie, models.Genre{ID: "uuid-a", ExternalID: "28", Name: "Action"})
	curatedUnmapped := rec("c2", "Curated unmapped", models.ContentMovie, models.Genre{ID: "uuid-b", Name: "action"})
	remote := rec("r1", "Remote", models.ContentMovie, models.Genre{ID: "28", ExternalID: "28", Name: "Action"})
	other := rec("r2", "Other", models.ContentMovie, models.Genre{ID: "18", ExternalID: "18", Name: "Drama"})

	page := Apply([]models.ContentRecord{curatedMapped, curatedUnmapped}, []models.ContentRecord{remote, other},
		Filter{GenreID: "28", GenreName: "Action"})
	assert.Equal(t, []string{"c1", "c2", "r1"}, ids(page.Items))

	// without a resolved name the unmapped curated genre cannot match
	page = Apply([]models.ContentRecord{curatedMapped, curatedUnmapped}, []models.ContentRecord{remote, other},
		Filter{GenreID: "28"})
	assert.Equal(t, []string{"c1", "r1"}, ids(page.Items))

	page = Apply([]models.ContentRecord{curatedMapped, curatedUnmapped}, []models.ContentRecord{remote, other},
		Filter{GenreID: "all"})
	assert.Len(t, page.Items, 4)
}

func TestApplySearchIsCaseInsensitiveSubstring(t *testing.T) {
	items := []models.ContentRecord{
		rec("1", "The Dark Knight", models.ContentMovie),
		rec("2", "Knight Rider", models.ContentSeries),
		rec("3", "Heat", models.ContentMovie),
	}
	page := Apply(items, nil, Filter{Search: "  KNIGHT "})
	assert.Equal(t, []string{"1", "2"}, ids(page.Items))

	accented := []models.ContentRecord{rec("4", "ÉLITE", models.ContentSeries)}
	assert.Len(t, Apply(accented, nil, Filter{Search: "élite"}).Items, 1)
}

func TestApplyIsIdempotent(t *testing.T) {
	items := []models.ContentRecord{
		rec("1", "Toy Story", models.ContentMovie, models.Genre{ID: "16", ExternalID: "16", Name: "Animation"}),
		rec("2", "Toy Story 2", models.ContentMovie, models.Genre{ID: "16", ExternalID: "16", Name: "Animation"}),
		rec("3", "Story of Film", models.ContentSeries),
		rec("4", "Heat", models.ContentMovie),
	}
	f := Filter{Type: "animation", GenreID: "16", GenreName: "Animation", Search: "story", PageSize: 100}

	once := Apply(items, nil, f)
	twice := Apply(once.Items, nil, f)

	assert.Equal(t, ids(once.Items), ids(twice.Items))
	assert.Equal(t, once.TotalItems, twice.TotalItems)
}

func TestApplyPagination(t *testing.T) {
	for _, n := range []int{0, 1, 23, 24, 25, 48, 50} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			items := make([]models.ContentRecord, n)
			for i := range items {
				items[i] = rec(fmt.Sprintf("id-%d", i), fmt.Sprintf("Title %d", i), models.ContentMovie)
			}

			first := Apply(items, nil, Filter{Page: 1})
			wantPages := max(1, (n+DefaultPageSize-1)/DefaultPageSize)
			assert.Equal(t, wantPages, first.TotalPages)
			assert.Equal(t, n, first.TotalItems)
			assert.Equal(t, DefaultPageSize, first.PageSize)

			last := Apply(items, nil, Filter{Page: wantPages})
			wantLast := n - (wantPages-1)*DefaultPageSize
			assert.Len(t, last.Items, wantLast)

			seen := 0
			for p := 1; p <= wantPages; p++ {
				seen += len(Apply(items, nil, Filter{Page: p}).Items)
			}
			assert.Equal(t, n, seen)
		})
	}
}

func TestPaginateBounds(t *testing.T) {
	items := []models.ContentRecord{rec("1", "a", models.ContentMovie), rec("2", "b", models.ContentMovie)}

	p := Paginate(items, 0, 1)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, []string{"1"}, ids(p.Items))

	p = Paginate(items, 5, 1)
	assert.Equal(t, 5, p.Page)
	assert.Equal(t, 2, p.TotalPages)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)

	p = Paginate(items, 1, 1000)
	assert.Equal(t, MaxPageSize, p.PageSize)
}

func TestPaginateHugePage(t *testing.T) {
	items := []models.ContentRecord{rec("1", "a", models.ContentMovie), rec("2", "b", models.ContentMovie)}

	var p Page
	require.NotPanics(t, func() { p = Paginate(items, math.MaxInt, DefaultPageSize) })
	assert.Equal(t, math.MaxInt, p.Page)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 2, p.TotalItems)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)

	require.NotPanics(t, func() { p = Paginate(items, math.MaxInt/2+1, MaxPageSize) })
	assert.Empty(t, p.Items)
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	curated := []models.ContentRecord{rec("1", "a", models.ContentMovie), rec("1", "dup", models.ContentMovie)}
	before := ids(curated)
	Apply(curated, nil, Filter{Type: "tv"})
	assert.Equal(t, before, ids(curated))
	assert.Equal(t, "dup", curated[1].Title)
}
