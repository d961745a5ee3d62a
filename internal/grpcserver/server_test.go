package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"cinegate/internal/catalog"
	"cinegate/internal/tmdb"
	"cinegate/pkg/models"
)

type stubCurated struct{ records []models.ContentRecord }

func (s stubCurated) ListApproved(context.Context, models.ContentType) ([]models.ContentRecord, error) {
	return s.records, nil
}

func (s stubCurated) GetByID(_ context.Context, id string) (*models.ContentRecord, error) {
	for _, r := range s.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (stubCurated) ListGenres(context.Context) ([]models.Genre, error) { return nil, nil }

type stubRemote struct{}

func (stubRemote) Popular(context.Context, tmdb.Kind, int) (tmdb.ResultPage, error) {
	return tmdb.ResultPage{}, tmdb.ErrNotConfigured
}
func (stubRemote) Discover(context.Context, tmdb.Kind, string, int) (tmdb.ResultPage, error) {
	return tmdb.ResultPage{}, tmdb.ErrNotConfigured
}
func (stubRemote) Search(context.Context, string, int) (tmdb.ResultPage, error) {
	return tmdb.ResultPage{}, tmdb.ErrNotConfigured
}
func (stubRemote) Details(context.Context, tmdb.Kind, int64) (*models.ContentRecord, error) {
	return nil, tmdb.ErrNotFound
}
func (stubRemote) Genres(context.Context) ([]models.Genre, error) { return nil, nil }

func newTestClient(t *testing.T, records []models.ContentRecord) *CatalogClient {
	t.Helper()
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	log := logrus.NewEntry(l)

	svc := catalog.NewService(stubCurated{records: records}, stubRemote{}, log)
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogger(log)))
	RegisterCatalogServer(srv, NewServer(svc))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewCatalogClient(conn)
}

func TestBrowseOverGRPC(t *testing.T) {
	records := []models.ContentRecord{
		{ID: "c1", Title: "Alien", ContentType: models.ContentMovie, Status: models.StatusApproved},
		{ID: "c2", Title: "Heat", ContentType: models.ContentMovie, Status: models.StatusApproved},
	}
	client := newTestClient(t, records)

	resp, err := client.Browse(context.Background(), &BrowseRequest{Q: "ali"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Alien", resp.Items[0].Title)
	assert.EqualValues(t, 1, resp.TotalPages)
	assert.EqualValues(t, catalog.DefaultPageSize, resp.PageSize)

	_, err = client.Browse(context.Background(), &BrowseRequest{Page: -1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetContentOverGRPC(t *testing.T) {
	records := []models.ContentRecord{
		{ID: "c1", Title: "Alien", ContentType: models.ContentMovie, Status: models.StatusApproved},
	}
	client := newTestClient(t, records)

	resp, err := client.GetContent(context.Background(), &GetContentRequest{ID: "c1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	assert.Equal(t, "Alien", resp.Content.Title)

	_, err = client.GetContent(context.Background(), &GetContentRequest{ID: "999"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetContent(context.Background(), &GetContentRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
