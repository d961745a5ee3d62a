package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cinegate/internal/catalog"
)

type Server struct {
	Catalog *catalog.Service
}

func NewServer(svc *catalog.Service) *Server {
	return &Server{Catalog: svc}
}

func (s *Server) Browse(ctx context.Context, req *BrowseRequest) (*BrowseResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	if req.Page < 0 || req.PageSize < 0 {
		return nil, status.Error(codes.InvalidArgument, "page and page_size must be >= 0")
	}

	page, err := s.Catalog.Browse(ctx, strings.TrimSpace(req.SessionID), catalog.Query{
		Search:   strings.TrimSpace(req.Q),
		Genre:    strings.TrimSpace(req.Genre),
		Type:     strings.ToLower(strings.TrimSpace(req.Type)),
		Page:     int(req.Page),
		PageSize: int(req.PageSize),
	})
	if errors.Is(err, catalog.ErrSuperseded) {
		return nil, status.Error(codes.Aborted, "superseded by a newer request")
	}
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}

	return &BrowseResponse{
		Items:      page.Items,
		Page:       int32(page.Page),
		PageSize:   int32(page.PageSize),
		TotalItems: int32(page.TotalItems),
		TotalPages: int32(page.TotalPages),
	}, nil
}

func (s *Server) GetContent(ctx context.Context, req *GetContentRequest) (*GetContentResponse, error) {
	if req == nil || strings.TrimSpace(req.ID) == "" {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}

	rec, err := s.Catalog.Detail(ctx, req.ID, req.Type)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, status.Error(codes.NotFound, "content not found")
	}
	if err != nil {
		return nil, status.Error(codes.Internal, "get failed")
	}
	return &GetContentResponse{Content: rec}, nil
}

// UnaryLogger logs one line per call with its status code and latency.
func UnaryLogger(log *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithFields(logrus.Fields{
			"method":  info.FullMethod,
			"code":    status.Code(err).String(),
			"elapsed": time.Since(start).String(),
		})
		if err != nil && status.Code(err) == codes.Internal {
			entry.WithError(err).Error("grpc call failed")
		} else {
			entry.Info("grpc call")
		}
		return resp, err
	}
}
