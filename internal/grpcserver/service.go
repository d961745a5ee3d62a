package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"cinegate/pkg/models"
)

const serviceName = "cinegate.Catalog"

type BrowseRequest struct {
	Q         string `json:"q,omitempty"`
	Genre     string `json:"genre,omitempty"`
	Type      string `json:"type,omitempty"`
	Page      int32  `json:"page,omitempty"`
	PageSize  int32  `json:"page_size,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type BrowseResponse struct {
	Items      []models.ContentRecord `json:"items"`
	Page       int32                  `json:"page"`
	PageSize   int32                  `json:"page_size"`
	TotalItems int32                  `json:"total_items"`
	TotalPages int32                  `json:"total_pages"`
}

type GetContentRequest struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"` // movie or tv, narrows remote lookups
}

type GetContentResponse struct {
	Content *models.ContentRecord `json:"content"`
}

// CatalogServer is the server API for the cinegate.Catalog service.
type CatalogServer interface {
	Browse(context.Context, *BrowseRequest) (*BrowseResponse, error)
	GetContent(context.Context, *GetContentRequest) (*GetContentResponse, error)
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

func browseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BrowseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).Browse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Browse"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).Browse(ctx, req.(*BrowseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getContentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetContentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).GetContent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetContent"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).GetContent(ctx, req.(*GetContentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Browse", Handler: browseHandler},
		{MethodName: "GetContent", Handler: getContentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cinegate/catalog",
}

// CatalogClient calls cinegate.Catalog using the JSON codec.
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) Browse(ctx context.Context, in *BrowseRequest, opts ...grpc.CallOption) (*BrowseResponse, error) {
	out := new(BrowseResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Browse", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) GetContent(ctx context.Context, in *GetContentRequest, opts ...grpc.CallOption) (*GetContentResponse, error) {
	out := new(GetContentResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetContent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
