package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vaultds/segmentstore/internal/flush"
	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/read"
	"github.com/vaultds/segmentstore/internal/store"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Service is the gRPC facade over the flush and read paths. Message types
// are plain structs carried over the jsonCodec rather than generated
// protobuf types; ServiceDesc below wires them into grpclib by hand, without
// a protoc-gen-go-grpc step.
type Service struct {
	flusher *flush.Flusher
	store   store.PersistentStore
	keyType keycodec.KeyType
	encode  flush.ColumnEncoder
	decode  read.ColumnDecoder
}

// NewService builds a Service. encode/decode are the injected columnar value
// codec collaborators; this package never interprets column bytes itself.
func NewService(flusher *flush.Flusher, persistentStore store.PersistentStore, keyType keycodec.KeyType, encode flush.ColumnEncoder, decode read.ColumnDecoder) *Service {
	return &Service{flusher: flusher, store: persistentStore, keyType: keyType, encode: encode, decode: decode}
}

// Flush implements the unary Flush RPC: dedupes and encodes the request's
// rows, then runs one flush attempt. The caller is responsible for retrying
// on a false FlushResponse.Committed, same as the flush package's CAS
// contract.
func (s *Service) Flush(ctx context.Context, req *FlushRequest) (*FlushResponse, error) {
	rows := make([]flush.Row, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = flush.Row{Key: types.RowKey(r.Key), Values: r.Values}
	}

	batch, err := flush.PrepareBatch(types.PartitionID(req.Partition), types.SegmentID(req.Segment), rows, req.Columns, s.encode)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "flush: failed to prepare batch: %v", err)
	}

	committed, err := s.flusher.Attempt(ctx, batch)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "flush: attempt failed: %v", err)
	}
	return &FlushResponse{Committed: committed}, nil
}

// ReadRows implements the server-streaming ReadRows RPC: pumps read.Read's
// row channel into the stream in order, stopping at the first error.
func (s *Service) ReadRows(req *ReadRowsRequest, stream grpclib.ServerStream) error {
	ctx := stream.Context()
	rowsCh, errsCh := read.Read(ctx, s.store, s.keyType, req.Partition, req.Segment, req.Columns, s.decode)

	for r := range rowsCh {
		msg := &ReadRowsResponse{Key: r.Key.String(), Values: r.Values}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	select {
	case err := <-errsCh:
		if err == nil {
			return nil
		}
		return status.Errorf(codes.Internal, "read: %v", err)
	default:
		return nil
	}
}

const serviceName = "segmentstore.SegmentStore"

func flushHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(FlushRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Service).Flush(ctx, in)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Flush"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Service).Flush(ctx, req.(*FlushRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func readRowsHandler(srv interface{}, stream grpclib.ServerStream) error {
	in := new(ReadRowsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(*Service).ReadRows(in, stream)
}

// ServiceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would otherwise generate from a .proto file: a plain grpclib.ServiceDesc
// registering the unary Flush method and the server-streaming ReadRows
// method against Service.
var ServiceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Service)(nil),
	Methods: []grpclib.MethodDesc{
		{
			MethodName: "Flush",
			Handler:    flushHandler,
		},
	},
	Streams: []grpclib.StreamDesc{
		{
			StreamName:    "ReadRows",
			Handler:       readRowsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "segmentstore.proto",
}

// NewServer builds a grpclib.Server with Service registered, using the
// jsonCodec content-subtype in place of protobuf wire encoding.
func NewServer(svc *Service, opts ...grpclib.ServerOption) *grpclib.Server {
	server := grpclib.NewServer(opts...)
	server.RegisterService(&ServiceDesc, svc)
	return server
}
