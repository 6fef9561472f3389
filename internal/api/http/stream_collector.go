package http

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	segrpc "github.com/vaultds/segmentstore/internal/api/grpc"
)

// collectingStream adapts the plain-JSON HTTP facade to internal/api/grpc's
// Service.ReadRows, which is written against grpclib.ServerStream: it
// collects every SendMsg call into a slice instead of writing to a wire
// stream, so ReadRowsHandler can return the whole result as one JSON body.
type collectingStream struct {
	ctx  context.Context
	rows []*segrpc.ReadRowsResponse
}

var _ grpclib.ServerStream = (*collectingStream)(nil)

func (c *collectingStream) SetHeader(metadata.MD) error  { return nil }
func (c *collectingStream) SendHeader(metadata.MD) error { return nil }
func (c *collectingStream) SetTrailer(metadata.MD)       {}
func (c *collectingStream) Context() context.Context     { return c.ctx }

func (c *collectingStream) SendMsg(m interface{}) error {
	c.rows = append(c.rows, m.(*segrpc.ReadRowsResponse))
	return nil
}

func (c *collectingStream) RecvMsg(m interface{}) error {
	return nil
}
