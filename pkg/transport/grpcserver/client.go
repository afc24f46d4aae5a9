// SPDX-License-Identifier: Apache-2.0

package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/service"
)

// Client calls allot.v1.Allocator with typed requests.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Solve calls Allocator.Solve.
func (c *Client) Solve(ctx context.Context, req service.SolveRequest) (service.SolveResponse, error) {
	var out service.SolveResponse
	err := c.invoke(ctx, SolveMethod, req, &out)
	return out, err
}

// Reassign calls Allocator.Reassign.
func (c *Client) Reassign(ctx context.Context, req service.ReassignRequest) (service.ReassignResponse, error) {
	var out service.ReassignResponse
	err := c.invoke(ctx, ReassignMethod, req, &out)
	return out, err
}

// Respace calls Allocator.Respace.
func (c *Client) Respace(ctx context.Context, req service.RespaceRequest) (service.RespaceResponse, error) {
	var out service.RespaceResponse
	err := c.invoke(ctx, RespaceMethod, req, &out)
	return out, err
}

func (c *Client) invoke(ctx context.Context, method string, req, out any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	if err := fromStruct(resp, out); err != nil {
		return errors.New(errors.CodeInternal, "decode response", err)
	}
	return nil
}
