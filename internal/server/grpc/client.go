package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client calls the FileSync service on behalf of one device.
type Client struct {
	conn        grpc.ClientConnInterface
	accessToken string
}

func NewClient(conn grpc.ClientConnInterface, accessToken string) *Client {
	return &Client{conn: conn, accessToken: accessToken}
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c.accessToken != "" {
		ctx = withAccessToken(ctx, c.accessToken)
	}
	return c.conn.Invoke(ctx, FullMethod(method), req, resp, grpc.CallContentSubtype(CodecName))
}

func (c *Client) UploadFile(ctx context.Context, f ProposedFile) (*UploadFileResponse, error) {
	resp := &UploadFileResponse{}
	if err := c.invoke(ctx, MethodUploadFile, &UploadFileRequest{File: f}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DownloadFile(ctx context.Context, filename string) (*FileInfo, error) {
	resp := &DownloadFileResponse{}
	if err := c.invoke(ctx, MethodDownloadFile, &DownloadFileRequest{Filename: filename}, resp); err != nil {
		return nil, err
	}
	return resp.File, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]*FileInfo, error) {
	resp := &ListFilesResponse{}
	if err := c.invoke(ctx, MethodListFiles, &ListFilesRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *Client) SyncBatch(ctx context.Context, files []ProposedFile) (*SyncBatchResponse, error) {
	resp := &SyncBatchResponse{}
	if err := c.invoke(ctx, MethodSyncBatch, &SyncBatchRequest{Files: files}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DeleteFile(ctx context.Context, filename string) (bool, error) {
	resp := &DeleteFileResponse{}
	if err := c.invoke(ctx, MethodDeleteFile, &DeleteFileRequest{Filename: filename}, resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

func (c *Client) UserStats(ctx context.Context) (*UserStatsResponse, error) {
	resp := &UserStatsResponse{}
	if err := c.invoke(ctx, MethodUserStats, &UserStatsRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Usage(ctx context.Context) (*UsageResponse, error) {
	resp := &UsageResponse{}
	if err := c.invoke(ctx, MethodUsage, &UsageRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	resp := &PingResponse{}
	if err := c.invoke(ctx, MethodPing, &PingRequest{}, resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
