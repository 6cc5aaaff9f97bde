package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/services"
)

func (s *GRPCServer) UploadFile(ctx context.Context, req *UploadFileRequest) (*UploadFileResponse, error) {
	c, err := claimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.sync.UploadFile(ctx, c.UserID, c.DeviceID, req.File.model())
	if err != nil {
		return nil, s.toStatus(ctx, "upload", err)
	}

	return &UploadFileResponse{
		Decision: res.Decision.String(),
		File:     fileInfo(res.File),
		Conflict: conflictInfo(res.Conflict),
	}, nil
}

func (s *GRPCServer) DownloadFile(ctx context.Context, req *DownloadFileRequest) (*DownloadFileResponse, error) {
	c, err := claimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	f, err := s.sync.DownloadFile(ctx, c.UserID, req.Filename)
	if err != nil {
		return nil, s.toStatus(ctx, "download", err)
	}

	return &DownloadFileResponse{File: fileInfo(f)}, nil
}

func (s *GRPCServer) ListFiles(ctx context.Context, _ *ListFilesRequest) (*ListFilesResponse, error) {
	c, err := claimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	files, err := s.sync.ListFiles(ctx, c.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "list", err)
	}

	return &ListFilesResponse{Files: fileInfos(files)}, nil
}

func (s *GRPCServer) SyncBatch(ctx context.Context, req *SyncBatchRequest) (*SyncBatchResponse, error) {
	c, err := claimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]models.ProposedFile, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, f.model())
	}

	res, err := s.sync.SyncBatch(ctx, c.UserID, c.DeviceID, files)
	if err != nil {
		return nil, s.toStatus(ctx, "sync batch", err)
	}

	return batchResponse(res), nil
}

func (s *GRPCServer) DeleteFile(ctx context.Context, req *DeleteFileRequest) (*DeleteFileResponse, error) {
	c, err := claimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	deleted, err := s.sync.DeleteFile(ctx, c.UserID, c.DeviceID, req.Filename)
	if err != nil {
		return nil, s.toStatus(ctx, "delete", err)
	}

	return &DeleteFileResponse{Deleted: deleted}, nil
}

func (s *GRPCServer) UserStats(ctx context.Context, _ *UserStatsRequest) (*UserStatsResponse, error) {
	c, err := claimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.sync.UserStats(ctx, c.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "stats", err)
	}

	return statsResponse(st), nil
}

func (s *GRPCServer) Usage(ctx context.Context, _ *UsageRequest) (*UsageResponse, error) {
	c, err := claimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	info, err := s.sync.Usage(ctx, c.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "usage", err)
	}

	return usageResponse(info), nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {

	return &PingResponse{Status: "OK"}, nil

}

// syncer is the part of services.SyncService the transport calls.
type syncer interface {
	UploadFile(ctx context.Context, userID, deviceID string, file models.ProposedFile) (*services.UploadResult, error)
	DownloadFile(ctx context.Context, userID, filename string) (*models.PlainFile, error)
	ListFiles(ctx context.Context, userID string) ([]*models.PlainFile, error)
	SyncBatch(ctx context.Context, userID, deviceID string, files []models.ProposedFile) (*services.BatchResult, error)
	DeleteFile(ctx context.Context, userID, deviceID, filename string) (bool, error)
	UserStats(ctx context.Context, userID string) (*models.UserStats, error)
	Usage(ctx context.Context, userID string) (models.StorageInfo, error)
}

var _ syncer = (*services.SyncService)(nil)
