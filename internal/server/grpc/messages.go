package grpc

import (
	"time"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/services"
)

type ProposedFile struct {
	Filename     string    `json:"filename"`
	Content      []byte    `json:"content"`
	FileType     string    `json:"file_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

func (p ProposedFile) model() models.ProposedFile {
	return models.ProposedFile{
		Filename:     p.Filename,
		Content:      string(p.Content),
		FileType:     p.FileType,
		LastModified: p.LastModified,
	}
}

type FileInfo struct {
	Filename     string    `json:"filename"`
	Content      []byte    `json:"content"`
	ContentHash  string    `json:"content_hash"`
	FileType     string    `json:"file_type,omitempty"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Version      int64     `json:"version"`
	DeviceID     string    `json:"device_id,omitempty"`
	DeviceName   string    `json:"device_name,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func fileInfo(f *models.PlainFile) *FileInfo {
	if f == nil {
		return nil
	}
	return &FileInfo{
		Filename:     f.Filename,
		Content:      []byte(f.Content),
		ContentHash:  f.ContentHash,
		FileType:     f.FileType,
		Size:         f.Size,
		LastModified: f.LastModified,
		Version:      f.Version,
		DeviceID:     f.DeviceID,
		DeviceName:   f.DeviceName,
		UpdatedAt:    f.UpdatedAt,
	}
}

func fileInfos(files []*models.PlainFile) []*FileInfo {
	out := make([]*FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, fileInfo(f))
	}
	return out
}

type ConflictInfo struct {
	Filename           string    `json:"filename"`
	ServerVersion      int64     `json:"server_version"`
	LocalVersion       int64     `json:"local_version"`
	ServerLastModified time.Time `json:"server_last_modified"`
	LocalLastModified  time.Time `json:"local_last_modified"`
	ServerContent      []byte    `json:"server_content"`
}

func conflictInfo(c *models.ConflictDescriptor) *ConflictInfo {
	if c == nil {
		return nil
	}
	return &ConflictInfo{
		Filename:           c.Filename,
		ServerVersion:      c.ServerVersion,
		LocalVersion:       c.LocalVersion,
		ServerLastModified: c.ServerLastModified,
		LocalLastModified:  c.LocalLastModified,
		ServerContent:      []byte(c.ServerContent),
	}
}

type UploadFileRequest struct {
	File ProposedFile `json:"file"`
}

type UploadFileResponse struct {
	Decision string        `json:"decision"`
	File     *FileInfo     `json:"file,omitempty"`
	Conflict *ConflictInfo `json:"conflict,omitempty"`
}

type DownloadFileRequest struct {
	Filename string `json:"filename"`
}

type DownloadFileResponse struct {
	File *FileInfo `json:"file"`
}

type ListFilesRequest struct{}

type ListFilesResponse struct {
	Files []*FileInfo `json:"files"`
}

type SyncBatchRequest struct {
	Files []ProposedFile `json:"files"`
}

type FailedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type SessionCounts struct {
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
	Conflicted int `json:"conflicted"`
}

type SyncBatchResponse struct {
	SessionID string          `json:"session_id"`
	Files     []*FileInfo     `json:"files"`
	Conflicts []*ConflictInfo `json:"conflicts"`
	Failed    []FailedFile    `json:"failed"`
	Counts    SessionCounts   `json:"counts"`
}

func batchResponse(r *services.BatchResult) *SyncBatchResponse {
	resp := &SyncBatchResponse{
		SessionID: r.SessionID,
		Files:     fileInfos(r.Files),
		Conflicts: make([]*ConflictInfo, 0, len(r.Conflicts)),
		Failed:    make([]FailedFile, 0, len(r.Failed)),
		Counts: SessionCounts{
			Synced:     r.Counts.Synced,
			Failed:     r.Counts.Failed,
			Conflicted: r.Counts.Conflicted,
		},
	}
	for _, c := range r.Conflicts {
		resp.Conflicts = append(resp.Conflicts, conflictInfo(c))
	}
	for _, f := range r.Failed {
		resp.Failed = append(resp.Failed, FailedFile{Filename: f.Filename, Reason: f.Reason})
	}
	return resp
}

type DeleteFileRequest struct {
	Filename string `json:"filename"`
}

type DeleteFileResponse struct {
	Deleted bool `json:"deleted"`
}

type UserStatsRequest struct{}

type DeviceInfo struct {
	DeviceID   string    `json:"device_id"`
	Name       string    `json:"name"`
	LastActive time.Time `json:"last_active"`
	FileCount  int64     `json:"file_count"`
}

type UserStatsResponse struct {
	TotalFiles             int64         `json:"total_files"`
	TotalSize              int64         `json:"total_size"`
	LastCompletedSessionAt *time.Time    `json:"last_completed_session_at,omitempty"`
	Devices                []*DeviceInfo `json:"devices"`
}

func statsResponse(st *models.UserStats) *UserStatsResponse {
	resp := &UserStatsResponse{
		TotalFiles:             st.TotalFiles,
		TotalSize:              st.TotalSize,
		LastCompletedSessionAt: st.LastCompletedSessionAt,
		Devices:                make([]*DeviceInfo, 0, len(st.Devices)),
	}
	for _, d := range st.Devices {
		resp.Devices = append(resp.Devices, &DeviceInfo{
			DeviceID:   d.DeviceID,
			Name:       d.Name,
			LastActive: d.LastActive,
			FileCount:  d.FileCount,
		})
	}
	return resp
}

type UsageRequest struct{}

type UsageResponse struct {
	Used        int64 `json:"used"`
	Limit       int64 `json:"limit"`
	Available   int64 `json:"available"`
	PercentUsed int   `json:"percent_used"`
}

func usageResponse(info models.StorageInfo) *UsageResponse {
	return &UsageResponse{
		Used:        info.Used,
		Limit:       info.Limit,
		Available:   info.Available,
		PercentUsed: info.PercentUsed,
	}
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}
