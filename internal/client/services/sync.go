// Package services implements the device side of synchronization: finding
// local changes, pushing them as batches and applying the server's state to
// the synced directory.
package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/client/models"
	"github.com/dmitrijs2005/gophsync/internal/client/repositories/files"
	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	gs "github.com/dmitrijs2005/gophsync/internal/server/grpc"
)

// ConflictSuffix is appended to a filename to store the server's side of a
// conflict next to the local file.
const ConflictSuffix = ".conflict"

// Remote is the part of the FileSync API the client uses.
type Remote interface {
	SyncBatch(ctx context.Context, files []gs.ProposedFile) (*gs.SyncBatchResponse, error)
	ListFiles(ctx context.Context) ([]*gs.FileInfo, error)
}

// Report summarises one push or pull.
type Report struct {
	SessionIDs []string
	Uploaded   []string
	Downloaded []string
	Conflicts  []string
	Skipped    []string
	Failed     []gs.FailedFile
}

type SyncService struct {
	remote    Remote
	state     files.Repository
	dir       string
	batchSize int
	logger    logging.Logger
	now       func() time.Time
}

func NewSyncService(remote Remote, state files.Repository, dir string, logger logging.Logger) *SyncService {
	return &SyncService{
		remote:    remote,
		state:     state,
		dir:       dir,
		batchSize: common.DefaultMaxBatchSize,
		logger:    logger.With("module", "client_sync"),
		now:       time.Now,
	}
}

// Scan lists the regular files under the synced directory. Hidden entries
// and conflict sidecars are skipped.
func (s *SyncService) Scan(ctx context.Context) ([]*models.LocalFile, error) {
	var out []*models.LocalFile

	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == s.dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasSuffix(d.Name(), ConflictSuffix) {
			return nil
		}

		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		f, err := s.readLocal(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.dir, err)
	}
	return out, nil
}

func (s *SyncService) localPath(name string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: unsafe filename %q", common.ErrorValidation, name)
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)), nil
}

// readLocal returns nil, nil when the file does not exist.
func (s *SyncService) readLocal(name string) (*models.LocalFile, error) {
	p, err := s.localPath(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return &models.LocalFile{
		Filename: name,
		Content:  data,
		Hash:     cryptox.Hash(data),
		ModTime:  info.ModTime(),
	}, nil
}

func (s *SyncService) lastSynced(ctx context.Context, name string) (*models.SyncedFile, error) {
	st, err := s.state.Get(ctx, name)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return st, err
}

// Pending returns the local files that changed since they were last synced.
func (s *SyncService) Pending(ctx context.Context) ([]*models.LocalFile, error) {
	local, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.LocalFile
	for _, f := range local {
		st, err := s.lastSynced(ctx, f.Filename)
		if err != nil {
			return nil, err
		}
		if st == nil || st.ContentHash != f.Hash {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *SyncService) record(ctx context.Context, name, hash string, version int64, lastModified time.Time) error {
	return s.state.Upsert(ctx, &models.SyncedFile{
		Filename:     name,
		ContentHash:  hash,
		Version:      version,
		LastModified: lastModified,
		SyncedAt:     s.now(),
	})
}

func (s *SyncService) write(name string, content []byte, modTime time.Time) error {
	p, err := s.localPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	// write next to the target under a hidden name, then rename over it
	suffix, err := common.MakeRandHexString(6)
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+"."+suffix+".tmp")
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmp, modTime, modTime); err != nil {
			os.Remove(tmp)
			return err
		}
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// applyRemote brings one server file into the directory unless the local
// copy has edits that were not pushed yet.
func (s *SyncService) applyRemote(ctx context.Context, f *gs.FileInfo, rep *Report) error {
	local, err := s.readLocal(f.Filename)
	if err != nil {
		return err
	}
	st, err := s.lastSynced(ctx, f.Filename)
	if err != nil {
		return err
	}

	switch {
	case local != nil && local.Hash == f.ContentHash:
		return s.record(ctx, f.Filename, f.ContentHash, f.Version, f.LastModified)
	case local != nil && (st == nil || st.ContentHash != local.Hash):
		s.logger.Debug(ctx, "local edits pending, not overwriting", "filename", f.Filename)
		rep.Skipped = append(rep.Skipped, f.Filename)
		return nil
	}

	if err := s.write(f.Filename, f.Content, f.LastModified); err != nil {
		return fmt.Errorf("write %s: %w", f.Filename, err)
	}
	rep.Downloaded = append(rep.Downloaded, f.Filename)
	return s.record(ctx, f.Filename, f.ContentHash, f.Version, f.LastModified)
}

// Push sends pending local changes in batches and applies the server state
// returned with each batch.
func (s *SyncService) Push(ctx context.Context) (*Report, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		if err := s.pushBatch(ctx, pending[start:end], rep); err != nil {
			return rep, err
		}
	}

	s.logger.Info(ctx, "push finished", "uploaded", len(rep.Uploaded), "downloaded", len(rep.Downloaded),
		"conflicts", len(rep.Conflicts), "failed", len(rep.Failed))
	return rep, nil
}

func (s *SyncService) pushBatch(ctx context.Context, batch []*models.LocalFile, rep *Report) error {
	sent := make(map[string]*models.LocalFile, len(batch))
	req := make([]gs.ProposedFile, 0, len(batch))
	for _, f := range batch {
		sent[f.Filename] = f
		req = append(req, gs.ProposedFile{
			Filename:     f.Filename,
			Content:      f.Content,
			FileType:     fileType(f.Filename),
			LastModified: f.ModTime,
		})
	}

	resp, err := s.remote.SyncBatch(ctx, req)
	if err != nil {
		return fmt.Errorf("sync batch: %w", err)
	}
	rep.SessionIDs = append(rep.SessionIDs, resp.SessionID)

	handled := make(map[string]bool, len(batch))

	for _, c := range resp.Conflicts {
		handled[c.Filename] = true
		if err := s.write(c.Filename+ConflictSuffix, c.ServerContent, time.Time{}); err != nil {
			return fmt.Errorf("write conflict copy of %s: %w", c.Filename, err)
		}
		rep.Conflicts = append(rep.Conflicts, c.Filename)
	}

	for _, f := range resp.Failed {
		handled[f.Filename] = true
		rep.Failed = append(rep.Failed, f)
	}

	for _, f := range resp.Files {
		if local, ok := sent[f.Filename]; ok && local.Hash == f.ContentHash {
			handled[f.Filename] = true
			rep.Uploaded = append(rep.Uploaded, f.Filename)
			if err := s.record(ctx, f.Filename, f.ContentHash, f.Version, f.LastModified); err != nil {
				return err
			}
			continue
		}
		if err := s.applyRemote(ctx, f, rep); err != nil {
			return err
		}
	}

	// new files are not part of the returned snapshot; they start at version 1
	for _, f := range batch {
		if handled[f.Filename] {
			continue
		}
		rep.Uploaded = append(rep.Uploaded, f.Filename)
		if err := s.record(ctx, f.Filename, f.Hash, 1, f.ModTime); err != nil {
			return err
		}
	}
	return nil
}

// Pull applies the server's current files to the directory.
func (s *SyncService) Pull(ctx context.Context) (*Report, error) {
	remote, err := s.remote.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	rep := &Report{}
	for _, f := range remote {
		if err := s.applyRemote(ctx, f, rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// ApplyDelete removes a file another device deleted. A local copy edited
// since the last sync is kept. It reports whether the file was removed.
func (s *SyncService) ApplyDelete(ctx context.Context, name string) (bool, error) {
	st, err := s.lastSynced(ctx, name)
	if err != nil || st == nil {
		return false, err
	}
	local, err := s.readLocal(name)
	if err != nil {
		return false, err
	}
	if local != nil && local.Hash != st.ContentHash {
		s.logger.Debug(ctx, "local edits pending, not deleting", "filename", name)
		return false, nil
	}

	p, err := s.localPath(name)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove %s: %w", name, err)
	}
	return true, s.state.Delete(ctx, name)
}

func fileType(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return "file"
	}
	return strings.ToLower(ext)
}
