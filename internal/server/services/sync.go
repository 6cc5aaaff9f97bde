// Package services contains the server-side business logic: the
// reconciliation engine and the quota, file store, session, device and
// user services it is composed from.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/dbx"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/repomanager"
)

const defaultMaxAttempts = 3

// UploadResult is either the stored file or, when the write lost, a
// conflict descriptor. Conflicts are not errors.
type UploadResult struct {
	Decision Decision
	File     *models.PlainFile
	Conflict *models.ConflictDescriptor
}

// FailedFile is one batch entry that could not be processed.
type FailedFile struct {
	Filename string
	Reason   string
}

// BatchResult is the answer to one batch sync call. Files is the server
// state the device should adopt; Conflicts need manual resolution.
type BatchResult struct {
	SessionID string
	Files     []*models.PlainFile
	Conflicts []*models.ConflictDescriptor
	Failed    []FailedFile
	Counts    SessionCounts
}

// SyncDeps are the collaborators of the reconciliation engine.
type SyncDeps struct {
	Codec    ContentCodec
	Quota    *QuotaService
	Store    *FileStore
	Sessions *SessionLedger
	Devices  *DeviceService
	Notifier Notifier
	Logger   logging.Logger
}

type SyncOption func(*SyncService)

// WithMaxBatchSize bounds the number of files accepted by SyncBatch.
func WithMaxBatchSize(n int) SyncOption {
	return func(s *SyncService) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithMaxAttempts bounds read-decide-write retries after a lost race.
func WithMaxAttempts(n int) SyncOption {
	return func(s *SyncService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// SyncService is the reconciliation engine.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager

	codec    ContentCodec
	quota    *QuotaService
	store    *FileStore
	sessions *SessionLedger
	devices  *DeviceService
	notifier Notifier
	logger   logging.Logger

	maxBatchSize int
	maxAttempts  int
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, deps SyncDeps, opts ...SyncOption) *SyncService {
	s := &SyncService{
		db:           db,
		repomanager:  m,
		codec:        deps.Codec,
		quota:        deps.Quota,
		store:        deps.Store,
		sessions:     deps.Sessions,
		devices:      deps.Devices,
		notifier:     deps.Notifier,
		logger:       deps.Logger,
		maxBatchSize: common.DefaultMaxBatchSize,
		maxAttempts:  defaultMaxAttempts,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.With("module", "sync")
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// prepared is a proposed file after the CPU-bound work done outside any
// transaction.
type prepared struct {
	file       models.ProposedFile
	hash       string
	ciphertext []byte
}

type outcome struct {
	decision   Decision
	stored     *models.Replica
	superseded *models.Replica
}

func (s *SyncService) prepare(f models.ProposedFile) (*prepared, error) {
	if strings.TrimSpace(f.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is empty", common.ErrorValidation)
	}
	if f.LastModified.IsZero() {
		return nil, fmt.Errorf("%w: %s: last modified time is missing", common.ErrorValidation, f.Filename)
	}

	plain := []byte(f.Content)
	ct, err := s.codec.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt %s: %w", common.ErrorInternal, f.Filename, err)
	}

	f.LastModified = normalizeTime(f.LastModified)
	return &prepared{file: f, hash: s.codec.Hash(plain), ciphertext: ct}, nil
}

// reconcile runs the read-decide-write cycle for one file, retrying when a
// concurrent writer changed the replica between the read and the write.
// With gate set, the quota is checked against the net size change and
// storage_used is recomputed inside the same transaction.
func (s *SyncService) reconcile(ctx context.Context, userID, deviceID string, p *prepared, gate bool) (*outcome, error) {
	var out *outcome
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		out, err = s.reconcileOnce(ctx, userID, deviceID, p, gate)
		if !errors.Is(err, common.ErrVersionConflict) {
			return out, err
		}
		s.logger.Debug(ctx, "write lost a race, retrying", "user_id", userID,
			"filename", p.file.Filename, "attempt", attempt)
	}

	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", p.file.Filename, s.maxAttempts, err)
}

func (s *SyncService) reconcileOnce(ctx context.Context, userID, deviceID string, p *prepared, gate bool) (*outcome, error) {
	var out *outcome

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserNotFound
			}
			return fmt.Errorf("error locking user: %w", err)
		}

		existing, err := s.store.lookup(ctx, tx, userID, p.file.Filename)
		if err != nil {
			return fmt.Errorf("error reading replica: %w", err)
		}

		d := Decide(existing, p.hash, p.file.LastModified)
		switch d {
		case DecisionUnchanged, DecisionConflict:
			out = &outcome{decision: d, stored: existing}
			return nil
		}

		if gate {
			delta := p.file.Size()
			if existing != nil {
				delta -= existing.Size
			}
			if err := checkDelta(user, delta); err != nil {
				return err
			}
		}

		next := &models.Replica{
			UserID:       userID,
			Filename:     p.file.Filename,
			Content:      p.ciphertext,
			ContentHash:  p.hash,
			FileType:     p.file.FileType,
			Size:         p.file.Size(),
			LastModified: p.file.LastModified,
			DeviceID:     deviceID,
		}
		if err := s.store.put(ctx, tx, next, existing); err != nil {
			return err
		}

		if gate {
			if _, err := s.quota.recompute(ctx, tx, userID); err != nil {
				return err
			}
		}

		out = &outcome{decision: d, stored: next, superseded: existing}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// accepted runs the side effects of a committed create or replace.
func (s *SyncService) accepted(ctx context.Context, out *outcome) {
	s.store.archive(ctx, out.superseded)
	s.notifier.Publish(models.ChangeEvent{
		Type:     models.ChangeUpdated,
		UserID:   out.stored.UserID,
		DeviceID: out.stored.DeviceID,
		Filename: out.stored.Filename,
		Version:  out.stored.Version,
		At:       out.stored.UpdatedAt,
	})
}

func (s *SyncService) conflict(p *prepared, server *models.Replica) (*models.ConflictDescriptor, error) {
	plain, err := s.codec.Decrypt(server.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", server.Filename, common.ErrDecryption)
	}
	return &models.ConflictDescriptor{
		Filename:           server.Filename,
		ServerVersion:      server.Version,
		LocalVersion:       1,
		ServerLastModified: server.LastModified,
		LocalLastModified:  p.file.LastModified,
		ServerContent:      string(plain),
	}, nil
}

func (s *SyncService) touch(ctx context.Context, userID, deviceID string) {
	if deviceID == "" {
		return
	}
	if err := s.devices.Touch(ctx, userID, deviceID); err != nil {
		s.logger.Warn(ctx, "device touch failed", "user_id", userID, "device_id", deviceID, "error", err)
	}
}

func (s *SyncService) deviceName(ctx context.Context, userID, deviceID string) string {
	if deviceID == "" {
		return common.UnknownDeviceName
	}
	d, err := s.devices.Get(ctx, userID, deviceID)
	if err != nil {
		return common.UnknownDeviceName
	}
	return d.Name
}

func plainFile(r *models.Replica, content string) *models.PlainFile {
	return &models.PlainFile{
		Filename:     r.Filename,
		Content:      content,
		ContentHash:  r.ContentHash,
		FileType:     r.FileType,
		Size:         r.Size,
		LastModified: r.LastModified,
		Version:      r.Version,
		DeviceID:     r.DeviceID,
		DeviceName:   r.DeviceName,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (s *SyncService) decrypt(r *models.Replica) (*models.PlainFile, error) {
	plain, err := s.codec.Decrypt(r.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Filename, common.ErrDecryption)
	}
	return plainFile(r, string(plain)), nil
}

// UploadFile stores one file for the device, or reports a conflict when
// the stored replica has different content that is at least as new.
func (s *SyncService) UploadFile(ctx context.Context, userID, deviceID string, file models.ProposedFile) (*UploadResult, error) {
	p, err := s.prepare(file)
	if err != nil {
		return nil, err
	}

	out, err := s.reconcile(ctx, userID, deviceID, p, true)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, userID, deviceID)

	res := &UploadResult{Decision: out.decision}
	switch out.decision {
	case DecisionConflict:
		desc, err := s.conflict(p, out.stored)
		if err != nil {
			return nil, err
		}
		res.Conflict = desc
	case DecisionUnchanged:
		res.File = plainFile(out.stored, p.file.Content)
		res.File.DeviceName = s.deviceName(ctx, userID, out.stored.DeviceID)
	default:
		s.accepted(ctx, out)
		res.File = plainFile(out.stored, p.file.Content)
		res.File.DeviceName = s.deviceName(ctx, userID, deviceID)
	}

	s.logger.Info(ctx, "file uploaded", "user_id", userID, "device_id", deviceID,
		"filename", p.file.Filename, "decision", out.decision.String())
	return res, nil
}

// DownloadFile returns the decrypted replica or common.ErrorNotFound.
func (s *SyncService) DownloadFile(ctx context.Context, userID, filename string) (*models.PlainFile, error) {
	r, err := s.store.Get(ctx, userID, filename)
	if err != nil {
		return nil, err
	}
	f, err := s.decrypt(r)
	if err != nil {
		return nil, err
	}
	f.DeviceName = s.deviceName(ctx, userID, r.DeviceID)
	return f, nil
}

// ListFiles returns all of the user's files, most recently updated first.
func (s *SyncService) ListFiles(ctx context.Context, userID string) ([]*models.PlainFile, error) {
	replicas, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}

	result := make([]*models.PlainFile, 0, len(replicas))
	for _, r := range replicas {
		f, err := s.decrypt(r)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

// DeleteFile removes the replica for good and reports whether it existed.
func (s *SyncService) DeleteFile(ctx context.Context, userID, deviceID, filename string) (bool, error) {
	var deleted bool

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		deleted, err = s.store.delete(ctx, tx, userID, filename)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		_, err = s.quota.recompute(ctx, tx, userID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("error deleting file: %w", err)
	}

	if deleted {
		s.notifier.Publish(models.ChangeEvent{
			Type:     models.ChangeDeleted,
			UserID:   userID,
			DeviceID: deviceID,
			Filename: filename,
		})
		s.logger.Info(ctx, "file deleted", "user_id", userID, "filename", filename)
	}
	return deleted, nil
}

// UserStats summarises files, devices and the latest completed sync.
func (s *SyncService) UserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	if _, err := s.quota.user(ctx, s.db, userID); err != nil {
		return nil, err
	}

	count, size, err := s.store.totals(ctx, userID)
	if err != nil {
		return nil, err
	}

	last, err := s.sessions.LastCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error reading sessions: %w", err)
	}

	devices, err := s.devices.ListWithFileCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing devices: %w", err)
	}

	return &models.UserStats{
		TotalFiles:             count,
		TotalSize:              size,
		LastCompletedSessionAt: last,
		Devices:                devices,
	}, nil
}

func (s *SyncService) Usage(ctx context.Context, userID string) (models.StorageInfo, error) {
	return s.quota.Usage(ctx, userID)
}

// SyncBatch reconciles several files in one call. The quota is checked for
// the whole batch up front; after that each file succeeds, conflicts or
// fails on its own. The response carries the server state of every file
// the user had before the call, except the conflicting ones.
func (s *SyncService) SyncBatch(ctx context.Context, userID, deviceID string, files []models.ProposedFile) (*BatchResult, error) {
	if len(files) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d files exceeds limit %d", common.ErrorValidation, len(files), s.maxBatchSize)
	}

	if err := s.quota.CheckBatch(ctx, userID, files); err != nil {
		return nil, err
	}

	session, err := s.sessions.Open(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, userID, deviceID)

	res := &BatchResult{SessionID: session.ID}
	if err := s.runBatch(ctx, userID, deviceID, files, res); err != nil {
		if ferr := s.sessions.Fail(context.WithoutCancel(ctx), session, res.Counts); ferr != nil {
			s.logger.Error(ctx, "could not mark session failed", "session_id", session.ID, "error", ferr)
		}
		s.logger.Error(ctx, "batch sync failed", "user_id", userID, "session_id", session.ID, "error", err)
		return nil, err
	}

	if err := s.sessions.Complete(ctx, session, res.Counts); err != nil {
		// the files are committed; close the session so it does not stay active
		if ferr := s.sessions.Fail(context.WithoutCancel(ctx), session, res.Counts); ferr != nil {
			s.logger.Error(ctx, "could not close session", "session_id", session.ID, "error", ferr)
		}
		s.logger.Error(ctx, "could not complete session", "user_id", userID, "session_id", session.ID, "error", err)
		return nil, err
	}

	s.logger.Info(ctx, "batch synced", "user_id", userID, "device_id", deviceID, "session_id", session.ID,
		"synced", res.Counts.Synced, "failed", res.Counts.Failed, "conflicted", res.Counts.Conflicted)
	return res, nil
}

func (s *SyncService) runBatch(ctx context.Context, userID, deviceID string, files []models.ProposedFile, res *BatchResult) error {
	snapshot, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("error reading snapshot: %w", err)
	}

	conflicted := make(map[string]struct{})
	replaced := make(map[string]*models.PlainFile)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		desc, updated, err := s.syncOne(ctx, userID, deviceID, f)
		switch {
		case err != nil && ctx.Err() != nil:
			return err
		case err != nil:
			s.logger.Warn(ctx, "file failed in batch", "user_id", userID, "filename", f.Filename, "error", err)
			res.Failed = append(res.Failed, FailedFile{Filename: f.Filename, Reason: err.Error()})
			res.Counts.Failed++
		case desc != nil:
			res.Conflicts = append(res.Conflicts, desc)
			conflicted[desc.Filename] = struct{}{}
			res.Counts.Conflicted++
		default:
			if updated != nil {
				replaced[updated.Filename] = updated
			}
			res.Counts.Synced++
		}
	}

	if _, err := s.quota.RecomputeFromStore(ctx, userID); err != nil {
		return err
	}

	res.Files = make([]*models.PlainFile, 0, len(snapshot))
	for _, r := range snapshot {
		if _, ok := conflicted[r.Filename]; ok {
			continue
		}
		if f, ok := replaced[r.Filename]; ok {
			res.Files = append(res.Files, f)
			continue
		}
		f, err := s.decrypt(r)
		if err != nil {
			s.logger.Error(ctx, "snapshot entry skipped", "user_id", userID, "filename", r.Filename, "error", err)
			continue
		}
		res.Files = append(res.Files, f)
	}

	return nil
}

// syncOne returns a descriptor on conflict, or the new state of a replaced
// file. Creations and no-ops return neither.
func (s *SyncService) syncOne(ctx context.Context, userID, deviceID string, f models.ProposedFile) (*models.ConflictDescriptor, *models.PlainFile, error) {
	p, err := s.prepare(f)
	if err != nil {
		return nil, nil, err
	}

	out, err := s.reconcile(ctx, userID, deviceID, p, false)
	if err != nil {
		return nil, nil, err
	}

	switch out.decision {
	case DecisionConflict:
		desc, err := s.conflict(p, out.stored)
		return desc, nil, err
	case DecisionUnchanged:
		return nil, nil, nil
	}

	s.accepted(ctx, out)
	if out.decision != DecisionReplace {
		return nil, nil, nil
	}
	updated := plainFile(out.stored, p.file.Content)
	updated.DeviceName = s.deviceName(ctx, userID, deviceID)
	return nil, updated, nil
}
