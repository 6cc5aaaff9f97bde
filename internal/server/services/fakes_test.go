package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/dbx"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/devices"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// memDB backs every fake repository. Transactions only come from the real
// *sql.DB handed to the services; the fakes ignore the DBTX they get.
type memDB struct {
	mu       sync.Mutex
	tick     int
	users    map[string]*models.User
	devices  map[string]*models.Device
	files    map[string]map[string]*models.Replica
	sessions map[string]*models.SyncSession

	// fault injection
	lostRaces   int
	insertErr   error
	listErr     error
	createSessE error
	finishErr   error
	completeErr error
	getErr      map[string]error
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]*models.User{},
		devices:  map[string]*models.Device{},
		files:    map[string]map[string]*models.Replica{},
		sessions: map[string]*models.SyncSession{},
		getErr:   map[string]error{},
	}
}

func (m *memDB) now() time.Time {
	m.tick++
	return time.Date(2024, 1, 1, 0, 0, m.tick, 0, time.UTC)
}

func (m *memDB) addUser(id string, used, limit int64) {
	m.users[id] = &models.User{ID: id, Email: id + "@example.com", StorageUsed: used, StorageLimit: limit}
}

func (m *memDB) addDevice(userID, id, name string) {
	m.devices[id] = &models.Device{ID: id, UserID: userID, Name: name, Kind: models.DeviceKindDesktop}
}

func (m *memDB) replica(userID, filename string) *models.Replica {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.files[userID][filename]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (m *memDB) put(r *models.Replica) {
	if m.files[r.UserID] == nil {
		m.files[r.UserID] = map[string]*models.Replica{}
	}
	cp := *r
	m.files[r.UserID][r.Filename] = &cp
}

type memUsers struct {
	users.Repository
	m *memDB
}

func (r *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.users {
		if x.Email == u.Email {
			return nil, fmt.Errorf("db error: %w", common.ErrAlreadyExists)
		}
	}
	cp := *u
	r.m.users[u.ID] = &cp
	return u, nil
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *memUsers) RecomputeStorageUsed(ctx context.Context, id string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	var sum int64
	for _, f := range r.m.files[id] {
		sum += f.Size
	}
	u.StorageUsed = sum
	return sum, nil
}

type memFiles struct {
	m *memDB
}

var _ files.Repository = (*memFiles)(nil)

func (r *memFiles) Get(ctx context.Context, userID, filename string) (*models.Replica, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.getErr[filename]; err != nil {
		return nil, err
	}
	f, ok := r.m.files[userID][filename]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *memFiles) ListByUser(ctx context.Context, userID string) ([]*models.Replica, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.listErr != nil {
		return nil, r.m.listErr
	}
	var out []*models.Replica
	for _, f := range r.m.files[userID] {
		cp := *f
		cp.DeviceName = common.UnknownDeviceName
		if d, ok := r.m.devices[f.DeviceID]; ok {
			cp.DeviceName = d.Name
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memFiles) Insert(ctx context.Context, rep *models.Replica) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.insertErr != nil {
		return r.m.insertErr
	}
	if _, ok := r.m.files[rep.UserID][rep.Filename]; ok {
		return common.ErrVersionConflict
	}
	now := r.m.now()
	rep.Version, rep.CreatedAt, rep.UpdatedAt = 1, now, now
	r.m.put(rep)
	return nil
}

func (r *memFiles) Replace(ctx context.Context, rep *models.Replica, expected int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.files[rep.UserID][rep.Filename]
	if !ok {
		return common.ErrVersionConflict
	}
	if r.m.lostRaces > 0 {
		// another writer bumps the row between our read and our write
		r.m.lostRaces--
		cur.Version++
		cur.UpdatedAt = r.m.now()
	}
	if cur.Version != expected {
		return common.ErrVersionConflict
	}
	rep.ID, rep.CreatedAt = cur.ID, cur.CreatedAt
	rep.Version, rep.UpdatedAt = cur.Version+1, r.m.now()
	r.m.put(rep)
	return nil
}

func (r *memFiles) Delete(ctx context.Context, userID, filename string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.files[userID][filename]; !ok {
		return false, nil
	}
	delete(r.m.files[userID], filename)
	return true, nil
}

func (r *memFiles) Totals(ctx context.Context, userID string) (int64, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var size int64
	for _, f := range r.m.files[userID] {
		size += f.Size
	}
	return int64(len(r.m.files[userID])), size, nil
}

type memDevices struct {
	m *memDB
}

var _ devices.Repository = (*memDevices)(nil)

func (r *memDevices) Upsert(ctx context.Context, d *models.Device) (*models.Device, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[d.UserID]; !ok {
		return nil, fmt.Errorf("db error: %w", common.ErrInvalidReference)
	}
	for _, x := range r.m.devices {
		if x.UserID == d.UserID && x.Name == d.Name {
			x.Kind, x.Platform, x.LastActive = d.Kind, d.Platform, r.m.now()
			cp := *x
			return &cp, nil
		}
	}
	d.LastActive = r.m.now()
	d.CreatedAt = d.LastActive
	cp := *d
	r.m.devices[d.ID] = &cp
	return d, nil
}

func (r *memDevices) GetByID(ctx context.Context, userID, id string) (*models.Device, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.devices[id]
	if !ok || d.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDevices) Touch(ctx context.Context, userID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.devices[id]
	if !ok || d.UserID != userID {
		return common.ErrorNotFound
	}
	d.LastActive = r.m.now()
	return nil
}

func (r *memDevices) ListWithFileCounts(ctx context.Context, userID string) ([]*models.DeviceStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.DeviceStats
	for _, d := range r.m.devices {
		if d.UserID != userID {
			continue
		}
		st := &models.DeviceStats{DeviceID: d.ID, Name: d.Name, LastActive: d.LastActive}
		for _, f := range r.m.files[userID] {
			if f.DeviceID == d.ID {
				st.FileCount++
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memSessions struct {
	m *memDB
}

var _ sessions.Repository = (*memSessions)(nil)

func (r *memSessions) Create(ctx context.Context, s *models.SyncSession) (*models.SyncSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.createSessE != nil {
		return nil, r.m.createSessE
	}
	s.StartedAt = r.m.now()
	cp := *s
	r.m.sessions[s.ID] = &cp
	return s, nil
}

func (r *memSessions) Finish(ctx context.Context, s *models.SyncSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.finishErr != nil {
		return r.m.finishErr
	}
	if r.m.completeErr != nil && s.Status == models.SessionCompleted {
		return r.m.completeErr
	}
	cur, ok := r.m.sessions[s.ID]
	if !ok || cur.Status != models.SessionActive {
		return common.ErrInvalidTransition
	}
	done := r.m.now()
	s.CompletedAt = &done
	cp := *s
	r.m.sessions[s.ID] = &cp
	return nil
}

func (r *memSessions) LastCompleted(ctx context.Context, userID string) (*time.Time, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var last *time.Time
	for _, s := range r.m.sessions {
		if s.UserID == userID && s.Status == models.SessionCompleted && s.CompletedAt != nil {
			if last == nil || s.CompletedAt.After(*last) {
				t := *s.CompletedAt
				last = &t
			}
		}
	}
	return last, nil
}

func (m *memDB) onlySession(t *testing.T) *models.SyncSession {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.sessions, 1)
	for _, s := range m.sessions {
		cp := *s
		return &cp
	}
	return nil
}

type memManager struct {
	m *memDB
}

func (mm *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (mm *memManager) Users(dbx.DBTX) users.Repository             { return &memUsers{m: mm.m} }
func (mm *memManager) Devices(dbx.DBTX) devices.Repository         { return &memDevices{m: mm.m} }
func (mm *memManager) Files(dbx.DBTX) files.Repository             { return &memFiles{m: mm.m} }
func (mm *memManager) Sessions(dbx.DBTX) sessions.Repository       { return &memSessions{m: mm.m} }

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (n *recordingNotifier) Publish(e models.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

type fakeArchiver struct {
	archived []*models.Replica
	err      error
}

func (a *fakeArchiver) Archive(ctx context.Context, r *models.Replica) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.archived = append(a.archived, r)
	return fmt.Sprintf("users/%s/%s/v%d", r.UserID, r.Filename, r.Version), nil
}

// txDB is a real database used only for BEGIN/COMMIT/ROLLBACK.
func txDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testCodec(t *testing.T) *cryptox.Codec {
	t.Helper()
	c, err := cryptox.NewCodec(cryptox.DeriveKey([]byte("test passphrase"), []byte("salt")))
	require.NoError(t, err)
	return c
}

type harness struct {
	mem      *memDB
	svc      *SyncService
	codec    *cryptox.Codec
	notifier *recordingNotifier
	archiver *fakeArchiver
}

func newHarness(t *testing.T, opts ...SyncOption) *harness {
	t.Helper()
	mem := newMemDB()
	db := txDB(t)
	rm := &memManager{m: mem}
	codec := testCodec(t)
	n := &recordingNotifier{}
	a := &fakeArchiver{}
	log := logging.Nop()

	svc := NewSyncService(db, rm, SyncDeps{
		Codec:    codec,
		Quota:    NewQuotaService(db, rm),
		Store:    NewFileStore(db, rm, a, log),
		Sessions: NewSessionLedger(db, rm),
		Devices:  NewDeviceService(db, rm),
		Notifier: n,
		Logger:   log,
	}, opts...)

	return &harness{mem: mem, svc: svc, codec: codec, notifier: n, archiver: a}
}

// seed stores plaintext content as an existing replica.
func (h *harness) seed(t *testing.T, userID, deviceID, filename, content string, modified time.Time, version int64) {
	t.Helper()
	ct, err := h.codec.Encrypt([]byte(content))
	require.NoError(t, err)
	h.mem.mu.Lock()
	defer h.mem.mu.Unlock()
	now := h.mem.now()
	h.mem.put(&models.Replica{
		ID: cryptox.NewID(), UserID: userID, Filename: filename, Content: ct,
		ContentHash: h.codec.Hash([]byte(content)), Size: int64(len(content)),
		LastModified: modified, DeviceID: deviceID, Version: version, CreatedAt: now, UpdatedAt: now,
	})
	h.mem.users[userID].StorageUsed += int64(len(content))
}

// corrupt replaces the stored ciphertext with bytes no key can open.
func (h *harness) corrupt(userID, filename string) {
	h.mem.mu.Lock()
	defer h.mem.mu.Unlock()
	h.mem.files[userID][filename].Content = []byte("not a valid sealed box at all")
}

var errBoom = errors.New("boom")
