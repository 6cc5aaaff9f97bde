package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/client/client"
	"github.com/dmitrijs2005/gophsync/internal/client/config"
	"github.com/dmitrijs2005/gophsync/internal/client/models"
	"github.com/dmitrijs2005/gophsync/internal/client/services"
	gs "github.com/dmitrijs2005/gophsync/internal/server/grpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	pushes, pulls int
	deleted       []string

	report  *services.Report
	pending []*models.LocalFile
	err     error
}

func (f *fakeAgent) Push(context.Context) (*services.Report, error) {
	f.pushes++
	return f.report, f.err
}

func (f *fakeAgent) Pull(context.Context) (*services.Report, error) {
	f.pulls++
	return f.report, f.err
}

func (f *fakeAgent) Pending(context.Context) ([]*models.LocalFile, error) {
	return f.pending, f.err
}

func (f *fakeAgent) ApplyDelete(_ context.Context, name string) (bool, error) {
	f.deleted = append(f.deleted, name)
	return true, f.err
}

type fakeFeed struct {
	events []client.Event
	wait   <-chan struct{}
}

func (f *fakeFeed) Listen(ctx context.Context, fn func(context.Context, client.Event)) error {
	for _, ev := range f.events {
		fn(ctx, ev)
	}
	if f.wait != nil {
		<-f.wait
	}
	return errors.New("feed closed")
}

// fakeLocal reports one local change, then waits for cancellation.
type fakeLocal struct {
	fired chan struct{}
}

func (f *fakeLocal) Watch(ctx context.Context, fn func(context.Context)) error {
	fn(ctx)
	close(f.fired)
	<-ctx.Done()
	return ctx.Err()
}

func run(t *testing.T, agent *fakeAgent, feed *fakeFeed, args ...string) (string, bool, error) {
	t.Helper()
	closed := false
	local := &fakeLocal{fired: make(chan struct{})}
	if feed.wait == nil {
		feed.wait = local.fired
	}
	open := func(context.Context, *config.Config) (*Session, error) {
		return &Session{Agent: agent, Feed: feed, Local: local, Close: func() error { closed = true; return nil }}, nil
	}

	var out bytes.Buffer
	cmd := NewRootCmd(&config.Config{}, open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), closed, err
}

func TestPush_PrintsReport(t *testing.T) {
	agent := &fakeAgent{report: &services.Report{
		Uploaded:   []string{"a.txt"},
		Downloaded: []string{"b.txt"},
		Conflicts:  []string{"c.txt"},
		Skipped:    []string{"d.txt"},
		Failed:     []gs.FailedFile{{Filename: "e.txt", Reason: "storage limit exceeded"}},
	}}

	out, closed, err := run(t, agent, &fakeFeed{}, "push")
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 1, agent.pushes)
	assert.Contains(t, out, "uploaded a.txt")
	assert.Contains(t, out, "downloaded b.txt")
	assert.Contains(t, out, "conflict c.txt (server copy in c.txt.conflict)")
	assert.Contains(t, out, "skipped d.txt")
	assert.Contains(t, out, "failed e.txt: storage limit exceeded")
}

func TestPush_Error(t *testing.T) {
	_, closed, err := run(t, &fakeAgent{err: errors.New("unavailable")}, &fakeFeed{}, "push")
	assert.ErrorContains(t, err, "push: unavailable")
	assert.True(t, closed)
}

func TestPull(t *testing.T) {
	agent := &fakeAgent{report: &services.Report{Downloaded: []string{"x"}}}
	out, _, err := run(t, agent, &fakeFeed{}, "pull")
	require.NoError(t, err)
	assert.Equal(t, 1, agent.pulls)
	assert.Equal(t, "downloaded x\n", out)
}

func TestStatus(t *testing.T) {
	out, _, err := run(t, &fakeAgent{}, &fakeFeed{}, "status")
	require.NoError(t, err)
	assert.Equal(t, "up to date\n", out)

	agent := &fakeAgent{pending: []*models.LocalFile{
		{Filename: "z.txt", Content: make([]byte, 2048), ModTime: time.Now()},
		{Filename: "a.txt", Content: []byte("hi"), ModTime: time.Now()},
	}}
	out, _, err = run(t, agent, &fakeFeed{}, "status")
	require.NoError(t, err)
	assert.Regexp(t, `(?s)^a\.txt\t2 B\t.*\nz\.txt\t2\.0 KiB\t`, out)
}

func TestWatch(t *testing.T) {
	agent := &fakeAgent{report: &services.Report{}}
	feed := &fakeFeed{events: []client.Event{
		{Type: "file.updated", Filename: "a.txt", Version: 2},
		{Type: "file.deleted", Filename: "b.txt"},
	}}

	out, _, err := run(t, agent, feed, "watch")
	assert.ErrorContains(t, err, "feed closed")
	assert.Equal(t, 2, agent.pushes, "initial push and one for the local change")
	assert.Equal(t, 1, agent.pulls)
	assert.Equal(t, []string{"b.txt"}, agent.deleted)
	assert.Contains(t, out, "deleted b.txt")
}

func TestConnectionFlagsIgnored(t *testing.T) {
	agent := &fakeAgent{report: &services.Report{}}
	_, _, err := run(t, agent, &fakeFeed{}, "-a", "127.0.0.1:1", "pull")
	require.NoError(t, err)
	assert.Equal(t, 1, agent.pulls)
}

func TestOpenError(t *testing.T) {
	open := func(context.Context, *config.Config) (*Session, error) { return nil, errors.New("no db") }
	cmd := NewRootCmd(&config.Config{}, open)
	cmd.SetArgs([]string{"status"})
	cmd.SetOut(&bytes.Buffer{})
	assert.ErrorContains(t, cmd.Execute(), "no db")
}
