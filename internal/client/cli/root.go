package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophsync/internal/client/client"
	"github.com/dmitrijs2005/gophsync/internal/client/config"
	"github.com/dmitrijs2005/gophsync/internal/client/services"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the gophsync command tree around cfg.
func NewRootCmd(cfg *config.Config, open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "gophsync",
		Short:         "Keep a directory in sync with a gophsync server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withSession := func(cmd *cobra.Command, fn func(ctx context.Context, s *Session) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, s)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "push",
			Short: "Upload local changes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSession(cmd, func(ctx context.Context, s *Session) error {
					rep, err := s.Agent.Push(ctx)
					if rep != nil {
						printReport(cmd.OutOrStdout(), rep)
					}
					if err != nil {
						return fmt.Errorf("push: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "pull",
			Short: "Download changes made on other devices",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSession(cmd, func(ctx context.Context, s *Session) error {
					rep, err := s.Agent.Pull(ctx)
					if rep != nil {
						printReport(cmd.OutOrStdout(), rep)
					}
					if err != nil {
						return fmt.Errorf("pull: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List local files not synced yet",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSession(cmd, func(ctx context.Context, s *Session) error {
					pending, err := s.Agent.Pending(ctx)
					if err != nil {
						return fmt.Errorf("status: %w", err)
					}
					out := cmd.OutOrStdout()
					if len(pending) == 0 {
						fmt.Fprintln(out, "up to date")
						return nil
					}
					sort.Slice(pending, func(i, j int) bool { return pending[i].Filename < pending[j].Filename })
					for _, f := range pending {
						fmt.Fprintf(out, "%s\t%s\t%s\n", f.Filename, humanize.IBytes(uint64(len(f.Content))), humanize.Time(f.ModTime))
					}
					return nil
				})
			},
		},
		watchCmd(withSession),
	)

	// -a, -t and the other connection flags belong to the config package
	root.FParseErrWhitelist.UnknownFlags = true
	for _, c := range root.Commands() {
		c.FParseErrWhitelist.UnknownFlags = true
	}
	return root
}

func watchCmd(withSession func(*cobra.Command, func(context.Context, *Session) error) error) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync once, then follow local edits and changes from other devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, s *Session) error {
				out := cmd.OutOrStdout()

				rep, err := s.Agent.Push(ctx)
				if err != nil {
					return fmt.Errorf("push: %w", err)
				}
				printReport(out, rep)

				// the feed and the directory watcher share the agent and out
				var mu sync.Mutex

				onEvent := func(ctx context.Context, ev client.Event) {
					mu.Lock()
					defer mu.Unlock()

					if ev.Type == "file.deleted" {
						if removed, err := s.Agent.ApplyDelete(ctx, ev.Filename); err != nil {
							fmt.Fprintf(out, "delete %s: %v\n", ev.Filename, err)
						} else if removed {
							fmt.Fprintf(out, "deleted %s\n", ev.Filename)
						}
						return
					}
					rep, err := s.Agent.Pull(ctx)
					if err != nil {
						fmt.Fprintf(out, "pull: %v\n", err)
						return
					}
					printReport(out, rep)
				}

				onLocal := func(ctx context.Context) {
					mu.Lock()
					defer mu.Unlock()

					rep, err := s.Agent.Push(ctx)
					if err != nil {
						fmt.Fprintf(out, "push: %v\n", err)
						return
					}
					printReport(out, rep)
				}

				ctx, cancel := context.WithCancel(ctx)
				defer cancel()

				errs := make(chan error, 2)
				go func() { errs <- s.Feed.Listen(ctx, onEvent) }()
				go func() { errs <- s.Local.Watch(ctx, onLocal) }()

				// the first one to stop ends the command
				err = <-errs
				parentDone := ctx.Err() != nil
				cancel()
				<-errs

				if parentDone {
					return nil
				}
				return err
			})
		},
	}
}

func printReport(w io.Writer, rep *services.Report) {
	for _, name := range rep.Uploaded {
		fmt.Fprintf(w, "uploaded %s\n", name)
	}
	for _, name := range rep.Downloaded {
		fmt.Fprintf(w, "downloaded %s\n", name)
	}
	for _, name := range rep.Conflicts {
		fmt.Fprintf(w, "conflict %s (server copy in %s%s)\n", name, name, services.ConflictSuffix)
	}
	for _, name := range rep.Skipped {
		fmt.Fprintf(w, "skipped %s (local edits)\n", name)
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "failed %s: %s\n", f.Filename, f.Reason)
	}
}
