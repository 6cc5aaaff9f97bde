package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/server/auth"
	"github.com/dmitrijs2005/gophsync/internal/server/config"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// test seams
var (
	newPairingSecret = cryptox.NewPairingSecret
	generateToken    = auth.GenerateToken
)

type rootOptions struct {
	configPath string
	dsn        string
	secret     string
}

// loadConfig reads the server configuration file, then applies the DSN and
// secret overrides given on the command line.
func (o *rootOptions) loadConfig() *config.Config {
	var args []string
	if o.configPath != "" {
		args = []string{"-c", o.configPath}
	}
	cfg := config.LoadConfigFromArgs(args)
	if o.dsn != "" {
		cfg.DatabaseDSN = o.dsn
	}
	if o.secret != "" {
		cfg.SecretKey = o.secret
	}
	return cfg
}

// NewRootCmd builds the syncadmin command tree. open connects to the
// deployment; commands that need no database never call it.
func NewRootCmd(open Opener) *cobra.Command {
	o := &rootOptions{}

	root := &cobra.Command{
		Use:           "syncadmin",
		Short:         "Administer a gophsync server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "server config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&o.dsn, "dsn", "", "PostgreSQL DSN, overrides the config file")
	root.PersistentFlags().StringVar(&o.secret, "secret", "", "token signing secret, overrides the config file")

	// withBackend runs fn against an opened backend and closes it afterwards.
	withBackend := func(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, b Backend) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg := o.loadConfig()
		b, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		return fn(ctx, cfg, b)
	}

	root.AddCommand(
		migrateCmd(withBackend),
		userCmd(withBackend),
		deviceCmd(withBackend),
		quotaCmd(withBackend),
		statsCmd(withBackend),
		pairCmd(),
		archiveCmd(withBackend),
	)
	return root
}

type backendRunner func(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, b Backend) error) error

func migrateCmd(run backendRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, _ *config.Config, b Backend) error {
				if err := b.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func userCmd(run backendRunner) *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var limit int64
	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, _ *config.Config, b Backend) error {
				u, err := b.CreateUser(ctx, args[0], limit)
				if err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s created (%s), limit %s\n",
					u.ID, u.Email, humanize.IBytes(uint64(u.StorageLimit)))
				return nil
			})
		},
	}
	create.Flags().Int64Var(&limit, "limit", 0, "storage limit in bytes (server default when 0)")

	user.AddCommand(create)
	return user
}

func deviceCmd(run backendRunner) *cobra.Command {
	device := &cobra.Command{Use: "device", Short: "Manage devices"}

	var kind, platform string
	register := &cobra.Command{
		Use:   "register <user> <name>",
		Short: "Register a device and print its access token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, cfg *config.Config, b Backend) error {
				d, err := b.RegisterDevice(ctx, args[0], args[1], models.DeviceKind(kind), platform)
				if err != nil {
					return fmt.Errorf("register device: %w", err)
				}
				tok, err := generateToken(d.UserID, d.ID, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
				if err != nil {
					return fmt.Errorf("token: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "device %s (%s, %s) registered\n", d.ID, d.Name, d.Kind)
				fmt.Fprintf(out, "access token (valid %s):\n%s\n", cfg.AccessTokenValidityDuration, tok)
				return nil
			})
		},
	}
	register.Flags().StringVar(&kind, "kind", string(models.DeviceKindDesktop), "device kind (desktop|mobile)")
	register.Flags().StringVar(&platform, "platform", "", "platform label, e.g. linux or ios")

	device.AddCommand(register)
	return device
}

func printUsage(w io.Writer, info models.StorageInfo) {
	fmt.Fprintf(w, "used %s of %s (%d%%), %s available\n",
		humanize.IBytes(uint64(info.Used)), humanize.IBytes(uint64(info.Limit)),
		info.PercentUsed, humanize.IBytes(uint64(info.Available)))
}

func quotaCmd(run backendRunner) *cobra.Command {
	quota := &cobra.Command{Use: "quota", Short: "Inspect and repair storage quotas"}

	show := &cobra.Command{
		Use:   "show <user>",
		Short: "Show storage usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, _ *config.Config, b Backend) error {
				info, err := b.Usage(ctx, args[0])
				if err != nil {
					return fmt.Errorf("usage: %w", err)
				}
				printUsage(cmd.OutOrStdout(), info)
				return nil
			})
		},
	}

	recompute := &cobra.Command{
		Use:   "recompute <user>",
		Short: "Recalculate storage usage from stored files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, _ *config.Config, b Backend) error {
				used, err := b.Recompute(ctx, args[0])
				if err != nil {
					return fmt.Errorf("recompute: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "storage used is now %s (%d bytes)\n",
					humanize.IBytes(uint64(used)), used)
				return nil
			})
		},
	}

	quota.AddCommand(show, recompute)
	return quota
}

func statsCmd(run backendRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user>",
		Short: "Show file and device statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, _ *config.Config, b Backend) error {
				st, err := b.Stats(ctx, args[0])
				if err != nil {
					return fmt.Errorf("stats: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "files: %d, total size: %s\n", st.TotalFiles, humanize.IBytes(uint64(st.TotalSize)))
				if st.LastCompletedSessionAt != nil {
					fmt.Fprintf(out, "last sync: %s\n", st.LastCompletedSessionAt.Format(time.RFC3339))
				} else {
					fmt.Fprintln(out, "last sync: never")
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DEVICE\tNAME\tFILES\tLAST ACTIVE")
				for _, d := range st.Devices {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.DeviceID, d.Name, d.FileCount, humanize.Time(d.LastActive))
				}
				return tw.Flush()
			})
		},
	}
}

func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Print a six-digit pairing code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := newPairingSecret()
			if err != nil {
				return fmt.Errorf("pairing code: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func archiveCmd(run backendRunner) *cobra.Command {
	archive := &cobra.Command{Use: "archive", Short: "Access archived file versions"}

	var version int64
	url := &cobra.Command{
		Use:   "url <user> <filename>",
		Short: "Print a presigned download URL for an archived version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if version < 1 {
				return fmt.Errorf("--version must be at least 1")
			}
			return run(cmd, func(ctx context.Context, _ *config.Config, b Backend) error {
				u, err := b.ArchiveURL(ctx, args[0], args[1], version)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}
	url.Flags().Int64Var(&version, "version", 0, "archived version number")

	var output string
	get := &cobra.Command{
		Use:   "get <user> <filename>",
		Short: "Download and decrypt an archived version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if version < 1 {
				return fmt.Errorf("--version must be at least 1")
			}
			return run(cmd, func(ctx context.Context, cfg *config.Config, b Backend) error {
				if err := cfg.EnsurePassphrase(os.Stdin, cmd.ErrOrStderr()); err != nil {
					return err
				}
				data, err := b.ArchiveContent(ctx, args[0], args[1], version)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", output, humanize.IBytes(uint64(len(data))))
				return nil
			})
		},
	}
	get.Flags().Int64Var(&version, "version", 0, "archived version number")
	get.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	archive.AddCommand(url, get)
	return archive
}
