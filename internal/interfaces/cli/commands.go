package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/docservice/internal/infrastructure/remotefile"
)

var errNotConfigured = errors.New("not configured")

func moveFolderCmd(run envRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "move-folder <old> <new>",
		Short: "Move a folder on the active storage backend",
		Long: `Move every artifact under <old> to <new>. Both arguments are relative
paths or locators of the active backend. Object store moves that fail part
way print the paths left in place.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(env *Env) error {
				if env.Mover == nil {
					return fmt.Errorf("folder mover: %w", errNotConfigured)
				}
				report, err := env.Mover.MoveFolder(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				cmd.Printf("moved %s to %s on %s (%d objects)\n",
					report.Source, report.Destination, report.Backend, report.Objects)
				return nil
			})
		},
	}
}

func listCmd(run envRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "list [path]",
		Short: "List a folder on the active storage backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return run(cmd, func(env *Env) error {
				if env.Files == nil {
					return fmt.Errorf("storage: %w", errNotConfigured)
				}
				entries, err := env.Files.List(cmd.Context(), dir)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, e := range entries {
					kind := "file"
					if e.IsDir {
						kind = "dir"
					}
					fmt.Fprintf(w, "%s\t%s\t%d\n", kind, e.RelativePath, e.Size)
				}
				return w.Flush()
			})
		},
	}
}

func fetchCmd(run envRunner) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fetch <locator>",
		Short: "Download a stored artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(env *Env) error {
				if env.Files == nil {
					return fmt.Errorf("storage: %w", errNotConfigured)
				}
				data, err := env.Files.Fetch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				cmd.PrintErrf("wrote %d bytes to %s\n", len(data), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write, - for stdout")
	return cmd
}

func loginCheckCmd(run envRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "login-check",
		Short: "Verify the remote file server credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(env *Env) error {
				if env.Sessions == nil {
					return fmt.Errorf("remote file server: %w", errNotConfigured)
				}
				s, err := env.Sessions.Acquire(cmd.Context())
				if err != nil {
					return err
				}
				env.Sessions.Release(cmd.Context(), s, remotefile.ReleaseOptions{ClearCache: true})
				cmd.Println("remote file server login ok")
				return nil
			})
		},
	}
}

func checkBucketCmd(run envRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "check-bucket",
		Short: "Verify the object store bucket is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(env *Env) error {
				if env.Bucket == nil {
					return fmt.Errorf("object store: %w", errNotConfigured)
				}
				if err := env.Bucket.Ping(cmd.Context()); err != nil {
					return err
				}
				cmd.Println("object store bucket ok")
				return nil
			})
		},
	}
}

func cleanupDevOutputCmd(run envRunner) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup-dev-output",
		Short: "Delete local debug copies of rendered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return run(cmd, func(env *Env) error {
				if env.Dev == nil {
					return fmt.Errorf("dev output: %w", errNotConfigured)
				}
				n, err := env.Dev.CleanupOlderThan(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				cmd.Printf("removed %d files\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of removed files")
	return cmd
}
