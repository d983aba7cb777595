// Package cli implements docctl, the operator command line for the document
// service storage backends.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/docservice/internal/application/storage"
	"github.com/erp/docservice/internal/domain/document"
)

// FolderMover relocates a folder on the active backend
type FolderMover interface {
	MoveFolder(ctx context.Context, oldPath, newPath string) (*storage.MoveReport, error)
}

// FileReader lists and fetches stored artifacts
type FileReader interface {
	List(ctx context.Context, dir string) ([]document.FileEntry, error)
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// DevCleaner prunes the local debug copies of rendered documents
type DevCleaner interface {
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// BucketChecker verifies the object store bucket is reachable
type BucketChecker interface {
	Ping(ctx context.Context) error
}

// Env holds the collaborators a command runs against. Fields a command does
// not need may be nil.
type Env struct {
	Mover    FolderMover
	Files    FileReader
	Sessions storage.SessionProvider
	Bucket   BucketChecker
	Dev      DevCleaner
	// Close releases the resources behind the collaborators
	Close func()
}

// Loader builds the Env for one invocation from the --config flag value
type Loader func(ctx context.Context, configPath string) (*Env, error)

// NewRootCmd builds the docctl command tree
func NewRootCmd(load Loader) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "docctl",
		Short: "Document service operator CLI",
		Long: `docctl runs maintenance operations against the storage backends of the
document service using the same configuration as the server.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ./config.toml)")

	withEnv := func(cmd *cobra.Command, fn func(env *Env) error) error {
		env, err := load(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		if env.Close != nil {
			defer env.Close()
		}
		return fn(env)
	}

	root.AddCommand(moveFolderCmd(withEnv))
	root.AddCommand(listCmd(withEnv))
	root.AddCommand(fetchCmd(withEnv))
	root.AddCommand(loginCheckCmd(withEnv))
	root.AddCommand(checkBucketCmd(withEnv))
	root.AddCommand(cleanupDevOutputCmd(withEnv))
	return root
}

type envRunner func(cmd *cobra.Command, fn func(env *Env) error) error
