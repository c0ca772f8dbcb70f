package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/initializ/distpub/artifacts"
	"github.com/initializ/distpub/distribution"
	"github.com/spf13/cobra"
)

var (
	bundleRunID string
	bundleDir   string
	bundleName  string
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Manage distribution bundles in the artifact store",
}

var bundlePushCmd = &cobra.Command{
	Use:   "push [files...]",
	Short: "Stage distributions as a bundle in the configured store",
	Long: "Stage distributions as a bundle in the configured fs, s3 or gcs store. " +
		"With no files, every distribution under --dir is pushed.",
	RunE: runBundlePush,
}

func init() {
	bundlePushCmd.Flags().StringVar(&bundleRunID, "run-id", "", "run id to scope the bundle to (default $GITHUB_RUN_ID, else a new id)")
	bundlePushCmd.Flags().StringVar(&bundleDir, "dir", "dist", "directory the files are relative to")
	bundlePushCmd.Flags().StringVar(&bundleName, "name", "", "bundle name (default artifact.name from the config)")
	bundleCmd.AddCommand(bundlePushCmd)
}

func runBundlePush(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	cfg, _, err := loadAndValidate(true)
	if err != nil {
		return err
	}

	name := bundleName
	if name == "" {
		name = cfg.Artifact.Name
	}
	runID := resolveRunID(bundleRunID, env)
	if runID == "" {
		runID = uuid.NewString()
	}

	root, err := filepath.Abs(bundleDir)
	if err != nil {
		return err
	}
	files, err := bundleFiles(root, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := artifacts.NewStore(ctx, cfg.Artifact.Store, artifacts.StoreOptions{RunID: runID, Env: env})
	if err != nil {
		return fmt.Errorf("creating %s store: %w", cfg.Artifact.Store.Type, err)
	}
	up, ok := artifacts.AsUploader(store)
	if !ok {
		return fmt.Errorf("store %s does not support push; bundles there are uploaded by the build job", store.Name())
	}
	if err := up.Upload(ctx, name, root, files); err != nil {
		return fmt.Errorf("pushing bundle %s: %w", name, err)
	}

	fmt.Fprintf(os.Stderr, "Pushed %d file(s) as %s to %s store.\n", len(files), name, store.Name())
	fmt.Println(runID)
	return nil
}

// bundleFiles returns paths relative to root. With no args every
// distribution under root is used.
func bundleFiles(root string, args []string) ([]string, error) {
	paths := args
	if len(paths) == 0 {
		found, err := distribution.Discover(root)
		if err != nil {
			return nil, err
		}
		paths = found
	}
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, p)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return nil, err
		}
		if _, err := artifacts.CleanRelPath(rel); err != nil {
			return nil, fmt.Errorf("%s is outside %s", p, root)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, err
		}
		files = append(files, filepath.ToSlash(rel))
	}
	return files, nil
}
