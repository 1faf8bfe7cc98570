package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robolabs/robotutor/internal/index"
	"github.com/robolabs/robotutor/internal/logging"
)

// NewSnapshotCmd constructs the `robotutor snapshot` command group for
// inspecting and converting saved index snapshots.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and convert index snapshots",
	}
	cmd.AddCommand(newSnapshotExportCmd(), newSnapshotImportCmd())
	return cmd
}

// newSnapshotExportCmd re-serializes a snapshot, dropping any malformed
// entries. Useful after hand-editing or partial writes.
func newSnapshotExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [src] [dst]",
		Short: "Rewrite a snapshot, dropping malformed entries",
		Long: `Load a snapshot leniently and write it back out in canonical form.

Malformed entries are dropped with a warning; the output is sorted by
chunk ID with second-precision timestamps.

Example:
  robotutor snapshot export index.json index-clean.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			idx, loaded, err := loadSnapshotIndex(src)
			if err != nil {
				return fmt.Errorf("snapshot export: %w", err)
			}

			data, err := idx.ExportJSON()
			if err != nil {
				return fmt.Errorf("snapshot export: %w", err)
			}
			if err := os.WriteFile(dst, data, 0o600); err != nil {
				return fmt.Errorf("snapshot export: write %s: %w", dst, err)
			}

			fmt.Printf("Wrote %d entries to %s.\n", loaded, dst)
			return nil
		},
	}
}

// newSnapshotImportCmd validates that a snapshot loads cleanly.
func newSnapshotImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [src]",
		Short: "Validate that a snapshot loads",
		Long: `Load a snapshot and report how many entries are usable.

Exits non-zero when the snapshot document itself is malformed. Individual
bad entries are reported as warnings and do not fail the command.

Example:
  robotutor snapshot import index.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, loaded, err := loadSnapshotIndex(args[0])
			if err != nil {
				return fmt.Errorf("snapshot import: %w", err)
			}

			stats := idx.Stats()
			fmt.Printf("Loaded %d entries (%d dimensions, %.2f MB).\n",
				loaded, stats.Dimensions, stats.ApproxMemoryMB)
			return nil
		},
	}
}

// loadSnapshotIndex reads a snapshot file into a fresh index sized from the
// snapshot itself.
func loadSnapshotIndex(path string) (*index.Index, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	idx := index.New(0)
	loaded, err := idx.ImportJSON(data, logging.New())
	if err != nil {
		return nil, 0, fmt.Errorf("import snapshot %s: %w", path, err)
	}
	return idx, loaded, nil
}
