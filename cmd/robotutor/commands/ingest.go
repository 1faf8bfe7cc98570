package commands

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robolabs/robotutor/internal/logging"
)

// ingestExtensions lists the file extensions treated as textbook content
// when a directory is ingested.
var ingestExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// NewIngestCmd constructs the `robotutor ingest` command, which indexes
// textbook files into the vector index and optionally saves a snapshot.
func NewIngestCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "ingest [file|dir ...]",
		Short: "Ingest textbook files into the vector index",
		Long: `Chunk, embed, and index textbook files for question answering.

Arguments may be individual files or directories; directories are walked
recursively and markdown/text files are ingested. Re-ingesting a file
replaces its previous chunks.

The in-memory index is discarded when the command exits, so pass
--snapshot (or set ROBOTUTOR_SNAPSHOT) to persist it for later ask and
serve invocations.

Examples:
  robotutor ingest chapters/
  robotutor ingest --snapshot index.json chapters/slam.md chapters/ros2.md
  ROBOTUTOR_SNAPSHOT=index.json robotutor ingest chapters/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pieces, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer pieces.close()

			paths, err := collectFiles(args)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(paths) == 0 {
				return fmt.Errorf("ingest: no ingestible files found (looked for %s)", extensionList())
			}

			totalChunks, totalVectors := 0, 0
			for _, path := range paths {
				res, err := pieces.engine.IngestFile(ctx, path)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}
				log.Info("ingested",
					slog.String("path", path),
					slog.Int("chunks", res.ChunksProcessed),
					slog.Int("vectors", res.VectorsStored),
				)
				totalChunks += res.ChunksProcessed
				totalVectors += res.VectorsStored
			}

			fmt.Printf("Ingested %d files: %d chunks, %d vectors stored.\n",
				len(paths), totalChunks, totalVectors)

			if snapshotPath == "" {
				snapshotPath = os.Getenv("ROBOTUTOR_SNAPSHOT")
			}
			if snapshotPath != "" {
				if err := pieces.engine.SaveSnapshot(snapshotPath); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				fmt.Printf("Snapshot saved to %s.\n", snapshotPath)
			} else {
				log.Warn("ingest: no snapshot path set, index will be discarded on exit")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "Write the index snapshot to this path after ingesting")

	return cmd
}

// collectFiles expands the argument list into the flat, sorted set of files
// to ingest. Directories are walked recursively; explicitly named files are
// always included regardless of extension.
func collectFiles(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if ingestExtensions[strings.ToLower(filepath.Ext(path))] {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}

	return paths, nil
}

// extensionList formats the accepted extensions for error messages.
func extensionList() string {
	exts := make([]string, 0, len(ingestExtensions))
	for ext := range ingestExtensions {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return strings.Join(exts, ", ")
}
