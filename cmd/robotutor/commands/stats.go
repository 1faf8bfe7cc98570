package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robolabs/robotutor/internal/index"
)

// NewStatsCmd constructs the `robotutor stats` command, which prints index
// statistics for a saved snapshot.
func NewStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats [snapshot]",
		Short: "Print index statistics for a snapshot",
		Long: `Load an index snapshot and print its statistics.

The snapshot path may be given as an argument or via ROBOTUTOR_SNAPSHOT.

Examples:
  robotutor stats index.json
  ROBOTUTOR_SNAPSHOT=index.json robotutor stats --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := os.Getenv("ROBOTUTOR_SNAPSHOT")
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("stats: snapshot path required (argument or ROBOTUTOR_SNAPSHOT)")
			}

			stats, err := snapshotStats(path)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stats) //nolint:wrapcheck // CLI output path
			}

			fmt.Printf("Vectors:    %d\n", stats.TotalVectors)
			fmt.Printf("Dimensions: %d\n", stats.Dimensions)
			fmt.Printf("Memory:     %.2f MB\n", stats.ApproxMemoryMB)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print statistics as JSON")

	return cmd
}

// snapshotStats loads a snapshot into a throwaway index and returns its
// statistics. The snapshot records its own dimensionality, so no embedding
// provider is needed.
func snapshotStats(path string) (index.Stats, error) {
	idx, _, err := loadSnapshotIndex(path)
	if err != nil {
		return index.Stats{}, err
	}
	return idx.Stats(), nil
}
