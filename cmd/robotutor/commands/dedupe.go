package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDedupeCmd constructs the `robotutor dedupe` command, which reports
// near-duplicate chunk pairs in a saved snapshot.
func NewDedupeCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "dedupe [snapshot]",
		Short: "Report near-duplicate chunks in a snapshot",
		Long: `Scan a snapshot for chunk pairs whose cosine similarity exceeds the
threshold. High similarity usually means the same passage was ingested
twice under different source paths.

Example:
  robotutor dedupe --threshold 0.98 index.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, _, err := loadSnapshotIndex(args[0])
			if err != nil {
				return fmt.Errorf("dedupe: %w", err)
			}

			dupes := idx.FindDuplicates(threshold)
			if len(dupes) == 0 {
				fmt.Printf("No duplicate pairs above %.2f.\n", threshold)
				return nil
			}

			fmt.Printf("%d duplicate pairs above %.2f:\n", len(dupes), threshold)
			for _, d := range dupes {
				fmt.Printf("  %.4f  %s  %s\n", d.Similarity, d.ID1, d.ID2)
			}
			return nil
		},
	}

	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.95, "Cosine similarity above which a pair is reported")

	return cmd
}
