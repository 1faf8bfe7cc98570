package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robolabs/robotutor/internal/logging"
)

// NewAskCmd constructs the `robotutor ask` command, which answers a single
// question from the ingested corpus and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var hybrid bool
	var multi bool
	var followUps bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the robotics tutor a question",
		Long: `Ask a natural language question about the ingested textbook corpus.

The answer is generated from retrieved chapter excerpts and cites its
sources. Load a previously saved index by setting ROBOTUTOR_SNAPSHOT to
the snapshot path before asking.

Examples:
  robotutor ask "what is simultaneous localization and mapping?"
  robotutor ask --hybrid "ROS 2 node lifecycle"
  robotutor ask --multi --follow-ups "how do PID controllers handle overshoot?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hybrid && multi {
				return fmt.Errorf("ask: --hybrid and --multi are mutually exclusive")
			}

			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pieces, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer pieces.close()

			question := strings.Join(args, " ")

			resp, err := answerWith(ctx, pieces, question, hybrid, multi)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Answer)

			if followUps {
				if qs := pieces.engine.FollowUps(ctx, question, resp.Answer); len(qs) > 0 {
					fmt.Println("\nYou could also ask:")
					for _, q := range qs {
						fmt.Printf("  - %s\n", q)
					}
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "Blend semantic similarity with keyword coverage")
	cmd.Flags().BoolVar(&multi, "multi", false, "Retrieve with expanded query variants")
	cmd.Flags().BoolVar(&followUps, "follow-ups", false, "Suggest follow-up questions after the answer")

	return cmd
}
