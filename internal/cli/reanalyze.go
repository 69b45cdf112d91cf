package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"basegraph.app/triage/internal/triage"
)

// closedReanalysis is the only combination under which a forced pass is honored.
var closedReanalysis = triage.Override{Force: true, ReadOnly: true, ClosedOnly: true}

func ReanalyzeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reanalyze [conversation-id]",
		Short: "Force a read-only reanalysis of closed conversations",
		Long: `Re-score closed conversations regardless of their existing escalation marker.

Nothing is written back to the ticketing platform: the note that would have
been published is printed instead. Open conversations are analysed with the
normal rules.`,
		Example: `  triage reanalyze 12345
  triage reanalyze --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("--all takes no conversation id")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("expected one conversation id, or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if all {
				summary, runErr := s.pipeline.Runner.Run(ctx, triage.RunOptions{Override: closedReanalysis})
				printSummary(out, summary)
				return runErr
			}

			conversationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			res, err := s.pipeline.Runner.ProcessConversation(ctx, conversationID, triage.Options{Override: closedReanalysis})
			printResult(out, res)
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reanalyze every closed conversation within the crawl limits")
	return cmd
}
