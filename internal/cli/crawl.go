package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/triage"
)

func CrawlCmd() *cobra.Command {
	var (
		status   string
		readOnly bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one triage pass over a page-bounded listing of conversations",
		Example: `  triage crawl
  triage crawl --status pending
  triage crawl --read-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			listStatus := domain.ConversationStatus(status)
			if status != "" && !listStatus.Valid() {
				return fmt.Errorf("unknown status %q (want active, pending or closed)", status)
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, readOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			summary, runErr := s.pipeline.Runner.Run(ctx, triage.RunOptions{Status: listStatus})
			printSummary(cmd.OutOrStdout(), summary)
			return runErr
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "conversation status to list (defaults to TRIAGE_LIST_STATUS)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "score and render without writing to the ticketing platform")
	return cmd
}
