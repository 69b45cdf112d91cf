package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
)

func StateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <conversation-id>",
		Short: "Show the escalation marker a conversation carries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			platform := s.pipeline.Platform
			threads, err := crawler.Crawl(ctx, func(ctx context.Context, page, _ int) (crawler.Page[domain.Thread], error) {
				return platform.ListThreads(ctx, conversationID, page)
			}, crawler.Limits{MaxPages: s.cfg.Triage.ThreadPageLimit})
			if err != nil {
				return fmt.Errorf("listing threads: %w", err)
			}

			marker := s.pipeline.State.Load(ctx, conversationID, threads)
			printMarker(cmd.OutOrStdout(), conversationID, threads, marker)
			return nil
		},
	}
}
