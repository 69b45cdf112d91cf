package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"basegraph.app/triage/common/id"
	"basegraph.app/triage/common/logger"
	"basegraph.app/triage/core/config"
	"basegraph.app/triage/core/db"
	"basegraph.app/triage/internal/app"
)

// cliNodeID keeps CLI-generated run IDs apart from the server and worker.
const cliNodeID = 3

// RootCmd returns the triage command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "triage",
		Short:         "Score support conversations and publish escalation notes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		CrawlCmd(),
		MigrateCmd(),
		ReanalyzeCmd(),
		ScoreCmd(),
		StateCmd(),
	)
	return root
}

// session is a pipeline plus the connections it was built on.
type session struct {
	cfg      config.Config
	pipeline *app.Pipeline
	closers  []func()
}

func (s *session) Close() {
	s.pipeline.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openSession loads config and builds the pipeline. Redis and Postgres are
// optional here: the CLI runs without the marker cache, locks or run history
// when either is unreachable.
func openSession(ctx context.Context, readOnly bool) (*session, error) {
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if readOnly {
		cfg.Triage.ReadOnly = true
	}
	logger.Setup(cfg)

	if err := id.Init(cliNodeID); err != nil {
		return nil, fmt.Errorf("initializing id generator: %w", err)
	}

	s := &session{cfg: cfg}
	var res app.Resources

	if opts, err := redis.ParseURL(cfg.Pipeline.RedisURL); err == nil {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			slog.WarnContext(ctx, "redis unavailable, running without marker cache and locks", "error", err)
			_ = client.Close()
		} else {
			res.Redis = client
			s.closers = append(s.closers, func() { _ = client.Close() })
		}
	}

	if database, err := db.New(ctx, cfg.DB); err != nil {
		slog.WarnContext(ctx, "database unavailable, runs will not be recorded", "error", err)
	} else {
		res.DB = database
		s.closers = append(s.closers, database.Close)
	}

	s.pipeline, err = app.NewPipeline(ctx, cfg, res)
	if err != nil {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
		return nil, err
	}
	return s, nil
}
