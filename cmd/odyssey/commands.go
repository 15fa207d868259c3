package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/odyssey-dms/odyssey-dms/cmd/odyssey/cli"
	"github.com/odyssey-dms/odyssey-dms/internal/access"
	"github.com/odyssey-dms/odyssey-dms/internal/platform/cache"
	"github.com/odyssey-dms/odyssey-dms/internal/platform/db"
	"github.com/odyssey-dms/odyssey-dms/jobs"
)

// exitError carries a non-zero exit code from a helper that already reported its failure.
type exitError int

func (e exitError) Error() string {
	return "exit status " + strconv.Itoa(int(e))
}

func exitCode(code int) error {
	if code == 0 {
		return nil
	}
	return exitError(code)
}

func newAccessCommand() *cobra.Command {
	accessCmd := &cobra.Command{
		Use:   "access",
		Short: "Inspect and invalidate resolved permissions",
	}

	var alias string
	var jsonOutput bool
	explainCmd := &cobra.Command{
		Use:   "explain <user-id>",
		Short: "Print a user's effective permissions and document filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return runExplain(cmd, cli.ExplainOptions{
				UserID:     userID,
				Alias:      alias,
				JSONOutput: jsonOutput,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			})
		},
	}
	explainCmd.Flags().StringVar(&alias, "alias", "d", "table alias used in the rendered filter")
	explainCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <user-id[,user-id]|all|group:<id>>",
		Short: "Enqueue a permission cache invalidation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer func() { _ = client.Close() }()
			code := cli.NewAccessCLI(nil, client).InvalidateCommand(cmd.Context(), args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
			return exitCode(code)
		},
	}

	accessCmd.AddCommand(explainCmd, invalidateCmd)
	return accessCmd
}

// runExplain resolves straight from PostgreSQL inside one read-only snapshot, bypassing the
// shared cache.
func runExplain(cmd *cobra.Command, opts cli.ExplainOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	pool, err := db.New(ctx, cfg.PGDSN, "odyssey-cli")
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer pool.Close()

	var quota *access.Quota
	if redisClient, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, quota usage not shown", slog.Any("error", err))
	} else {
		defer func() { _ = redisClient.Close() }()
		quota = access.NewQuota(redisClient, cfg.QuotaLocation())
	}

	code := 0
	err = db.WithReadTx(ctx, pool, func(tx pgx.Tx) error {
		repo := access.NewRepository(tx, logger)
		resolver := access.NewResolver(repo, repo, nil, logger, nil)
		gate := access.NewGate(resolver, repo, access.GateOptions{Policy: cfg.EmptyPolicy(), Quota: quota, Logger: logger})
		code = cli.NewAccessCLI(gate, nil).ExplainCommand(ctx, opts)
		return nil
	})
	if err != nil {
		logger.Error("access explain", slog.Any("error", err))
		return err
	}
	return exitCode(code)
}

func newJobsCommand() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	jobsCmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show default queue statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := loadRuntime()
				if err != nil {
					return err
				}
				helper := cli.NewJobsCLI(cfg.RedisAddr)
				defer func() { _ = helper.Close() }()
				stats, err := helper.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
				scheduled, err := helper.ListScheduled(cmd.Context(), 20)
				if err != nil {
					return err
				}
				for _, info := range scheduled {
					_, _ = fmt.Fprintf(out, "  %s %s at %s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "trigger <task>",
			Short: "Enqueue a job by task name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadRuntime()
				if err != nil {
					return err
				}
				helper := cli.NewJobsCLI(cfg.RedisAddr)
				defer func() { _ = helper.Close() }()
				info, err := helper.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Type)
				return nil
			},
		},
	)
	return jobsCmd
}
