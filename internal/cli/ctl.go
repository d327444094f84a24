package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// ConfigLoader returns the validated configuration for a command run.
type ConfigLoader func() (*config.Config, error)

// NewCtlCommand builds the fintrackctl command tree. Every subcommand
// opens its own store from the loaded configuration.
func NewCtlCommand(load ConfigLoader, logger *log.Logger) *cobra.Command {
	if logger == nil {
		logger = log.Discard()
	}
	root := &cobra.Command{
		Use:           "fintrackctl",
		Short:         "Administer a fintrack ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store *storage.Store) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		dialect, err := cfg.Dialect()
		if err != nil {
			return err
		}
		store, err := storage.Open(cmd.Context(), dialect, cfg.DSN())
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd.Context(), cfg, store)
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(_ context.Context, cfg *config.Config, store *storage.Store) error {
				v, dirty, err := storage.MigrationVersion(store.Dialect(), cfg.DSN())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", v, dirty)
				return nil
			})
		},
	}

	ownerCmd := &cobra.Command{Use: "owner", Short: "Manage ledger owners"}
	var ownerName string
	var issueToken bool
	ownerCreate := &cobra.Command{
		Use:   "create",
		Short: "Create an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *storage.Store) error {
				sessions := services.NewSessions(store.Queries(), cfg.SessionTTL, time.Now)
				owner, err := sessions.CreateOwner(ctx, ownerName)
				if err != nil {
					return err
				}
				logger.Info("Owner created", log.FieldOwner, owner.ID)
				fmt.Fprintln(cmd.OutOrStdout(), owner.ID)
				if !issueToken {
					return nil
				}
				token, err := sessions.Issue(ctx, owner.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	ownerCreate.Flags().StringVar(&ownerName, "name", "", "display name")
	ownerCreate.Flags().BoolVar(&issueToken, "token", false, "also issue a session token")
	_ = ownerCreate.MarkFlagRequired("name")

	ownerList := &cobra.Command{
		Use:   "list",
		Short: "List owners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, _ *config.Config, store *storage.Store) error {
				owners, err := store.Queries().ListOwners(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tCREATED")
				for _, o := range owners {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", o.ID, o.DisplayName, o.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	ownerCmd.AddCommand(ownerCreate, ownerList)

	sessionCmd := &cobra.Command{Use: "session", Short: "Issue and revoke bearer tokens"}
	var sessionOwner string
	sessionIssue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a session token for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *storage.Store) error {
				token, err := services.NewSessions(store.Queries(), cfg.SessionTTL, time.Now).Issue(ctx, sessionOwner)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	sessionIssue.Flags().StringVar(&sessionOwner, "owner", "", "owner id")
	_ = sessionIssue.MarkFlagRequired("owner")

	sessionRevoke := &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Revoke a session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *storage.Store) error {
				return services.NewSessions(store.Queries(), cfg.SessionTTL, time.Now).Revoke(ctx, args[0])
			})
		},
	}
	sessionCmd.AddCommand(sessionIssue, sessionRevoke)

	var recomputeOwner string
	recomputeCmd := &cobra.Command{
		Use:   "recompute",
		Short: "Re-derive goal and debt state from their ledgers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, store *storage.Store) error {
				owners := []string{recomputeOwner}
				if recomputeOwner == "" {
					all, err := store.Queries().ListOwners(ctx)
					if err != nil {
						return err
					}
					owners = owners[:0]
					for _, o := range all {
						owners = append(owners, o.ID)
					}
				}
				catalog := services.NewCategoryCatalog(store.Queries(), cfg.CategoryCacheSize, cfg.CategoryCacheTTL)
				exec := services.NewActionExecutor(store, catalog, services.WithLogger(logger))
				for _, owner := range owners {
					report, err := exec.RecomputeAll(ctx, owner)
					if err != nil {
						return fmt.Errorf("owner %s: %w", owner, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d goals, %d debts, %d changed\n",
						owner, report.Goals, report.Debts, report.Changed)
				}
				return nil
			})
		},
	}
	recomputeCmd.Flags().StringVar(&recomputeOwner, "owner", "", "owner id (default: every owner)")

	root.AddCommand(migrateCmd, ownerCmd, sessionCmd, recomputeCmd)
	return root
}
