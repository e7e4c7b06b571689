package main

import (
	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/migration"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSweepSubjectsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-subjects",
		Short: "Delete subjects that are not linked to any record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			sweeper := migration.NewSweeper(a.client, cfg.Commit, a.metrics, a.log)
			rep, err := sweeper.SweepAll(cmd.Context())
			a.log.Info("sweep finished",
				zap.Int("checked", rep.Checked),
				zap.Int("still_linked", rep.StillLinked),
				zap.Int("orphaned", rep.Orphaned),
				zap.Int("deleted", rep.Deleted),
				zap.Int("delete_failures", rep.DeleteFailures),
				zap.Int("search_failures", rep.SearchFailures),
			)
			return err
		},
	}
}
