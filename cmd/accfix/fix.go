package main

import (
	"fmt"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/migration"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const nothingToDo = "Nothing to do. Please specify -m, -b or both"

func newFixCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Migrate accession user_defined fields for MSSA and/or BRBL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if !cfg.MSSA && !cfg.BRBL {
				fmt.Fprintln(cmd.OutOrStdout(), nothingToDo)
				return nil
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			return a.fix(cmd)
		},
	}

	f := cmd.Flags()
	f.BoolP("mssa", "m", false, "run MSSA fixes")
	f.BoolP("brbl", "b", false, "run BRBL fixes")
	f.String("mssa-code", "", "repository code for MSSA")
	f.String("brbl-code", "", "repository code for BRBL")
	return cmd
}

// fix runs MSSA then BRBL. Both runs share one resolver so references
// seen in the first are not fetched again in the second.
func (a *app) fix(cmd *cobra.Command) error {
	ctx := cmd.Context()
	resolver := migration.NewResolver(a.client, a.metrics, a.log)
	sweeper := migration.NewSweeper(a.client, a.cfg.Commit, a.metrics, a.log)
	runner := migration.NewRunner(a.client, resolver, sweeper, a.journal, a.metrics, a.log, a.runnerConfig())

	type job struct {
		code string
		rs   migration.RuleSet
	}
	var jobs []job
	if a.cfg.MSSA {
		jobs = append(jobs, job{a.cfg.MSSACode, migration.MSSA()})
	}
	if a.cfg.BRBL {
		jobs = append(jobs, job{a.cfg.BRBLCode, migration.BRBL()})
	}

	for _, j := range jobs {
		rep, err := runner.Run(ctx, j.code, j.rs)
		if rep != nil {
			a.logReport(j.rs.Variant, j.code, rep)
		}
		if err != nil {
			a.log.Error("run failed", zap.String("variant", j.rs.Variant), zap.String("repo", j.code), zap.Error(err))
			return fmt.Errorf("%s fixes for %s: %w", j.rs.Variant, j.code, err)
		}
	}
	return nil
}

func (a *app) logReport(variant, code string, rep *migration.Report) {
	a.log.Info("fixes finished",
		zap.String("variant", variant),
		zap.String("repo", code),
		zap.Int("processed", rep.Processed),
		zap.Int("changed", rep.Changed),
		zap.Int("saved", rep.Saved),
		zap.Int("save_failures", rep.SaveFailures),
		zap.Int("deleted", rep.Deleted),
		zap.Int("delete_failures", rep.DeleteFailures),
		zap.Int("rule_errors", rep.RuleErrors),
		zap.Int("subjects_checked", rep.Sweep.Checked),
		zap.Int("subjects_deleted", rep.Sweep.Deleted),
	)
}
