package main

import (
	"github.com/spf13/cobra"
)

// globalOptions holds the flags that are not settings in their own right.
type globalOptions struct {
	configFile string
	quiet      bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "accfix",
		Short: "Post-migration fixes for ArchivesSpace accession records",
		Long: `accfix moves legacy user_defined values on accession records into their
proper fields, deletes the events and subjects those values made redundant,
and removes subjects that no record links to any more.

Nothing is written to the backend unless --commit is given.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default ./accfix.yaml if present)")
	pf.StringP("backend-url", "a", "", "ArchivesSpace backend URL")
	pf.StringP("username", "u", "", "username for the backend session")
	pf.StringP("password", "p", "", "password for the backend session")
	pf.BoolP("commit", "c", false, "commit changes to the backend")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")
	pf.BoolVarP(&opts.debug, "debug", "d", false, "log debugging output")
	pf.String("database-dsn", "", "Postgres DSN for the run journal (journal goes to the log when empty)")
	pf.String("metrics-file", "", "write run metrics to this file in Prometheus text format")
	pf.Float64("rps", 0, "maximum backend requests per second (0 for no limit)")

	root.AddCommand(newFixCmd(opts), newSweepSubjectsCmd(opts))
	return root
}
