package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coffersTech/logql/internal/config"
)

// cli carries state shared by the subcommands.
type cli struct {
	cfgFile string
	debug   bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:           "logql",
		Short:         "logql - parse and explain log file queries",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if c.debug {
				c.logger, err = zap.NewDevelopment()
			} else {
				c.logger, err = zap.NewProduction()
			}
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "Path to the TOML config file (default: $LOGQL_CONFIG or ./logql.toml)")
	rootCmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable development logging")

	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newServeCmd(c))
	rootCmd.AddCommand(newTokenCmd(c))
	return rootCmd
}

func (c *cli) loadConfig() (*config.Config, error) {
	if c.cfgFile != "" {
		return config.Load(c.cfgFile)
	}
	return config.LoadFromEnv()
}
