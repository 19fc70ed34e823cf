// Package main implements cascadectl, a small operational CLI around the
// cascade engine: it drives the canonical end-to-end scenarios, serves a
// read-only debug HTTP surface over a live database, and replays a
// recorded diagnostics log. Command structure, config-file search order,
// and graceful shutdown are grounded in cli/root.go's cobra+viper
// RootCmd, generalized from the RabbitMQ/CouchDB/JWT services it wired to
// the engine components this module actually has.
package main

import (
	"fmt"
	"os"

	"github.com/evalgo/cascade/config"
	"github.com/evalgo/cascade/logging"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// log is the root logger, reconfigured by initConfig once flags and any
// config file have been read (logging.NewLogger, logging/logger.go).
var log = logrus.New()

// rootCmd is cascadectl's entry point. The run, serve and replay
// subcommands are registered in init() below; version.go registers the
// version subcommand in its own init().
var rootCmd = &cobra.Command{
	Use:   "cascadectl",
	Short: "Drive the cascade incremental computation engine",
	Long: `cascadectl is an operational CLI for the cascade engine.

It runs the engine's canonical demo scenarios (memoization, backdating,
stale-output pruning, fixpoint convergence), serves a read-only debug HTTP
surface over a live database, replays a recorded diagnostics log, and
reports its own build version.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.cascadectl.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
}

// initConfig mirrors cli/root.go's initConfig: search $HOME and the
// working directory for a config file, then let CASCADE_-prefixed
// environment variables override it, before reconfiguring the logger.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cascadectl")
	}

	viper.SetEnvPrefix("CASCADE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "cascadectl: using config file %s\n", viper.ConfigFileUsed())
	}

	logConfig := logging.DefaultLoggerConfig()
	if lvl := viper.GetString("log-level"); lvl != "" {
		logConfig.Level = logging.LogLevel(lvl)
	}
	if format := viper.GetString("log-format"); format != "" {
		logConfig.Format = format
	}
	log = logging.NewLogger(logConfig)
}

// engineOptionsFromViper adapts viper's bound flags/env/config-file values
// into config.EngineOptions, validating them before any command uses them.
func engineOptionsFromViper() (config.EngineOptions, error) {
	opts := config.LoadEngineOptions("CASCADE")
	if lvl := viper.GetString("log-level"); lvl != "" {
		opts.LogLevel = lvl
	}
	if format := viper.GetString("log-format"); format != "" {
		opts.LogFormat = format
	}
	if err := config.ValidateEngineOptions(opts); err != nil {
		return config.EngineOptions{}, err
	}
	return opts, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
