package main

import (
	"github.com/spf13/cobra"

	"github.com/ochairo/tagship/internal/config"
	"github.com/ochairo/tagship/internal/domain/interfaces"
)

// app holds state resolved once per invocation by the root command
type app struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger interfaces.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "tagship",
		Short: "Build, package, sign, notarize and publish a tagged release",
		Long: `tagship turns a pushed version tag into signed, notarized installers.

For every requested platform it runs build, package, sign, notarize (macOS),
rename and publish. Platforms run concurrently and fail independently.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to .tagship.toml (default: $TAGSHIP_CONFIG or ./.tagship.toml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newRunCmd(a),
		newValidateTagCmd(),
		newStatusCmd(a),
		newVerifyCmd(),
	)

	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return withExitCode(exitInvalid, err)
	}
	a.cfg = cfg

	logger, warning, err := configureLoggerForCLI(cmd.ErrOrStderr(), a.logLevel, cfg.LogLevel)
	if err != nil {
		return withExitCode(exitInvalid, err)
	}
	if warning != "" {
		cmd.PrintErrln(warning)
	}
	a.logger = interfaces.NewSlogLogger(logger)

	if cfg.Path != "" {
		a.logger.Debug("config loaded", interfaces.F("path", cfg.Path))
	}
	return nil
}
