package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/zone_strangler/internal/config"
)

const defaultConfigPath = "config.yaml"

// cli carries state between the root pre-run and the subcommands.
type cli struct {
	configPath string
	envFile    string
	cfg        *config.Config
	app        *App
	build      func(cfg *config.Config) (*App, error)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(func(cfg *config.Config) (*App, error) { return newApp(cfg, nil) })
}

func newRootCmdWith(build func(cfg *config.Config) (*App, error)) *cobra.Command {
	c := &cli{build: build}

	root := &cobra.Command{
		Use:   "advisor",
		Short: "Zone-based short strangle advisor for Indian index options",
		Long: `advisor builds three-tier short strangles from weekly or monthly
supply/demand zones, records the adopted trades and marks them to market.

Run 'advisor serve' for the scheduler and dashboard, or one of the
run-*-once commands from an external scheduler.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", defaultConfigPath, "path to configuration file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the config is expanded")

	root.AddCommand(
		newServeCmd(c),
		newGenerateCmd(c),
		newMonitorOnceCmd(c),
		newEODOnceCmd(c),
		newRegenSchedulesCmd(c),
	)
	return root
}

// load reads the dotenv file, the config file and wires the app. A missing
// default config file falls back to paper-mode defaults.
func (c *cli) load(cmd *cobra.Command) error {
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", c.envFile, err)
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		_, statErr := os.Stat(c.configPath)
		if cmd.Flags().Changed("config") || !errors.Is(statErr, fs.ErrNotExist) {
			return err
		}
		cfg = config.Default()
	}
	c.cfg = cfg

	app, err := c.build(cfg)
	if err != nil {
		return err
	}
	c.app = app
	return nil
}
