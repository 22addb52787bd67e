package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrej220/ansirun/pkg/config"
	"github.com/andrej220/ansirun/pkg/lg"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration document",
	// The document may not exist yet, so only the logger is set up here.
	PersistentPreRunE: func(*cobra.Command, []string) error {
		logger = lg.New(&lg.Config{ServiceName: SERVICENAME, Debug: debug, Format: logFormat})
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [location]",
	Short: "Write the default configuration",
	Long:  `Write the default configuration, with any runner flags applied, to a YAML file or a mongodb:// URI. The location defaults to --config, then ./` + CONFIGFILENAME + `.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	location := cfgFile
	if len(args) > 0 {
		location = args[0]
	}
	if location == "" {
		location = CONFIGFILENAME
	}

	cfg := DefaultAppConfig()
	applyOverrides(cfg, cmd.Flags())
	if err := writeConfig(location, cfg, configInitForce); err != nil {
		return err
	}
	logger.Info("Configuration written", lg.String("location", location))
	fmt.Fprintln(cmd.OutOrStdout(), location)
	return nil
}

// writeConfig validates cfg and saves it to location. An existing file is only
// replaced when force is set; MongoDB documents are always upserted.
func writeConfig(location string, cfg *AppConfig, force bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if config.StoreTypeOf(location) == config.FileStore && !force {
		if _, err := os.Stat(location); err == nil {
			return fmt.Errorf("config file %s already exists, use --force to replace it", location)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s: %w", location, err)
		}
	}

	store, err := openConfigStore(location)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())
	if err := store.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
