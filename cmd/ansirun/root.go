package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/andrej220/ansirun/pkg/lg"
)

var (
	cfgFile   string
	debug     bool
	logFormat string

	overrides runnerOverrides

	appCfg *AppConfig
	logger lg.Logger = lg.Discard
)

// runnerOverrides are the runner flags; only flags set on the command line are applied.
type runnerOverrides struct {
	Host          string
	Inventory     string
	User          string
	Timeout       int
	Forks         int
	LogFile       string
	AnsibleRunner string
}

var rootCmd = &cobra.Command{
	Use:           SERVICENAME,
	Short:         "Run ansible modules against hosts through ansible-runner",
	Long:          `ansirun executes a single ansible module on a host through ansible-runner and returns its one result, from the command line, over HTTP or from a Kafka topic.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadAppConfig(cfgFile)
		if err != nil {
			return err
		}
		applyOverrides(cfg, cmd.Flags())
		if err := cfg.Validate(); err != nil {
			return err
		}
		appCfg = cfg
		logger = lg.New(&lg.Config{ServiceName: SERVICENAME, Debug: cfg.Log.Debug, Format: cfg.Log.Format})
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command failed", lg.Err(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./"+CONFIGFILENAME+" when present)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&logFormat, "log-format", "", "log encoding: json or console")

	pf.StringVar(&overrides.Host, "host", "", "target host")
	pf.StringVar(&overrides.Inventory, "inventory", "", "inventory file")
	pf.StringVar(&overrides.User, "user", "", "remote user")
	pf.IntVar(&overrides.Timeout, "timeout", 0, "connection timeout in seconds")
	pf.IntVar(&overrides.Forks, "forks", 0, "number of parallel processes")
	pf.StringVar(&overrides.LogFile, "log-file", "", "ansible log file")
	pf.StringVar(&overrides.AnsibleRunner, "ansible-runner", "", "path to the ansible-runner executable")
}

func applyOverrides(cfg *AppConfig, flags *pflag.FlagSet) {
	if flags.Changed("debug") {
		cfg.Log.Debug = debug
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("host") {
		cfg.Runner.TargetHost = overrides.Host
	}
	if flags.Changed("inventory") {
		cfg.Runner.InventoryFile = overrides.Inventory
	}
	if flags.Changed("user") {
		cfg.Runner.RemoteUser = overrides.User
	}
	if flags.Changed("timeout") {
		cfg.Runner.Timeout = overrides.Timeout
	}
	if flags.Changed("forks") {
		cfg.Runner.Forks = overrides.Forks
	}
	if flags.Changed("log-file") {
		cfg.Runner.LogFile = overrides.LogFile
	}
	if flags.Changed("ansible-runner") {
		cfg.Engine.Binary = overrides.AnsibleRunner
	}
}
