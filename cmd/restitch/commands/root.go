package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yairfalse/restitch/pkg/config"
)

var (
	cfgFile    string
	credential string
	cfg        *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "restitch",
	Short: "Snapshot and restore remote account state",
	Long: `RESTITCH - point-in-time snapshots of a remote account, stitched back on demand.

Restitch captures your account's profile, media, settings and guild
memberships into stored snapshots, then reconciles the live account back
toward a snapshot with targeted writes. Verification challenges raised by
the account service are solved transparently through a configured solving
service and your proxy pool.

COMMON FLOWS:
  restitch snapshot full --wait     # capture everything, watch progress
  restitch list                     # see stored snapshots
  restitch restore <id>             # stitch the account back
  restitch serve                    # HTTP API + scheduled snapshots`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.restitch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&credential, "credential", "", "account service credential (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newSnapshotCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRestoreCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newDownloadCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newVersionCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if credential != "" {
		cfg.Account.Credential = credential
	}
	return nil
}
