// Routersync - ASR1k tenant routing reconciler
//
// Keeps the tenant VRFs, sub-interfaces, routes, NAT and HSRP configuration
// of ASR1k hosting devices in line with the logical routers placed on them:
//
//	routersync agent                 # reconcile continuously from the snapshot
//	routersync render -d asr-1       # print the commands a snapshot produces
//	routersync resync -d asr-1 [-x]  # one full pass against the live device
//	routersync vrf list              # shared resource holders (Redis registry)
//	routersync audit list --last 1h  # applied change sets
//
// Write commands preview by default; -x executes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routersync/pkg/config"
	"github.com/newtron-network/routersync/pkg/util"
	"github.com/newtron-network/routersync/pkg/version"
)

// app holds the global flags and the loaded configuration.
var app struct {
	configPath   string
	snapshotPath string
	deviceName   string
	verbose      bool
	jsonOutput   bool
	askPass      bool

	cfg *config.Config
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "routersync",
	Short:             "ASR1k tenant routing reconciler",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Routersync renders logical routers into ASR1k CLI configuration and keeps
hosting devices in sync with them.

Write commands preview changes by default; use -x to execute.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		path := app.configPath
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		app.cfg = cfg
		if app.snapshotPath == "" {
			app.snapshotPath = cfg.Snapshot
		}

		// Quiet by default for one-shot commands, verbose on -v.
		level := "warn"
		if cmd == agentCmd {
			level = cfg.Log.Level
		}
		if app.verbose {
			level = "debug"
		}
		if err := util.SetLogLevel(level); err != nil {
			return fmt.Errorf("log level %q: %w", level, err)
		}
		if cfg.Log.JSON {
			util.SetJSONFormat()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Config file (default $"+config.EnvPath+" or /etc/routersync/routersync.yaml)")
	rootCmd.PersistentFlags().StringVarP(&app.snapshotPath, "snapshot", "f", "", "Router snapshot file or directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&app.deviceName, "device", "d", "", "Hosting device")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.askPass, "ask-pass", false, "Prompt for the SSH password of devices without ssh_pass")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Reconciliation:"},
		&cobra.Group{ID: "state", Title: "State:"},
		&cobra.Group{ID: "meta", Title: "Meta:"},
	)
	for _, cmd := range []*cobra.Command{agentCmd, renderCmd, resyncCmd} {
		cmd.GroupID = "sync"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{vrfCmd, lockCmd, auditCmd} {
		cmd.GroupID = "state"
		addOutputFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	versionCmd.GroupID = "meta"
	rootCmd.AddCommand(versionCmd)
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}
