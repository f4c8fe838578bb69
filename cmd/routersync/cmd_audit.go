package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routersync/pkg/audit"
	"github.com/newtron-network/routersync/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the change log",
	Long: `View the change sets pushed to devices. Every driver operation that sent
commands, or failed, is logged with its device, router, operation and
commands.

Examples:
  routersync audit list -d asr-1
  routersync audit list --last 24h --failures
  routersync audit list --router 5e1c0a7b --commands`,
}

var (
	auditRouter    string
	auditOperation string
	auditLast      string
	auditLimit     int
	auditFailures  bool
	auditCommands  bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.cfg.Audit.Path == "" {
			return fmt.Errorf("audit logging is disabled: set audit.path")
		}
		filter := audit.Filter{
			Device:      app.deviceName,
			Router:      auditRouter,
			Operation:   auditOperation,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}
		if auditLast != "" {
			d, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-d)
		}

		l, err := audit.NewFileLogger(app.cfg.Audit.Path, app.cfg.Audit.Rotation())
		if err != nil {
			return err
		}
		defer l.Close()
		events, err := l.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "DEVICE", "ROUTER", "OPERATION", "CHANGES", "STATUS")
		for _, e := range events {
			t.Row(
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Device,
				e.Router,
				e.Operation,
				fmt.Sprintf("%d", len(e.Changes)),
				cli.Status(e.Success, e.DryRun),
			)
		}
		t.Flush()

		if auditCommands {
			for _, e := range events {
				fmt.Printf("\n%s %s %s\n", e.ID, e.Operation, e.Router)
				for _, c := range e.Changes {
					fmt.Println("  " + cli.ChangeLine(c))
				}
				if e.Error != "" {
					fmt.Println("  " + cli.Red(e.Error))
				}
			}
		}
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditRouter, "router", "", "Filter by router id")
	auditListCmd.Flags().StringVar(&auditOperation, "operation", "", "Filter by operation (e.g. floating-ip-add)")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")
	auditListCmd.Flags().BoolVar(&auditCommands, "commands", false, "Print each event's commands")

	auditCmd.AddCommand(auditListCmd)
}
