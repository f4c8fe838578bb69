package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/routersync/pkg/cli"
	"github.com/newtron-network/routersync/pkg/registry"
)

var vrfCmd = &cobra.Command{
	Use:   "vrf",
	Short: "Inspect shared device resources",
	Long: `Inspect the reference-counted resources the agents share through Redis:
VRFs, NAT pools and secondary addresses, with the routers holding them.

Examples:
  routersync vrf list
  routersync vrf list -d asr-1 --all`,
}

var vrfListAll bool

var vrfListCmd = &cobra.Command{
	Use:   "list",
	Short: "List VRFs (or every resource with --all) and their holders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.cfg.Redis.Addr == "" {
			return fmt.Errorf("the registry is only kept in memory: configure redis.addr to inspect it")
		}
		reg, _, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer reg.Close()

		var entries []registry.Entry
		for _, e := range reg.Dump() {
			if !vrfListAll && e.Kind != registry.KindVRF {
				continue
			}
			if app.deviceName != "" {
				if dev, _ := registry.SplitKey(e.Key); dev != app.deviceName {
					continue
				}
			}
			entries = append(entries, e)
		}

		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No resources registered")
			return nil
		}
		t := cli.NewTable("KIND", "DEVICE", "NAME", "HOLDERS")
		for _, e := range entries {
			dev, name := registry.SplitKey(e.Key)
			t.Row(string(e.Kind), dev, name, strings.Join(e.Holders, ","))
		}
		t.Flush()
		return nil
	},
}

func init() {
	vrfListCmd.Flags().BoolVar(&vrfListAll, "all", false, "Include NAT pools and secondary addresses")
	vrfCmd.AddCommand(vrfListCmd)
}
