package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "cipengine",
		Short: "EtherNet/IP explicit messaging client",
		Long: `cipengine opens EtherNet/IP encapsulation sessions against CIP devices
and exchanges explicit messages, connected or unconnected.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Config file (default ./cipengine.yaml when present)")
	pf.String("ip", "", "Target IP address or hostname")
	pf.Int("port", 44818, "EtherNet/IP TCP port")
	pf.String("route", "", "Port,link pairs to the destination module, e.g. backplane,0")
	pf.Int("timeout", 5000, "Per-exchange timeout in milliseconds")
	pf.String("log-level", "info", "Log level (silent|error|info|verbose|debug)")
	pf.String("log-format", "text", "Log format (text|json)")
	pf.String("log-file", "", "Also write all log messages to this file")
	pf.String("pcap", "", "Write every exchanged frame to this pcap file")
	pf.String("metrics-file", "", "Write per-exchange metrics to this CSV file")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newIdentityCmd(flags))
	rootCmd.AddCommand(newServicesCmd(flags))
	rootCmd.AddCommand(newReadCmd(flags))
	rootCmd.AddCommand(newSendCmd(flags))
	rootCmd.AddCommand(newWatchCmd(flags))
	rootCmd.AddCommand(newConfigCmd(flags))
	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newInspectCmd())

	// Custom help command
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd.HasParent() {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(out, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden {
				fmt.Fprintf(out, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(out, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})

	return rootCmd
}
