package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/cipengine/internal/config"
)

// handleHelpArg prints usage for "cipengine <cmd> help" (or "?"), since the
// commands take no positional arguments.
func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if strings.EqualFold(args[0], "help") || args[0] == "?" {
		_ = cmd.Help()
		return true
	}
	return false
}

// missingFlagError prints usage to stderr and names the config key and
// environment variable that can also supply the flag.
func missingFlagError(cmd *cobra.Command, flag string) error {
	fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
	key, ok := flagKeys[strings.TrimPrefix(flag, "--")]
	if !ok {
		return fmt.Errorf("required flag %s not set", flag)
	}
	env := config.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return fmt.Errorf("required flag %s not set (or set %s in the config file, or %s)", flag, key, env)
}
