package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/cipengine/internal/enip"
	cipErrors "github.com/tturner/cipengine/internal/errors"
	"github.com/tturner/cipengine/internal/ui"
)

func newIdentityCmd(global *globalFlags) *cobra.Command {
	var copyRaw bool
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Ask the target to identify itself (ListIdentity)",
		Example: `  cipengine identity --ip 10.0.0.50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			ctx := context.Background()
			rt, err := global.open(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			reply, err := rt.session.ListIdentity(ctx)
			if err != nil {
				return cipErrors.WrapNetworkError(err, rt.cfg.Address())
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderIdentity(reply.Identities))
			if copyRaw && len(reply.Items) > 0 {
				return ui.CopyHex(reply.Items[0].Data)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyRaw, "copy", false, "Copy the first identity item to the clipboard as hex")
	return cmd
}

func newServicesCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the encapsulation services the target supports (ListServices)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			ctx := context.Background()
			rt, err := global.open(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			items, err := rt.session.ListServices(ctx)
			if err != nil {
				return cipErrors.WrapNetworkError(err, rt.cfg.Address())
			}
			out := cmd.OutOrStdout()
			for _, item := range items {
				fmt.Fprintln(out, describeService(item))
			}
			return nil
		},
	}
}

// describeService formats a ListServices item: version(2) flags(2) name(16).
func describeService(item enip.Item) string {
	if item.TypeID != enip.ItemListServices || len(item.Data) < 4 {
		return fmt.Sprintf("item 0x%04X: % X", item.TypeID, item.Data)
	}
	version := uint16(item.Data[0]) | uint16(item.Data[1])<<8
	flags := uint16(item.Data[2]) | uint16(item.Data[3])<<8
	name := item.Data[4:]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	return fmt.Sprintf("%-16s version %d flags 0x%04X (tcp=%v udp=%v)",
		string(name), version, flags, flags&0x0020 != 0, flags&0x0100 != 0)
}
