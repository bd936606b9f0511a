package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/cipengine/internal/cip/client"
	"github.com/tturner/cipengine/internal/cip/epath"
	"github.com/tturner/cipengine/internal/cip/protocol"
	cipErrors "github.com/tturner/cipengine/internal/errors"
	"github.com/tturner/cipengine/internal/ui"
)

type messageFlags struct {
	service     string
	classID     string
	instanceID  string
	attributeID string
	payloadHex  string
	key         string
	catalogFile string
	connected   bool
	extended    bool
	dryRun      bool
	copy        bool
}

func (f *messageFlags) register(cmd *cobra.Command, withService bool) {
	if withService {
		cmd.Flags().StringVar(&f.service, "service", "", "CIP service code (hex/decimal) or name (required)")
		cmd.Flags().StringVar(&f.payloadHex, "data", "", "Optional hex request data")
	}
	cmd.Flags().StringVar(&f.key, "key", "", "Catalog entry to send instead of --class/--instance/--attribute")
	cmd.Flags().StringVar(&f.catalogFile, "catalog", "", "Extra catalog YAML merged over the built-in one")
	cmd.Flags().StringVar(&f.classID, "class", "", "CIP class ID (hex or decimal, required without --key)")
	cmd.Flags().StringVar(&f.instanceID, "instance", "1", "CIP instance ID (hex or decimal)")
	cmd.Flags().StringVar(&f.attributeID, "attribute", "", "CIP attribute ID (hex or decimal, optional)")
	cmd.Flags().BoolVar(&f.connected, "connected", false, "Send over a Class 3 connection (ForwardOpen first)")
	cmd.Flags().BoolVar(&f.extended, "extended", false, "Use Large_Forward_Open (4000-byte connection)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the encoded CIP request and exit")
	cmd.Flags().BoolVar(&f.copy, "copy", false, "Copy reply data to the clipboard as hex")
}

func newReadCmd(global *globalFlags) *cobra.Command {
	flags := &messageFlags{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read an attribute (Get_Attribute_Single, or Get_Attribute_All without --attribute)",
		Example: `  # Identity vendor ID
  cipengine read --ip 10.0.0.50 --class 0x01 --instance 1 --attribute 1

  # Whole Identity instance through a ControlLogix backplane
  cipengine read --ip 10.0.0.50 --route backplane,0 --class 0x01

  # Product name by catalog key
  cipengine read --ip 10.0.0.50 --key identity.product_name`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			flags.service = protocol.ServiceGetAttributeAll.String()
			if flags.attributeID != "" {
				flags.service = protocol.ServiceGetAttributeSingle.String()
			}
			return runMessage(cmd, global, flags)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newSendCmd(global *globalFlags) *cobra.Command {
	flags := &messageFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send any CIP service request",
		Example: `  # Get_Attribute_Single (0x0E) for Identity Vendor ID
  cipengine send --ip 10.0.0.50 --service 0x0E --class 0x01 --instance 0x01 --attribute 0x01

  # Set_Attribute_Single over a connection
  cipengine send --ip 10.0.0.50 --connected --service 0x10 --class 0x04 --instance 0x67 --attribute 3 --data "01 00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.service == "" && flags.key == "" {
				return missingFlagError(cmd, "--service")
			}
			return runMessage(cmd, global, flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

// buildMessage turns flag values into a client.Message. A catalog key
// supplies service and path; --data still overrides the entry's data.
func buildMessage(flags *messageFlags) (client.Message, error) {
	if flags.key != "" {
		cat, err := loadCatalog(flags.catalogFile)
		if err != nil {
			return client.Message{}, err
		}
		entry, ok := cat.Lookup(flags.key)
		if !ok {
			return client.Message{}, fmt.Errorf("unknown catalog key %q (see 'cipengine catalog list')", flags.key)
		}
		msg := entry.Message()
		if flags.payloadHex != "" {
			if msg.Data, err = parseHexPayload(flags.payloadHex); err != nil {
				return client.Message{}, err
			}
		}
		return msg, nil
	}
	if flags.classID == "" {
		return client.Message{}, fmt.Errorf("required flag --class not set")
	}
	service, err := protocol.ParseServiceCode(strings.TrimSpace(flags.service))
	if err != nil {
		return client.Message{}, fmt.Errorf("parse service: %w", err)
	}
	classID, err := parseUint(flags.classID, 32)
	if err != nil {
		return client.Message{}, fmt.Errorf("parse class: %w", err)
	}
	instanceID, err := parseUint(flags.instanceID, 32)
	if err != nil {
		return client.Message{}, fmt.Errorf("parse instance: %w", err)
	}
	msg := client.Message{
		Service:  service,
		Class:    uint32(classID),
		Instance: uint32(instanceID),
	}
	if flags.attributeID != "" {
		attributeID, err := parseUint(flags.attributeID, 32)
		if err != nil {
			return client.Message{}, fmt.Errorf("parse attribute: %w", err)
		}
		msg.Attribute = client.Attribute(uint32(attributeID))
	}
	msg.Data, err = parseHexPayload(flags.payloadHex)
	if err != nil {
		return client.Message{}, err
	}
	return msg, nil
}

func runMessage(cmd *cobra.Command, global *globalFlags, flags *messageFlags) error {
	msg, err := buildMessage(flags)
	if err != nil {
		return err
	}
	if flags.dryRun {
		cfg, err := global.loadConfig(cmd)
		if err != nil {
			return err
		}
		route, err := cfg.Route()
		if err != nil {
			return err
		}
		return printRequest(cmd.OutOrStdout(), msg, route, cfg.ToTuning())
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := global.open(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		rt.printSummary(cmd)
		if err := rt.Close(context.Background()); err != nil {
			rt.logger.Error("Close: %v", err)
		}
	}()

	reply, err := exchange(ctx, rt, msg, flags)
	if reply != nil {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderReply(msg.String(), reply))
		if flags.copy && len(reply.Data) > 0 {
			if cerr := ui.CopyHex(reply.Data); cerr != nil {
				rt.logger.Error("%v", cerr)
			}
		}
	}
	if err != nil {
		return cipErrors.WrapCIPError(err, msg.Service.String())
	}
	return nil
}

// exchange sends msg connected or unconnected according to flags.
func exchange(ctx context.Context, rt *runtime, msg client.Message, flags *messageFlags) (*protocol.Reply, error) {
	if !flags.connected {
		route, err := rt.cfg.Route()
		if err != nil {
			return nil, err
		}
		return rt.session.SendUnconnected(ctx, msg, route)
	}

	opts, err := rt.cfg.ToConnectionOptions()
	if err != nil {
		return nil, err
	}
	opts.Extended = opts.Extended || flags.extended
	conn, err := rt.session.OpenConnection(ctx, opts)
	if err != nil {
		return nil, err
	}
	return rt.session.SendConnected(ctx, conn, msg)
}

// printRequest writes the Message Router request, and the Unconnected Send
// wrapping it when a route is set, as hex.
func printRequest(w io.Writer, msg client.Message, route epath.Path, tuning client.Tuning) error {
	req, err := msg.Request()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", msg)
	fmt.Fprintf(w, "request: % X\n", req.Encode())
	if len(route) == 0 {
		return nil
	}
	wrapped, err := protocol.WrapUnconnectedSend(req, route, tuning.Priority, tuning.TimeoutTicks)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "route:   %s\n", route)
	fmt.Fprintf(w, "wrapped: % X\n", wrapped.Encode())
	return nil
}

func parseUint(input string, bits int) (uint64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(input), 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value '%s'", input)
	}
	return value, nil
}

func parseHexPayload(input string) ([]byte, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(input), " ", "")
	cleaned = strings.TrimPrefix(cleaned, "0x")
	if cleaned == "" {
		return nil, nil
	}
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("hex payload must have even length")
	}
	decoded := make([]byte, len(cleaned)/2)
	if _, err := hex.Decode(decoded, []byte(cleaned)); err != nil {
		return nil, fmt.Errorf("decode hex payload: %w", err)
	}
	return decoded, nil
}
