package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/cipengine/internal/cip/client"
	"github.com/tturner/cipengine/internal/cip/protocol"
	cipErrors "github.com/tturner/cipengine/internal/errors"
	"github.com/tturner/cipengine/internal/ui"
)

func newWatchCmd(global *globalFlags) *cobra.Command {
	flags := &messageFlags{}
	var (
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll an attribute on an interval and show the latest reply",
		Example: `  # Poll over a Class 3 connection every 500ms
  cipengine watch --ip 10.0.0.50 --connected --class 0x04 --instance 0x65 --attribute 3 --interval 500ms

  # Ten unconnected polls, printed line by line
  cipengine watch --ip 10.0.0.50 --class 0x01 --attribute 1 --count 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be > 0")
			}
			flags.service = protocol.ServiceGetAttributeAll.String()
			if flags.attributeID != "" {
				flags.service = protocol.ServiceGetAttributeSingle.String()
			}
			msg, err := buildMessage(flags)
			if err != nil {
				return err
			}

			ctx := context.Background()
			rt, err := global.open(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer func() {
				rt.printSummary(cmd)
				_ = rt.Close(context.Background())
			}()

			poll, err := newPoller(ctx, rt, msg, flags)
			if err != nil {
				return err
			}
			if count > 0 || !isInteractive() {
				return pollLoop(cmd, poll, msg, interval, count, rt.cfg.Timeout())
			}
			return ui.Watch(msg.String(), poll, interval, rt.cfg.Timeout())
		},
	}
	flags.register(cmd, false)
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between polls")
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many polls and print plain output (0 = interactive)")
	return cmd
}

// newPoller opens the connection when requested and returns the per-poll
// exchange.
func newPoller(ctx context.Context, rt *runtime, msg client.Message, flags *messageFlags) (ui.PollFunc, error) {
	if !flags.connected {
		route, err := rt.cfg.Route()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*protocol.Reply, error) {
			return rt.session.SendUnconnected(ctx, msg, route)
		}, nil
	}

	opts, err := rt.cfg.ToConnectionOptions()
	if err != nil {
		return nil, err
	}
	opts.Extended = opts.Extended || flags.extended
	conn, err := rt.session.OpenConnection(ctx, opts)
	if err != nil {
		return nil, cipErrors.WrapCIPError(err, "Forward_Open")
	}
	return func(ctx context.Context) (*protocol.Reply, error) {
		return rt.session.SendConnected(ctx, conn, msg)
	}, nil
}

func pollLoop(cmd *cobra.Command, poll ui.PollFunc, msg client.Message, interval time.Duration, count int, timeout time.Duration) error {
	if count <= 0 {
		count = 1
	}
	out := cmd.OutOrStdout()
	var lastErr error
	for i := 0; i < count; i++ {
		if i > 0 {
			time.Sleep(interval)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		start := time.Now()
		reply, err := poll(ctx)
		rtt := time.Since(start)
		cancel()

		switch {
		case err != nil:
			lastErr = err
			fmt.Fprintf(out, "%4d  %8.3fms  error: %v\n", i+1, float64(rtt.Microseconds())/1000, err)
		default:
			fmt.Fprintf(out, "%4d  %8.3fms  status 0x%02X  % X\n", i+1, float64(rtt.Microseconds())/1000, reply.GeneralStatus, reply.Data)
		}
	}
	if lastErr != nil {
		return cipErrors.WrapCIPError(lastErr, msg.Service.String())
	}
	return nil
}
