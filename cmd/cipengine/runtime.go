package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tturner/cipengine/internal/capture"
	"github.com/tturner/cipengine/internal/cip/client"
	"github.com/tturner/cipengine/internal/config"
	cipErrors "github.com/tturner/cipengine/internal/errors"
	"github.com/tturner/cipengine/internal/logging"
	"github.com/tturner/cipengine/internal/metrics"
	"github.com/tturner/cipengine/internal/ui"
)

type globalFlags struct {
	configFile string
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"ip":           "target.address",
	"port":         "target.port",
	"route":        "target.route",
	"timeout":      "session.timeout_ms",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"log-file":     "logging.file",
	"pcap":         "capture.pcap_file",
	"metrics-file": "capture.metrics_file",
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, flagName, configKey string) {
	if f := cmd.Flags().Lookup(flagName); f != nil {
		_ = v.BindPFlag(configKey, f)
	}
}

// loadConfig merges defaults, the config file, CIPENGINE_* variables and
// flags, in increasing priority.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper(g.configFile)
	if err != nil {
		return nil, cipErrors.WrapConfigError(err, g.configFile)
	}
	for flagName, key := range flagKeys {
		bindFlag(v, cmd, flagName, key)
	}
	cfg, err := config.LoadWithViper(v)
	if err != nil {
		path := v.ConfigFileUsed()
		if path == "" {
			path = "flags"
		}
		return nil, cipErrors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// runtime bundles what one command invocation opens.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	sink     *metrics.Sink
	recorder *capture.Recorder
	session  *client.Session
}

// resolveTarget fills in the target address, prompting when stdin is a
// terminal.
func resolveTarget(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.Target.Address != "" {
		return nil
	}
	if !isInteractive() {
		return missingFlagError(cmd, "--ip")
	}
	answers, err := ui.PromptTarget(ui.TargetAnswers{Port: cfg.Target.Port, Route: cfg.Target.Route})
	if err != nil {
		return err
	}
	cfg.Target.Address = answers.Address
	cfg.Target.Port = answers.Port
	cfg.Target.Route = answers.Route
	return cfg.Validate()
}

func isInteractive() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// open connects to the target and builds a session. With register set the
// session is registered before returning.
func (g *globalFlags) open(ctx context.Context, cmd *cobra.Command, register bool) (*runtime, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := resolveTarget(cmd, cfg); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, sink: metrics.NewSink()}
	rt.logger, err = cfg.NewLogger()
	if err != nil {
		return nil, cipErrors.WrapConfigError(err, "logging")
	}
	rt.logger.LogStartup(cmd.Name(), cfg.Address(), cfg.Session.TimeoutMs, g.configFile)
	rt.logger.Debug("%s", cfg.Summary())

	senderContext, err := cfg.SenderContext()
	if err != nil {
		rt.release()
		return nil, err
	}
	opts := []client.SessionOption{
		client.WithTimeout(cfg.Timeout()),
		client.WithSenderContext(senderContext),
		client.WithTuning(cfg.ToTuning()),
		client.WithLogger(rt.logger),
		client.WithMetrics(rt.sink),
		client.WithTarget(cfg.Address()),
	}

	transport := client.NewTCPTransport()
	transport.SetDialTimeout(cfg.Timeout())
	if err := transport.Connect(ctx, cfg.Address()); err != nil {
		rt.release()
		return nil, cipErrors.WrapNetworkError(err, cfg.Address())
	}

	if cfg.Capture.PcapFile != "" {
		rt.recorder, err = capture.Create(cfg.Capture.PcapFile)
		if err != nil {
			_ = transport.Disconnect()
			rt.release()
			return nil, err
		}
		rt.recorder.SetEndpoints(transport.Endpoints())
		opts = append(opts, client.WithFrameHook(rt.recorder.Record))
	}

	rt.session = client.NewSession(transport, opts...)
	if register {
		if err := rt.session.Register(ctx); err != nil {
			_ = rt.Close(ctx)
			return nil, cipErrors.WrapNetworkError(err, cfg.Address())
		}
	}
	return rt, nil
}

// Close tears down the session and flushes the capture and metrics files.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.session != nil {
		if err := rt.session.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		rt.session = nil
	}
	errs = append(errs, rt.release())
	return errors.Join(errs...)
}

func (rt *runtime) release() error {
	var errs []error
	if rt.recorder != nil {
		if err := rt.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pcap: %w", err))
		} else {
			rt.logger.Info("Wrote %d packets to %s", rt.recorder.Packets(), rt.cfg.Capture.PcapFile)
		}
		rt.recorder = nil
	}
	if rt.cfg != nil && rt.cfg.Capture.MetricsFile != "" && rt.sink != nil {
		if err := writeMetrics(rt.cfg.Capture.MetricsFile, rt.sink); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.logger != nil {
		if err := rt.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeMetrics(path string, sink *metrics.Sink) error {
	w, err := metrics.NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteAll(sink); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// printSummary renders the metrics summary when more than one exchange ran.
func (rt *runtime) printSummary(cmd *cobra.Command) {
	summary := rt.sink.GetSummary()
	if summary.TotalOperations > 1 && rt.logger.GetLevel() >= logging.LogLevelVerbose {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSummary(summary))
	}
}
