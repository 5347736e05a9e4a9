// glasswally — real-time detector for industrial-scale LLM distillation
// campaigns. Ingests per-request telemetry, maintains per-account and
// per-cluster behavioral state, fuses detector signals into a tiered
// risk score, and emits enforcement directives and IOC bundles.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/glasswally/glasswally/internal/adapter"
	"github.com/glasswally/glasswally/internal/clusterer"
	"github.com/glasswally/glasswally/internal/config"
	"github.com/glasswally/glasswally/internal/dispatcher"
	"github.com/glasswally/glasswally/internal/ebpf"
	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/kernelcapture"
	"github.com/glasswally/glasswally/internal/orchestrator"
	"github.com/glasswally/glasswally/internal/rpc"
	"github.com/glasswally/glasswally/internal/signature"
	"github.com/glasswally/glasswally/internal/telemetry"
)

// exit codes per spec.md §6.
const (
	exitOK            = 0
	exitBadFlags      = 2
	exitAdapterFailed = 3
	exitFatalIO       = 4
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:     "glasswally",
		Short:   "Detect coordinated LLM distillation campaigns in real time",
		Version: version,
	}
	rootCmd.AddCommand(newRunCmd(), newCapabilitiesCmd())

	if err := rootCmd.Execute(); err != nil {
		var ee exitErr
		if errors.As(err, &ee) {
			return ee.code
		}
		return exitBadFlags
	}
	return exitOK
}

func newRunCmd() *cobra.Command {
	var (
		mode         string
		path         string
		outputDir    string
		metricsAddr  string
		grpcAddr     string
		configPath   string
		dataFilePath string
		threshold    float64
		evalThresh   float64
		speed        float64
		verbose      bool
		drainTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the detection pipeline against an input adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "ebpf" && mode != "tail" && mode != "replay" && mode != "eval" {
				return fmt.Errorf("--mode must be one of ebpf, tail, replay, eval (got %q)", mode)
			}
			if mode != "ebpf" && path == "" {
				return fmt.Errorf("--path is required in --mode %s", mode)
			}
			if mode == "eval" && (evalThresh <= 0 || evalThresh > 1) {
				return exitErr{code: exitBadFlags, err: fmt.Errorf("--eval-threshold must be in (0, 1], got %v", evalThresh)}
			}

			log := telemetry.NewLogger(verbose, os.Stderr)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if threshold > 0 {
				cfg.TierThresholds.Low = threshold
			}

			var df *signature.DataFile
			if dataFilePath != "" {
				df, err = signature.Load(dataFilePath)
				if err != nil {
					return fmt.Errorf("load signature data file: %w", err)
				}
			} else {
				df = signature.Builtin()
			}

			metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
			graph := clusterer.NewGraph(cfg.EdgeDropThreshold, cfg.ComponentThreshold)

			disp, err := dispatcher.New(outputDir, cfg.DispatcherHMACKeys, graph, metrics, log)
			if err != nil {
				log.Error().Err(err).Msg("glasswally: failed to open dispatcher sinks")
				return exitErr{code: exitFatalIO, err: err}
			}
			defer disp.Close()

			orch := orchestrator.New(cfg, df, graph, disp, metrics, log)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if metricsAddr != "" {
				srv := startMetricsServer(metricsAddr, log)
				defer shutdownServer(srv, log)
			}

			var rpcSrv *rpc.Server
			if grpcAddr != "" {
				rpcSrv = rpc.NewServer(grpcAddr, orch, log)
				go func() {
					if err := rpcSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("glasswally: account-query server failed")
					}
				}()
				defer rpcSrv.Shutdown(context.Background())
			}

			events := make(chan event.Event, adapter.DefaultChannelCapacity)
			adapterErr := make(chan error, 1)

			go func() {
				adapterErr <- runAdapter(ctx, mode, path, speed, log, events)
				close(events)
			}()

			runDone := make(chan error, 1)
			go func() { runDone <- orch.Run(ctx, events) }()

			select {
			case err := <-adapterErr:
				if err != nil {
					log.Error().Err(err).Msg("glasswally: input adapter failed")
					cancel()
					<-runDone
					return exitErr{code: exitAdapterFailed, err: err}
				}
				// adapter drained cleanly (EOF in replay/eval mode); let
				// the orchestrator finish draining the channel.
				<-runDone
			case <-ctx.Done():
				log.Info().Msg("glasswally: shutdown signal received, draining")
				drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
				defer drainCancel()
				select {
				case <-runDone:
				case <-drainCtx.Done():
					log.Warn().Msg("glasswally: drain grace period expired")
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "tail", "Input mode: ebpf, tail, replay, eval")
	cmd.Flags().StringVar(&path, "path", "", "JSONL event log path (tail/replay/eval modes)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "./out", "Directory for the JSONL enforcement sinks")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address (empty disables)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "Account-query RPC listen address (empty disables)")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file overlaying the built-in defaults")
	cmd.Flags().StringVar(&dataFilePath, "data-file", "", "Signature data file (centroids, JA3 tables, CoT lexicon); built-in if empty")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Override the Low tier threshold")
	cmd.Flags().Float64Var(&evalThresh, "eval-threshold", 0.5, "F1-maximizing composite score threshold for --mode eval")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Replay pacing multiplier; <= 0 replays as fast as possible")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 5*time.Second, "Grace period to drain in-flight events on shutdown")

	return cmd
}

// newCapabilitiesCmd reports whether the kernel-plaintext adapter's
// uprobes/kprobes can attach on this host, mirroring the teacher's
// Tier1/2/3 BPF-capability reporting applied to --mode ebpf readiness.
func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Report whether the ebpf input adapter can load on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			btf := ebpf.DetectBTF()
			caps := ebpf.DetectBPFCapabilities()
			fmt.Fprintf(cmd.OutOrStdout(), "BTF: available=%v core_support=%v kernel=%s\n",
				btf.Available, btf.CORESupport, btf.KernelVersion)
			fmt.Fprintln(cmd.OutOrStdout(), ebpf.FormatCapabilities(caps))
			if !btf.Available || !btf.CORESupport {
				return exitErr{code: exitFatalIO, err: fmt.Errorf("BTF/CO-RE unavailable, --mode ebpf cannot load native programs")}
			}
			return nil
		},
	}
}

// exitErr carries a specific process exit code through cobra's
// error-returning RunE without cobra itself choosing the code.
type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }
func (e exitErr) Unwrap() error { return e.err }

func runAdapter(ctx context.Context, mode, path string, speed float64, log zerolog.Logger, out chan<- event.Event) error {
	switch mode {
	case "tail":
		a := &adapter.FileAdapter{Path: path, Speed: 0, Log: log}
		stats, err := a.RunTail(ctx, out)
		log.Info().Int("decoded", stats.Decoded).Int("skipped", stats.Skipped).Msg("glasswally: tail adapter stopped")
		return err
	case "replay", "eval":
		a := &adapter.FileAdapter{Path: path, Speed: speed, Log: log}
		stats, err := a.Run(ctx, out)
		log.Info().Int("decoded", stats.Decoded).Int("skipped", stats.Skipped).Msg("glasswally: replay adapter finished")
		return err
	case "ebpf":
		k := &kernelcapture.Adapter{Log: log}
		stats, err := k.Run(ctx, out)
		log.Info().Int("decoded", stats.Decoded).Int("skipped", stats.Skipped).Msg("glasswally: kernel capture adapter stopped")
		return err
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func startMetricsServer(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("glasswally: metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("glasswally: metrics endpoint listening")
	return srv
}

func shutdownServer(srv *http.Server, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("glasswally: metrics server shutdown")
	}
}
