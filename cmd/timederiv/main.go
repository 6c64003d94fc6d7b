package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/timederiv/internal/config"
	"github.com/san-kum/timederiv/internal/live"
	"github.com/san-kum/timederiv/internal/logging"
	"github.com/san-kum/timederiv/internal/metrics"
	"github.com/san-kum/timederiv/internal/pipeline"
	"github.com/san-kum/timederiv/internal/stepstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const usageLine = "Usage: timederiv <inputFname> <variableName> <outputFilename>"

var errUsage = errors.New("usage")

var (
	configFile string
	verbose    bool
	liveView   bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	rootCmd := newRootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, usageLine)
		return -1
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "timederiv <inputFname> <variableName> <outputFilename>",
		Short:         "centered time derivative of a streamed 3D field",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 3 {
				return errUsage
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadOrDefault(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(cfg.Log.Level, cfg.Log.Encoding, verbose)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: runDerivative,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultFile, "config file path (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().BoolVar(&liveView, "live", false, "show progress in a live terminal view")

	rootCmd.AddCommand(newGenerateCmd(), newInspectCmd(), newExportCmd(), newPresetsCmd())
	return rootCmd
}

// openStore opens an existing store. In-memory engines have nothing on disk
// to check.
func openStore(path string) (*stepstore.Store, error) {
	sc := cfg.StoreConfig(path)
	if !sc.InMemory {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	return openLogged(sc)
}

func runDerivative(cmd *cobra.Command, args []string) error {
	inputFname, varName, outputFname := args[0], args[1], args[2]

	in, err := openStore(inputFname)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := openNewStore(outputFname)
	if err != nil {
		return err
	}
	defer out.Close()

	w, err := out.NewWriter()
	if err != nil {
		return err
	}
	w.SetAttribute("source", inputFname)
	w.SetAttribute("variable", varName)

	// Only errors reach the terminal while the live view owns it.
	plog := logger
	if liveView {
		plog = logger.WithOptions(zap.IncreaseLevel(zapcore.ErrorLevel))
	}

	reg := prometheus.NewRegistry()
	p := pipeline.New(in.NewReader(), w, varName, plog)
	p.AddObserver(metrics.NewPipeline(reg))

	var summary *pipeline.Summary
	if liveView {
		summary, err = runLive(cmd.Context(), p, inputFname, varName)
	} else {
		summary, err = p.Run(cmd.Context())
	}
	if err != nil {
		return err
	}

	logger.Info("Run complete",
		zap.Int("steps_read", summary.StepsRead),
		zap.Int("frames_written", summary.FramesWritten),
		zap.Int("derivative_frames", summary.DerivativeFrames),
		zap.Bool("halted", summary.Halted),
		zap.Stringer("shape", summary.Shape),
		zap.String("run_id", w.Manifest().RunID),
	)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// openNewStore opens path for writing, creating it if needed.
func openNewStore(path string) (*stepstore.Store, error) {
	return openLogged(cfg.StoreConfig(path))
}

func openLogged(sc stepstore.Config) (*stepstore.Store, error) {
	st, err := stepstore.Open(sc, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opened store", zap.String("path", st.Path()), zap.Bool("in_memory", sc.InMemory))
	return st, nil
}

// runLive runs p while a bubbletea program shows its progress. Quitting the
// view cancels the run.
func runLive(ctx context.Context, p *pipeline.Pipeline, source, varName string, opts ...tea.ProgramOption) (*pipeline.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(live.NewModel(source, varName, cancel), opts...)
	p.AddObserver(live.NewObserver(prog.Send))

	var (
		summary *pipeline.Summary
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		summary, runErr = p.Run(ctx)
		prog.Send(live.DoneMsg{Err: runErr})
	}()

	if _, err := prog.Run(); err != nil {
		logger.Warn("Live view failed; run continues without it", zap.Error(err))
	}
	<-done
	return summary, runErr
}
