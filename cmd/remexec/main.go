package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lamim/remexec/internal/agent"
	"github.com/lamim/remexec/internal/checkpoint"
	"github.com/lamim/remexec/internal/config"
	"github.com/lamim/remexec/internal/engine"
	"github.com/lamim/remexec/internal/transport"
	"github.com/lamim/remexec/internal/util"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "remexec",
		Short: "remexec - control-plane client for a remote execution backend",
		Long: `remexec drives long-running computation on a remote execution backend
over an unreliable link. Work is split into bounded-duration batches with
progress checkpointed locally, so an interrupted operation resumes from
where it left off.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "remexec.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newCheckCmd(),
		newProbeCmd(),
		newExecCmd(),
		newChunkCmd(),
		newFilesCmd(),
		newCleanupCmd(),
		newVarsCmd(),
		newCheckpointCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap resolves configuration once and wires the capability surface.
// The returned closer flushes the checkpoint store.
func bootstrap() (*agent.Service, func(), error) {
	if envFile != "" {
		if err := util.LoadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	dispatcher := transport.NewDispatcher(cfg.NormalizedBaseURL(), cfg.Backend.RateLimitPerMinute, logger)

	store, err := checkpoint.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	svc := agent.New(cfg, dispatcher, store, logger)
	closer := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close checkpoint store", "error", err)
		}
	}
	return svc, closer, nil
}

// signalContext cancels on interrupt so an in-flight dispatch is abandoned
// cleanly instead of hanging until its deadline.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether the backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()
			return printJSON(svc.CheckConnection(ctx))
		},
	}
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Probe backend resources and get recommendations",
		Long:  "Fetch CPU, memory, accelerator and session-limit figures from the backend and derive advisory recommendations. Call before heavy operations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()
			return printJSON(svc.ProbeEnvironment(ctx))
		},
	}
}

func newExecCmd() *cobra.Command {
	var (
		codeFile       string
		long           bool
		checkpointName string
	)

	cmd := &cobra.Command{
		Use:   "exec [code]",
		Short: "Execute code on the backend",
		Long: `Execute code on the backend. The default tier suits operations that
finish within two minutes; --long raises the budget to ten minutes and can
record a checkpoint of the result with --checkpoint.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(args, codeFile)
			if err != nil {
				return err
			}

			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()

			if long {
				return printJSON(svc.RunLong(ctx, code, checkpointName))
			}
			if checkpointName != "" {
				return fmt.Errorf("--checkpoint requires --long")
			}
			return printJSON(svc.RunQuick(ctx, code))
		},
	}

	cmd.Flags().StringVarP(&codeFile, "file", "f", "", "Read code from a file instead of the argument")
	cmd.Flags().BoolVar(&long, "long", false, "Use the extended (10 minute) execution budget")
	cmd.Flags().StringVar(&checkpointName, "checkpoint", "", "Save a checkpoint of the result under this name (requires --long)")
	return cmd
}

func readCode(args []string, codeFile string) (string, error) {
	switch {
	case codeFile != "":
		data, err := os.ReadFile(codeFile)
		if err != nil {
			return "", fmt.Errorf("failed to read code file: %w", err)
		}
		return string(data), nil
	case len(args) == 1 && args[0] != "":
		return args[0], nil
	default:
		return "", fmt.Errorf("provide code as an argument or via --file")
	}
}

func newChunkCmd() *cobra.Command {
	chunkCmd := &cobra.Command{
		Use:   "chunk",
		Short: "Run long operations in resumable batches",
	}
	chunkCmd.AddCommand(newChunkRunCmd())
	return chunkCmd
}

func newChunkRunCmd() *cobra.Command {
	var (
		setupCode      string
		setupFile      string
		loopCode       string
		total          int
		batchSize      int
		checkpointName string
		runAll         bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance a chunked operation by one batch (or to completion with --all)",
		Long: `Run a long operation in bounded batches. Setup code runs once, on the
first batch; loop code runs per iteration with {i} standing for the index.
Progress is checkpointed after every batch, so an interrupted run resumes
from the last recorded offset when invoked again with the same checkpoint
name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if setupFile != "" {
				data, err := os.ReadFile(setupFile)
				if err != nil {
					return fmt.Errorf("failed to read setup file: %w", err)
				}
				setupCode = string(data)
			}

			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()

			spec := engine.ChunkSpec{
				SetupCode:       setupCode,
				LoopCode:        loopCode,
				TotalIterations: total,
				BatchSize:       batchSize,
				CheckpointName:  checkpointName,
			}

			if !runAll {
				result, err := svc.RunChunked(ctx, spec)
				if err != nil {
					return err
				}
				return printJSON(result)
			}
			return runChunksToCompletion(ctx, svc, spec)
		},
	}

	cmd.Flags().StringVar(&setupCode, "setup", "", "One-time setup code (imports, data loading)")
	cmd.Flags().StringVar(&setupFile, "setup-file", "", "Read setup code from a file")
	cmd.Flags().StringVar(&loopCode, "loop", "", "Per-iteration code; {i} is the iteration index")
	cmd.Flags().IntVar(&total, "total", 0, "Total number of iterations")
	cmd.Flags().IntVar(&batchSize, "batch", 10, "Iterations per batch")
	cmd.Flags().StringVar(&checkpointName, "checkpoint", engine.DefaultCheckpointName, "Checkpoint name for progress tracking")
	cmd.Flags().BoolVar(&runAll, "all", false, "Keep dispatching batches until the operation completes")
	_ = cmd.MarkFlagRequired("loop")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

// runChunksToCompletion drives batches until the operation reports no more
// work, showing batch-level progress. It stops on the first failed batch so
// the operator can decide whether to continue.
func runChunksToCompletion(ctx context.Context, svc *agent.Service, spec engine.ChunkSpec) error {
	bar := progressbar.Default(int64(spec.TotalIterations), "Iterations")

	var last *engine.ChunkResult
	for {
		result, err := svc.RunChunked(ctx, spec)
		if err != nil {
			return err
		}
		last = result
		_ = bar.Set(result.Completed)

		if !result.Success {
			fmt.Fprintln(os.Stderr, "Batch failed, stopping")
			break
		}
		if !result.CanContinue {
			break
		}
	}

	fmt.Println()
	return printJSON(last)
}

func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "List and download backend files",
	}

	listCmd := &cobra.Command{
		Use:   "list [path]",
		Short: "List files in a backend directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/content"
			if len(args) == 1 {
				path = args[0]
			}

			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()
			return printJSON(svc.ListFiles(ctx, path))
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <remote-path> [local-name]",
		Short: "Download a backend file to the local save directory",
		Long:  "Download a file from the backend. Backend files are lost when the session ends; pull down important results immediately.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			localName := ""
			if len(args) == 2 {
				localName = args[1]
			}

			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()
			return printJSON(svc.DownloadFile(ctx, args[0], localName))
		},
	}

	filesCmd.AddCommand(listCmd, getCmd)
	return filesCmd
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Free backend memory (unsaved remote variables are lost)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()
			return printJSON(svc.Cleanup(ctx))
		},
	}
}

func newVarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vars",
		Short: "List variables held in the backend session",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()
			return printJSON(svc.ListVariables(ctx))
		},
	}
}

func newCheckpointCmd() *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect saved checkpoints",
	}

	showCmd := &cobra.Command{
		Use:   "show <operation>",
		Short: "Show today's checkpoint for an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closer, err := bootstrap()
			if err != nil {
				return err
			}
			defer closer()

			return printJSON(svc.GetCheckpoint(args[0]))
		},
	}

	checkpointCmd.AddCommand(showCmd)
	return checkpointCmd
}
