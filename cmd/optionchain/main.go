// Command optionchain runs the option chain pipeline from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"optionchain/internal/aggregate"
	"optionchain/internal/app"
	"optionchain/internal/config"
	"optionchain/internal/logging"
	"optionchain/internal/provider"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what PersistentPreRunE prepares for every subcommand.
type env struct {
	cfg config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "optionchain",
		Short:         "Acquire, store and inspect index option chains",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.Logging.Level = lvl
			}
			if sym, _ := cmd.Flags().GetString("symbol"); sym != "" {
				cfg.Source.Symbol = sym
				cfg.Synthetic.Underlying = sym
			}
			log, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			e.cfg, e.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}
	root.PersistentFlags().String("config", os.Getenv("CONFIG_FILE"), "config file path (default: ./config.{json,yaml})")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().String("symbol", "", "index symbol override")

	root.AddCommand(newFetchCmd(e), newLatestCmd(e), newDumpCmd(e))
	return root
}

func newFetchCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one acquisition with fallback and print the snapshot",
		Long: `Run the live pipeline once. When it fails, the most recent stored real
snapshot is used, then synthetic data. The outcome message goes to stderr.

With --live-only the fallback is skipped and a live failure is an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			liveOnly, _ := cmd.Flags().GetBool("live-only")
			summary, _ := cmd.Flags().GetBool("summary")

			p, err := app.New(cmd.Context(), e.cfg, e.log)
			if err != nil {
				return err
			}
			defer p.Close()

			var snap provider.Snapshot
			if liveOnly {
				ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.PipelineTimeout())
				defer cancel()
				snap, err = p.Live.Fetch(ctx)
				if err != nil {
					return err
				}
			} else {
				res := p.Resolver.Resolve(cmd.Context())
				fmt.Fprintln(cmd.ErrOrStderr(), res.Message)
				snap = res.Snapshot
			}
			if summary {
				return render(cmd.OutOrStdout(), format, aggregate.Summarize(snap))
			}
			return render(cmd.OutOrStdout(), format, snap)
		},
	}
	cmd.Flags().String("format", "json", "output format (json, yaml)")
	cmd.Flags().Bool("live-only", false, "fail instead of falling back")
	cmd.Flags().Bool("summary", false, "print the chain summary instead of every strike")
	return cmd
}

func newLatestCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the newest stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			summary, _ := cmd.Flags().GetBool("summary")

			p, err := app.New(cmd.Context(), e.cfg, e.log)
			if err != nil {
				return err
			}
			defer p.Close()

			snap, err := p.Store.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if snap == nil {
				return errNoSnapshot
			}
			if summary {
				return render(cmd.OutOrStdout(), format, aggregate.Summarize(*snap))
			}
			return render(cmd.OutOrStdout(), format, snap)
		},
	}
	cmd.Flags().String("format", "json", "output format (json, yaml)")
	cmd.Flags().Bool("summary", false, "print the chain summary instead of every strike")
	return cmd
}

var errNoSnapshot = errors.New("no option chain stored yet")

func newDumpCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Run the session handshake and fetch, then save the raw payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			live, err := app.NewLive(e.cfg, e.log)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.PipelineTimeout())
			defer cancel()

			raw, err := live.FetchRaw(ctx)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
				return err
			}
			if err := os.WriteFile(out, raw, 0o644); err != nil {
				return fmt.Errorf("write dump: %w", err)
			}
			e.log.Info("raw option chain saved", zap.String("path", out), zap.Int("bytes", len(raw)))
			return nil
		},
	}
	cmd.Flags().String("out", "option_chain_raw.json", "output file, - for stdout")
	return cmd
}
