// Command mediactl runs analyses and inspects stored results from a shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-analysis-service/internal/analysis"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/config"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/inference"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-analysis-service/internal/infra/protect"
	"github.com/fiapx/fiapx-analysis-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		if errors.Is(err, entity.ErrAuthentication) {
			fmt.Fprintln(os.Stderr, "mediactl: protected file failed authentication (wrong key or tampered data)")
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "mediactl:", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	logLevel string
}

func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.logLevel, "log-level", "", "override LOG_LEVEL")
}

// setup loads the environment config and a logger honoring --log-level.
func (o *globalOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	log, err := logger.New(level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "mediactl",
		Short:         "Deepfake analysis tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.addFlags(root.PersistentFlags())

	root.AddCommand(
		newAnalyzeCommand(opts, out),
		newProtectCommand(opts, out),
		newRevealCommand(opts, out),
		newHistoryCommand(opts, out),
	)
	return root
}

func newAnalyzeCommand(opts *globalOptions, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <path>",
		Short: "Classify a local image or video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			classifier := inference.Limit(inference.NewClient(inference.ClientConfig{
				URL:        cfg.InferenceURL,
				Model:      cfg.ModelName,
				Timeout:    cfg.InferenceTimeout,
				MaxRetries: cfg.InferenceMaxRetries,
			}, log), cfg.InferenceMaxConcurrency)
			pipeline := analysis.NewPipeline(classifier, ffmpeg.NewDecoder(cfg.FFmpegPath, cfg.FFprobePath, log), log,
				analysis.PipelineConfig{SampleFrames: cfg.VideoSampleFrames, ModelName: cfg.ModelName})

			start := time.Now()
			result, err := pipeline.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(out, struct {
				Prediction   entity.Prediction      `json:"prediction"`
				Confidence   float64                `json:"confidence"`
				AnalysisTime float64                `json:"analysis_time"`
				Details      entity.AnalysisDetails `json:"details"`
			}{
				Prediction:   result.Prediction,
				Confidence:   result.DisplayConfidence(),
				AnalysisTime: entity.Round(time.Since(start).Seconds(), 2),
				Details:      result.Details,
			})
		},
	}
}

func newProtectCommand(opts *globalOptions, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "protect <path>",
		Short: "Encrypt a file in place, replacing it with <path>" + protect.Suffix,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			protector, err := protect.NewProtector(protect.Config{Secret: cfg.EncryptionKey, Salt: cfg.EncryptionSalt}, log)
			if err != nil {
				return err
			}
			protected, err := protector.Protect(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, protected)
			return nil
		},
	}
}

func newRevealCommand(opts *globalOptions, out io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "reveal <path" + protect.Suffix + ">",
		Short: "Decrypt a protected file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			protector, err := protect.NewProtector(protect.Config{Secret: cfg.EncryptionKey, Salt: cfg.EncryptionSalt}, log)
			if err != nil {
				return err
			}
			plaintext, err := protector.Reveal(args[0])
			if err != nil {
				return err
			}

			dst := output
			if dst == "" {
				dst = strings.TrimSuffix(args[0], protect.Suffix)
			}
			if dst == "-" {
				_, err = out.Write(plaintext)
				return err
			}
			if dst == args[0] {
				return fmt.Errorf("refusing to overwrite %s; pass --out", args[0])
			}
			if err := os.WriteFile(dst, plaintext, 0o600); err != nil {
				return fmt.Errorf("%w: write %s: %v", entity.ErrIO, dst, err)
			}
			fmt.Fprintln(out, dst)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "out", "o", "", "destination path, - for stdout (default: input without "+protect.Suffix+")")
	return cmd
}

func newHistoryCommand(opts *globalOptions, out io.Writer) *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analyses with summary statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pool.Close()

			records, err := postgres.NewAnalysisRepository(pool).ListRecent(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			views := make([]entity.AnalysisView, 0, len(records))
			for _, r := range records {
				views = append(views, r.View())
			}
			return writeJSON(out, struct {
				Summary  entity.AnalysisSummary `json:"summary"`
				Analyses []entity.AnalysisView  `json:"analyses"`
			}{
				Summary:  entity.Summarize(records),
				Analyses: views,
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only list analyses owned by this user")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of analyses to list")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
