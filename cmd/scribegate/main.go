package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/zen-systems/scribegate/pkg/adapter"
	"github.com/zen-systems/scribegate/pkg/config"
	"github.com/zen-systems/scribegate/pkg/pipeline"
	"github.com/zen-systems/scribegate/pkg/template"
)

var (
	clientFlag  string
	modelFlag   string
	verboseFlag bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "scribegate",
		Short: "Transcript analysis pipeline runner",
		Long: `Scribegate runs a library of transcript analysis prompt templates as a
	dependency-ordered pipeline: first-pass analyses against the raw
	transcript, second-pass analyses against their aggregated output, and a
	closing synthesis report. Every model response is validated against the
	template's output contract and regenerated on violation.`,
	}

	rootCmd.PersistentFlags().StringVar(&clientFlag, "client", "", "model provider (anthropic, openai, google, deepseek, mock)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model id to use for every stage")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var pipelinePath string
	var templatesDir string

	cmd := &cobra.Command{
		Use:   "run [transcript-file]",
		Short: "Run the analysis pipeline over a transcript",
		Long: `Runs every pipeline stage to completion and prints the per-stage report
	plus the final synthesis. Reads the transcript from the named file, or
	from stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verboseFlag)

			transcript, err := readTranscript(args)
			if err != nil {
				return err
			}

			catalog, err := loadCatalog(templatesDir)
			if err != nil {
				return fmt.Errorf("load templates: %w", err)
			}

			var p *pipeline.Pipeline
			if pipelinePath != "" {
				p, err = pipeline.LoadManifest(pipelinePath)
			} else {
				p, err = pipeline.Default()
			}
			if err != nil {
				return fmt.Errorf("load pipeline: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			client, err := createClient(cfg)
			if err != nil {
				return err
			}
			model := modelFlag
			if model == "" && len(client.Models()) > 0 {
				model = client.Models()[0]
			}

			orch, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
				Catalog: catalog,
				Client:  client,
				Call:    adapter.Options{Model: model},
				Runner:  cfg.Runner,
				Logger:  log,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, err := orch.Execute(ctx, p, pipeline.RunOptions{Transcript: transcript})
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), catalog, p, run)
			if run.Status != pipeline.RunSucceeded {
				return fmt.Errorf("run %s finished %s", run.ID, run.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "pipeline manifest (default: built-in transcript review)")
	cmd.Flags().StringVar(&templatesDir, "templates", "", "template catalog directory (default: built-in catalog)")
	return cmd
}

func templatesCmd() *cobra.Command {
	var templatesDir string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the template catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(templatesDir)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPHASE\tHEADER\tSECTIONS\tTAGS")
			for _, id := range catalog.IDs() {
				tmpl, err := catalog.Get(id)
				if err != nil {
					return err
				}
				labels := make([]string, 0, len(tmpl.Sections))
				for i := range tmpl.Sections {
					labels = append(labels, tmpl.Sections[i].Label())
				}
				fmt.Fprintf(w, "%s\t%s\t%d line(s)\t%s\t%s\n",
					tmpl.ID, tmpl.Phase, tmpl.Header.Lines,
					strings.Join(labels, ", "), strings.Join(tmpl.Tags, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&templatesDir, "templates", "", "template catalog directory (default: built-in catalog)")
	return cmd
}

func validateCmd() *cobra.Command {
	var pipelinePath string
	var templatesDir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline manifest against the template catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(templatesDir)
			if err != nil {
				return err
			}

			var p *pipeline.Pipeline
			if pipelinePath != "" {
				p, err = pipeline.LoadManifest(pipelinePath)
			} else {
				p, err = pipeline.Default()
			}
			if err != nil {
				return err
			}

			if err := p.Validate(catalog); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s: %d stages, ok\n", p.Name, len(p.Stages))
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "pipeline manifest (default: built-in transcript review)")
	cmd.Flags().StringVar(&templatesDir, "templates", "", "template catalog directory (default: built-in catalog)")
	return cmd
}

func loadCatalog(dir string) (*template.Catalog, error) {
	if dir == "" {
		return template.Builtin()
	}
	return template.Load(os.DirFS(dir))
}

func createClient(cfg *config.Config) (adapter.Client, error) {
	name := clientFlag
	if name == "" {
		for _, candidate := range []string{"anthropic", "openai", "google", "deepseek"} {
			if cfg.HasClient(candidate) {
				name = candidate
				break
			}
		}
	}

	switch name {
	case "anthropic":
		return adapter.NewAnthropicClient(cfg.AnthropicAPIKey)
	case "openai":
		return adapter.NewOpenAIClient(cfg.OpenAIAPIKey)
	case "google":
		return adapter.NewGoogleClient(cfg.GoogleAPIKey)
	case "deepseek":
		return adapter.NewDeepSeekClient(cfg.DeepSeekAPIKey)
	case "mock":
		return adapter.NewMockClient(), nil
	case "":
		return nil, fmt.Errorf("no API key configured; set one or pass --client")
	default:
		return nil, fmt.Errorf("unknown client %q", name)
	}
}

func readTranscript(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read transcript: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read transcript from stdin: %w", err)
	}
	return string(data), nil
}

func printReport(w io.Writer, catalog *template.Catalog, p *pipeline.Pipeline, run *pipeline.Run) {
	fmt.Fprintf(w, "run %s: %s\n\n", run.ID, run.Status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tATTEMPTS\tDURATION")
	for _, stage := range p.Stages {
		res, ok := run.Result(stage.ID)
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", res.StageID, res.Status, res.Attempts, res.Duration.Round(time.Millisecond))
	}
	tw.Flush()

	for _, stage := range p.Stages {
		tmpl, err := catalog.Get(stage.Template)
		if err != nil || tmpl.Phase != template.PhaseFinal {
			continue
		}
		res, ok := run.Result(stage.ID)
		if !ok {
			continue
		}
		if res.Status == pipeline.StatusSucceeded && res.Result != nil {
			fmt.Fprintf(w, "\n%s\n\n%s\n", res.Result.Header, res.Result.Body)
		}
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
}
