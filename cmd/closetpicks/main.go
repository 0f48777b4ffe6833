package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"closetpicks/internal/checkpoint"
	"closetpicks/internal/config"
	"closetpicks/internal/enrich"
	"closetpicks/internal/extract"
	"closetpicks/internal/model"
	"closetpicks/internal/overrides"
	"closetpicks/internal/picks"
	"closetpicks/internal/pipeline"
	"closetpicks/internal/server"
	"closetpicks/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "closetpicks",
	Short:   "Criterion Closet Picks data pipeline",
	Long:    "closetpicks collects episodes and closet collections, reconciles picks against the Criterion catalog, extracts quotes from transcripts, and enriches film metadata for the static site.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(newStageCmd("collect", "Fetch the uploads feed and parse saved source pages", "collect"))
	rootCmd.AddCommand(newStageCmd("merge", "Merge guest sources and resolve raw picks against the catalog", "guests", "picks"))
	rootCmd.AddCommand(newStageCmd("boxsets", "Group box-set picks into aggregates", "boxsets"))
	rootCmd.AddCommand(newStageCmd("backfill", "Synthesize catalog entries for unresolved picks", "backfill"))
	rootCmd.AddCommand(newStageCmd("extract", "Extract quotes from transcripts and merge into picks", "extract"))
	rootCmd.AddCommand(newStageCmd("enrich", "Fill film and guest metadata from TMDB", "enrich"))
	rootCmd.AddCommand(newStageCmd("overrides", "Apply the correction tables", "overrides"))
	rootCmd.AddCommand(newStageCmd("validate", "Check store consistency and write the report", "validate"))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("closetpicks", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and correction tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
		} else {
			if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Created config: %s\n", target)
		}

		// Correction tables live next to the snapshots so edits travel
		// with the data.
		dataDir := config.DataDir()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		seeds := []struct {
			name    string
			content []byte
		}{
			{"overrides.yaml", overrides.DefaultDocYAML()},
			{"box_sets.yaml", picks.DefaultRegistryYAML()},
		}
		for _, s := range seeds {
			path := filepath.Join(dataDir, s.name)
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("Already exists: %s\n", path)
				continue
			}
			if err := os.WriteFile(path, s.content, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", s.name, err)
			}
			fmt.Printf("Created: %s\n", path)
		}

		fmt.Println("Edit the config to set API key variables and the uploads feed.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show snapshot and checkpoint status",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := store.Load[model.Film](cfg.CatalogFile())
		if err != nil {
			return err
		}
		guestList, err := store.Load[model.Guest](cfg.GuestsFile())
		if err != nil {
			return err
		}
		pks, err := store.Load[model.Pick](cfg.PicksFile())
		if err != nil {
			return err
		}
		raw, err := store.Load[model.RawPick](cfg.RawPicksFile())
		if err != nil {
			return err
		}

		withQuote := 0
		for _, p := range pks {
			if p.Quote != "" {
				withQuote++
			}
		}
		withVideo := 0
		for _, g := range guestList {
			if g.YouTubeVideoID != nil || g.VimeoVideoID != nil {
				withVideo++
			}
		}

		fmt.Printf("Data directory: %s\n\n", cfg.GetDataDir())
		fmt.Println("Snapshots:")
		fmt.Printf("  Catalog films: %d\n", len(catalog))
		fmt.Printf("  Guests: %d (%d with video)\n", len(guestList), withVideo)
		fmt.Printf("  Raw picks: %d\n", len(raw))
		fmt.Printf("  Picks: %d (%d with quote)\n", len(pks), withQuote)

		cp, err := checkpoint.Open(cfg.CheckpointDB())
		if err != nil {
			return err
		}
		defer cp.Close()

		fmt.Println("\nCheckpoints:")
		for _, stage := range []string{extract.Stage, enrich.FilmStage, enrich.GuestStage} {
			n, err := cp.Count(stage)
			if err != nil {
				return err
			}
			fmt.Printf("  %s: %d\n", stage, n)
		}
		return nil
	},
}

// --- run and stage commands ---

var (
	dryRun    bool
	force     bool
	limit     int
	guestSlug string
)

func buildPipeline() *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		Config:    cfg,
		Force:     force,
		DryRun:    dryRun,
		Limit:     limit,
		GuestSlug: guestSlug,
	}

	if key := os.Getenv(cfg.Extraction.APIKeyEnv); key != "" {
		p.Provider = extract.NewGeminiProvider(cfg.Extraction.Model, cfg.Extraction.BaseURL, key)
	}
	if key := os.Getenv(cfg.TMDB.APIKeyEnv); key != "" {
		p.Client = enrich.NewTMDBClient(cfg.TMDB.BaseURL, cfg.TMDB.ImageBaseURL, key, cfg.Matching.TitleThreshold)
	}
	return p
}

func printResults(results []pipeline.StepResult) {
	for i, step := range results {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(pipeline.StepNames), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect -> guests -> picks -> boxsets -> backfill -> extract -> enrich -> overrides -> validate",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := buildPipeline()
		start := time.Now()
		results := p.Run(context.Background())
		printResults(results)

		if !dryRun {
			summaryPath := filepath.Join(cfg.ValidationDir(), "last_run.md")
			if err := os.MkdirAll(cfg.ValidationDir(), 0o755); err != nil {
				return err
			}
			md := pipeline.Summary(results, start)
			if err := os.WriteFile(summaryPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("writing run summary: %w", err)
			}
			fmt.Println("\nPipeline complete! Run 'closetpicks serve' to browse the data.")
		}

		for _, r := range results {
			if r.Err != nil {
				return fmt.Errorf("step %s failed", r.Name)
			}
		}
		return nil
	},
}

// newStageCmd wraps one or more pipeline stages as a discrete command.
func newStageCmd(use, short string, stages ...string) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := buildPipeline()
			for _, stage := range stages {
				r := p.RunStep(context.Background(), stage)
				if r.Err != nil {
					return r.Err
				}
				fmt.Printf("%s: %s\n", r.Name, r.Summary)
			}
			return nil
		},
	}
	addStageFlags(c)
	return c
}

func addStageFlags(c *cobra.Command) {
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without mutating snapshots")
	c.Flags().BoolVar(&force, "force", false, "Redo checkpointed extraction and enrichment")
	c.Flags().IntVar(&limit, "limit", 0, "Cap extraction at this many guest visits")
	c.Flags().StringVar(&guestSlug, "guest", "", "Restrict extraction to one guest slug")
}

func init() {
	addStageFlags(runCmd)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local snapshot viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cfg, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
