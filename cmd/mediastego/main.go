package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"MediaSteGo/pkg/aggregate"
	"MediaSteGo/pkg/analyzer"
	audioanalyzer "MediaSteGo/pkg/analyzer/audio"
	imageanalyzer "MediaSteGo/pkg/analyzer/image"
	videoanalyzer "MediaSteGo/pkg/analyzer/video"
	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/logging"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/pipeline"
	"MediaSteGo/pkg/security"
	"MediaSteGo/pkg/store"
)

// Analysis modes
const (
	ModeLSB       = "lsb"
	ModeAggregate = "aggregate"
	ModeSecurity  = "security"
	ModeLegacy    = "legacy"
)

type options struct {
	filePath    string
	dirPath     string
	recursive   bool
	urlPath     string
	urlFilePath string
	outputDir   string
	configPath  string
	dbPath      string
	mode        string
	workers     int
	jsonOutput  bool
	verbose     bool
	listFormats bool
	history     int
}

func createFlagSet(o *options) *pflag.FlagSet {
	pf := pflag.NewFlagSet("mediastego", pflag.ContinueOnError)
	pf.StringVarP(&o.filePath, "file", "f", "", "Path to a single file for analysis")
	pf.StringVarP(&o.dirPath, "dir", "d", "", "Path to directory of files for analysis")
	pf.BoolVarP(&o.recursive, "recursive", "r", false, "Descend into subdirectories of --dir")
	pf.StringVar(&o.urlPath, "url", "", "URL to download and analyze")
	pf.StringVar(&o.urlFilePath, "urlfile", "", "Path to file containing URLs to download and analyze")
	pf.StringVar(&o.outputDir, "outdir", "mediastego_output", "Directory to store results and downloaded files")
	pf.StringVarP(&o.configPath, "config", "c", "", "Use yaml configuration file")
	pf.StringVar(&o.dbPath, "db", "", "Record verdicts in this sqlite database (overrides store.path)")
	pf.StringVarP(&o.mode, "mode", "m", ModeLSB, "Analysis mode: lsb, aggregate, security or legacy")
	pf.IntVarP(&o.workers, "workers", "w", 0, "Number of files analyzed in parallel (overrides pipeline.workers)")
	pf.BoolVar(&o.jsonOutput, "json", false, "Print results as JSON")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&o.listFormats, "listformats", false, "List all supported file formats")
	pf.IntVar(&o.history, "history", 0, "Show the last N recorded verdicts from the database and exit")
	return pf
}

func parseArgs(args []string) (*options, *pflag.FlagSet, error) {
	o := &options{}
	pf := createFlagSet(o)
	if err := pf.Parse(args); err != nil {
		return nil, pf, err
	}

	switch o.mode {
	case ModeLSB, ModeAggregate, ModeSecurity, ModeLegacy:
	default:
		return nil, pf, fmt.Errorf("unknown mode %q", o.mode)
	}
	if o.workers < 0 {
		return nil, pf, fmt.Errorf("workers must not be negative")
	}
	return o, pf, nil
}

func (o *options) hasInput() bool {
	return o.filePath != "" || o.dirPath != "" || o.urlPath != "" || o.urlFilePath != ""
}

// inputs gathers the batch in the order file, directory, url, url file
func (o *options) inputs() ([]string, error) {
	var inputs []string
	if o.filePath != "" {
		inputs = append(inputs, o.filePath)
	}
	if o.dirPath != "" {
		files, err := filehandler.FilesInDirectory(o.dirPath, o.recursive)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, files...)
	}
	if o.urlPath != "" {
		inputs = append(inputs, o.urlPath)
	}
	if o.urlFilePath != "" {
		urls, err := filehandler.ReadLines(o.urlFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read URL file: %w", err)
		}
		inputs = append(inputs, urls...)
	}
	return inputs, nil
}

// services holds everything wired from the configuration
type services struct {
	registry   *analyzer.Registry
	dispatcher *analyzer.Dispatcher
	images     *imageanalyzer.ImageAnalyzer
	aggregator *aggregate.Aggregator
	security   *security.Service
	reputation external.ReputationService
}

func buildServices(cfg *config.Config) *services {
	runner := external.NewExecRunner(cfg.Tools.Timeout)
	prober := &external.FFprobe{Runner: runner, Binary: cfg.Tools.FFprobe}
	audioDecoder := &external.FFmpegAudio{Runner: runner, Binary: cfg.Tools.FFmpeg}
	frames := &external.FFmpegFrames{
		Runner: runner,
		Binary: cfg.Tools.FFmpeg,
		Prober: &external.FFprobe{Runner: runner, Binary: cfg.Tools.FFprobe, CountFrames: cfg.Tools.CountFrames},
	}

	images := imageanalyzer.NewImageAnalyzer(cfg)
	registry := analyzer.NewRegistry()
	registry.Register(images)
	registry.Register(audioanalyzer.NewAudioAnalyzer(cfg, audioDecoder))
	registry.Register(videoanalyzer.NewVideoAnalyzer(cfg, frames, audioDecoder))
	dispatcher := analyzer.NewDispatcher(registry)

	var detectors []aggregate.ExternalDetector
	for _, name := range cfg.Aggregate.Externals {
		switch models.Method(name) {
		case models.MethodStegExpose:
			detectors = append(detectors, &external.StegExpose{JavaTool: external.JavaTool{
				Runner: runner, Java: cfg.Tools.Java, Jar: cfg.Tools.StegExposeJar,
			}})
		case models.MethodOpenStego:
			detectors = append(detectors, &external.OpenStego{JavaTool: external.JavaTool{
				Runner: runner, Java: cfg.Tools.Java, Jar: cfg.Tools.OpenStegoJar,
			}})
		default:
			logging.Warn().Str("method", name).Msg("ignoring unknown external detector")
		}
	}

	var scanner external.SignatureScanner
	if cfg.Tools.YaraRules != "" {
		scanner = &external.YaraCLI{Runner: runner, Binary: cfg.Tools.Yara, Rules: cfg.Tools.YaraRules}
	}

	var reputation external.ReputationService
	if cfg.Reputation.URLhausURL != "" {
		reputation = external.NewURLhaus(cfg.Reputation)
	}

	return &services{
		registry:   registry,
		dispatcher: dispatcher,
		images:     images,
		aggregator: aggregate.New(cfg, dispatcher, detectors...),
		security:   security.NewService(dispatcher, prober, scanner),
		reputation: reputation,
	}
}

func (s *services) task(mode string) pipeline.Task {
	switch mode {
	case ModeAggregate:
		return pipeline.AggregateTask(s.aggregator)
	case ModeSecurity:
		return pipeline.SecurityTask(s.security)
	case ModeLegacy:
		return pipeline.LegacyTask(s.images, s.dispatcher)
	default:
		return pipeline.VerdictTask(s.dispatcher)
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, pf, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		printError("%v", err)
		return 1
	}

	// Banner and version info
	if !opts.jsonOutput {
		fmt.Println("MediaSteGo v1.0.0")
		fmt.Println("Statistical steganography detection for images, audio and video")
		fmt.Println("---------------------------------")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		printError("Failed to load configuration: %v", err)
		return 1
	}
	if opts.workers > 0 {
		cfg.Pipeline.Workers = opts.workers
	}
	if opts.dbPath != "" {
		cfg.Store.Path = opts.dbPath
	}

	level := cfg.Logging.Level
	if opts.verbose {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format})

	svc := buildServices(cfg)

	// Handle list formats flag
	if opts.listFormats {
		listFormats(svc.registry)
		return 0
	}

	var db *store.Store
	if cfg.Store.Path != "" {
		db, err = store.Open(cfg.Store.Path)
		if err != nil {
			printError("Failed to open history database: %v", err)
			return 1
		}
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.history > 0 {
		if db == nil {
			printError("--history needs --db or store.path")
			return 1
		}
		return showHistory(ctx, db, opts.history, opts.jsonOutput)
	}

	// Ensure we have at least one input method
	if !opts.hasInput() {
		fmt.Println("Usage:")
		fmt.Println("  mediastego --file <filepath>")
		fmt.Println("  mediastego --dir <directory> [--recursive]")
		fmt.Println("  mediastego --url <url>")
		fmt.Println("  mediastego --urlfile <file-with-urls>")
		pf.PrintDefaults()
		return 1
	}

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		printError("Failed to create output directory: %v", err)
		return 1
	}

	if cfg.Metrics.Addr != "" {
		shutdown := serveMetrics(cfg.Metrics.Addr)
		defer shutdown()
	}

	inputs, err := opts.inputs()
	if err != nil {
		printError("%v", err)
		return 1
	}
	if !opts.jsonOutput {
		printInfo("Found %d inputs to analyze (mode: %s, workers: %d)", len(inputs), opts.mode, cfg.Pipeline.Workers)
	}

	var pipeOpts []pipeline.Option
	pipeOpts = append(pipeOpts, pipeline.WithDownloadDir(filepath.Join(opts.outputDir, "downloads")))
	if svc.reputation != nil {
		pipeOpts = append(pipeOpts, pipeline.WithReputation(svc.reputation))
	}
	p := pipeline.New(cfg.Pipeline, svc.task(opts.mode), pipeOpts...)

	results, err := p.Run(ctx, inputs)
	if err != nil {
		printWarning("Batch interrupted: %v", err)
	}

	if db != nil {
		recordResults(context.WithoutCancel(ctx), db, opts.mode, results)
	}

	reportPath := filepath.Join(opts.outputDir, fmt.Sprintf("report_%s.json", time.Now().Format("20060102_150405")))
	if err := writeReport(reportPath, results); err != nil {
		printError("Failed to write report: %v", err)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			printError("Failed to encode results: %v", err)
			return 1
		}
		return 0
	}

	for i := range results {
		displayResult(&results[i], opts.verbose)
	}
	printSummary(results)
	printInfo("Report written to %s", reportPath)
	return 0
}

func listFormats(registry *analyzer.Registry) {
	fmt.Println("Supported file formats:")
	for _, format := range registry.SupportedFormats() {
		analyzers := registry.AnalyzersFor(format)
		names := make([]string, 0, len(analyzers))
		for _, a := range analyzers {
			names = append(names, a.Name())
		}
		lossy := ""
		if filehandler.IsLossy(format) {
			lossy = " (lossy)"
		}
		fmt.Printf("- %s: %s%s\n", format, strings.Join(names, ", "), lossy)
	}
}

func recordResults(ctx context.Context, db *store.Store, mode string, results []pipeline.Result) {
	scanID, err := db.StartScan(ctx, mode, len(results))
	if err != nil {
		printError("Failed to record scan: %v", err)
		return
	}
	for i := range results {
		if _, err := db.SaveResult(ctx, scanID, &results[i]); err != nil {
			printError("Failed to record %s: %v", results[i].Input, err)
		}
	}
}

func showHistory(ctx context.Context, db *store.Store, limit int, asJSON bool) int {
	records, err := db.Recent(ctx, limit)
	if err != nil {
		printError("Failed to read history: %v", err)
		return 1
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			printError("Failed to encode history: %v", err)
			return 1
		}
		return 0
	}
	printHistory(records)
	return 0
}

func writeReport(path string, results []pipeline.Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return filehandler.SaveFile(data, path)
}

// serveMetrics exposes /metrics and returns a function stopping the server
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logging.Info().Str("addr", addr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
