// Package main provides the steer batch runner. It takes a YAML batch
// file of natural-language tasks, runs them sequentially against one
// browser session, and writes a JSON summary of every task's outcome.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/steerhq/steer/pkg/batch"
	"github.com/steerhq/steer/pkg/browser"
	"github.com/steerhq/steer/pkg/config"
	"github.com/steerhq/steer/pkg/llm/openai"
	"github.com/steerhq/steer/pkg/store"
	"github.com/steerhq/steer/pkg/types"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	BatchFile   string
	ConfigFile  string
	DBPath      string
	OutputFile  string
	MetricsAddr string
	Headless    bool
	Timeout     time.Duration
	ShowVersion bool
}

// Summary is the JSON document written after a run.
type Summary struct {
	Batch *types.BatchExecution `json:"batch"`
	Tasks []*types.Task         `json:"tasks"`
}

func main() {
	cliConfig := parseFlags()

	if cliConfig.ShowVersion {
		fmt.Printf("steer v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cliConfig); err != nil {
		cancel()
		log.Printf("Execution failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cliConfig := &CLIConfig{}

	flag.StringVar(&cliConfig.APIKey, "api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
	flag.StringVar(&cliConfig.BaseURL, "base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI API base URL")
	flag.StringVar(&cliConfig.Model, "model", "", "Model to use (overrides config file)")
	flag.StringVar(&cliConfig.BatchFile, "batch", "", "Path to batch file (YAML, required)")
	flag.StringVar(&cliConfig.ConfigFile, "config", "", "Path to configuration overrides file (YAML)")
	flag.StringVar(&cliConfig.DBPath, "db", "", "Path to the state database (default ~/.steer/steer.db)")
	flag.StringVar(&cliConfig.OutputFile, "output", "batch-summary.json", "Output file for the batch summary")
	flag.StringVar(&cliConfig.MetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
	flag.BoolVar(&cliConfig.Headless, "headless", true, "Run the browser headless")
	flag.DurationVar(&cliConfig.Timeout, "timeout", 0, "Overall batch timeout (0 disables)")
	flag.BoolVar(&cliConfig.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Steer - Browser Automation Batch Runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: steer [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run a batch file\n")
		fmt.Fprintf(os.Stderr, "  steer -batch tasks.yaml\n\n")
		fmt.Fprintf(os.Stderr, "  # Run with configuration overrides and a visible browser\n")
		fmt.Fprintf(os.Stderr, "  steer -batch tasks.yaml -config steer.yaml -headless=false\n\n")
	}

	flag.Parse()
	return cliConfig
}

func run(ctx context.Context, cliConfig *CLIConfig) error {
	if cliConfig.BatchFile == "" {
		return fmt.Errorf("batch file is required (-batch)")
	}

	sub, err := loadSubmission(cliConfig.BatchFile)
	if err != nil {
		return err
	}

	global, err := loadGlobalOverrides(cliConfig)
	if err != nil {
		return err
	}

	dbPath, err := resolveDBPath(cliConfig.DBPath)
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, err := openai.NewProvider(cliConfig.APIKey, providerOptions(cliConfig, global)...)
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}

	browserProvider := browser.NewPlaywrightProvider(browser.WithHeadless(cliConfig.Headless))
	if err := browserProvider.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize browser runtime: %w", err)
	}
	defer browserProvider.Shutdown()

	if cliConfig.MetricsAddr != "" {
		go serveMetrics(cliConfig.MetricsAddr)
	}

	if cliConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cliConfig.Timeout)
		defer cancel()
	}

	executor := batch.NewExecutor(st, provider, browserProvider, global)

	log.Printf("Starting batch of %d tasks...", len(sub.Tasks))
	result, err := executor.Execute(ctx, sub)
	if err != nil {
		return err
	}

	tasks, err := st.ListBatchTasks(ctx, result.ID)
	if err != nil {
		return fmt.Errorf("failed to read task outcomes: %w", err)
	}
	if err := writeSummary(cliConfig.OutputFile, &Summary{Batch: result, Tasks: tasks}); err != nil {
		return err
	}

	log.Printf("Batch %s finished: %s (%d completed, %d failed)",
		result.ID, result.Status, result.CompletedCount, result.FailedCount)

	if result.Status == types.BatchStatusFailed {
		return fmt.Errorf("batch failed: %s", result.ErrorMessage)
	}
	return nil
}

// loadSubmission reads the YAML batch file.
func loadSubmission(path string) (*batch.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var sub batch.Submission
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(sub.Tasks) == 0 {
		return nil, fmt.Errorf("batch file %s contains no tasks", path)
	}
	return &sub, nil
}

// loadGlobalOverrides reads the overrides file and applies CLI flags on
// top of it. Flags win over the file.
func loadGlobalOverrides(cliConfig *CLIConfig) (config.Overrides, error) {
	var global config.Overrides
	if cliConfig.ConfigFile != "" {
		loaded, err := config.LoadOverrides(cliConfig.ConfigFile)
		if err != nil {
			return global, fmt.Errorf("failed to load configuration: %w", err)
		}
		global = loaded
	}
	if cliConfig.Model != "" {
		global.Model = &cliConfig.Model
	}
	return global, nil
}

func providerOptions(cliConfig *CLIConfig, global config.Overrides) []openai.ProviderOption {
	var opts []openai.ProviderOption
	if global.Model != nil {
		opts = append(opts, openai.WithModel(*global.Model))
	}
	if cliConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cliConfig.BaseURL))
	}
	return opts
}

func resolveDBPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".steer")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return filepath.Join(dir, "steer.db"), nil
}

func writeSummary(path string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}
