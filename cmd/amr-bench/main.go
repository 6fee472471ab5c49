// Package main provides amr-bench, a benchmark tool for amr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var errHyperfineNotFound = errors.New("hyperfine not found; install it first")

// Config holds all benchmark configuration.
type Config struct {
	Bin     string
	BenchRoot string
	Counts  []int
	OutDir  string
	Warmup  int
	MinRuns int
	MaxRuns int
}

// HyperfineResultEntry represents a single hyperfine benchmark result.
type HyperfineResultEntry struct {
	Command string  `json:"command"`
	Mean    float64 `json:"mean"`
	Stddev  float64 `json:"stddev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// HyperfineResult represents hyperfine JSON output.
type HyperfineResult struct {
	Results []HyperfineResultEntry `json:"results"`
}

func main() {
	cfg := Config{}

	exe, _ := os.Executable()
	rootDir := filepath.Dir(filepath.Dir(exe))

	wd, wdErr := os.Getwd()
	if wdErr == nil {
		rootDir = wd
	}

	flag.StringVar(&cfg.Bin, "bin", filepath.Join(rootDir, "amr"), "Path to amr binary")
	flag.StringVar(&cfg.BenchRoot, "root", "/tmp/amr-bench", "Benchmark data root directory")
	flag.StringVar(&cfg.OutDir, "out", filepath.Join(rootDir, ".benchmarks"), "Output directory for reports")

	countsStr := flag.String("counts", "1000,50000", "Comma-separated list of entry counts to benchmark")

	flag.IntVar(&cfg.Warmup, "warmup", 3, "Number of warmup runs")
	flag.IntVar(&cfg.MinRuns, "min-runs", 20, "Minimum number of search benchmark runs")
	flag.IntVar(&cfg.MaxRuns, "max-runs", 0, "Maximum number of search benchmark runs, 0=unlimited")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: amr-bench [flags]\n\n")
		fmt.Fprint(os.Stderr, "Benchmarks amr search latency against seeded corpora.\n\n")
		fmt.Fprint(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	for countStr := range strings.SplitSeq(*countsStr, ",") {
		countStr = strings.TrimSpace(countStr)
		if countStr == "" {
			continue
		}

		count, err := strconv.Atoi(countStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid count %q: %v\n", countStr, err)
			os.Exit(1)
		}

		cfg.Counts = append(cfg.Counts, count)
	}

	if len(cfg.Counts) == 0 {
		fmt.Fprint(os.Stderr, "no counts specified\n")
		os.Exit(1)
	}

	if err := validatePrereqs(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	if err := runSearchBench(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "search benchmark failed: %v\n", err)
		os.Exit(1)
	}
}

func validatePrereqs(cfg *Config) error {
	if _, err := exec.LookPath("hyperfine"); err != nil {
		return errHyperfineNotFound
	}

	info, err := os.Stat(cfg.Bin)
	if err != nil {
		return fmt.Errorf("amr binary not found at %s, run 'go build ./cmd/amr' or set -bin flag: %w", cfg.Bin, err)
	}

	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("amr binary at %s is not executable: %w", cfg.Bin, os.ErrPermission)
	}

	return nil
}

func getSystemInfo() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Run %s\n\n", time.Now().UTC().Format(time.RFC3339)))

	ctx := context.Background()

	if rev, err := exec.CommandContext(ctx, "git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		sb.WriteString(fmt.Sprintf("- git: %s\n", strings.TrimSpace(string(rev))))
	}

	if ver, err := exec.CommandContext(ctx, "go", "version").Output(); err == nil {
		sb.WriteString(fmt.Sprintf("- %s\n", strings.TrimSpace(string(ver))))
	}

	sb.WriteString(fmt.Sprintf("- %s/%s\n\n", runtime.GOOS, runtime.GOARCH))

	return sb.String()
}

// runSearchBench seeds cfg.BenchRoot/<count> with count entries (if absent)
// and times a handful of search shapes against each dataset size, the way
// the ls filter benchmark times dataset-scaled list queries.
func runSearchBench(cfg *Config) error {
	timestamp := time.Now().UTC().Format("20060102-150405")
	outFile := filepath.Join(cfg.OutDir, fmt.Sprintf("search_hyperfine_%s.md", timestamp))

	var report strings.Builder
	report.WriteString(getSystemInfo())

	for _, count := range cfg.Counts {
		dir := filepath.Join(cfg.BenchRoot, strconv.Itoa(count))

		if err := seedCorpus(cfg.Bin, dir, count); err != nil {
			report.WriteString(fmt.Sprintf("### Dataset: %d entries\n\nskipping (%v)\n\n", count, err))
			continue
		}

		fmt.Fprintf(os.Stderr, "\n%s\nSEARCH BENCHMARKS: %d entries\n%s\n\n",
			strings.Repeat("=", 60), count, strings.Repeat("=", 60))

		tmpFile, err := os.CreateTemp("", "hyperfine-*.md")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tmpFileName := tmpFile.Name()
		_ = tmpFile.Close()

		commands := []string{
			fmt.Sprintf("%s --dir %s search keyword --limit=10", cfg.Bin, dir),
			fmt.Sprintf("%s --dir %s search keyword --limit=100", cfg.Bin, dir),
			fmt.Sprintf("%s --dir %s search \"rare phrase\" --limit=10", cfg.Bin, dir),
		}

		args := []string{"-N", "--warmup", strconv.Itoa(cfg.Warmup), "--min-runs", strconv.Itoa(cfg.MinRuns)}
		if cfg.MaxRuns > 0 {
			args = append(args, "--max-runs", strconv.Itoa(cfg.MaxRuns))
		}

		args = append(args, "--export-markdown", tmpFileName)
		args = append(args, commands...)

		cmd := exec.CommandContext(context.Background(), "hyperfine", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			_ = os.Remove(tmpFileName)
			return fmt.Errorf("hyperfine failed for count %d: %w", count, err)
		}

		mdContent, err := os.ReadFile(tmpFileName)
		_ = os.Remove(tmpFileName)

		if err != nil {
			return fmt.Errorf("failed to read hyperfine output: %w", err)
		}

		report.WriteString(fmt.Sprintf("### Dataset: %d entries\n\n- dir: %s\n\n", count, dir))
		report.Write(mdContent)
		report.WriteString("\n")
	}

	if err := os.WriteFile(outFile, []byte(report.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Fprintf(os.Stderr, "wrote %s\n", outFile)

	return nil
}

// seedCorpus stores count synthetic entries under dir via the amr binary,
// unless dir already has a data log from a previous run.
func seedCorpus(bin, dir string, count int) error {
	if _, err := os.Stat(filepath.Join(dir, "data.log")); err == nil {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	topics := []string{"ffi", "build-system", "concurrency", "serialization", "testing"}

	for i := 0; i < count; i++ {
		topic := topics[i%len(topics)]
		text := fmt.Sprintf("synthetic benchmark entry %d about %s keyword usage", i, topic)

		cmd := exec.CommandContext(context.Background(), bin, "--dir", dir, "store", topic, text)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("seeding entry %d: %w", i, err)
		}
	}

	return nil
}
