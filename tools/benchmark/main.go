// Command benchmark measures query API latency under concurrent load.
//
// It fires GET requests at the asset, history and genealogy endpoints for a
// set of asset ids and reports throughput and latency percentiles, optionally
// as a markdown file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

const defaultBaseURL = "http://localhost:8080"

type Config struct {
	BaseURL     string
	AssetID     string        // Single asset id to benchmark
	AssetFile   string        // File with one asset id per line
	Endpoint    string        // asset, history, genealogy or all
	Requests    int           // Total number of requests
	Concurrency int           // Number of concurrent workers
	Timeout     time.Duration // Per-request timeout
	OutputFile  string        // Output markdown file path (optional)
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      error
}

type endpointStats struct {
	Endpoint  string
	Count     int
	Failed    int
	Latencies []time.Duration
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.BaseURL, "base-url", defaultBaseURL, "Base URL of the query API")
	flag.StringVar(&cfg.AssetID, "asset-id", "", "Asset id to query")
	flag.StringVar(&cfg.AssetFile, "asset-file", "", "File with one asset id per line")
	flag.StringVar(&cfg.Endpoint, "endpoint", "all", "Endpoint to hit: asset, history, genealogy or all")
	flag.IntVar(&cfg.Requests, "requests", 1000, "Total number of requests")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "Number of concurrent workers")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.StringVar(&cfg.OutputFile, "output", "", "Output markdown file path (optional)")
	flag.Parse()

	return cfg
}

func main() {
	cfg := parseFlags()

	assetIDs, err := loadAssetIDs(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	endpoints, err := selectEndpoints(cfg.Endpoint)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	fmt.Printf("Target: %s\n", cfg.BaseURL)
	fmt.Printf("Assets: %d, endpoints: %s\n", len(assetIDs), strings.Join(endpoints, ", "))
	fmt.Printf("Requests: %d, concurrency: %d\n\n", cfg.Requests, cfg.Concurrency)

	client := &http.Client{Timeout: cfg.Timeout}
	jobs := make(chan string, cfg.Concurrency)
	results := make(chan result, cfg.Requests)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				results <- fire(ctx, client, url)
			}
		}()
	}

	start := time.Now()
	go func() {
		defer close(jobs)
		for i := 0; i < cfg.Requests; i++ {
			assetID := assetIDs[i%len(assetIDs)]
			endpoint := endpoints[i%len(endpoints)]
			select {
			case jobs <- requestURL(cfg.BaseURL, endpoint, assetID):
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	stats := collect(results)
	elapsed := time.Since(start)

	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("BENCHMARK RESULTS")
	fmt.Println(strings.Repeat("=", 72))
	report := buildReport(stats, elapsed)
	fmt.Print(report)

	if cfg.OutputFile != "" {
		if err := os.WriteFile(cfg.OutputFile, []byte(report), 0o644); err != nil {
			fmt.Printf("\nWarning: failed to write report: %v\n", err)
		} else {
			fmt.Printf("\nReport written to: %s\n", cfg.OutputFile)
		}
	}
}

// loadAssetIDs resolves the benchmark targets from the flags
func loadAssetIDs(cfg *Config) ([]string, error) {
	if cfg.AssetID != "" {
		return []string{cfg.AssetID}, nil
	}
	if cfg.AssetFile == "" {
		return nil, fmt.Errorf("either -asset-id or -asset-file is required")
	}

	f, err := os.Open(cfg.AssetFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no asset ids in %s", cfg.AssetFile)
	}
	return ids, nil
}

func selectEndpoints(name string) ([]string, error) {
	switch name {
	case "asset":
		return []string{"asset"}, nil
	case "history":
		return []string{"history"}, nil
	case "genealogy":
		return []string{"genealogy"}, nil
	case "all":
		return []string{"asset", "history", "genealogy"}, nil
	}
	return nil, fmt.Errorf("unknown endpoint %q", name)
}

func requestURL(baseURL, endpoint, assetID string) string {
	switch endpoint {
	case "history":
		return fmt.Sprintf("%s/api/v1/assets/%s/history?mode=INDIRECT", baseURL, assetID)
	case "genealogy":
		return fmt.Sprintf("%s/api/v1/assets/%s/genealogy", baseURL, assetID)
	default:
		return fmt.Sprintf("%s/api/v1/assets/%s", baseURL, assetID)
	}
}

func fire(ctx context.Context, client *http.Client, url string) result {
	endpoint := classify(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result{endpoint: endpoint, err: err}
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return result{endpoint: endpoint, latency: latency, err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return result{endpoint: endpoint, status: resp.StatusCode, latency: latency}
}

func classify(url string) string {
	switch {
	case strings.Contains(url, "/history"):
		return "history"
	case strings.Contains(url, "/genealogy"):
		return "genealogy"
	default:
		return "asset"
	}
}

func collect(results <-chan result) map[string]*endpointStats {
	stats := make(map[string]*endpointStats)
	for r := range results {
		s, ok := stats[r.endpoint]
		if !ok {
			s = &endpointStats{Endpoint: r.endpoint}
			stats[r.endpoint] = s
		}
		s.Count++
		if r.err != nil || r.status != http.StatusOK {
			s.Failed++
			continue
		}
		s.Latencies = append(s.Latencies, r.latency)
	}
	return stats
}

func buildReport(stats map[string]*endpointStats, elapsed time.Duration) string {
	var b strings.Builder

	names := make([]string, 0, len(stats))
	total := 0
	for name, s := range stats {
		names = append(names, name)
		total += s.Count
	}
	sort.Strings(names)

	fmt.Fprintf(&b, "\nTotal: %d requests in %s (%s)\n\n", total, formatDuration(elapsed), formatRate(total, elapsed))
	fmt.Fprintf(&b, "| Endpoint | Requests | Failed | p50 | p95 | p99 | Max |\n")
	fmt.Fprintf(&b, "|----------|----------|--------|-----|-----|-----|-----|\n")

	for _, name := range names {
		s := stats[name]
		sort.Slice(s.Latencies, func(i, j int) bool { return s.Latencies[i] < s.Latencies[j] })
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %s |\n",
			s.Endpoint, s.Count, percentageString(s.Failed, s.Count),
			formatDuration(percentile(s.Latencies, 50)),
			formatDuration(percentile(s.Latencies, 95)),
			formatDuration(percentile(s.Latencies, 99)),
			formatDuration(percentile(s.Latencies, 100)))
	}

	return b.String()
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
