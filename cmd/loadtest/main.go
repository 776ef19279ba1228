// Команда loadtest гоняет сценарии заказов через HTTP API ресторана:
// оформление, отмену и повтор под конкурентной нагрузкой. Основное
// применение — проверка защиты остатка: при -stock меньше числа сценариев
// часть оформлений должна получить 409, а остаток не уйти в минус.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"
	customerHeader    = "X-Customer-ID"
	defaultPrice      = int64(2500)
	defaultStock      = int32(1_000_000)
)

type loadMode string

const (
	modePlace       loadMode = "place"
	modePlaceCancel loadMode = "place-cancel"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	dishID      string
	stock       int32
	priceMinor  int64
	quantity    int32
	customerTag string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type callReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Calls             map[string]callReport `json:"calls"`
}

type callStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu    sync.Mutex
	calls map[string]*callStats
}

func newCollector() *collector {
	return &collector{
		calls: make(map[string]*callStats),
	}
}

// record учитывает вызов; status 0 означает сетевую ошибку без ответа.
func (c *collector) record(name string, latency time.Duration, status int) {
	label := statusLabel(status)
	ok2xx := status >= 200 && status < 300
	ms := float64(latency.Microseconds()) / 1000.0

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.calls[name]
	if stats == nil {
		stats = &callStats{statuses: make(map[string]int64)}
		c.calls[name] = stats
	}

	stats.calls++
	if ok2xx {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[label]++
	stats.latencies = append(stats.latencies, ms)
}

func statusLabel(status int) string {
	if status == 0 {
		return "network_error"
	}
	return strconv.Itoa(status)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Calls:           make(map[string]callReport, len(c.calls)),
	}

	if scenario := c.calls["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.calls {
		result.Calls[name] = callReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  cloneCounts(stats.statuses),
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func cloneCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string
	var stockValue int
	var quantityValue int

	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "base URL of the restaurant HTTP API")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modePlace), "load mode: place | place-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 100, "cancel probability in percent for place-cancel mode (0..100)")
	flag.StringVar(&cfg.dishID, "dish", "", "existing dish id to order; empty creates a load-test dish via the admin API")
	flag.IntVar(&stockValue, "stock", int(defaultStock), "stock for the auto-created load-test dish")
	flag.Int64Var(&cfg.priceMinor, "price-minor", defaultPrice, "price of the auto-created load-test dish in minor units")
	flag.IntVar(&quantityValue, "quantity", 1, "quantity per order")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.stock = int32(stockValue)
	cfg.quantity = int32(quantityValue)

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.dishID == "" && cfg.stock <= 0 {
		return cfg, errors.New("stock must be > 0 when dish is auto-created")
	}
	if cfg.priceMinor <= 0 {
		return cfg, errors.New("price-minor must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return cfg, errors.New("addr is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modePlace:
		return modePlace, nil
	case modePlaceCancel:
		return modePlaceCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
		},
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	if cfg.dishID == "" {
		dishID, setupErr := setupLoadDish(client, cfg, runID)
		if setupErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create load-test dish: %v\n", setupErr)
			os.Exit(1)
		}
		cfg.dishID = dishID
		fmt.Printf("created load-test dish %s (stock=%d)\n", dishID, cfg.stock)
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// setupLoadDish создаёт категорию и блюдо для прогона через админский API.
func setupLoadDish(client *http.Client, cfg config, runID string) (string, error) {
	category, err := postJSON(client, cfg, "/api/admin/categories", map[string]interface{}{
		"name":   "Load test " + runID,
		"active": true,
	})
	if err != nil {
		return "", fmt.Errorf("create category: %w", err)
	}
	categoryID, _ := category["id"].(string)
	if categoryID == "" {
		return "", errors.New("category response returned empty id")
	}

	dish, err := postJSON(client, cfg, "/api/admin/dishes", map[string]interface{}{
		"category_id": categoryID,
		"name":        "Load test dish " + runID,
		"price_minor": cfg.priceMinor,
		"stock":       cfg.stock,
		"available":   true,
	})
	if err != nil {
		return "", fmt.Errorf("create dish: %w", err)
	}
	dishID, _ := dish["id"].(string)
	if dishID == "" {
		return "", errors.New("dish response returned empty id")
	}
	return dishID, nil
}

func postJSON(client *http.Client, cfg config, path string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// dispatchJobs раздаёт номера сценариев worker-ам. В count-режиме ровно
// cfg.total штук; в duration-режиме до истечения таймера, с опциональным
// потолком по -total.
func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	deadline := time.NewTimer(cfg.duration)
	defer deadline.Stop()

	for i := 0; !cfg.totalSet || i < cfg.total; i++ {
		select {
		case <-deadline.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client *http.Client, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioStatus)
	}()

	customer := fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index)

	placeKey := fmt.Sprintf("lt-place-%s-%d", runID, index)
	orderID, status, err := callPlaceOrder(client, cfg, customer, placeKey, col)
	if err != nil {
		scenarioStatus = status
		return err
	}
	if orderID == "" {
		scenarioStatus = 0
		return errors.New("place response returned empty order id")
	}

	if cfg.mode == modePlace {
		return nil
	}

	if shouldCancelScenario(index, cfg.cancelRate) {
		if status, err := callCancelOrder(client, cfg, customer, orderID, col); err != nil {
			scenarioStatus = status
			return err
		}
	}

	return nil
}

// callPlaceOrder оформляет заказ; возвращает id заказа и HTTP-статус.
func callPlaceOrder(client *http.Client, cfg config, customer, key string, col *collector) (string, int, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"dish_id":  cfg.dishID,
		"quantity": cfg.quantity,
	})
	if err != nil {
		return "", 0, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/orders", bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(customerHeader, customer)
	req.Header.Set(idempotencyHeader, key)

	resp, err := client.Do(req)
	if err != nil {
		col.record("PlaceOrder", time.Since(start), 0)
		return "", 0, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	col.record("PlaceOrder", time.Since(start), resp.StatusCode)
	if readErr != nil {
		return "", resp.StatusCode, readErr
	}
	if resp.StatusCode != http.StatusCreated {
		return "", resp.StatusCode, fmt.Errorf("place order status %d", resp.StatusCode)
	}

	var decoded struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", resp.StatusCode, err
	}
	return decoded.OrderID, resp.StatusCode, nil
}

func callCancelOrder(client *http.Client, cfg config, customer, orderID string, col *collector) (int, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, cfg.baseURL+"/api/orders/"+orderID, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(customerHeader, customer)

	resp, err := client.Do(req)
	if err != nil {
		col.record("CancelOrder", time.Since(start), 0)
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	col.record("CancelOrder", time.Since(start), resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("cancel order status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	lat := result.ScenarioLatencyMs

	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	names := make([]string, 0, len(result.Calls))
	for name := range result.Calls {
		if name != "scenario" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		call := result.Calls[name]
		fmt.Printf("%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms statuses=%s\n",
			name, call.Calls, call.Success, call.Failed, call.ErrorRate,
			call.LatencyMs.P95, formatStatuses(call.Statuses))
	}
}

func formatStatuses(statuses map[string]int64) string {
	keys := make([]string, 0, len(statuses))
	for key := range statuses {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", key, statuses[key]))
	}
	return strings.Join(parts, ",")
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile считает линейно интерполированный перцентиль по
// отсортированному срезу.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := p / 100.0 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
