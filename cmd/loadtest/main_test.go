package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func withLoadtestCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func TestParseConfigDefaults(t *testing.T) {
	withLoadtestCLIArgs(t, nil, func() {
		cfg, err := parseConfig()
		if err != nil {
			t.Fatalf("parseConfig failed: %v", err)
		}
		if cfg.baseURL != "http://localhost:8080" {
			t.Fatalf("unexpected base URL: %s", cfg.baseURL)
		}
		if cfg.mode != modePlace {
			t.Fatalf("unexpected mode: %s", cfg.mode)
		}
		if cfg.total != 400 || cfg.totalSet {
			t.Fatalf("unexpected total: %d (set=%v)", cfg.total, cfg.totalSet)
		}
		if cfg.stock != defaultStock {
			t.Fatalf("unexpected stock: %d", cfg.stock)
		}
	})
}

func TestParseConfigTrimsBaseURL(t *testing.T) {
	withLoadtestCLIArgs(t, []string{"-addr=http://api.local:8080/"}, func() {
		cfg, err := parseConfig()
		if err != nil {
			t.Fatalf("parseConfig failed: %v", err)
		}
		if cfg.baseURL != "http://api.local:8080" {
			t.Fatalf("expected trailing slash trimmed, got %s", cfg.baseURL)
		}
	})
}

func TestParseConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"zero total", []string{"-total=0"}, "total must be > 0"},
		{"bad mode", []string{"-mode=burn"}, "unsupported mode"},
		{"bad concurrency", []string{"-concurrency=0"}, "concurrency must be > 0"},
		{"bad timeout", []string{"-timeout=0s"}, "timeout must be > 0"},
		{"bad stock", []string{"-stock=0"}, "stock must be > 0"},
		{"bad quantity", []string{"-quantity=0"}, "quantity must be > 0"},
		{"bad cancel rate", []string{"-cancel-rate=150"}, "cancel-rate must be between"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withLoadtestCLIArgs(t, tc.args, func() {
				_, err := parseConfig()
				if err == nil || !strings.Contains(err.Error(), tc.want) {
					t.Fatalf("expected error containing %q, got %v", tc.want, err)
				}
			})
		})
	}
}

func TestParseMode(t *testing.T) {
	if mode, err := parseMode(" place-cancel "); err != nil || mode != modePlaceCancel {
		t.Fatalf("unexpected result: %s %v", mode, err)
	}
	if _, err := parseMode("create-pay"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestStatusLabel(t *testing.T) {
	if got := statusLabel(0); got != "network_error" {
		t.Fatalf("unexpected label: %s", got)
	}
	if got := statusLabel(409); got != "409" {
		t.Fatalf("unexpected label: %s", got)
	}
}

func TestCollectorRecordAndReport(t *testing.T) {
	col := newCollector()
	col.record("scenario", 10*time.Millisecond, http.StatusOK)
	col.record("scenario", 20*time.Millisecond, http.StatusConflict)
	col.record("PlaceOrder", 5*time.Millisecond, http.StatusCreated)
	col.record("PlaceOrder", 7*time.Millisecond, 0)

	report := col.buildReport(time.Now(), 2*time.Second)
	if report.TotalScenarios != 2 || report.SuccessScenarios != 1 || report.FailedScenarios != 1 {
		t.Fatalf("unexpected scenario counters: %+v", report)
	}
	if report.RPS != 1 {
		t.Fatalf("unexpected rps: %f", report.RPS)
	}

	place, ok := report.Calls["PlaceOrder"]
	if !ok {
		t.Fatal("PlaceOrder stats missing")
	}
	if place.Statuses["201"] != 1 || place.Statuses["network_error"] != 1 {
		t.Fatalf("unexpected statuses: %+v", place.Statuses)
	}
	if place.ErrorRate != 0.5 {
		t.Fatalf("unexpected error rate: %f", place.ErrorRate)
	}
}

func TestShouldCancelScenario(t *testing.T) {
	if shouldCancelScenario(5, 0) {
		t.Fatal("rate 0 must never cancel")
	}
	if !shouldCancelScenario(5, 100) {
		t.Fatal("rate 100 must always cancel")
	}
	if !shouldCancelScenario(10, 50) {
		t.Fatal("index 10 with rate 50 should cancel")
	}
	if shouldCancelScenario(60, 50) {
		t.Fatal("index 60 with rate 50 should not cancel")
	}
}

func TestDispatchJobsCountMode(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{total: 5})

	var ids []int
	for id := range jobs {
		ids = append(ids, id)
	}
	if len(ids) != 5 {
		t.Fatalf("expected 5 jobs, got %d", len(ids))
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	if got := percentile(sorted, 50); got != 3 {
		t.Fatalf("unexpected p50: %f", got)
	}
	if got := percentile(sorted, 100); got != 5 {
		t.Fatalf("unexpected p100: %f", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Fatalf("unexpected empty percentile: %f", got)
	}
	if got := percentile([]float64{7}, 99); got != 7 {
		t.Fatalf("unexpected single-value percentile: %f", got)
	}
}

func TestBuildLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{3, 1, 2})
	if summary.Min != 1 || summary.Max != 3 || summary.Avg != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	empty := buildLatencySummary(nil)
	if empty.Max != 0 {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}
}

func TestWriteJSONReportRejectsBadPaths(t *testing.T) {
	if err := writeJSONReport(".", report{}); err == nil {
		t.Fatal("expected error for current directory path")
	}
	if err := writeJSONReport(".."+string(filepath.Separator)+"escape.json", report{}); err == nil {
		t.Fatal("expected error for parent directory path")
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(oldWD) }()

	if err := writeJSONReport("report.json", report{TotalScenarios: 3}); err != nil {
		t.Fatalf("writeJSONReport failed: %v", err)
	}

	data, err := os.ReadFile("report.json")
	if err != nil {
		t.Fatal(err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.TotalScenarios != 3 {
		t.Fatalf("unexpected report content: %+v", decoded)
	}
}

// fakeAPI имитирует нужные для прогона эндпоинты.
func fakeAPI(t *testing.T, placed *int64, canceled *int64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/categories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cat-1"}`))
	})
	mux.HandleFunc("/api/admin/dishes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"dish-1"}`))
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(customerHeader) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n := atomic.AddInt64(placed, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"order_id":"order-%d"}`, n)
	})
	mux.HandleFunc("/api/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		atomic.AddInt64(canceled, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"failed"}`))
	})

	return httptest.NewServer(mux)
}

func TestSetupLoadDish(t *testing.T) {
	var placed, canceled int64
	server := fakeAPI(t, &placed, &canceled)
	defer server.Close()

	cfg := config{baseURL: server.URL, timeout: 2 * time.Second, stock: 10, priceMinor: 1000}
	dishID, err := setupLoadDish(server.Client(), cfg, "run-1")
	if err != nil {
		t.Fatalf("setupLoadDish failed: %v", err)
	}
	if dishID != "dish-1" {
		t.Fatalf("unexpected dish id: %s", dishID)
	}
}

func TestRunScenarioPlaceAndCancel(t *testing.T) {
	var placed, canceled int64
	server := fakeAPI(t, &placed, &canceled)
	defer server.Close()

	cfg := config{
		baseURL:     server.URL,
		timeout:     2 * time.Second,
		mode:        modePlaceCancel,
		cancelRate:  100,
		dishID:      "dish-1",
		quantity:    1,
		customerTag: "load",
	}

	col := newCollector()
	if err := runScenario(server.Client(), cfg, 0, "run-1", col); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}

	if atomic.LoadInt64(&placed) != 1 {
		t.Fatalf("expected 1 placed order, got %d", placed)
	}
	if atomic.LoadInt64(&canceled) != 1 {
		t.Fatalf("expected 1 canceled order, got %d", canceled)
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.TotalScenarios != 1 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected scenario stats: %+v", result)
	}
	if result.Calls["PlaceOrder"].Statuses["201"] != 1 {
		t.Fatalf("unexpected PlaceOrder statuses: %+v", result.Calls["PlaceOrder"].Statuses)
	}
	if result.Calls["CancelOrder"].Statuses["200"] != 1 {
		t.Fatalf("unexpected CancelOrder statuses: %+v", result.Calls["CancelOrder"].Statuses)
	}
}

func TestRunScenarioPlaceOnlySkipsCancel(t *testing.T) {
	var placed, canceled int64
	server := fakeAPI(t, &placed, &canceled)
	defer server.Close()

	cfg := config{
		baseURL:     server.URL,
		timeout:     2 * time.Second,
		mode:        modePlace,
		dishID:      "dish-1",
		quantity:    1,
		customerTag: "load",
	}

	col := newCollector()
	if err := runScenario(server.Client(), cfg, 3, "run-2", col); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}
	if atomic.LoadInt64(&canceled) != 0 {
		t.Fatalf("expected no cancels in place mode, got %d", canceled)
	}
}
