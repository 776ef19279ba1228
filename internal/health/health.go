// Package health обслуживает liveness/readiness-пробы сервиса.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status - агрегированное состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check - результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response - сводный отчёт по всем зарегистрированным проверкам.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker выполняет проверку одного компонента.
type Checker interface {
	Check() Check
}

// Handler собирает проверки и отдаёт их состояние по HTTP.
type Handler struct {
	mu      sync.RWMutex
	probes  map[string]Checker
	version string
	started time.Time
}

// NewHandler создаёт handler без зарегистрированных проверок.
func NewHandler(version string) *Handler {
	return &Handler{
		probes:  make(map[string]Checker),
		version: version,
		started: time.Now(),
	}
}

// RegisterChecker добавляет именованную проверку. Повторная регистрация
// с тем же именем заменяет предыдущую.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.probes[name] = checker
	h.mu.Unlock()
}

// runAll прогоняет все проверки и возвращает худший из статусов.
func (h *Handler) runAll() (map[string]Check, Status) {
	h.mu.RLock()
	probes := make(map[string]Checker, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.RUnlock()

	results := make(map[string]Check, len(probes))
	overall := StatusHealthy
	for name, p := range probes {
		result := p.Check()
		results[name] = result
		overall = worse(overall, result.Status)
	}
	return results, overall
}

// worse возвращает более тяжёлый из двух статусов.
func worse(a, b Status) Status {
	if a == StatusUnhealthy || b == StatusUnhealthy {
		return StatusUnhealthy
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// ServeHTTP отдаёт JSON-отчёт; unhealthy транслируется в 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks, overall := h.runAll()

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, если хотя бы одна проверка unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if _, overall := h.runAll(); overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker оборачивает функцию в Checker и замеряет её длительность.
type SimpleChecker struct {
	name string
	fn   func() error
}

// NewSimpleChecker создаёт проверку из функции.
func NewSimpleChecker(name string, fn func() error) *SimpleChecker {
	return &SimpleChecker{name: name, fn: fn}
}

// Check вызывает функцию проверки.
func (c *SimpleChecker) Check() Check {
	start := time.Now()
	err := c.fn()

	result := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
