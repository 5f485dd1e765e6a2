// Package health отдаёт состояние процесса для оркестратора: /healthz, /readyz, /livez.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// severity упорядочивает статусы: итог по сервису равен худшему из компонентов.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Check представляет проверку здоровья компонента
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker интерфейс для проверки здоровья компонента
type Checker interface {
	Check() Check
}

// Handler собирает зарегистрированные проверки и отвечает на probe-запросы.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startedAt time.Time
}

// NewHandler создаёт новый health handler
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startedAt: time.Now(),
	}
}

// RegisterChecker регистрирует проверку компонента; повторное имя заменяет проверку.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// run выполняет проверки параллельно и возвращает их результаты и худший статус.
func (h *Handler) run() (map[string]Check, Status) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = h.checkers[name]
	}
	h.mu.RUnlock()

	results := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, checker Checker) {
			defer wg.Done()
			results[i] = checker.Check()
		}(i, checker)
	}
	wg.Wait()

	checks := make(map[string]Check, len(results))
	overall := StatusHealthy
	for i, check := range results {
		checks[names[i]] = check
		if check.Status.severity() > overall.severity() {
			overall = check.Status
		}
	}
	return checks, overall
}

// ServeHTTP отдаёт подробный JSON-отчёт. Degraded отвечает 200, unhealthy 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks, overall := h.run()

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler снимает сервис с балансировки только при unhealthy-компоненте.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if _, overall := h.run(); overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// FuncChecker превращает функцию в Checker. Ошибка функции даёт статус onError.
type FuncChecker struct {
	name    string
	onError Status
	checkFn func() error
}

// NewSimpleChecker создаёт проверку критичной зависимости: ошибка означает unhealthy.
func NewSimpleChecker(name string, checkFn func() error) *FuncChecker {
	return &FuncChecker{name: name, onError: StatusUnhealthy, checkFn: checkFn}
}

// NewDegradedChecker создаёт проверку некритичной зависимости: при ошибке сервис
// продолжает принимать запросы, но часть функциональности недоступна.
func NewDegradedChecker(name string, checkFn func() error) *FuncChecker {
	return &FuncChecker{name: name, onError: StatusDegraded, checkFn: checkFn}
}

// Check выполняет проверку
func (c *FuncChecker) Check() Check {
	start := time.Now()
	err := c.checkFn()
	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Status = c.onError
		check.Message = err.Error()
	}
	return check
}

// Pinger описывает зависимость, доступность которой проверяется запросом (БД, брокер).
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker проверяет зависимость через Ping с ограничением по времени.
func NewPingChecker(name string, pinger Pinger, timeout time.Duration) *FuncChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return NewSimpleChecker(name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return pinger.Ping(ctx)
	})
}
