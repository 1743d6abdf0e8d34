package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp       Status = "UP"
	StatusDegraded Status = "DEGRADED"
	StatusDown     Status = "DOWN"
	StatusUnknown  Status = "UNKNOWN"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status    Status            `json:"status"`
	Optional  bool              `json:"optional,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status     Status                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]*CheckResult `json:"components,omitempty"`
}

// Checker is a function that performs a health check
type Checker func(ctx context.Context) *CheckResult

type component struct {
	check    Checker
	optional bool
}

// Health aggregates component checks. A failing required component makes
// the service DOWN; a failing optional one (a cache tier, the event
// stream, an upstream behind a breaker) only makes it DEGRADED.
type Health struct {
	mu         sync.RWMutex
	components map[string]component
	timeout    time.Duration
	started    time.Time
}

// New creates a new Health manager
func New(timeout time.Duration) *Health {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Health{
		components: make(map[string]component),
		timeout:    timeout,
		started:    time.Now(),
	}
}

// Register adds a component the service cannot serve without
func (h *Health) Register(name string, checker Checker) {
	h.register(name, checker, false)
}

// RegisterOptional adds a component whose failure degrades but does not
// stop the service
func (h *Health) RegisterOptional(name string, checker Checker) {
	h.register(name, checker, true)
}

func (h *Health) register(name string, checker Checker, optional bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = component{check: checker, optional: optional}
}

// Check runs all checks concurrently, each bounded by the configured timeout
func (h *Health) Check(ctx context.Context) *HealthResponse {
	h.mu.RLock()
	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	sort.Strings(names)
	comps := make([]component, len(names))
	for i, name := range names {
		comps[i] = h.components[name]
	}
	h.mu.RUnlock()

	results := make([]*CheckResult, len(comps))
	var wg sync.WaitGroup
	for i, c := range comps {
		wg.Add(1)
		go func(i int, c component) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results[i] = runCheck(checkCtx, c)
		}(i, c)
	}
	wg.Wait()

	response := &HealthResponse{
		Status:     StatusUp,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]*CheckResult, len(names)),
	}
	for i, name := range names {
		result := results[i]
		response.Components[name] = result
		switch {
		case result.Status == StatusUp:
		case result.Optional:
			if response.Status == StatusUp {
				response.Status = StatusDegraded
			}
		default:
			response.Status = StatusDown
		}
	}
	return response
}

func runCheck(ctx context.Context, c component) *CheckResult {
	result := c.check(ctx)
	if result == nil {
		result = &CheckResult{Status: StatusUnknown, Timestamp: time.Now().UTC()}
	}
	result.Optional = c.optional
	return result
}

// IsReady reports whether the service can take traffic. A degraded
// service is still ready.
func (h *Health) IsReady(ctx context.Context) bool {
	return h.Check(ctx).Status != StatusDown
}

// LiveHandler reports liveness. It only shows the process is running.
func (h *Health) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    StatusUp,
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(h.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler reports readiness: 503 only when a required
// component is down
func (h *Health) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := h.Check(r.Context())

		status := http.StatusOK
		if response.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// PingChecker reports a dependency reachable through a ping function
// (Postgres, Redis)
func PingChecker(component string, pingFunc func(ctx context.Context) error) Checker {
	return func(ctx context.Context) *CheckResult {
		start := time.Now()
		err := pingFunc(ctx)
		details := map[string]string{"latency": time.Since(start).String()}

		if err != nil {
			details["error"] = err.Error()
			return &CheckResult{
				Status:    StatusDown,
				Message:   component + " connection failed",
				Timestamp: time.Now().UTC(),
				Details:   details,
			}
		}
		return &CheckResult{Status: StatusUp, Timestamp: time.Now().UTC(), Details: details}
	}
}

// BreakerChecker reports an upstream as down while its circuit breaker is open.
// Upstreams are not pinged; the breaker state reflects recent real traffic.
func BreakerChecker(component string, state func() string) Checker {
	return func(ctx context.Context) *CheckResult {
		st := state()
		result := &CheckResult{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
			Details:   map[string]string{"circuit": st},
		}
		if st == "open" {
			result.Status = StatusDown
			result.Message = component + " circuit open"
		}
		return result
	}
}
