// Package health exposes liveness and readiness probes over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Checker is a component that can report whether it is able to serve.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckStatus is the outcome of one component probe.
type CheckStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// Response is the aggregate health report.
type Response struct {
	Status    string                  `json:"status"`
	Service   string                  `json:"service"`
	Version   string                  `json:"version"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*CheckStatus `json:"checks,omitempty"`
}

// Registry aggregates component probes.
type Registry struct {
	service string
	version string
	timeout time.Duration
	mu      sync.RWMutex
	checks  map[string]Checker
}

// NewRegistry creates a probe registry.
func NewRegistry(service, version string, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{
		service: service,
		version: version,
		timeout: timeout,
		checks:  make(map[string]Checker),
	}
}

// Add registers a component probe under a name.
func (r *Registry) Add(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = c
}

// Check runs every probe concurrently and aggregates the result. Any
// failing probe marks the whole service unhealthy.
func (r *Registry) Check(ctx context.Context) *Response {
	r.mu.RLock()
	checks := make(map[string]Checker, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	r.mu.RUnlock()

	resp := &Response{
		Status:    "healthy",
		Service:   r.service,
		Version:   r.version,
		Timestamp: time.Now(),
		Checks:    make(map[string]*CheckStatus),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, c := range checks {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			status := &CheckStatus{Name: name, Status: "healthy", LastCheck: time.Now()}
			if err := c.HealthCheck(checkCtx); err != nil {
				status.Status = "unhealthy"
				status.Error = err.Error()
			}

			mu.Lock()
			resp.Checks[name] = status
			if status.Status != "healthy" {
				resp.Status = "unhealthy"
			}
			mu.Unlock()
		}(name, c)
	}

	wg.Wait()
	return resp
}

// LivenessHandler answers 200 whenever the process is up.
func (r *Registry) LivenessHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, &Response{
		Status:    "healthy",
		Service:   r.service,
		Version:   r.version,
		Timestamp: time.Now(),
	})
}

// ReadinessHandler answers 200 only while every dependency probe passes.
func (r *Registry) ReadinessHandler(w http.ResponseWriter, req *http.Request) {
	resp := r.Check(req.Context())
	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
