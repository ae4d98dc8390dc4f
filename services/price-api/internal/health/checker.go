package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paaavkata/market-dashboard/services/price-api/internal/cache"
)

// CacheReporter is implemented by the aggregator pipelines.
type CacheReporter interface {
	Name() string
	State() cache.State
}

type HealthChecker struct {
	required []CacheReporter
	optional []CacheReporter
	logger   *logrus.Logger
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// NewHealthChecker reports readiness once every required cache has been
// filled at least once. Optional caches are only listed.
func NewHealthChecker(required []CacheReporter, optional []CacheReporter, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		required: required,
		optional: optional,
		logger:   logger,
	}
}

// LivenessHandler always answers 200 while the process serves requests.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.CheckHealth()
		status.Status = "healthy"
		writeStatus(w, http.StatusOK, status)
	}
}

func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.CheckHealth()

		code := http.StatusOK
		if status.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, status)
	}
}

func (h *HealthChecker) CheckHealth() HealthStatus {
	services := make(map[string]string, len(h.required)+len(h.optional))
	overallStatus := "ready"

	for _, c := range h.required {
		state := c.State()
		services[c.Name()] = state.String()
		if state == cache.StateEmpty {
			overallStatus = "not_ready"
		}
	}
	for _, c := range h.optional {
		services[c.Name()] = c.State().String()
	}

	if overallStatus != "ready" {
		h.logger.WithField("services", services).Debug("Readiness check failed")
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
	}
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
