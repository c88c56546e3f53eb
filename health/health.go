package health

import (
	"context"
	"time"
)

// ReadinessCheck is implemented by dependencies that can probe their own
// backing service.
type ReadinessCheck interface {
	Name() string
	IsReady(ctx context.Context) error
}

type CheckResult struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// RunChecks probes every check under its own timeout and reports whether
// all of them passed.
func RunChecks(ctx context.Context, timeout time.Duration, checks ...ReadinessCheck) ([]CheckResult, bool) {
	results := make([]CheckResult, 0, len(checks))
	ready := true

	for _, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := check.IsReady(cctx)
		cancel()

		result := CheckResult{Name: check.Name(), Ready: err == nil}
		if err != nil {
			result.Error = err.Error()
			ready = false
		}
		results = append(results, result)
	}

	return results, ready
}
