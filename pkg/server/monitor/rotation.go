package monitor

import (
	"sync"
	"time"
)

// RotationMonitor tracks history persistence/rotation health and failures.
type RotationMonitor struct {
	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	lastRotation      time.Time
	consecutiveErrors int
	lastError         string
}

// RecordSuccess records a successful rotation check.
func (rm *RotationMonitor) RecordSuccess(rotated bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	now := time.Now()
	rm.lastSuccess = now
	rm.lastAttempt = now
	if rotated {
		rm.lastRotation = now
	}
	rm.consecutiveErrors = 0
	rm.lastError = ""
}

// RecordFailure records a failed rotation check.
func (rm *RotationMonitor) RecordFailure(err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastAttempt = time.Now()
	rm.consecutiveErrors++
	if err != nil {
		rm.lastError = err.Error()
	}
}

// IsHealthy returns true if rotation is working properly.
// Unhealthy conditions:
//   - Never succeeded
//   - Haven't succeeded in >2 hours (checks run hourly)
//   - More than 3 consecutive failures
func (rm *RotationMonitor) IsHealthy() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.lastSuccess.IsZero() {
		return false
	}
	if time.Since(rm.lastSuccess) > 2*time.Hour {
		return false
	}
	if rm.consecutiveErrors > 3 {
		return false
	}
	return true
}

// RotationStatus is the rotation health block for health checks.
type RotationStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	LastRotation      string `json:"last_rotation,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current rotation status for health checks.
func (rm *RotationMonitor) Status() RotationStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	status := RotationStatus{
		Healthy: rm.isHealthyLocked(),
	}

	if !rm.lastSuccess.IsZero() {
		status.LastSuccess = rm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(rm.lastSuccess).String()
	}
	if !rm.lastAttempt.IsZero() {
		status.LastAttempt = rm.lastAttempt.Format(time.RFC3339)
	}
	if !rm.lastRotation.IsZero() {
		status.LastRotation = rm.lastRotation.Format(time.RFC3339)
	}
	if rm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = rm.consecutiveErrors
		status.LastError = rm.lastError
	}

	return status
}

func (rm *RotationMonitor) isHealthyLocked() bool {
	if rm.lastSuccess.IsZero() {
		return false
	}
	if time.Since(rm.lastSuccess) > 2*time.Hour {
		return false
	}
	if rm.consecutiveErrors > 3 {
		return false
	}
	return true
}
