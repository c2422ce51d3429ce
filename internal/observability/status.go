package observability

import (
	"sync"
	"time"
)

type Role string

const (
	RoleIdle     Role = "IDLE"
	RolePlanner  Role = "PLAN"
	RoleExecutor Role = "EXEC"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentRole   Role
	ActiveGoal    string
	RunningSteps  int
	TotalSteps    int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentRole:   RoleIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(role Role, goal string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = role
	globalStatus.ActiveGoal = goal
	if role == RoleIdle {
		globalStatus.RunningSteps = 0
		globalStatus.TotalSteps = 0
	}
}

// SetStepProgress updates the running/total step counters for the
// dashboard while a plan executes.
func SetStepProgress(running, total int) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.RunningSteps = running
	globalStatus.TotalSteps = total
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Role, string, int, int, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveGoal,
		globalStatus.RunningSteps, globalStatus.TotalSteps, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
