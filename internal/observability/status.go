package observability

import (
	"sync"
	"time"
)

type Mode string

const (
	ModeIdle Mode = "IDLE"
	ModeBusy Mode = "BUSY"
)

type SystemStatus struct {
	mu            sync.RWMutex
	active        map[string]string
	lastCommand   string
	observers     int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	active:        make(map[string]string),
	LastHeartbeat: time.Now(),
}

// SetActive marks a run as executing.
func SetActive(runID, command string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.active[runID] = command
	globalStatus.lastCommand = command
}

// ClearActive marks a run as finished.
func ClearActive(runID string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	delete(globalStatus.active, runID)
}

// SetObservers records the current observer count.
func SetObservers(n int) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.observers = n
}

// Snapshot is a copy of the global status.
type Snapshot struct {
	Mode          Mode
	ActiveRuns    int
	LastCommand   string
	Observers     int
	LastHeartbeat time.Time
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() Snapshot {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()

	mode := ModeIdle
	if len(globalStatus.active) > 0 {
		mode = ModeBusy
	}
	return Snapshot{
		Mode:          mode,
		ActiveRuns:    len(globalStatus.active),
		LastCommand:   globalStatus.lastCommand,
		Observers:     globalStatus.observers,
		LastHeartbeat: globalStatus.LastHeartbeat,
	}
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
