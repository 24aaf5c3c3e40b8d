// Package testutils provides deterministic generators for apple2chat.
// IDs and timestamps are stable in test mode and real in production.
package testutils

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TestModeProvider reports whether deterministic output is required.
type TestModeProvider interface {
	IsTestMode() bool
}

var (
	idCounter uint64
	idMutex   sync.Mutex

	timeCounter int64
	timeMutex   sync.Mutex
)

// GenerateUUID generates a UUID that is deterministic in test mode but random in production.
// In test mode, returns UUIDs in format: 00000001-0000-4000-8000-000000000001, etc.
func GenerateUUID(ctx TestModeProvider) string {
	if ctx != nil && ctx.IsTestMode() {
		return getDeterministicUUID()
	}
	return uuid.New().String()
}

// GetCurrentTime returns the current time, deterministic in test mode but real in production.
// In test mode each call is one second after the previous, starting at 2025-01-01T00:00:01Z.
func GetCurrentTime(ctx TestModeProvider) time.Time {
	if ctx != nil && ctx.IsTestMode() {
		return getDeterministicTime()
	}
	return time.Now()
}

// IsValidUUID reports whether s parses as a UUID.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func getDeterministicUUID() string {
	idMutex.Lock()
	defer idMutex.Unlock()

	idCounter++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", idCounter, idCounter)
}

func getDeterministicTime() time.Time {
	timeMutex.Lock()
	defer timeMutex.Unlock()

	timeCounter++
	baseTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return baseTime.Add(time.Duration(timeCounter) * time.Second)
}

// ResetTestCounters resets the deterministic counters.
// This should only be called from test code.
func ResetTestCounters() {
	idMutex.Lock()
	timeMutex.Lock()
	defer idMutex.Unlock()
	defer timeMutex.Unlock()

	idCounter = 0
	timeCounter = 0
}
