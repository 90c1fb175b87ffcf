package audit

import (
	"fmt"
	"log"
	"time"
)

type Monitor struct {
	logger *Logger
}

// NewMonitor creates a new security monitor
func NewMonitor(logger *Logger) *Monitor {
	return &Monitor{
		logger: logger,
	}
}

// DetectFailedUnlocks detects repeated failed PIN attempts per tag
func (m *Monitor) DetectFailedUnlocks() error {
	now := time.Now()
	fiveMinutesAgo := now.Add(-5 * time.Minute)

	filters := QueryFilters{
		StartTime: &fiveMinutesAgo,
		EndTime:   &now,
		Action:    "TAG_UNLOCK",
		Limit:     1000,
	}

	events, err := m.logger.QueryLogs(filters)
	if err != nil {
		return fmt.Errorf("failed to query audit logs: %w", err)
	}

	// Count failed attempts per tag
	failedAttempts := make(map[string]int)

	for _, event := range events {
		if !event.Success && event.TagID != "" {
			failedAttempts[event.TagID]++
			if failedAttempts[event.TagID] >= 5 {
				log.Printf("SECURITY ALERT: tag %s has %d failed unlock attempts in last 5 minutes",
					event.TagID, failedAttempts[event.TagID])

				// Log critical security event
				m.logger.Log(&Event{
					Level:    LevelCritical,
					TagID:    event.TagID,
					Action:   "FAILED_UNLOCK_THRESHOLD",
					Resource: "tag_gate",
					Success:  false,
					ErrorMsg: fmt.Sprintf("%d failed attempts detected", failedAttempts[event.TagID]),
				})
			}
		}
	}

	return nil
}

// DetectSuspiciousActivity runs all security checks
func (m *Monitor) DetectSuspiciousActivity() error {
	if err := m.DetectFailedUnlocks(); err != nil {
		log.Printf("Failed to detect failed unlocks: %v", err)
	}

	return nil
}
