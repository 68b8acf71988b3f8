package enums

import (
	"fmt"
	"strings"
)

// TimeOffStatus tracks a time-off request decision.
type TimeOffStatus string

const (
	TimeOffStatusPending  TimeOffStatus = "pending"
	TimeOffStatusApproved TimeOffStatus = "approved"
	TimeOffStatusDenied   TimeOffStatus = "denied"
)

var validTimeOffStatuses = []TimeOffStatus{
	TimeOffStatusPending,
	TimeOffStatusApproved,
	TimeOffStatusDenied,
}

// String implements fmt.Stringer.
func (s TimeOffStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TimeOffStatus.
func (s TimeOffStatus) IsValid() bool {
	for _, candidate := range validTimeOffStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsDecision reports whether the status is a terminal manager decision.
func (s TimeOffStatus) IsDecision() bool {
	return s == TimeOffStatusApproved || s == TimeOffStatusDenied
}

// ParseTimeOffStatus converts raw input into a TimeOffStatus.
func ParseTimeOffStatus(value string) (TimeOffStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validTimeOffStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid time off status %q", value)
}
