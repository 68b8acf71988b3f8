package enums

import (
	"fmt"
	"strings"
)

// ApprovalPolicy decides what happens when approved time off collides with
// shifts that were scheduled earlier.
type ApprovalPolicy string

const (
	// ApprovalPolicyReject refuses the approval while conflicting shifts exist.
	ApprovalPolicyReject ApprovalPolicy = "reject"
	// ApprovalPolicyFlag approves and marks the conflicting shifts for review.
	ApprovalPolicyFlag ApprovalPolicy = "flag"
)

// ParseApprovalPolicy converts raw config input into an ApprovalPolicy.
// Empty input selects ApprovalPolicyReject.
func ParseApprovalPolicy(value string) (ApprovalPolicy, error) {
	switch ApprovalPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", ApprovalPolicyReject:
		return ApprovalPolicyReject, nil
	case ApprovalPolicyFlag:
		return ApprovalPolicyFlag, nil
	default:
		return "", fmt.Errorf("invalid approval policy %q", value)
	}
}
