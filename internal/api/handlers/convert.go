package handlers

import (
	"time"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/duration"
)

// activeRoleToAPI adds the relative expiry ("in 3 hours") to an assignment.
// Assignments without a resolved end instant carry no remaining text.
func activeRoleToAPI(a domain.AssignmentSchedule, now time.Time) activeRole {
	out := activeRole{AssignmentSchedule: a}
	if end, ok := a.EndDateTime(); ok {
		out.Remaining = duration.FormatRelative(end, now)
	}
	return out
}
