// Package domain provides domain models for Elevate.
//
// All directory client methods return domain types, NOT Graph wire types (Anti-Corruption Layer).
//
// Import Path: elevate.dev/elevate/internal/domain
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// StatusProvisioned is the only schedule status that can be acted upon.
const StatusProvisioned = "Provisioned"

// DirectoryScopeRoot means the grant applies to the whole directory.
const DirectoryScopeRoot = "/"

// RoleDefinition describes a directory role. Schedules reference it, never own it.
type RoleDefinition struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	IsBuiltIn   bool   `json:"isBuiltIn"`
}

// ExpirationType describes how a schedule ends.
type ExpirationType string

const (
	ExpirationNoExpiration  ExpirationType = "NoExpiration"
	ExpirationAfterDuration ExpirationType = "AfterDuration"
	ExpirationAfterDateTime ExpirationType = "AfterDateTime"
)

// UnmarshalJSON accepts any casing ("afterDuration", "AFTERDURATION") and
// canonicalises known values.
func (t *ExpirationType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ParseExpirationType(raw)
	return nil
}

// ParseExpirationType canonicalises a raw expiration type. Unknown values are kept as-is.
func ParseExpirationType(raw string) ExpirationType {
	for _, known := range []ExpirationType{ExpirationNoExpiration, ExpirationAfterDuration, ExpirationAfterDateTime} {
		if strings.EqualFold(raw, string(known)) {
			return known
		}
	}
	return ExpirationType(raw)
}

// Expiration is the end condition of a schedule.
type Expiration struct {
	Type        ExpirationType `json:"type"`
	Duration    string         `json:"duration,omitempty"`
	EndDateTime *time.Time     `json:"endDateTime,omitempty"`
}

// ScheduleInfo holds the start and end condition of a schedule.
type ScheduleInfo struct {
	StartDateTime *time.Time  `json:"startDateTime,omitempty"`
	Expiration    *Expiration `json:"expiration,omitempty"`
}

// AssignmentType distinguishes just-in-time activations from standing assignments.
type AssignmentType string

const (
	AssignmentActivated AssignmentType = "Activated"
	AssignmentAssigned  AssignmentType = "Assigned"
)

// RoleKey addresses a role for a principal. The schedule's own ID is not stable
// across the eligible -> active transition, so every match uses this pair.
type RoleKey struct {
	RoleDefinitionID string `json:"roleDefinitionId"`
	DirectoryScopeID string `json:"directoryScopeId"`
}

// String returns "roleDefinitionID@scope".
func (k RoleKey) String() string {
	return k.RoleDefinitionID + "@" + k.DirectoryScopeID
}

// IsZero reports whether either half of the key is missing.
func (k RoleKey) IsZero() bool {
	return strings.TrimSpace(k.RoleDefinitionID) == "" || strings.TrimSpace(k.DirectoryScopeID) == ""
}

// EligibilitySchedule is a standing entitlement to activate a role.
type EligibilitySchedule struct {
	ID               string          `json:"id"`
	PrincipalID      string          `json:"principalId"`
	RoleDefinitionID string          `json:"roleDefinitionId"`
	DirectoryScopeID string          `json:"directoryScopeId"`
	Status           string          `json:"status"`
	ScheduleInfo     *ScheduleInfo   `json:"scheduleInfo,omitempty"`
	RoleDefinition   *RoleDefinition `json:"roleDefinition,omitempty"`
}

// Key returns the addressing key of the schedule.
func (s EligibilitySchedule) Key() RoleKey {
	return RoleKey{RoleDefinitionID: s.RoleDefinitionID, DirectoryScopeID: s.DirectoryScopeID}
}

// Actionable reports whether the schedule can be activated.
func (s EligibilitySchedule) Actionable() bool {
	return s.Status == StatusProvisioned
}

// AssignmentSchedule is an active (or permanently assigned) role grant.
type AssignmentSchedule struct {
	ID               string          `json:"id"`
	PrincipalID      string          `json:"principalId"`
	RoleDefinitionID string          `json:"roleDefinitionId"`
	DirectoryScopeID string          `json:"directoryScopeId"`
	Status           string          `json:"status"`
	AssignmentType   AssignmentType  `json:"assignmentType"`
	ScheduleInfo     *ScheduleInfo   `json:"scheduleInfo,omitempty"`
	RoleDefinition   *RoleDefinition `json:"roleDefinition,omitempty"`
}

// Key returns the addressing key of the assignment.
func (a AssignmentSchedule) Key() RoleKey {
	return RoleKey{RoleDefinitionID: a.RoleDefinitionID, DirectoryScopeID: a.DirectoryScopeID}
}

// EndDateTime returns the resolved expiry instant, if any.
func (a AssignmentSchedule) EndDateTime() (time.Time, bool) {
	if a.ScheduleInfo == nil || a.ScheduleInfo.Expiration == nil || a.ScheduleInfo.Expiration.EndDateTime == nil {
		return time.Time{}, false
	}
	return *a.ScheduleInfo.Expiration.EndDateTime, true
}

// Expired reports whether an activated assignment has passed its end instant.
func (a AssignmentSchedule) Expired(now time.Time) bool {
	end, ok := a.EndDateTime()
	return a.AssignmentType == AssignmentActivated && ok && !now.Before(end)
}

// Principal is the authenticated identity acting on its own roles.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
}

// Account is the signed-in session as seen locally, before any directory call.
type Account struct {
	ObjectID string `json:"objectId"`
	Username string `json:"username"`
	Name     string `json:"name"`
	TenantID string `json:"tenantId,omitempty"`
}

// Clone helpers. Consumers receive copies so they cannot mutate manager state.

// CloneEligible deep-copies a slice of eligibility schedules.
func CloneEligible(in []EligibilitySchedule) []EligibilitySchedule {
	out := make([]EligibilitySchedule, len(in))
	for i, s := range in {
		s.ScheduleInfo = s.ScheduleInfo.clone()
		s.RoleDefinition = s.RoleDefinition.clone()
		out[i] = s
	}
	return out
}

// CloneActive deep-copies a slice of assignment schedules.
func CloneActive(in []AssignmentSchedule) []AssignmentSchedule {
	out := make([]AssignmentSchedule, len(in))
	for i, a := range in {
		a.ScheduleInfo = a.ScheduleInfo.clone()
		a.RoleDefinition = a.RoleDefinition.clone()
		out[i] = a
	}
	return out
}

func (s *ScheduleInfo) clone() *ScheduleInfo {
	if s == nil {
		return nil
	}
	c := *s
	if s.StartDateTime != nil {
		t := *s.StartDateTime
		c.StartDateTime = &t
	}
	if s.Expiration != nil {
		e := *s.Expiration
		if e.EndDateTime != nil {
			t := *e.EndDateTime
			e.EndDateTime = &t
		}
		c.Expiration = &e
	}
	return &c
}

func (d *RoleDefinition) clone() *RoleDefinition {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
