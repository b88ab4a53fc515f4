package pim

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/duration"
)

//go:embed fixtures/demo.yaml
var defaultFixtures []byte

// Fixtures seed the simulated directory.
type Fixtures struct {
	Principal FixturePrincipal `yaml:"principal"`
	Roles     []FixtureRole    `yaml:"roles"`
}

// FixturePrincipal is the simulated signed-in user.
type FixturePrincipal struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"displayName"`
	Mail        string `yaml:"mail"`
	Username    string `yaml:"username"`
}

// FixtureRole is one built-in role the principal is eligible for.
type FixtureRole struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"displayName"`
	Description string `yaml:"description"`
	// Scope defaults to the directory root.
	Scope  string         `yaml:"scope"`
	Active *FixtureActive `yaml:"active"`
}

// FixtureActive marks a role as already activated when the simulation starts.
type FixtureActive struct {
	StartedAgo time.Duration `yaml:"startedAgo"`
	Duration   string        `yaml:"duration"`
}

// DefaultFixtures returns the embedded demo directory.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(defaultFixtures)
}

// LoadFixtures reads fixtures from path.
func LoadFixtures(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(raw)
}

// ParseFixtures decodes and validates fixture YAML.
func ParseFixtures(raw []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if f.Principal.ID == "" {
		return nil, fmt.Errorf("fixtures: principal.id is required")
	}
	seen := make(map[domain.RoleKey]struct{}, len(f.Roles))
	for i := range f.Roles {
		r := &f.Roles[i]
		if r.ID == "" {
			return nil, fmt.Errorf("fixtures: roles[%d].id is required", i)
		}
		if r.Scope == "" {
			r.Scope = domain.DirectoryScopeRoot
		}
		key := domain.RoleKey{RoleDefinitionID: r.ID, DirectoryScopeID: r.Scope}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("fixtures: duplicate role %s", key)
		}
		seen[key] = struct{}{}
		if r.Active != nil && !duration.Valid(r.Active.Duration) {
			return nil, fmt.Errorf("fixtures: role %s has invalid duration %q", r.ID, r.Active.Duration)
		}
	}
	return &f, nil
}

// Account returns the simulated signed-in account.
func (f *Fixtures) Account() domain.Account {
	return domain.Account{
		ObjectID: f.Principal.ID,
		Username: f.Principal.Username,
		Name:     f.Principal.DisplayName,
	}
}

// seed builds the initial simulated directory at now. Eligibilities of roles
// that start active are parked in consumed so deactivation can restore them.
func (f *Fixtures) seed(now time.Time) (eligible []domain.EligibilitySchedule, active []domain.AssignmentSchedule, consumed map[domain.RoleKey]domain.EligibilitySchedule) {
	eligible = []domain.EligibilitySchedule{}
	active = []domain.AssignmentSchedule{}
	consumed = make(map[domain.RoleKey]domain.EligibilitySchedule)

	eligibleSince := now.Add(-30 * 24 * time.Hour).UTC()
	for _, r := range f.Roles {
		def := &domain.RoleDefinition{
			ID:          r.ID,
			DisplayName: r.DisplayName,
			Description: r.Description,
			IsBuiltIn:   true,
		}
		start := eligibleSince
		e := domain.EligibilitySchedule{
			ID:               "eligibility-" + r.ID,
			PrincipalID:      f.Principal.ID,
			RoleDefinitionID: r.ID,
			DirectoryScopeID: r.Scope,
			Status:           domain.StatusProvisioned,
			ScheduleInfo: &domain.ScheduleInfo{
				StartDateTime: &start,
				Expiration:    &domain.Expiration{Type: domain.ExpirationNoExpiration},
			},
			RoleDefinition: def,
		}

		if r.Active == nil {
			eligible = append(eligible, e)
			continue
		}
		consumed[e.Key()] = e
		active = append(active, newActivation("assignment-"+r.ID, e, r.Active.Duration, now.Add(-r.Active.StartedAgo)))
	}
	return eligible, active, consumed
}

// newActivation builds an Activated assignment from an eligibility. The end
// instant counts whole hours of the token, defaulting to eight.
func newActivation(id string, e domain.EligibilitySchedule, token string, start time.Time) domain.AssignmentSchedule {
	start = start.UTC()
	end := start.Add(time.Duration(duration.Hours(token)) * time.Hour)
	var def *domain.RoleDefinition
	if e.RoleDefinition != nil {
		d := *e.RoleDefinition
		def = &d
	}
	return domain.AssignmentSchedule{
		ID:               id,
		PrincipalID:      e.PrincipalID,
		RoleDefinitionID: e.RoleDefinitionID,
		DirectoryScopeID: e.DirectoryScopeID,
		Status:           domain.StatusProvisioned,
		AssignmentType:   domain.AssignmentActivated,
		ScheduleInfo: &domain.ScheduleInfo{
			StartDateTime: &start,
			Expiration: &domain.Expiration{
				Type:        domain.ExpirationAfterDuration,
				Duration:    token,
				EndDateTime: &end,
			},
		},
		RoleDefinition: def,
	}
}
