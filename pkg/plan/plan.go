package plan

import (
	"maps"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Plan is the set of defaults a tier grants on provisioning and tier change.
type Plan struct {
	Tier      tenant.Tier
	Name      string
	TrialDays int
	Features  []tenant.Feature
	Limits    map[tenant.Resource]int64 // -1 represents unlimited
}

// FeatureSet returns the plan features as a set.
func (p Plan) FeatureSet() tenant.FeatureSet {
	return tenant.NewFeatureSet(p.Features...)
}

// LimitMap returns a copy of the plan limits.
func (p Plan) LimitMap() map[tenant.Resource]int64 {
	if p.Limits == nil {
		return map[tenant.Resource]int64{}
	}
	return maps.Clone(p.Limits)
}

// HasTrial reports whether the plan starts with a trial.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// TrialEndsAt calculates when a trial started at startedAt ends.
// Returns nil if the plan has no trial.
func (p Plan) TrialEndsAt(startedAt time.Time) *time.Time {
	if !p.HasTrial() {
		return nil
	}
	end := startedAt.AddDate(0, 0, p.TrialDays).UTC()
	return &end
}

// InitialStatus is the status a new tenant on this plan starts in.
func (p Plan) InitialStatus() tenant.Status {
	if p.HasTrial() {
		return tenant.StatusTrialing
	}
	return tenant.StatusActive
}
