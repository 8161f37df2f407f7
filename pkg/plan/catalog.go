package plan

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog holds one Plan per tier.
type Catalog struct {
	plans map[tenant.Tier]Plan
}

type planDoc struct {
	Name      string           `yaml:"name"`
	TrialDays int              `yaml:"trial_days"`
	Features  []string         `yaml:"features"`
	Limits    map[string]int64 `yaml:"limits"`
}

type catalogDoc struct {
	Plans map[string]planDoc `yaml:"plans"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("plan: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrParsingPlans, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a catalog from r.
func Read(r io.Reader) (*Catalog, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Join(ErrParsingPlans, err)
	}
	return Parse(b)
}

// Parse parses a YAML catalog. Every tier must be known, every feature defined and every limit
// either -1 or non-negative.
func Parse(b []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Join(ErrParsingPlans, err)
	}
	if len(doc.Plans) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{plans: make(map[tenant.Tier]Plan, len(doc.Plans))}
	for name, pd := range doc.Plans {
		tier := tenant.Tier(name)
		if !tier.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, name)
		}

		p := Plan{
			Tier:      tier,
			Name:      pd.Name,
			TrialDays: pd.TrialDays,
			Limits:    make(map[tenant.Resource]int64, len(pd.Limits)),
		}
		if p.TrialDays < 0 {
			return nil, fmt.Errorf("%w: %s: negative trial_days", ErrInvalidPlan, name)
		}
		for _, f := range pd.Features {
			feature, err := tenant.ParseFeature(f)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlan, name, err)
			}
			p.Features = append(p.Features, feature)
		}
		for res, limit := range pd.Limits {
			if limit < tenant.Unlimited {
				return nil, fmt.Errorf("%w: %s: limit %s=%d", ErrInvalidPlan, name, res, limit)
			}
			p.Limits[tenant.Resource(res)] = limit
		}
		c.plans[tier] = p
	}
	return c, nil
}

// New builds a catalog from plans. It is mostly useful in tests.
func New(plans ...Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[tenant.Tier]Plan, len(plans))}
	for _, p := range plans {
		if !p.Tier.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, p.Tier)
		}
		if _, dup := c.plans[p.Tier]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTier, p.Tier)
		}
		c.plans[p.Tier] = p
	}
	if len(c.plans) == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

// Get returns the plan for tier.
func (c *Catalog) Get(tier tenant.Tier) (Plan, error) {
	p, ok := c.plans[tier]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return p, nil
}

// Tiers returns the tiers present in the catalog.
func (c *Catalog) Tiers() []tenant.Tier {
	out := make([]tenant.Tier, 0, len(c.plans))
	for _, t := range []tenant.Tier{tenant.TierStarter, tenant.TierProfessional, tenant.TierEnterprise} {
		if _, ok := c.plans[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
