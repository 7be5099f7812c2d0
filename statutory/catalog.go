/*
catalog.go - Read-only snapshot of a company's statutory configuration

PURPOSE:
  A Catalog holds every statutory record of one company as loaded at the
  start of a payroll run. Lookups are deterministic:

    1. A record addressed by id wins if it exists.
    2. Otherwise the most recently created default of that kind wins.
    3. PT and LWF defaults prefer the employee's state, then state-less.

  A default returned for an id that does not exist is a dangling
  reference; Record.Substitutes lets the caller flag it.

ANOMALIES:
  More than one default per (company, kind[, state]) is a data anomaly.
  Lookups still return the newest default but also return an Anomaly so
  the caller can surface it. Records are never merged.

SEE ALSO:
  - types.go: Record and config types
  - payroll/evaluator.go: Consumer of lookups
*/
package statutory

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog is a snapshot; it is never mutated after loading.
type Catalog struct {
	CompanyID       string
	ProvidentFunds  []ProvidentFund
	StateInsurance  []StateInsurance
	ProfessionalTax []ProfessionalTax
	LabourWelfare   []LabourWelfareFund
	Bonuses         []Bonus
	Gratuities      []Gratuity
	Encashments     []LeaveEncashment
}

// Anomaly reports several defaults competing for the same slot.
type Anomaly struct {
	Kind      Kind
	CompanyID string
	State     string
	RecordIDs []string
	Chosen    string
}

func (a Anomaly) String() string {
	scope := a.CompanyID
	if a.State != "" {
		scope += "/" + a.State
	}
	return fmt.Sprintf("%d default %s records for %s (%s); using %s",
		len(a.RecordIDs), a.Kind, scope, strings.Join(a.RecordIDs, ", "), a.Chosen)
}

// Add appends a config of any kind to the matching slice.
func (c *Catalog) Add(cfg Config) error {
	switch v := cfg.(type) {
	case ProvidentFund:
		c.ProvidentFunds = append(c.ProvidentFunds, v)
	case StateInsurance:
		c.StateInsurance = append(c.StateInsurance, v)
	case ProfessionalTax:
		c.ProfessionalTax = append(c.ProfessionalTax, v)
	case LabourWelfareFund:
		c.LabourWelfare = append(c.LabourWelfare, v)
	case Bonus:
		c.Bonuses = append(c.Bonuses, v)
	case Gratuity:
		c.Gratuities = append(c.Gratuities, v)
	case LeaveEncashment:
		c.Encashments = append(c.Encashments, v)
	default:
		return fmt.Errorf("unsupported statutory config %T", cfg)
	}
	return nil
}

// All returns every record in the catalog.
func (c *Catalog) All() []Config {
	var out []Config
	for _, r := range c.ProvidentFunds {
		out = append(out, r)
	}
	for _, r := range c.StateInsurance {
		out = append(out, r)
	}
	for _, r := range c.ProfessionalTax {
		out = append(out, r)
	}
	for _, r := range c.LabourWelfare {
		out = append(out, r)
	}
	for _, r := range c.Bonuses {
		out = append(out, r)
	}
	for _, r := range c.Gratuities {
		out = append(out, r)
	}
	for _, r := range c.Encashments {
		out = append(out, r)
	}
	return out
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (c *Catalog) ProvidentFund(id string) (ProvidentFund, *Anomaly, bool) {
	return pick(c.ProvidentFunds, c.CompanyID, id, "", nil)
}

func (c *Catalog) StateInsuranceScheme(id string) (StateInsurance, *Anomaly, bool) {
	return pick(c.StateInsurance, c.CompanyID, id, "", nil)
}

func (c *Catalog) ProfessionalTaxFor(id, state string) (ProfessionalTax, *Anomaly, bool) {
	return pick(c.ProfessionalTax, c.CompanyID, id, state, func(p ProfessionalTax) string { return p.State })
}

func (c *Catalog) LabourWelfareFor(id, state string) (LabourWelfareFund, *Anomaly, bool) {
	return pick(c.LabourWelfare, c.CompanyID, id, state, func(l LabourWelfareFund) string { return l.State })
}

func (c *Catalog) Bonus(id string) (Bonus, *Anomaly, bool) {
	return pick(c.Bonuses, c.CompanyID, id, "", nil)
}

func (c *Catalog) Gratuity(id string) (Gratuity, *Anomaly, bool) {
	return pick(c.Gratuities, c.CompanyID, id, "", nil)
}

func (c *Catalog) LeaveEncashment(id string) (LeaveEncashment, *Anomaly, bool) {
	return pick(c.Encashments, c.CompanyID, id, "", nil)
}

// pick implements id-then-latest-default resolution. stateOf is nil for
// kinds that are not state-scoped.
func pick[T Config](records []T, companyID, id, state string, stateOf func(T) string) (T, *Anomaly, bool) {
	var zero T
	if id != "" {
		for _, r := range records {
			if r.Header().ID == id {
				return r, nil, true
			}
		}
	}

	var defaults []T
	for _, r := range records {
		if r.Header().IsDefault {
			defaults = append(defaults, r)
		}
	}
	if stateOf != nil {
		defaults = narrowByState(defaults, state, stateOf)
	}
	if len(defaults) == 0 {
		return zero, nil, false
	}

	sort.SliceStable(defaults, func(i, j int) bool {
		a, b := defaults[i].Header(), defaults[j].Header()
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	chosen := defaults[0]
	if len(defaults) == 1 {
		return chosen, nil, true
	}

	anomaly := &Anomaly{
		Kind:      chosen.Kind(),
		CompanyID: companyID,
		Chosen:    chosen.Header().ID,
	}
	if stateOf != nil {
		anomaly.State = stateOf(chosen)
	}
	for _, d := range defaults {
		anomaly.RecordIDs = append(anomaly.RecordIDs, d.Header().ID)
	}
	return chosen, anomaly, true
}

func narrowByState[T Config](records []T, state string, stateOf func(T) string) []T {
	var exact, stateless []T
	for _, r := range records {
		switch s := stateOf(r); {
		case state != "" && strings.EqualFold(s, state):
			exact = append(exact, r)
		case s == "":
			stateless = append(stateless, r)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return stateless
}
