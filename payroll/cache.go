package payroll

import (
	"context"
	"sync"

	"github.com/warp/payroll-engine/statutory"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// RUN CACHE - Configuration lookups memoized for one run invocation
// =============================================================================

// runCache wraps a ConfigStore for the lifetime of one Compute, Preview
// or Settle call. It is never shared between calls, so configuration
// edited between runs is always reloaded. Errors are not cached.
type runCache struct {
	ConfigStore

	fields      memo[CompanyID, []PaymentField]
	templates   memo[CompanyID, []PaymentTemplate]
	components  memo[TemplateID, []TemplateComponent]
	assignments memo[CompanyID, []TemplateAssignment]
	catalogs    memo[CompanyID, *statutory.Catalog]
	sequences   memo[CompanyID, PaySequence]
}

func newRunCache(store ConfigStore) *runCache {
	return &runCache{ConfigStore: store}
}

func (c *runCache) ListPaymentFields(ctx context.Context, companyID CompanyID) ([]PaymentField, error) {
	return c.fields.get(companyID, func() ([]PaymentField, error) {
		return c.ConfigStore.ListPaymentFields(ctx, companyID)
	})
}

func (c *runCache) ListTemplates(ctx context.Context, companyID CompanyID) ([]PaymentTemplate, error) {
	return c.templates.get(companyID, func() ([]PaymentTemplate, error) {
		return c.ConfigStore.ListTemplates(ctx, companyID)
	})
}

// GetTemplate answers from the company's cached template list when the
// template belongs to a company already loaded.
func (c *runCache) GetTemplate(ctx context.Context, id TemplateID) (PaymentTemplate, error) {
	for _, list := range c.templates.loaded() {
		for _, t := range list {
			if t.ID == id {
				return t, nil
			}
		}
	}
	return c.ConfigStore.GetTemplate(ctx, id)
}

func (c *runCache) ListComponents(ctx context.Context, templateID TemplateID) ([]TemplateComponent, error) {
	return c.components.get(templateID, func() ([]TemplateComponent, error) {
		return c.ConfigStore.ListComponents(ctx, templateID)
	})
}

func (c *runCache) ListAssignments(ctx context.Context, companyID CompanyID) ([]TemplateAssignment, error) {
	return c.assignments.get(companyID, func() ([]TemplateAssignment, error) {
		return c.ConfigStore.ListAssignments(ctx, companyID)
	})
}

func (c *runCache) LoadCatalog(ctx context.Context, companyID CompanyID) (*statutory.Catalog, error) {
	return c.catalogs.get(companyID, func() (*statutory.Catalog, error) {
		return c.ConfigStore.LoadCatalog(ctx, companyID)
	})
}

func (c *runCache) GetPaySequence(ctx context.Context, companyID CompanyID) (PaySequence, error) {
	return c.sequences.get(companyID, func() (PaySequence, error) {
		seq, err := c.ConfigStore.GetPaySequence(ctx, companyID)
		if IsNotFound(err) {
			return DefaultPaySequence(companyID), nil
		}
		return seq, err
	})
}

// =============================================================================
// MEMO
// =============================================================================

// memo loads each key once. Concurrent loads of the same key are collapsed
// by singleflight; a successful value is kept for the rest of the call and
// a failed load is not, so the next caller loads again.
type memo[K ~string, V any] struct {
	group  singleflight.Group
	mu     sync.RWMutex
	values map[K]V
}

func (m *memo[K, V]) lookup(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *memo[K, V]) get(key K, load func() (V, error)) (V, error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}
	res, err, _ := m.group.Do(string(key), func() (any, error) {
		// A flight that finished since the lookup above already stored it.
		if v, ok := m.lookup(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.values == nil {
			m.values = make(map[K]V)
		}
		m.values[key] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (m *memo[K, V]) loaded() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0, len(m.values))
	for _, v := range m.values {
		out = append(out, v)
	}
	return out
}
