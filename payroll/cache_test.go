package payroll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingConfig serves components and pay sequences and counts loads.
// Other ConfigStore methods are not used by these tests.
type countingConfig struct {
	ConfigStore
	loads   atomic.Int32
	failing atomic.Bool
}

func (c *countingConfig) ListComponents(_ context.Context, templateID TemplateID) ([]TemplateComponent, error) {
	c.loads.Add(1)
	if c.failing.Load() {
		return nil, errors.New("connection reset")
	}
	return []TemplateComponent{{ID: "c-1", TemplateID: templateID}}, nil
}

func (c *countingConfig) GetPaySequence(context.Context, CompanyID) (PaySequence, error) {
	return PaySequence{}, ErrNotFound
}

func TestRunCache_LoadsEachKeyOnce(t *testing.T) {
	// GIVEN: Many workers asking for the same template at once
	src := &countingConfig{}
	cache := newRunCache(src)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comps, err := cache.ListComponents(context.Background(), "tpl")
			assert.NoError(t, err)
			assert.Len(t, comps, 1)
		}()
	}
	wg.Wait()

	// THEN: The store was read once
	assert.Equal(t, int32(1), src.loads.Load())
}

func TestRunCache_ErrorsAreNotCached(t *testing.T) {
	src := &countingConfig{}
	src.failing.Store(true)
	cache := newRunCache(src)

	_, err := cache.ListComponents(context.Background(), "tpl")
	require.Error(t, err)

	src.failing.Store(false)
	comps, err := cache.ListComponents(context.Background(), "tpl")
	require.NoError(t, err)
	assert.Len(t, comps, 1)
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestRunCache_DefaultPaySequence(t *testing.T) {
	cache := newRunCache(&countingConfig{})

	seq, err := cache.GetPaySequence(context.Background(), "acme")

	require.NoError(t, err)
	assert.Equal(t, DefaultPaySequence("acme"), seq)
}
