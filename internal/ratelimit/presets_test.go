package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	presets := Presets()

	assert.Equal(t, Policy{MaxRequests: 30, Window: time.Minute}, presets[PolicyAI])
	assert.Equal(t, Policy{MaxRequests: 60, Window: time.Minute}, presets[PolicyCompile])
	assert.Equal(t, Policy{MaxRequests: 10, Window: time.Minute}, presets[PolicyAuth])

	for name, p := range presets {
		assert.NoError(t, p.Validate(), name)
	}
}

func TestNewPolicies_Overrides(t *testing.T) {
	policies, err := NewPolicies(map[string]Policy{
		PolicyAuth: {MaxRequests: 3, Window: 30 * time.Second},
		"export":   {MaxRequests: 5, Window: time.Hour},
	})
	require.NoError(t, err)

	auth, ok := policies.Lookup(PolicyAuth)
	require.True(t, ok)
	assert.Equal(t, 3, auth.MaxRequests)

	_, ok = policies.Lookup("export")
	assert.True(t, ok)

	_, ok = policies.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{PolicyAI, PolicyAuth, PolicyCompile, "export"}, policies.Names())
}

func TestNewPolicies_RejectsInvalid(t *testing.T) {
	_, err := NewPolicies(map[string]Policy{"bad": {MaxRequests: 0, Window: time.Second}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	_, err = NewPolicies(map[string]Policy{"": {MaxRequests: 1, Window: time.Second}})
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestNewPolicies_DoesNotMutatePresets(t *testing.T) {
	_, err := NewPolicies(map[string]Policy{PolicyAI: {MaxRequests: 1, Window: time.Second}})
	require.NoError(t, err)

	assert.Equal(t, 30, Presets()[PolicyAI].MaxRequests)
}
