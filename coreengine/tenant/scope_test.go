package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Unset(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestWithTenant_RoundTrips(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")
	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "acme", id)
}

func TestWithTenantConfig_CarriesLimitsAndID(t *testing.T) {
	cfg := Config{ID: "acme", IsolationMode: IsolationModeStrict, Limits: Limits{MaxStateKeys: 10}}
	ctx := WithTenantConfig(context.Background(), cfg)

	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "acme", id)

	got, ok := ConfigFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, cfg, got)
}
