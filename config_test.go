package access_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	access "github.com/zonetox/Beauty-sub001"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := access.NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/login", cfg.GetLoginRoute())
	assert.Equal(t, "/admin", cfg.GetAdminLandingRoute())
	assert.Equal(t, "/account/business", cfg.GetBusinessLandingRoute())
	assert.Equal(t, "rejected_route", cfg.GetRejectedRouteKey())
	assert.Equal(t, access.DefaultGraceWindow, cfg.GetGraceWindow())
	assert.Equal(t, access.DefaultResolverTimeout, cfg.GetResolverTimeout())
	assert.Equal(t, access.DefaultGuardTimeout, cfg.GetGuardTimeout())
}

func TestConfigValidate(t *testing.T) {
	cfg := access.NewConfig()
	cfg.LoginRoute = ""
	assert.Error(t, cfg.Validate())

	cfg = access.NewConfig()
	cfg.RejectedRouteKey = ""
	assert.Error(t, cfg.Validate())

	cfg = access.NewConfig()
	cfg.GuardTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = access.NewConfig()
	cfg.GraceWindow = 500 * time.Millisecond
	assert.NoError(t, cfg.Validate())

	// zero disables the tolerance entirely and is a legal setting
	cfg = access.NewConfig()
	cfg.GraceWindow = 0
	assert.NoError(t, cfg.Validate())

	cfg = access.NewConfig()
	cfg.GraceWindow = -time.Second
	assert.Error(t, cfg.Validate())
}
