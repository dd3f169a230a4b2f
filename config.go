package access

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	// DefaultGraceWindow is how long a missing profile is tolerated after
	// authentication before healing kicks in. Canonical value; the observed
	// call sites varied so it is a tunable, not a constant.
	DefaultGraceWindow = 3 * time.Second
	// DefaultResolverTimeout bounds each backend call inside a resolution.
	DefaultResolverTimeout = 5 * time.Second
	// DefaultGuardTimeout bounds a guard's total wait before failing closed.
	DefaultGuardTimeout = 15 * time.Second
)

// ConfigObject is the concrete Config with sensible defaults.
type ConfigObject struct {
	LoginRoute           string        `json:"login_route"`
	AdminLandingRoute    string        `json:"admin_landing_route"`
	BusinessLandingRoute string        `json:"business_landing_route"`
	RejectedRouteKey     string        `json:"rejected_route_key"`
	GraceWindow          time.Duration `json:"grace_window"`
	ResolverTimeout      time.Duration `json:"resolver_timeout"`
	GuardTimeout         time.Duration `json:"guard_timeout"`
}

var _ Config = (*ConfigObject)(nil)

// NewConfig returns a ConfigObject populated with defaults.
func NewConfig() *ConfigObject {
	return &ConfigObject{
		LoginRoute:           "/login",
		AdminLandingRoute:    "/admin",
		BusinessLandingRoute: "/account/business",
		RejectedRouteKey:     "rejected_route",
		GraceWindow:          DefaultGraceWindow,
		ResolverTimeout:      DefaultResolverTimeout,
		GuardTimeout:         DefaultGuardTimeout,
	}
}

// Validate ensures every tunable has a workable value.
func (c ConfigObject) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LoginRoute, validation.Required),
		validation.Field(&c.RejectedRouteKey, validation.Required),
		validation.Field(&c.GraceWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.ResolverTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.GuardTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

func (c *ConfigObject) GetLoginRoute() string { return c.LoginRoute }

func (c *ConfigObject) GetAdminLandingRoute() string { return c.AdminLandingRoute }

func (c *ConfigObject) GetBusinessLandingRoute() string { return c.BusinessLandingRoute }

func (c *ConfigObject) GetRejectedRouteKey() string { return c.RejectedRouteKey }

func (c *ConfigObject) GetGraceWindow() time.Duration { return c.GraceWindow }

func (c *ConfigObject) GetResolverTimeout() time.Duration { return c.ResolverTimeout }

func (c *ConfigObject) GetGuardTimeout() time.Duration { return c.GuardTimeout }
