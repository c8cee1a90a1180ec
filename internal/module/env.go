package module

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Env carries shared runtime dependencies into every module factory.
type Env struct {
	Logger     *zap.Logger
	HTTPClient *http.Client
	Now        func() time.Time
}

func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.HTTPClient == nil {
		e.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return e
}

// WithLogger returns a copy of the env with a named child logger.
func (e Env) WithLogger(name string) Env {
	e = e.withDefaults()
	e.Logger = e.Logger.Named(name)
	return e
}

// Clock returns the configured time source.
func (e Env) Clock() func() time.Time {
	return e.withDefaults().Now
}
