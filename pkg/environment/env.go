package environment

import (
	"context"
	"os"
	"strings"
)

// OsEnvProvider provides access to the operating system's environment variables.
type OsEnvProvider struct{}

func NewOsEnvProvider() *OsEnvProvider {
	return &OsEnvProvider{}
}

func (p *OsEnvProvider) Get(_ context.Context, name string) (string, bool) {
	return os.LookupEnv(name)
}

// EnvListProvider provides access to a fixed list of "KEY=VALUE" pairs.
// Used in tests to substitute the real process environment.
type EnvListProvider struct {
	env []string
}

func NewEnvListProvider(env []string) *EnvListProvider {
	return &EnvListProvider{
		env: env,
	}
}

func (p *EnvListProvider) Get(_ context.Context, name string) (string, bool) {
	for _, e := range p.env {
		n, v, ok := strings.Cut(e, "=")
		if ok && n == name {
			return v, true
		}
	}
	return "", false
}
