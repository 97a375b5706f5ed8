package shard

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"
)

// Provider looks up an optional setting. ok is false when the setting is absent.
type Provider interface {
	Lookup(ctx context.Context) (value string, ok bool)
}

// ProviderFunc adapts a function to a Provider
type ProviderFunc func(ctx context.Context) (string, bool)

func (f ProviderFunc) Lookup(ctx context.Context) (string, bool) {
	return f(ctx)
}

// Static always provides value
func Static(value string) Provider {
	return ProviderFunc(func(context.Context) (string, bool) {
		return value, true
	})
}

// Unset never provides a value
func Unset() Provider {
	return ProviderFunc(func(context.Context) (string, bool) {
		return "", false
	})
}

// Env provides the value of an environment variable
func Env(name string) Provider {
	return ProviderFunc(func(context.Context) (string, bool) {
		return os.LookupEnv(name)
	})
}

// Flag provides the value of a cli flag, or nothing when the flag was not
// set on the command line or through its environment variables.
func Flag(c *cli.Context, name string) Provider {
	return ProviderFunc(func(context.Context) (string, bool) {
		if !c.IsSet(name) {
			return "", false
		}
		return c.String(name), true
	})
}

// FirstOf provides the value of the first provider that has one
func FirstOf(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (string, bool) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			if v, ok := p.Lookup(ctx); ok {
				return v, true
			}
		}
		return "", false
	})
}
