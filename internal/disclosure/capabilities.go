package disclosure

import (
	"context"
	"os"
	"sort"

	"DecideInbox/internal/ports"
)

// EnvCapabilities unlocks a flag when its environment variable was set at
// startup. The environment is read once.
type EnvCapabilities struct {
	flags []string
}

var _ ports.CapabilityProvider = EnvCapabilities{}

// NewEnvCapabilities resolves flag → variable bindings with lookup; a nil
// lookup uses os.LookupEnv.
func NewEnvCapabilities(bindings map[string]string, lookup func(string) (string, bool)) EnvCapabilities {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var flags []string
	for flag, key := range bindings {
		if v, ok := lookup(key); ok && v != "" {
			flags = append(flags, flag)
		}
	}
	sort.Strings(flags)
	return EnvCapabilities{flags: flags}
}

// Available returns the flags whose variables were present.
func (e EnvCapabilities) Available(context.Context) []string {
	return e.flags
}

// StaticCapabilities always reports the same flags.
type StaticCapabilities []string

// Available returns the configured flags.
func (s StaticCapabilities) Available(context.Context) []string {
	return s
}
