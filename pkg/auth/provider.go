package auth

import "os"

// DefaultEnvKey is the environment variable consulted by Env providers.
const DefaultEnvKey = "VOICE_TOKEN"

// TokenProvider supplies the current bearer credential for the duplex channel.
// An empty string means no credential is available; the token may change over
// the lifetime of the consumer, which re-reads it before every connection attempt.
type TokenProvider interface {
	Token() string
}

// Static is a fixed credential.
type Static string

// Token returns the credential.
func (s Static) Token() string { return string(s) }

// TokenFunc adapts a function to the TokenProvider interface.
type TokenFunc func() string

// Token returns the credential from the wrapped function.
func (f TokenFunc) Token() string { return f() }

// Env reads the credential from an environment variable on every call,
// so external login/logout flows can rotate or revoke it.
type Env struct {
	Key string // defaults to DefaultEnvKey
}

// Token returns the current value of the configured environment variable.
func (e Env) Token() string {
	key := e.Key
	if key == "" {
		key = DefaultEnvKey
	}
	return os.Getenv(key)
}
