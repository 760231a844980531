package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv builds envDeps over an in-memory map so loader tests never touch
// the process environment.
type fakeEnv struct {
	vars map[string]string
}

func (f *fakeEnv) deps() envDeps {
	return envDeps{
		lookupEnv: func(key string) (string, bool) {
			v, ok := f.vars[key]
			return v, ok
		},
		setEnv: func(key, value string) error {
			f.vars[key] = value
			return nil
		},
		environ: func() []string {
			out := make([]string, 0, len(f.vars))
			for k, v := range f.vars {
				out = append(out, k+"="+v)
			}
			return out
		},
	}
}

type fakeProvider struct {
	values map[string]string
	err    error
	calls  [][]string
}

func (p *fakeProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.calls = append(p.calls, keys)
	if p.err != nil {
		return nil, p.err
	}
	return p.values, nil
}

func TestResolveSSMParams_InjectsResolvedValues(t *testing.T) {
	env := &fakeEnv{vars: map[string]string{
		"STRIPE_SECRET_KEY_SSM_PARAM": "/prod/shoppay/stripe/secret_key",
	}}
	provider := &fakeProvider{values: map[string]string{
		"/prod/shoppay/stripe/secret_key": "sk_live_resolved",
	}}

	err := resolveSSMParams(provider, env.deps())
	require.NoError(t, err)
	assert.Equal(t, "sk_live_resolved", env.vars["STRIPE_SECRET_KEY"])
	require.Len(t, provider.calls, 1)
	assert.Equal(t, []string{"/prod/shoppay/stripe/secret_key"}, provider.calls[0])
}

func TestResolveSSMParams_EnvWinsOverSSM(t *testing.T) {
	env := &fakeEnv{vars: map[string]string{
		"STRIPE_SECRET_KEY":           "sk_live_from_env",
		"STRIPE_SECRET_KEY_SSM_PARAM": "/prod/shoppay/stripe/secret_key",
	}}
	provider := &fakeProvider{}

	err := resolveSSMParams(provider, env.deps())
	require.NoError(t, err)
	assert.Equal(t, "sk_live_from_env", env.vars["STRIPE_SECRET_KEY"])
	assert.Empty(t, provider.calls, "provider must not be called when the target is already set")
}

func TestResolveSSMParams_NilProviderWithBindings(t *testing.T) {
	env := &fakeEnv{vars: map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/shoppay/database/url",
	}}

	err := resolveSSMParams(nil, env.deps())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "DATABASE_URL")
}

func TestResolveSSMParams_NoBindingsIsNoop(t *testing.T) {
	env := &fakeEnv{vars: map[string]string{"PORT": "8080"}}
	require.NoError(t, resolveSSMParams(nil, env.deps()))
}

func TestResolveSSMParams_MissingParameter(t *testing.T) {
	env := &fakeEnv{vars: map[string]string{
		"ADMIN_KEY_HASH_SSM_PARAM": "/prod/shoppay/admin/key_hash",
	}}
	provider := &fakeProvider{values: map[string]string{}}

	err := resolveSSMParams(provider, env.deps())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "ADMIN_KEY_HASH")
}

func TestResolveSSMParams_ProviderFailure(t *testing.T) {
	env := &fakeEnv{vars: map[string]string{
		"DATABASE_URL_SSM_PARAM": "/prod/shoppay/database/url",
	}}
	provider := &fakeProvider{err: fmt.Errorf("throttled")}

	err := resolveSSMParams(provider, env.deps())
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
}

func TestConfigError_Format(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "bad value", Err: inner}

	assert.Equal(t, "[PARSING_FAILED] bad value: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	bare := &ConfigError{Type: ErrValidation, Message: "invalid"}
	assert.Equal(t, "[VALIDATION_FAILED] invalid", bare.Error())
}
