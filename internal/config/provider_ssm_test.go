package config

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSSMClient struct {
	getParametersFn func(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
	calls           int
}

func (m *mockSSMClient) GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.calls++
	return m.getParametersFn(ctx, params, optFns...)
}

func TestSSMProvider_GetParametersBatch_Success(t *testing.T) {
	client := &mockSSMClient{
		getParametersFn: func(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
			require.NotNil(t, params.WithDecryption)
			assert.True(t, *params.WithDecryption)

			out := &ssm.GetParametersOutput{}
			for _, name := range params.Names {
				out.Parameters = append(out.Parameters, ssmtypes.Parameter{
					Name:  aws.String(name),
					Value: aws.String("resolved:" + name),
				})
			}
			return out, nil
		},
	}
	provider := newSSMProviderWithClient("eu-central-1", client)

	got, err := provider.GetParametersBatch(context.Background(), []string{
		"/prod/shoppay/stripe/secret_key",
		"/prod/shoppay/database/url",
	})
	require.NoError(t, err)
	assert.Equal(t, "resolved:/prod/shoppay/stripe/secret_key", got["/prod/shoppay/stripe/secret_key"])
	assert.Equal(t, "resolved:/prod/shoppay/database/url", got["/prod/shoppay/database/url"])
	assert.Equal(t, 1, client.calls)
}

func TestSSMProvider_GetParametersBatch_BatchesOfTen(t *testing.T) {
	client := &mockSSMClient{
		getParametersFn: func(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
			assert.LessOrEqual(t, len(params.Names), 10)
			out := &ssm.GetParametersOutput{}
			for _, name := range params.Names {
				out.Parameters = append(out.Parameters, ssmtypes.Parameter{
					Name:  aws.String(name),
					Value: aws.String("v"),
				})
			}
			return out, nil
		},
	}
	provider := newSSMProviderWithClient("eu-central-1", client)

	keys := make([]string, 23)
	for i := range keys {
		keys[i] = fmt.Sprintf("/prod/shoppay/param/%d", i)
	}

	got, err := provider.GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, got, 23)
	assert.Equal(t, 3, client.calls)
}

func TestSSMProvider_GetParametersBatch_InvalidParameters(t *testing.T) {
	client := &mockSSMClient{
		getParametersFn: func(_ context.Context, _ *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
			return &ssm.GetParametersOutput{
				InvalidParameters: []string{"/prod/shoppay/missing"},
			}, nil
		},
	}
	provider := newSSMProviderWithClient("eu-central-1", client)

	_, err := provider.GetParametersBatch(context.Background(), []string{"/prod/shoppay/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/prod/shoppay/missing")
}

func TestSSMProvider_GetParametersBatch_EmptyKeys(t *testing.T) {
	provider := NewSSMProvider("eu-central-1")
	got, err := provider.GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSSMProvider_GetParametersBatch_ContextCancelled(t *testing.T) {
	client := &mockSSMClient{
		getParametersFn: func(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
			out := &ssm.GetParametersOutput{}
			for _, name := range params.Names {
				out.Parameters = append(out.Parameters, ssmtypes.Parameter{
					Name:  aws.String(name),
					Value: aws.String("v"),
				})
			}
			return out, nil
		},
	}
	provider := newSSMProviderWithClient("eu-central-1", client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.GetParametersBatch(ctx, []string{"/prod/shoppay/a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
