package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretString_StringRedacts(t *testing.T) {
	s := SecretString("sk_live_supersecret")

	assert.Equal(t, "***REDACTED***", s.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", s))
	assert.Equal(t, "***REDACTED***", fmt.Sprint(s))
}

func TestSecretString_MarshalJSONRedacts(t *testing.T) {
	payload := struct {
		Key SecretString `json:"key"`
	}{Key: "sk_live_supersecret"}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"***REDACTED***"}`, string(data))
	assert.NotContains(t, string(data), "supersecret")
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString("sk_test_123")
	assert.Equal(t, "sk_test_123", s.Unmask())
}
