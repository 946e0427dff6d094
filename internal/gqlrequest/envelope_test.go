package gqlrequest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope_GET(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, `/graphql?query=%7B%20languages%20%7B%20name%20%7D%20%7D&operationName=Langs&variables=%7B%22n%22%3A2%7D`, nil)
	env, err := DecodeEnvelope(req)
	require.NoError(t, err)
	assert.Equal(t, "{ languages { name } }", env.Query)
	assert.Equal(t, "Langs", env.OperationName)
	assert.Equal(t, len(env.Query), env.DocumentSizeBytes)

	vars, err := env.Variables()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(2)}, vars)
}

func TestDecodeEnvelope_PostApplicationGraphQL_RewindsBody(t *testing.T) {
	body := "{ languages { name } }"
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/graphql; charset=utf-8")

	env, err := DecodeEnvelope(req)
	require.NoError(t, err)
	assert.Equal(t, body, env.Query)

	rewound, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rewound))
}

func TestDecodeEnvelope_PostJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql",
		strings.NewReader(`{"query":"query Names($l: String!) { playersNamesByLanguage(language: $l) }","operationName":"Names","variables":{"l":"English"}}`))
	req.Header.Set("Content-Type", "application/json")

	env, err := DecodeEnvelope(req)
	require.NoError(t, err)
	assert.Equal(t, "Names", env.OperationName)

	vars, err := env.Variables()
	require.NoError(t, err)
	assert.Equal(t, "English", vars["l"])
}

func TestDecodeEnvelope_NullVariables(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ teams { name } }","variables":null}`))
	env, err := DecodeEnvelope(req)
	require.NoError(t, err)
	assert.Empty(t, env.VariablesRaw)

	vars, err := env.Variables()
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestDecodeEnvelope_PostMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":`))
	req.Header.Set("Content-Type", "application/json")

	_, err := DecodeEnvelope(req)
	assert.Error(t, err)
}

func TestDecodeEnvelope_IgnoresBodyOfOtherMethods(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/graphql", strings.NewReader(`{"query":"{ teams { name } }"}`))
	env, err := DecodeEnvelope(req)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, env.Method)
	assert.Empty(t, env.Query)
	assert.Zero(t, env.DocumentSizeBytes)
}

func TestDecodeEnvelope_GETNullVariables(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/graphql?query=%7B%20teams%20%7B%20name%20%7D%20%7D&variables=null", nil)
	env, err := DecodeEnvelope(req)
	require.NoError(t, err)
	assert.Empty(t, env.VariablesRaw)
}
