package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) JSONEnvelope {
	t.Helper()
	var env JSONEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	return env
}

func TestWriteJSONSuccess_BasicData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONSuccess(&buf, map[string]string{"key": "value"}))

	env := decodeEnvelope(t, &buf)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)

	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", dataMap["key"])
}

func TestWriteJSONSuccess_NilData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONSuccess(&buf, nil))

	assert.NotContains(t, buf.String(), `"data"`)
	assert.Contains(t, buf.String(), `"success": true`)
}

func TestWriteJSONFromError_GenericError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONFromError(&buf, fmt.Errorf("boom"), nil))

	env := decodeEnvelope(t, &buf)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeUnknown, env.Error.Code)
	assert.Equal(t, "boom", env.Error.Message)
}

func TestWriteJSONFromError_KeepsPartialData(t *testing.T) {
	var buf bytes.Buffer
	err := errors.New(errors.ErrTimeout, "1 view(s) degraded", "Retry")
	require.NoError(t, WriteJSONFromError(&buf, err, []string{"gpus"}))

	env := decodeEnvelope(t, &buf)
	assert.False(t, env.Success)
	assert.Equal(t, []interface{}{"gpus"}, env.Data)
	assert.Equal(t, errors.ErrTimeout, env.Error.Code)
	assert.Equal(t, "Retry", env.Error.Suggestion)
}

func TestErrorToJSON_NilReturnsNil(t *testing.T) {
	assert.Nil(t, ErrorToJSON(nil))
}

func TestErrorToJSON_StructuredCodes(t *testing.T) {
	for _, code := range []string{
		errors.ErrConfig, errors.ErrTimeout, errors.ErrCanceled,
		errors.ErrSource, errors.ErrIdentity, errors.ErrStream, errors.ErrStore,
	} {
		t.Run(code, func(t *testing.T) {
			got := ErrorToJSON(errors.New(code, "msg", "try again"))
			assert.Equal(t, code, got.Code)
			assert.Equal(t, "msg", got.Message)
			assert.Equal(t, "try again", got.Suggestion)
			assert.Nil(t, got.Details)
		})
	}
}

func TestErrorToJSON_WrappedStructuredError(t *testing.T) {
	inner := errors.WrapWithCode(fmt.Errorf("dial tcp: refused"), errors.ErrSource, "prometheus unreachable", "")
	got := ErrorToJSON(fmt.Errorf("refresh: %w", inner))

	assert.Equal(t, errors.ErrSource, got.Code)
	assert.Equal(t, "prometheus unreachable", got.Message)
	assert.Equal(t, map[string]interface{}{"cause": "dial tcp: refused"}, got.Details)
}
