package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugRecordMarshalsHeaderAsEncodedString(t *testing.T) {
	rec := DebugRecord{
		Tag:     "login",
		Headers: map[string]string{"x-trace": "abc"},
		Body:    "payload",
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, `"login"`, string(raw["tag"]))
	assert.Equal(t, `"payload"`, string(raw["body"]))

	var headerStr string
	require.NoError(t, json.Unmarshal(raw["header"], &headerStr))
	var headers map[string]string
	require.NoError(t, json.Unmarshal([]byte(headerStr), &headers))
	assert.Equal(t, "abc", headers["x-trace"])

	_, hasRequest := raw["request"]
	assert.False(t, hasRequest)
}

func TestDebugRecordOmitsHeaderWhenEmpty(t *testing.T) {
	rec := DebugRecord{Tag: "ping"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"header"`)
}

func TestDebugRecordRoundTripsThroughJSON(t *testing.T) {
	req := &RawRequest{Name: "GET /", Success: true, StatusCode: 200}
	rec := DebugRecord{Tag: "checkout", Request: req, Headers: map[string]string{"a": "b"}, Body: "x"}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var got DebugRecord
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, rec.Tag, got.Tag)
	assert.Equal(t, rec.Body, got.Body)
	assert.Equal(t, rec.Headers, got.Headers)
	require.NotNil(t, got.Request)
	assert.Equal(t, req.Name, got.Request.Name)
}
