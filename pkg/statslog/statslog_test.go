package statslog

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatJSON)
	w.Start()

	w.Send(metrics.RawRequest{UserID: "u1", Name: "GET /", Success: true, StatusCode: 200, Timestamp: time.Now()})
	require.NoError(t, w.Close())

	assert.Contains(t, buf.String(), `"name":"GET /"`)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestWriterCSVHeaderExact(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatCSV)
	w.Start()
	w.Send(metrics.RawRequest{UserID: "u1", Name: "GET /", Success: true, StatusCode: 200, Timestamp: time.Now()})
	require.NoError(t, w.Close())

	r := csv.NewReader(strings.NewReader(buf.String()))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"elapsed", "method", "name", "url", "final_url", "redirected", "response_time", "status_code", "success", "update", "user"}, csvHeader)
	assert.Equal(t, "u1", records[1][len(csvHeader)-1])
}

func TestWriterRawFormatYAMLDocuments(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, FormatRaw)
	w.Start()
	w.Send(metrics.RawRequest{UserID: "u1", Name: "GET /", Timestamp: time.Now()})
	w.Send(metrics.RawRequest{UserID: "u2", Name: "GET /other", Timestamp: time.Now()})
	require.NoError(t, w.Close())

	docs := strings.Count(buf.String(), "---\n")
	assert.Equal(t, 2, docs)
}

func TestParseFormat(t *testing.T) {
	for _, f := range []string{"json", "csv", "raw"} {
		got, err := ParseFormat(f)
		require.NoError(t, err)
		assert.Equal(t, Format(f), got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}
