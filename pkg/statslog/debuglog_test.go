package statslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugWriterJSONUsesDebugSchema(t *testing.T) {
	var buf bytes.Buffer
	w := NewDebug(&buf, FormatJSON)
	w.Start()

	w.SendDebug(metrics.DebugRecord{Tag: "login", Body: "hello"})
	require.NoError(t, w.Close())

	out := buf.String()
	assert.Contains(t, out, `"tag":"login"`)
	assert.Contains(t, out, `"body":"hello"`)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestDebugWriterRawFormatYAMLDocuments(t *testing.T) {
	var buf bytes.Buffer
	w := NewDebug(&buf, FormatRaw)
	w.Start()

	w.SendDebug(metrics.DebugRecord{Tag: "a"})
	w.SendDebug(metrics.DebugRecord{Tag: "b"})
	require.NoError(t, w.Close())

	assert.Equal(t, 2, strings.Count(buf.String(), "---\n"))
}

func TestDebugWriterImplementsUserDebugSink(t *testing.T) {
	var buf bytes.Buffer
	w := NewDebug(&buf, FormatJSON)
	w.Start()
	defer w.Close()

	var sink interface {
		SendDebug(metrics.DebugRecord)
	} = w
	sink.SendDebug(metrics.DebugRecord{Tag: "x"})
}
