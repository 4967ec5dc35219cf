package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, []TableColumn{
		{Header: "KEY", Key: "key"},
		{Header: "VALUE", Key: "value"},
	}, []map[string]any{
		{"key": "capture.default_fps", "value": 30},
		{"key": "session.apptype", "value": color.New(color.FgCyan).Sprint("viewer")},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "KEY"+strings.Repeat(" ", 17)+"VALUE", lines[0])
	assert.Equal(t, strings.Repeat("-", 19)+" "+strings.Repeat("-", 6), lines[1])
	assert.Equal(t, "capture.default_fps 30", lines[2])
	assert.Equal(t, "session.apptype"+strings.Repeat(" ", 5)+"viewer", stripANSI(lines[3]))
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, []TableColumn{{Header: "KEY", Key: "key"}}, nil)
	assert.Equal(t, "No data to display\n", buf.String())
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "ok", stripANSI("\033[32mok\033[0m"))
	assert.Equal(t, "plain", stripANSI("plain"))
	assert.Equal(t, 2, displayWidth("\033[1mhé\033[0m"))
}

func TestJSONLoggerAndScopes(t *testing.T) {
	var buf bytes.Buffer
	setLogger(&buf, true, false)
	t.Cleanup(func() { logger = nil })

	l := LoggerFactory{}.NewLogger("sctp")
	l.Debugf("association %d up", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "association 7 up", rec["msg"])
	assert.Equal(t, "sctp", rec["scope"])
}

func TestInfoLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	setLogger(&buf, false, true)
	t.Cleanup(func() { logger = nil })

	GetCompatLogger("test").Debug("hidden")
	GetCompatLogger("test").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}
