package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atu-ide/bizbridge/internal/menu"
	"github.com/atu-ide/bizbridge/internal/models"
)

var head = models.RequestHead{RequestID: "get_config", ServiceName: "project"}

func TestPrintResponseTable(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.RawResponse{Error: models.Success(), Data: json.RawMessage(`{ "a": 1 }`)}

	require.NoError(t, PrintResponseTable(&buf, head, resp))

	out := buf.String()
	assert.Contains(t, out, "get_config")
	assert.Contains(t, out, "project")
	assert.Contains(t, out, "NORMAL_ERROR")
	assert.Contains(t, out, `{"a":1}`)
}

func TestPrintObjectTable(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.RawResponse{
		Error: &models.ResponseError{ErrorID: 3, ErrorLevel: models.SeriousError, ErrorDesc: models.ErrorDesc{DescKey: true, Desc: "cfg.broken"}},
		Data:  json.RawMessage(`{"zeta": true, "alpha": [1, 2]}`),
	}

	require.NoError(t, PrintObjectTable(&buf, head, resp))

	out := buf.String()
	assert.Contains(t, out, "data.alpha")
	assert.Contains(t, out, "[1,2]")
	assert.Contains(t, out, "cfg.broken (key)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("data.alpha")), bytes.Index(buf.Bytes(), []byte("data.zeta")))
}

func TestPrintObjectTableFallsBackForScalars(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.RawResponse{Data: json.RawMessage(`42`)}

	require.NoError(t, PrintObjectTable(&buf, head, resp))
	assert.Contains(t, buf.String(), "42")
}

func TestPrintResponseJSON(t *testing.T) {
	var buf bytes.Buffer
	resp := &models.RawResponse{Error: models.Success(), Data: json.RawMessage(`"x"`)}

	require.NoError(t, PrintResponseJSON(&buf, head, resp))
	assert.JSONEq(t, `{"error":{"error_id":0,"error_level":1,"error_desc":{"desc_key":false,"desc":"","params":[]}},"data":"x"}`, buf.String())
}

func TestPrintEventLine(t *testing.T) {
	color.NoColor = true
	t.Setenv("LANG", "C")
	t.Setenv("LC_ALL", "")

	var buf bytes.Buffer
	PrintEventLine(&buf, "build--compiler", &models.RawResponse{Error: models.Success(), Data: json.RawMessage(`1`)})
	PrintEventLine(&buf, "build--compiler", &models.RawResponse{Error: models.LocalError(9, "boom")})

	assert.Equal(t, "ok build--compiler 1\nx build--compiler null (error 9: boom)\n", buf.String())
}

func TestMenuTable(t *testing.T) {
	disabled := false
	items := []menu.Item{
		{ID: "file", Label: "File", Location: []string{"1_file"}, Children: []menu.Item{
			{ID: "core.save", Label: "Save", Location: []string{"1_file"}, Keybinding: "ctrl+s"},
			{ID: "core.close", Label: "Close", Location: []string{"1_file"}, Enabled: &disabled},
		}},
		{ID: "compile", Label: "Compile", Location: []string{"5_compile"},
			Request: &models.RequestHead{RequestID: "compile_all", ServiceName: "compiler"}},
	}

	tbl := NewMenuTable()
	menu.Contribute(tbl, items)

	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "menubar/1_file")
	assert.Contains(t, out, "core.save [ctrl+s]")
	assert.Contains(t, out, "core.close (disabled)")
	assert.Contains(t, out, "compile_all--compiler")
}

func TestPrintListenersTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintListenersTable(&buf, map[string]int{"b--s": 2, "a--s": 1}))

	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("a--s")), bytes.Index(buf.Bytes(), []byte("b--s")))
	assert.Contains(t, out, "2")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "项目项目项目项...", truncate("项目项目项目项目项目项目", 10))
}
