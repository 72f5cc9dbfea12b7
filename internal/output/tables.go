package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/atu-ide/bizbridge/internal/menu"
	"github.com/atu-ide/bizbridge/internal/models"
)

// Renderer prints a response for one service
type Renderer func(w io.Writer, head models.RequestHead, resp *models.RawResponse) error

// PrintResponseTable prints the envelope fields with the data as compact JSON
func PrintResponseTable(w io.Writer, head models.RequestHead, resp *models.RawResponse) error {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")

	for _, row := range envelopeRows(head, resp) {
		table.Append(row[0], row[1])
	}
	table.Append("data", truncate(compactJSON(resp.Data), dataWidth()))

	return table.Render()
}

// PrintObjectTable prints one row per top-level data field; non-object data
// falls back to PrintResponseTable
func PrintObjectTable(w io.Writer, head models.RequestHead, resp *models.RawResponse) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &fields); err != nil || fields == nil {
		return PrintResponseTable(w, head, resp)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")

	for _, row := range envelopeRows(head, resp) {
		table.Append(row[0], row[1])
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		table.Append("data."+k, truncate(compactJSON(fields[k]), dataWidth()))
	}

	return table.Render()
}

// PrintResponseJSON writes the response envelope as indented JSON
func PrintResponseJSON(w io.Writer, _ models.RequestHead, resp *models.RawResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// PrintEventLine writes one line per received event
func PrintEventLine(w io.Writer, key string, resp *models.RawResponse) {
	ok := models.IsSuccess(resp)
	status := color.GreenString(statusGlyph(true))
	if !ok {
		status = color.RedString(statusGlyph(false))
	}

	line := fmt.Sprintf("%s %s %s", status, key, compactJSON(resp.Data))
	if !ok && resp.Error != nil {
		line += fmt.Sprintf(" (error %d: %s)", resp.Error.ErrorID, resp.Error.ErrorDesc.Desc)
	}
	fmt.Fprintln(w, truncate(line, TerminalWidth()))
}

// PrintListenersTable prints listener counts per event key
func PrintListenersTable(w io.Writer, counts map[string]int) error {
	table := tablewriter.NewWriter(w)
	table.Header("Event", "Listeners")

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		table.Append(k, fmt.Sprintf("%d", counts[k]))
	}

	return table.Render()
}

// MenuTable collects menu contributions and prints them as a table
type MenuTable struct {
	rows     [][]string
	commands map[string]menu.Command
	keys     map[string]string
}

func NewMenuTable() *MenuTable {
	return &MenuTable{
		commands: make(map[string]menu.Command),
		keys:     make(map[string]string),
	}
}

func (m *MenuTable) RegisterSubmenu(path []string, label, order string) {
	m.rows = append(m.rows, []string{"submenu", strings.Join(path, "/"), label, order, "", ""})
}

func (m *MenuTable) RegisterCommand(cmd menu.Command) {
	m.commands[cmd.ID] = cmd
}

func (m *MenuTable) RegisterMenuAction(path []string, a menu.Action) {
	m.rows = append(m.rows, []string{"action", strings.Join(path, "/"), a.Label, a.Order, a.CommandID, ""})
}

func (m *MenuTable) RegisterKeybinding(kb menu.Keybinding) {
	m.keys[kb.CommandID] = kb.Keybinding
}

// Render writes the collected rows; actions show their request and keybinding
func (m *MenuTable) Render(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Path", "Label", "Order", "Command", "Request")

	for _, row := range m.rows {
		if row[0] == "action" {
			id := row[4]
			cmd := m.commands[id]
			if kb := m.keys[id]; kb != "" {
				row[4] = fmt.Sprintf("%s [%s]", id, kb)
			}
			if !cmd.Enabled {
				row[4] += " (disabled)"
			}
			if cmd.Request != nil {
				row[5] = cmd.Request.EventKey()
			}
		}
		table.Append(row[0], row[1], row[2], row[3], row[4], row[5])
	}

	return table.Render()
}

// Helper functions

func envelopeRows(head models.RequestHead, resp *models.RawResponse) [][2]string {
	rows := [][2]string{
		{"request_id", head.RequestID},
		{"service_name", head.ServiceName},
	}
	if resp.Error == nil {
		return append(rows, [2]string{"error", "-"})
	}

	desc := resp.Error.ErrorDesc.Desc
	if resp.Error.ErrorDesc.DescKey {
		desc += " (key)"
	}
	return append(rows,
		[2]string{"error_id", fmt.Sprintf("%d", resp.Error.ErrorID)},
		[2]string{"error_level", resp.Error.ErrorLevel.String()},
		[2]string{"error_desc", desc},
	)
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func dataWidth() int {
	// leave room for the field column and borders
	if w := TerminalWidth() - 24; w > 20 {
		return w
	}
	return 20
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
