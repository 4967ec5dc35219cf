package util

import (
	"fmt"
	"io"
	"strings"
)

// TableColumn represents a column in a table
type TableColumn struct {
	Header string
	Key    string // key to extract from row map
	width  int
}

// RenderTable writes rows as left-aligned columns sized to their widest cell.
func RenderTable(w io.Writer, columns []TableColumn, rows []map[string]any) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No data to display")
		return
	}

	for i := range columns {
		columns[i].width = displayWidth(columns[i].Header)
		for _, row := range rows {
			if n := displayWidth(cell(row, columns[i].Key)); n > columns[i].width {
				columns[i].width = n
			}
		}
	}

	var header, separator []string
	for _, col := range columns {
		header = append(header, pad(col.Header, col.width))
		separator = append(separator, strings.Repeat("-", col.width))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(header, " "), " "))
	fmt.Fprintln(w, strings.Join(separator, " "))

	for _, row := range rows {
		var parts []string
		for _, col := range columns {
			parts = append(parts, pad(cell(row, col.Key), col.width))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, " "), " "))
	}
}

func cell(row map[string]any, key string) string {
	if v, ok := row[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// stripANSI removes color escape sequences so widths count visible runes only
func stripANSI(s string) string {
	for {
		start := strings.Index(s, "\033[")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "m")
		if end == -1 {
			return s
		}
		s = s[:start] + s[start+end+1:]
	}
}

func displayWidth(s string) int {
	return len([]rune(stripANSI(s)))
}

func pad(s string, width int) string {
	if n := displayWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
