package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const updateMarker = "# Added by config update"

// tableEntry is one option placed in a TOML table. Map-valued options own a
// whole table and have an empty key.
type tableEntry struct {
	key string
	opt ConfigOption
}

// layout groups options by TOML table in declaration order. The root table
// ("") always comes first.
func layout(opts []ConfigOption) ([]string, map[string][]tableEntry) {
	order := []string{""}
	tables := map[string][]tableEntry{"": nil}
	for _, o := range opts {
		table, key := "", o.Key
		switch {
		case isMapOption(o):
			table, key = o.Key, ""
		case strings.Contains(o.Key, "."):
			table, key, _ = strings.Cut(o.Key, ".")
		}
		if _, ok := tables[table]; !ok {
			order = append(order, table)
		}
		tables[table] = append(tables[table], tableEntry{key: key, opt: o})
	}
	return order, tables
}

func isMapOption(o ConfigOption) bool {
	_, ok := o.Default.(map[string]any)
	return ok
}

// RenderDefaultTOML renders a TOML config with defaults from GetConfigOptions.
func RenderDefaultTOML() string {
	lines := []string{"# pushline configuration (TOML)", ""}
	order, tables := layout(GetConfigOptions())
	for _, table := range order {
		if table != "" {
			lines = append(lines, "["+table+"]")
		}
		for _, e := range tables[table] {
			lines = appendOption(lines, e)
		}
	}
	return strings.Join(lines, "\n")
}

// appendOption renders e as a comment, its assignment(s) and a blank line.
// An empty map table gets a commented example instead of assignments.
func appendOption(lines []string, e tableEntry) []string {
	if e.opt.Comment != "" {
		lines = append(lines, "# "+e.opt.Comment)
	}
	if m, ok := e.opt.Default.(map[string]any); ok {
		if len(m) == 0 {
			lines = append(lines, `# X-Example = "value"`)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, k+" = "+tomlValue(m[k]))
		}
		return append(lines, "")
	}
	return append(lines, e.key+" = "+tomlValue(e.opt.Default), "")
}

func tomlValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case time.Duration:
		return strconv.Quote(formatDuration(v))
	default:
		return fmt.Sprint(v)
	}
}

// UpdateTOML adds missing options to an existing TOML document and comments
// out keys that are no longer known. Missing keys land inside the table they
// belong to, so no table is declared twice.
func UpdateTOML(existing string) (string, bool) {
	opts := GetConfigOptions()
	known := make(map[string]bool, len(opts))
	mapTables := make(map[string]bool)
	for _, o := range opts {
		if isMapOption(o) {
			mapTables[o.Key] = true
			continue
		}
		known[o.Key] = true
	}

	// full keys and map tables already set
	present := make(map[string]bool)
	// index after the last non-blank line of each table
	tableEnd := make(map[string]int)
	firstTable := -1
	table := ""
	changed := false
	var out []string

	for _, line := range strings.Split(existing, "\n") {
		trim := strings.TrimSpace(line)
		switch {
		case trim == "" || strings.HasPrefix(trim, "#"):
			out = append(out, line)
			continue
		case strings.HasPrefix(trim, "[") && strings.HasSuffix(trim, "]"):
			table = strings.TrimSpace(trim[1 : len(trim)-1])
			if firstTable < 0 {
				firstTable = len(out)
			}
			if mapTables[table] {
				present[table] = true
			}
			out = append(out, line)
			tableEnd[table] = len(out)
			continue
		}

		key, ok := parseTOMLKey(line)
		if !ok {
			out = append(out, line)
			tableEnd[table] = len(out)
			continue
		}
		full := key
		if table != "" {
			full = table + "." + key
		}
		root, _, _ := strings.Cut(full, ".")
		switch {
		case known[full]:
			present[full] = true
		case mapTables[root]:
			present[root] = true
		default:
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			out = append(out, indent+"# OUTDATED: option removed from config schema", indent+"# "+strings.TrimLeft(line, " \t"))
			changed = true
			tableEnd[table] = len(out)
			continue
		}
		out = append(out, line)
		tableEnd[table] = len(out)
	}

	inserts := make(map[int][]string)
	var appended []string
	order, tables := layout(opts)
	for _, name := range order {
		var missing []string
		for _, e := range tables[name] {
			if present[e.opt.Key] {
				continue
			}
			missing = appendOption(missing, e)
		}
		if len(missing) == 0 {
			continue
		}
		changed = true
		block := append([]string{updateMarker}, missing...)
		switch end, ok := tableEnd[name]; {
		case name == "":
			at := len(out)
			if firstTable >= 0 {
				at = firstTable
			}
			inserts[at] = append(inserts[at], block...)
		case ok:
			inserts[end] = append(inserts[end], block...)
		default:
			appended = append(appended, "["+name+"]")
			appended = append(appended, block...)
		}
	}
	if !changed {
		return existing, false
	}

	result := make([]string, 0, len(out)+len(appended)+16)
	for i := 0; i <= len(out); i++ {
		result = append(result, inserts[i]...)
		if i < len(out) {
			result = append(result, out[i])
		}
	}
	if len(appended) > 0 {
		result = append(result, "")
		result = append(result, appended...)
	}
	return strings.Join(result, "\n"), true
}

func parseTOMLKey(line string) (string, bool) {
	idx := strings.Index(line, "=")
	if idx == -1 {
		return "", false
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" || strings.HasPrefix(key, "[") || strings.HasPrefix(key, "\"") || strings.HasPrefix(key, "'") {
		return "", false
	}
	return key, true
}

// formatDuration drops the zero tails time.Duration.String leaves ("2m0s" => "2m").
func formatDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
