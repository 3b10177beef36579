package fakebamboo

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type column struct {
	Name       string
	SimpleType string
}

type table struct {
	columns []column
	rows    []map[string]any
}

func (t *table) names() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Name
	}
	return out
}

func (t *table) column(name string) (column, bool) {
	for _, c := range t.columns {
		if c.Name == name {
			return c, true
		}
	}
	return column{}, false
}

func parseCSV(data []byte, naValues []string) (*table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv rows: %w", err)
	}

	na := map[string]bool{"": true}
	for _, v := range naValues {
		na[v] = true
	}

	t := &table{columns: make([]column, len(header))}
	for i, h := range header {
		numeric := true
		for _, rec := range records {
			if na[rec[i]] {
				continue
			}
			if _, err := strconv.ParseFloat(rec[i], 64); err != nil {
				numeric = false
				break
			}
		}
		typ := "string"
		if numeric && len(records) > 0 {
			typ = "float"
		}
		t.columns[i] = column{Name: strings.TrimSpace(h), SimpleType: typ}
	}

	for _, rec := range records {
		row := make(map[string]any, len(header))
		for i, c := range t.columns {
			row[c.Name] = cell(rec[i], c.SimpleType, na)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func cell(raw, typ string, na map[string]bool) any {
	if na[raw] {
		return nil
	}
	if typ == "float" {
		f, _ := strconv.ParseFloat(raw, 64)
		return f
	}
	return raw
}

func parseJSONRows(data []byte) (*table, error) {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode json rows: %w", err)
	}
	t := &table{rows: rows}
	seen := map[string]bool{}
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if seen[k] {
				continue
			}
			seen[k] = true
			typ := "string"
			if _, ok := row[k].(float64); ok {
				typ = "float"
			}
			t.columns = append(t.columns, column{Name: k, SimpleType: typ})
		}
	}
	return t, nil
}

func parseSchema(data []byte) (*table, error) {
	var sdf map[string]struct {
		SimpleType string `json:"simpletype"`
	}
	if err := json.Unmarshal(data, &sdf); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	names := make([]string, 0, len(sdf))
	for k := range sdf {
		names = append(names, k)
	}
	sort.Strings(names)

	t := &table{}
	for _, n := range names {
		t.columns = append(t.columns, column{Name: n, SimpleType: sdf[n].SimpleType})
	}
	return t, nil
}

// matches applies an equality-only filter document.
func matches(row map[string]any, where map[string]any) bool {
	for k, want := range where {
		if fmt.Sprint(row[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func project(row map[string]any, sel map[string]any) map[string]any {
	if len(sel) == 0 {
		return row
	}
	out := make(map[string]any, len(sel))
	for k := range sel {
		out[k] = row[k]
	}
	return out
}

func summarize(rows []map[string]any, col column) map[string]any {
	if col.SimpleType == "float" {
		var vals []float64
		for _, r := range rows {
			if f, ok := r[col.Name].(float64); ok {
				vals = append(vals, f)
			}
		}
		s := map[string]any{"count": float64(len(vals))}
		if len(vals) > 0 {
			sort.Float64s(vals)
			sum := 0.0
			for _, v := range vals {
				sum += v
			}
			s["min"] = vals[0]
			s["max"] = vals[len(vals)-1]
			s["mean"] = sum / float64(len(vals))
			s["50%"] = vals[len(vals)/2]
			s["std"] = stddev(vals, sum/float64(len(vals)))
		}
		return map[string]any{"summary": s}
	}

	counts := map[string]any{}
	for _, r := range rows {
		v := r[col.Name]
		if v == nil {
			continue
		}
		key := fmt.Sprint(v)
		n, _ := counts[key].(int)
		counts[key] = n + 1
	}
	return map[string]any{"summary": counts}
}

func stddev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	acc := 0.0
	for _, v := range vals {
		acc += (v - mean) * (v - mean)
	}
	return math.Sqrt(acc / float64(len(vals)-1))
}
