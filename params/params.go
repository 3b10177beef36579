// Package params turns caller arguments into bamboo request parameters.
//
// All checks run client-side; a malformed argument is reported as an
// apierr validation error naming the field and never reaches the network.
// Zero values are omitted from the encoded output.
package params

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/aponysus/bamboo/apierr"
)

// SelectAll is the summary projection sent when no columns are selected.
const SelectAll = "all"

// Data formats accepted by the service for uploads and downloads.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Query holds the optional arguments shared by data and summary reads.
type Query struct {
	// Select lists the projected columns. Empty means every column.
	Select []string
	// Where is a MongoDB-style filter document sent as JSON.
	Where    map[string]any
	Groups   []string
	OrderBy  string
	Limit    int
	Distinct string
	Format   string
	Callback string
	Count    bool
	Index    bool
}

// Resample holds the arguments of a time-series resample.
type Resample struct {
	DateColumn string
	// Interval is a pandas frequency code such as "D", "W" or "M".
	Interval string
	How      string
	Where    map[string]any
	Format   string
}

// Rolling holds the arguments of a rolling window computation.
type Rolling struct {
	WinType string
	Window  int
	Format  string
}

// Metadata is the descriptive information stored with a dataset.
type Metadata struct {
	Attribution string `json:"attribution,omitempty" yaml:"attribution,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	License     string `json:"license,omitempty" yaml:"license,omitempty"`
}

// EncodeSummary encodes q for GET /datasets/{id}/summary.
// An empty Select is sent as "all".
func EncodeSummary(q Query) (url.Values, error) {
	const op = "summary"
	v := url.Values{}

	if len(q.Select) == 0 {
		v.Set("select", SelectAll)
	} else if err := setProjection(v, op, q.Select); err != nil {
		return nil, err
	}
	if err := setGroups(v, op, q.Groups); err != nil {
		return nil, err
	}
	if err := setJSON(v, op, "query", q.Where); err != nil {
		return nil, err
	}
	setString(v, "order_by", q.OrderBy)
	if err := setLimit(v, op, q.Limit); err != nil {
		return nil, err
	}
	setString(v, "callback", q.Callback)
	return v, nil
}

// EncodeData encodes q for GET /datasets/{id}.
func EncodeData(q Query) (url.Values, error) {
	const op = "data"
	v := url.Values{}

	if len(q.Select) > 0 {
		if err := setProjection(v, op, q.Select); err != nil {
			return nil, err
		}
	}
	if len(q.Groups) > 0 {
		return nil, apierr.Validation(op, "group", "not supported for row data")
	}
	if err := setJSON(v, op, "query", q.Where); err != nil {
		return nil, err
	}
	setString(v, "order_by", q.OrderBy)
	if err := setLimit(v, op, q.Limit); err != nil {
		return nil, err
	}
	setString(v, "distinct", q.Distinct)
	if err := setFormat(v, op, q.Format); err != nil {
		return nil, err
	}
	setString(v, "callback", q.Callback)
	setBool(v, "count", q.Count)
	setBool(v, "index", q.Index)
	return v, nil
}

// EncodeResample encodes r for GET /datasets/{id}/resample.
// DateColumn and Interval are required.
func EncodeResample(r Resample) (url.Values, error) {
	const op = "resample"
	v := url.Values{}

	if strings.TrimSpace(r.DateColumn) == "" {
		return nil, apierr.Validation(op, "date_column", "must be a non-empty string")
	}
	if strings.TrimSpace(r.Interval) == "" {
		return nil, apierr.Validation(op, "interval", "must be a pandas frequency code (e.g. D, W, M)")
	}
	v.Set("date_column", r.DateColumn)
	v.Set("interval", r.Interval)
	setString(v, "how", r.How)
	if err := setJSON(v, op, "query", r.Where); err != nil {
		return nil, err
	}
	if err := setFormat(v, op, r.Format); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeRolling encodes r for GET /datasets/{id}/rolling.
func EncodeRolling(r Rolling) (url.Values, error) {
	const op = "rolling"
	if r.Window <= 0 {
		return nil, apierr.Validation(op, "window", "must be a positive integer, got %d", r.Window)
	}

	v := url.Values{}
	setString(v, "win_type", r.WinType)
	v.Set("window", strconv.Itoa(r.Window))
	if err := setFormat(v, op, r.Format); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeInfo encodes m as the form of PUT /datasets/{id}/info.
func EncodeInfo(m Metadata) url.Values {
	v := url.Values{}
	setString(v, "attribution", m.Attribution)
	setString(v, "description", m.Description)
	setString(v, "label", m.Label)
	setString(v, "license", m.License)
	return v
}

// JoinGroups validates groups and joins them with commas.
func JoinGroups(op string, groups []string) (string, error) {
	for i, g := range groups {
		if strings.TrimSpace(g) == "" {
			return "", apierr.Validation(op, "group", "entry %d is blank", i)
		}
	}
	return strings.Join(groups, ","), nil
}

// MarshalJSON encodes value for a form or query field, reporting a value
// that cannot be serialized as a validation error on field.
func MarshalJSON(op, field string, value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", apierr.Validation(op, field, "not JSON-serializable: %v", err)
	}
	return string(b), nil
}

// ValidFormat reports whether f is a data format the service understands.
func ValidFormat(f string) bool {
	return f == FormatCSV || f == FormatJSON
}

func projection(op string, cols []string) (string, error) {
	sel := make(map[string]int, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c) == "" {
			return "", apierr.Validation(op, "select", "column %d is blank", i)
		}
		sel[c] = 1
	}
	return MarshalJSON(op, "select", sel)
}
