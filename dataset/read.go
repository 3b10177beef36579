package dataset

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aponysus/bamboo/apierr"
	"github.com/aponysus/bamboo/connection"
	"github.com/aponysus/bamboo/params"
)

// Column describes one column of the dataset schema.
type Column struct {
	Label       string `json:"label"`
	OLAPType    string `json:"olap_type"`
	SimpleType  string `json:"simpletype"`
	Cardinality int    `json:"cardinality,omitempty"`
}

// Info is the general information the service keeps about a dataset.
type Info struct {
	ID          string            `json:"id"`
	NumRows     int               `json:"num_rows"`
	NumColumns  int               `json:"num_columns"`
	Schema      map[string]Column `json:"schema"`
	State       string            `json:"state,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
	Attribution string            `json:"attribution,omitempty"`
	Description string            `json:"description,omitempty"`
	Label       string            `json:"label,omitempty"`
	License     string            `json:"license,omitempty"`
}

// Created parses CreatedAt. The zero time is returned when it is absent or
// not RFC 3339.
func (i Info) Created() time.Time {
	t, err := time.Parse(time.RFC3339, i.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Info fetches the dataset information.
func (d *Dataset) Info(ctx context.Context) (Info, error) {
	return guard(d, "info", func(id string) (Info, error) {
		body, err := d.conn.Dispatch(ctx, connection.Request{
			Method: connection.MethodGet,
			Path:   datasetPath(id, "info"),
		})
		if err != nil {
			return Info{}, err
		}
		var info Info
		if err := body.Decode(&info); err != nil {
			return Info{}, err
		}
		return info, nil
	})
}

// SetInfo stores the non-empty fields of meta.
func (d *Dataset) SetInfo(ctx context.Context, meta params.Metadata) (bool, error) {
	return guard(d, "set_info", func(id string) (bool, error) {
		form := params.EncodeInfo(meta)
		if len(form) == 0 {
			return false, apierr.Validation("set_info", "metadata", "at least one field must be set")
		}
		return d.acknowledged(ctx, KeySetInfo, connection.Request{
			Method: connection.MethodPut,
			Path:   datasetPath(id, "info"),
			Form:   form,
		}, hasNoError)
	})
}

// Columns returns the sorted column names of the schema.
func (d *Dataset) Columns(ctx context.Context) ([]string, error) {
	info, err := d.Info(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(info.Schema))
	for name := range info.Schema {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols, nil
}

// Summary fetches per-column statistics, optionally grouped.
func (d *Dataset) Summary(ctx context.Context, q params.Query) (connection.Body, error) {
	return guard(d, "summary", func(id string) (connection.Body, error) {
		p, err := params.EncodeSummary(q)
		if err != nil {
			return connection.Body{}, err
		}
		return d.conn.Dispatch(ctx, connection.Request{
			Method: connection.MethodGet,
			Path:   datasetPath(id, "summary"),
			Params: p,
		})
	})
}

// Query fetches rows and returns the raw response, which is a count or a
// list of distinct values when q asks for one.
func (d *Dataset) Query(ctx context.Context, q params.Query) (connection.Body, error) {
	return guard(d, "data", func(id string) (connection.Body, error) {
		p, err := params.EncodeData(q)
		if err != nil {
			return connection.Body{}, err
		}
		return d.conn.Dispatch(ctx, connection.Request{
			Method: connection.MethodGet,
			Path:   datasetPath(id),
			Params: p,
		})
	})
}

// Data fetches rows as column-to-value maps.
func (d *Dataset) Data(ctx context.Context, q params.Query) ([]map[string]any, error) {
	if !d.Valid() {
		return nil, apierr.InvalidState("data")
	}
	if q.Count || q.Distinct != "" {
		return nil, apierr.Validation("data", "count", "count and distinct responses are not rows; use Query")
	}
	body, err := d.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := body.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateData appends rows given as column-to-value maps. Columns a row does
// not mention become missing values.
func (d *Dataset) UpdateData(ctx context.Context, rows []map[string]any) (bool, error) {
	return guard(d, "update_data", func(id string) (bool, error) {
		if len(rows) == 0 {
			return false, apierr.Validation("update_data", "rows", "must contain at least one row")
		}
		for i, r := range rows {
			if r == nil {
				return false, apierr.Validation("update_data", "rows", "row %d is nil", i)
			}
		}
		update, err := params.MarshalJSON("update_data", "rows", rows)
		if err != nil {
			return false, err
		}
		return d.acknowledged(ctx, KeyUpdateData, connection.Request{
			Method: connection.MethodPut,
			Path:   datasetPath(id),
			Form:   map[string][]string{"update": {update}},
		}, hasID)
	})
}

// Resample returns the rows resampled over a date column.
func (d *Dataset) Resample(ctx context.Context, r params.Resample) (connection.Body, error) {
	return guard(d, "resample", func(id string) (connection.Body, error) {
		p, err := params.EncodeResample(r)
		if err != nil {
			return connection.Body{}, err
		}
		return d.conn.Dispatch(ctx, connection.Request{
			Method: connection.MethodGet,
			Path:   datasetPath(id, "resample"),
			Params: p,
		})
	})
}

// Rolling returns rolling window statistics.
func (d *Dataset) Rolling(ctx context.Context, r params.Rolling) (connection.Body, error) {
	return guard(d, "rolling", func(id string) (connection.Body, error) {
		p, err := params.EncodeRolling(r)
		if err != nil {
			return connection.Body{}, err
		}
		return d.conn.Dispatch(ctx, connection.Request{
			Method: connection.MethodGet,
			Path:   datasetPath(id, "rolling"),
			Params: p,
		})
	})
}

// Count returns a statistic of field from the summary. For a measure column
// method is one of "count" (the default), "mean", "min", "max", "std" or a
// percentile such as "50%". For a dimension column, or a method the summary
// lacks, the per-value counts are summed.
func (d *Dataset) Count(ctx context.Context, field, method string) (float64, error) {
	if method == "" {
		method = "count"
	}
	body, err := d.Summary(ctx, params.Query{})
	if err != nil {
		return 0, err
	}

	summary := body.Get(gjson.Escape(field) + ".summary")
	if !summary.IsObject() {
		return 0, &apierr.Error{Kind: apierr.KindParsing, Op: "count", Field: field, Message: "summary not available"}
	}
	if v := summary.Get(gjson.Escape(method)); v.Exists() {
		return v.Float(), nil
	}

	total := 0.0
	summary.ForEach(func(_, v gjson.Result) bool {
		total += float64(v.Int())
		return true
	})
	return total, nil
}

func (d *Dataset) row(ctx context.Context, op, method string, index int, form map[string][]string) (connection.Body, error) {
	return guard(d, op, func(id string) (connection.Body, error) {
		if index < 0 {
			return connection.Body{}, apierr.Validation(op, "index", "must not be negative, got %d", index)
		}
		return d.conn.Dispatch(ctx, connection.Request{
			Method: method,
			Path:   datasetPath(id, "row", strconv.Itoa(index)),
			Form:   form,
		})
	})
}

// Row returns the row at index.
func (d *Dataset) Row(ctx context.Context, index int) (map[string]any, error) {
	body, err := d.row(ctx, "row", connection.MethodGet, index, nil)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := body.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

// UpdateRow replaces the given cells of the row at index.
func (d *Dataset) UpdateRow(ctx context.Context, index int, data map[string]any) (connection.Body, error) {
	if !d.Valid() {
		return connection.Body{}, apierr.InvalidState("update_row")
	}
	payload, err := params.MarshalJSON("update_row", "data", data)
	if err != nil {
		return connection.Body{}, err
	}
	return d.row(ctx, "update_row", connection.MethodPut, index, map[string][]string{"data": {payload}})
}

// DeleteRow removes the row at index.
func (d *Dataset) DeleteRow(ctx context.Context, index int) (connection.Body, error) {
	return d.row(ctx, "delete_row", connection.MethodDelete, index, nil)
}
