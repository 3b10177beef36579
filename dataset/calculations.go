package dataset

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/aponysus/bamboo/apierr"
	"github.com/aponysus/bamboo/connection"
	"github.com/aponysus/bamboo/formula"
	"github.com/aponysus/bamboo/params"
)

// AddCalculation adds a per-row calculation written as "name = expression".
// An aggregation expression is rejected before anything is sent.
func (d *Dataset) AddCalculation(ctx context.Context, f string) (bool, error) {
	return guard(d, "add_calculation", func(id string) (bool, error) {
		calc, err := formula.Classify(f, false)
		if err != nil {
			return false, err
		}
		form := url.Values{"name": {calc.Name}, "formula": {calc.Expression}}
		return d.acknowledged(ctx, KeyAddCalculation, connection.Request{
			Method: connection.MethodPost,
			Path:   datasetPath(id, "calculations"),
			Form:   form,
		}, hasNoError)
	})
}

// AddAggregation adds an aggregation such as "total = sum(amount)", grouped
// by groups when any are given. The service materializes it as a linked
// dataset reachable through AggregateDatasets.
func (d *Dataset) AddAggregation(ctx context.Context, f string, groups ...string) (bool, error) {
	return guard(d, "add_aggregation", func(id string) (bool, error) {
		agg, err := formula.Classify(f, true)
		if err != nil {
			return false, err
		}
		if agg, err = agg.GroupBy(groups...); err != nil {
			return false, err
		}
		form := url.Values{"name": {agg.Name}, "formula": {agg.Expression}}
		if len(agg.Groups) > 0 {
			g, err := params.JoinGroups("add_aggregation", agg.Groups)
			if err != nil {
				return false, err
			}
			form.Set("group", g)
		}
		return d.acknowledged(ctx, KeyAddAggregation, connection.Request{
			Method: connection.MethodPost,
			Path:   datasetPath(id, "calculations"),
			Form:   form,
		}, hasNoError)
	})
}

// AddCalculations uploads several calculations at once as a JSON file.
func (d *Dataset) AddCalculations(ctx context.Context, defs []formula.Definition) (bool, error) {
	return guard(d, "add_calculations", func(id string) (bool, error) {
		if err := formula.ValidateDefinitions(defs); err != nil {
			return false, err
		}
		data, err := json.Marshal(defs)
		if err != nil {
			return false, apierr.Validation("add_calculations", "definitions", "not JSON-serializable: %v", err)
		}
		return d.acknowledged(ctx, KeyAddCalculations, connection.Request{
			Method: connection.MethodPost,
			Path:   datasetPath(id, "calculations"),
			Files:  []connection.File{{Field: "json_file", Filename: "data.json", Content: data}},
		}, hasNoError)
	})
}

// RemoveCalculation deletes the calculation called name.
func (d *Dataset) RemoveCalculation(ctx context.Context, name string) (bool, error) {
	return guard(d, "remove_calculation", func(id string) (bool, error) {
		if strings.TrimSpace(name) == "" {
			return false, apierr.Validation("remove_calculation", "name", "must not be empty")
		}
		return d.acknowledged(ctx, KeyRemoveCalculation, connection.Request{
			Method: connection.MethodDelete,
			Path:   datasetPath(id, "calculations", url.PathEscape(name)),
		}, hasSuccess)
	})
}

// Calculations lists the calculations and aggregations of the dataset.
func (d *Dataset) Calculations(ctx context.Context) ([]formula.Definition, error) {
	return guard(d, "calculations", func(id string) ([]formula.Definition, error) {
		body, err := d.conn.Dispatch(ctx, connection.Request{
			Method: connection.MethodGet,
			Path:   datasetPath(id, "calculations"),
		})
		if err != nil {
			return nil, err
		}
		var defs []formula.Definition
		if err := body.Decode(&defs); err != nil {
			return nil, err
		}
		return defs, nil
	})
}

// AggregateDatasets returns the linked aggregation datasets keyed by their
// comma-joined group. Ungrouped aggregations use the empty key.
func (d *Dataset) AggregateDatasets(ctx context.Context) (map[string]*Dataset, error) {
	return guard(d, "aggregations", func(id string) (map[string]*Dataset, error) {
		body, err := d.conn.Dispatch(ctx, connection.Request{
			Method: connection.MethodGet,
			Path:   datasetPath(id, "aggregations"),
		})
		if err != nil {
			return nil, err
		}
		var ids map[string]string
		if err := body.Decode(&ids); err != nil {
			return nil, err
		}
		out := make(map[string]*Dataset, len(ids))
		for group, childID := range ids {
			out[group] = &Dataset{id: childID, conn: d.conn, exec: d.exec}
		}
		return out, nil
	})
}
