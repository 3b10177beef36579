// Package formula parses "name = expression" strings and decides whether an
// expression is a per-row calculation or a grouped aggregation.
//
// Only the shape of a formula is checked here. Whether the expression is
// meaningful is decided by the service.
package formula

import (
	"fmt"
	"strings"

	"github.com/aponysus/bamboo/apierr"
)

// Kind separates the two uses of the calculations endpoint.
type Kind int

const (
	Calculation Kind = iota
	Aggregation
)

func (k Kind) String() string {
	if k == Aggregation {
		return "aggregation"
	}
	return "calculation"
}

// aggregations is the fixed vocabulary of reducing functions. It is never
// modified after initialization; Aggregations hands out copies.
var aggregations = [...]string{
	"max",
	"mean",
	"min",
	"median",
	"newest",
	"sum",
	"ratio",
	"count",
}

// Aggregations returns the aggregation keywords in their canonical order.
func Aggregations() []string {
	out := make([]string, len(aggregations))
	copy(out, aggregations[:])
	return out
}

// Formula is a parsed formula string.
type Formula struct {
	Name       string
	Expression string
	Kind       Kind
	// Groups are the group-by columns of an aggregation, set with GroupBy.
	Groups []string
}

// GroupBy returns a copy of f grouped by groups. Only an aggregation can be
// grouped, and every group must name a column.
func (f Formula) GroupBy(groups ...string) (Formula, error) {
	if len(groups) == 0 {
		return f, nil
	}
	if f.Kind != Aggregation {
		return Formula{}, mismatchError(f, "only an aggregation takes group-by columns")
	}
	for i, g := range groups {
		if strings.TrimSpace(g) == "" {
			return Formula{}, apierr.Validation("formula", "group", "entry %d is empty", i)
		}
	}
	f.Groups = append([]string(nil), groups...)
	return f, nil
}

func (f Formula) String() string {
	return f.Name + " = " + f.Expression
}

// Parse splits s on its first "=" and classifies the expression.
func Parse(s string) (Formula, error) {
	name, expr, ok := strings.Cut(s, "=")
	if !ok {
		return Formula{}, formatError(s, "missing \"=\"")
	}
	name = strings.TrimSpace(name)
	expr = strings.TrimSpace(expr)
	if name == "" {
		return Formula{}, formatError(s, "empty name")
	}
	if expr == "" {
		return Formula{}, formatError(s, "empty expression")
	}

	f := Formula{Name: name, Expression: expr, Kind: Calculation}
	if IsAggregation(expr) {
		f.Kind = Aggregation
	}
	return f, nil
}

// Classify parses s and checks that it was routed to the right entry point.
// expectAggregation is true for the aggregation entry point.
func Classify(s string, expectAggregation bool) (Formula, error) {
	f, err := Parse(s)
	if err != nil {
		return Formula{}, err
	}

	switch {
	case expectAggregation && f.Kind != Aggregation:
		return Formula{}, mismatchError(f, "this is a calculation, use the calculation entry point")
	case !expectAggregation && f.Kind == Aggregation:
		return Formula{}, mismatchError(f, "this is an aggregation, use the aggregation entry point")
	}
	return f, nil
}

// IsAggregation reports whether expr starts with an aggregation keyword
// followed by optional spaces and "(".
func IsAggregation(expr string) bool {
	expr = strings.TrimSpace(expr)
	for _, kw := range aggregations {
		if !strings.HasPrefix(expr, kw) {
			continue
		}
		rest := strings.TrimLeft(expr[len(kw):], " \t")
		if strings.HasPrefix(rest, "(") {
			return true
		}
	}
	return false
}

func formatError(s, reason string) error {
	return &apierr.Error{
		Kind:    apierr.KindFormulaFormat,
		Op:      "formula",
		Message: fmt.Sprintf("%s in %q (want \"name = expression\")", reason, s),
	}
}

func mismatchError(f Formula, msg string) error {
	return &apierr.Error{
		Kind:    apierr.KindClassificationMismatch,
		Op:      "formula",
		Field:   f.Name,
		Message: msg,
	}
}
