package formula

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aponysus/bamboo/apierr"
)

func TestClassify_CalculationOnCalculationEntryPoint(t *testing.T) {
	f, err := Classify("x = amount*2", false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if f.Name != "x" || f.Expression != "amount*2" {
		t.Fatalf("got (%q,%q), want (x, amount*2)", f.Name, f.Expression)
	}
	if f.Kind != Calculation {
		t.Fatalf("kind=%v, want calculation", f.Kind)
	}
}

func TestClassify_Mismatch(t *testing.T) {
	cases := []struct {
		in  string
		agg bool
	}{
		{"x = sum(amount)", false},
		{"x = amount*2", true},
		{"x = newest (submit_date)", false},
	}

	for _, tc := range cases {
		_, err := Classify(tc.in, tc.agg)
		if !errors.Is(err, apierr.ErrClassificationMismatch) {
			t.Fatalf("Classify(%q,%v) err=%v, want classification mismatch", tc.in, tc.agg, err)
		}
		if apierr.KindOf(err) != apierr.KindClassificationMismatch {
			t.Fatalf("kind=%v", apierr.KindOf(err))
		}
	}
}

func TestClassify_AggregationOnAggregationEntryPoint(t *testing.T) {
	f, err := Classify("total = sum(amount)", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if f.Kind != Aggregation || f.Name != "total" || f.Expression != "sum(amount)" {
		t.Fatalf("got %+v", f)
	}
}

func TestParse_FormatErrors(t *testing.T) {
	for _, in := range []string{"amount*2", "", " = amount", "x = ", "   "} {
		_, err := Parse(in)
		if !errors.Is(err, apierr.ErrFormulaFormat) {
			t.Fatalf("Parse(%q) err=%v, want formula format error", in, err)
		}
	}
}

func TestParse_SplitsOnFirstEquals(t *testing.T) {
	f, err := Parse("flag = amount == 2")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if f.Name != "flag" || f.Expression != "amount == 2" {
		t.Fatalf("got %+v", f)
	}
}

func TestIsAggregation(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"sum(amount)", true},
		{"count ()", true},
		{"  ratio(amount, gps_alt)", true},
		{"summary(amount)", false},
		{"amount + max", false},
		{"maximum(amount)", false},
		{"mean", false},
		{"summary_col * 2", false},
		{"counter + 1", false},
	}

	for _, tc := range cases {
		if got := IsAggregation(tc.expr); got != tc.want {
			t.Fatalf("IsAggregation(%q)=%v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestAggregations_ReturnsCopy(t *testing.T) {
	a := Aggregations()
	if len(a) != 8 {
		t.Fatalf("len=%d, want 8", len(a))
	}
	a[0] = "mutated"
	if Aggregations()[0] != "max" {
		t.Fatalf("vocabulary was mutated through the returned slice")
	}
}

func TestDefinition_JSONGroupIsCommaJoined(t *testing.T) {
	defs := []Definition{
		{Name: "double_amount", Formula: "amount * 2"},
		{Name: "total", Formula: "sum(amount)", Groups: []string{"food_type", "rating"}},
	}
	b, err := json.Marshal(defs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"name":"double_amount","formula":"amount * 2"},{"name":"total","formula":"sum(amount)","group":"food_type,rating"}]`
	if string(b) != want {
		t.Fatalf("json=%s, want %s", b, want)
	}

	var back []Definition
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back[1].Groups) != 2 || back[1].Groups[1] != "rating" {
		t.Fatalf("groups=%v", back[1].Groups)
	}
}

func TestValidateDefinitions(t *testing.T) {
	if err := ValidateDefinitions(nil); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("empty: err=%v", err)
	}
	if err := ValidateDefinitions([]Definition{{Name: "x"}}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("missing formula: err=%v", err)
	}
	if err := ValidateDefinitions([]Definition{{Name: "x", Formula: "a+1"}}); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestFormula_GroupBy(t *testing.T) {
	f, err := Classify("total = sum(amount)", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	groups := []string{"food_type", "rating"}
	g, err := f.GroupBy(groups...)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(g.Groups) != 2 || g.Groups[0] != "food_type" || g.Groups[1] != "rating" {
		t.Fatalf("groups=%v", g.Groups)
	}
	groups[0] = "mutated"
	if g.Groups[0] != "food_type" {
		t.Fatalf("GroupBy kept a reference to the caller's slice")
	}
	if f.Groups != nil {
		t.Fatalf("receiver modified: %v", f.Groups)
	}

	if _, err := g.GroupBy("food_type", " "); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("empty group err=%v, want validation error", err)
	}

	calc, _ := Parse("x = amount*2")
	if _, err := calc.GroupBy("food_type"); !errors.Is(err, apierr.ErrClassificationMismatch) {
		t.Fatalf("calculation GroupBy err=%v, want classification mismatch", err)
	}
	if same, err := calc.GroupBy(); err != nil || same.Groups != nil {
		t.Fatalf("GroupBy() = %+v, %v", same, err)
	}
}
