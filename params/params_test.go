package params

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/bamboo/apierr"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var e *apierr.Error
	require.True(t, errors.As(err, &e), "expected *apierr.Error, got %T", err)
	return e.Field
}

func TestEncodeSummary_DefaultsToSelectAll(t *testing.T) {
	v, err := EncodeSummary(Query{})
	require.NoError(t, err)
	assert.Equal(t, "all", v.Get("select"))
	assert.Len(t, v, 1)
}

func TestEncodeSummary_ProjectionContainsEveryColumn(t *testing.T) {
	v, err := EncodeSummary(Query{Select: []string{"a", "b"}, Groups: []string{"food_type", "rating"}, Limit: 5})
	require.NoError(t, err)

	var sel map[string]int
	require.NoError(t, json.Unmarshal([]byte(v.Get("select")), &sel))
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, sel)
	assert.Equal(t, "food_type,rating", v.Get("group"))
	assert.Equal(t, "5", v.Get("limit"))
}

func TestEncodeData_OmitsZeroValues(t *testing.T) {
	v, err := EncodeData(Query{})
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestEncodeData_AllFields(t *testing.T) {
	v, err := EncodeData(Query{
		Select:   []string{"amount"},
		Where:    map[string]any{"rating": "delectible"},
		OrderBy:  "amount",
		Limit:    10,
		Distinct: "rating",
		Format:   FormatCSV,
		Callback: "cb",
		Count:    true,
		Index:    true,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"amount":1}`, v.Get("select"))
	assert.JSONEq(t, `{"rating":"delectible"}`, v.Get("query"))
	assert.Equal(t, "amount", v.Get("order_by"))
	assert.Equal(t, "10", v.Get("limit"))
	assert.Equal(t, "rating", v.Get("distinct"))
	assert.Equal(t, "csv", v.Get("format"))
	assert.Equal(t, "cb", v.Get("callback"))
	assert.Equal(t, "true", v.Get("count"))
	assert.Equal(t, "true", v.Get("index"))
}

func TestEncode_ValidationNamesField(t *testing.T) {
	cases := []struct {
		name  string
		run   func() error
		field string
	}{
		{"blank select", func() error { _, err := EncodeData(Query{Select: []string{"a", " "}}); return err }, "select"},
		{"negative limit", func() error { _, err := EncodeSummary(Query{Limit: -1}); return err }, "limit"},
		{"bad format", func() error { _, err := EncodeData(Query{Format: "xml"}); return err }, "format"},
		{"blank group", func() error { _, err := EncodeSummary(Query{Groups: []string{""}}); return err }, "group"},
		{"unserializable query", func() error {
			_, err := EncodeData(Query{Where: map[string]any{"x": make(chan int)}})
			return err
		}, "query"},
		{"groups on data", func() error { _, err := EncodeData(Query{Groups: []string{"a"}}); return err }, "group"},
		{"resample date column", func() error { _, err := EncodeResample(Resample{Interval: "D"}); return err }, "date_column"},
		{"resample interval", func() error { _, err := EncodeResample(Resample{DateColumn: "submit_date"}); return err }, "interval"},
		{"rolling window", func() error { _, err := EncodeRolling(Rolling{WinType: "boxcar"}); return err }, "window"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apierr.ErrValidation))
			assert.Equal(t, tc.field, fieldOf(t, err))
		})
	}
}

func TestEncodeResample(t *testing.T) {
	v, err := EncodeResample(Resample{
		DateColumn: "submit_date",
		Interval:   "W",
		How:        "sum",
		Where:      map[string]any{"rating": "epic_eat"},
		Format:     FormatJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, "submit_date", v.Get("date_column"))
	assert.Equal(t, "W", v.Get("interval"))
	assert.Equal(t, "sum", v.Get("how"))
	assert.JSONEq(t, `{"rating":"epic_eat"}`, v.Get("query"))
	assert.Equal(t, "json", v.Get("format"))
}

func TestEncodeRolling(t *testing.T) {
	v, err := EncodeRolling(Rolling{WinType: "boxcar", Window: 3})
	require.NoError(t, err)
	assert.Equal(t, "boxcar", v.Get("win_type"))
	assert.Equal(t, "3", v.Get("window"))
	assert.False(t, v.Has("format"))
}

func TestEncodeInfo(t *testing.T) {
	v := EncodeInfo(Metadata{Label: "eats", License: "CC0"})
	assert.Equal(t, "eats", v.Get("label"))
	assert.Equal(t, "CC0", v.Get("license"))
	assert.False(t, v.Has("attribution"))
	assert.False(t, v.Has("description"))
}

func TestFromMap_RejectsWrongTypes(t *testing.T) {
	cases := []struct {
		in    map[string]any
		field string
	}{
		{map[string]any{"select": "not-a-list"}, "select"},
		{map[string]any{"query": "not-a-dict"}, "query"},
		{map[string]any{"group": "a,b"}, "group"},
		{map[string]any{"select": []any{"a", 1}}, "select"},
		{map[string]any{"limit": "10"}, "limit"},
		{map[string]any{"limit": 2.5}, "limit"},
		{map[string]any{"limit": 1e19}, "limit"},
		{map[string]any{"limit": -1e19}, "limit"},
		{map[string]any{"limit": math.Inf(1)}, "limit"},
		{map[string]any{"limit": json.Number("99999999999999999999")}, "limit"},
		{map[string]any{"order_by": 3}, "order_by"},
		{map[string]any{"count": "yes"}, "count"},
		{map[string]any{"bogus": 1}, "bogus"},
	}

	for _, tc := range cases {
		_, err := FromMap(tc.in)
		require.Error(t, err, "input %v", tc.in)
		assert.True(t, errors.Is(err, apierr.ErrValidation))
		assert.Equal(t, tc.field, fieldOf(t, err), "input %v", tc.in)
	}
}

func TestFromMap_LimitOutOfIntRange(t *testing.T) {
	_, err := FromMap(map[string]any{"limit": 1e19})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an integer")
	assert.NotContains(t, err.Error(), "negative")
}

func TestFromMap_AcceptsDecodedJSON(t *testing.T) {
	var in map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"select": ["a", "b"],
		"query": {"amount": {"$gt": 5}},
		"group": ["rating"],
		"limit": 10,
		"order_by": "amount",
		"count": true
	}`), &in))

	q, err := FromMap(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, q.Select)
	assert.Equal(t, []string{"rating"}, q.Groups)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, "amount", q.OrderBy)
	assert.True(t, q.Count)
	assert.Contains(t, q.Where, "amount")

	v, err := EncodeSummary(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":1}`, v.Get("select"))
}

func TestFromMap_SelectAll(t *testing.T) {
	q, err := FromMap(map[string]any{"select": "all"})
	require.NoError(t, err)
	assert.Nil(t, q.Select)
}
