package connection

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"

	"github.com/aponysus/bamboo/apierr"
)

var errNotStructured = errors.New("response body is not a JSON object or array")

// Body is a decoded response: always a JSON object or array.
type Body struct {
	raw []byte
}

// NewBody validates raw as a response body.
func NewBody(raw []byte) (Body, error) {
	return parseBody("body", raw)
}

func parseBody(op string, raw []byte) (Body, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return Body{}, apierr.Parsing(op, errNotStructured)
	}
	if !gjson.ValidBytes(trimmed) {
		return Body{}, apierr.Parsing(op, errors.New("invalid JSON"))
	}
	return Body{raw: trimmed}, nil
}

// Raw returns the body bytes.
func (b Body) Raw() []byte { return b.raw }

func (b Body) String() string { return string(b.raw) }

// IsObject reports whether the body is a JSON object.
func (b Body) IsObject() bool {
	return len(b.raw) > 0 && gjson.ParseBytes(b.raw).IsObject()
}

// IsArray reports whether the body is a JSON array.
func (b Body) IsArray() bool {
	return len(b.raw) > 0 && gjson.ParseBytes(b.raw).IsArray()
}

// Has reports whether the body is an object with the top-level key.
func (b Body) Has(key string) bool {
	if !b.IsObject() {
		return false
	}
	return gjson.GetBytes(b.raw, gjson.Escape(key)).Exists()
}

// Get looks up a gjson path such as "schema.amount.simpletype".
func (b Body) Get(path string) gjson.Result {
	return gjson.GetBytes(b.raw, path)
}

// Len returns the number of elements of an array body, or keys of an object body.
func (b Body) Len() int {
	res := gjson.ParseBytes(b.raw)
	switch {
	case res.IsArray():
		return len(res.Array())
	case res.IsObject():
		n := 0
		res.ForEach(func(_, _ gjson.Result) bool {
			n++
			return true
		})
		return n
	default:
		return 0
	}
}

// Value decodes the body into generic Go values.
func (b Body) Value() (any, error) {
	var v any
	if err := b.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode unmarshals the body into v. Failures are parsing errors.
func (b Body) Decode(v any) error {
	if err := json.Unmarshal(b.raw, v); err != nil {
		return apierr.Parsing("decode", err)
	}
	return nil
}
