package params

import (
	"net/url"
	"strconv"

	"github.com/aponysus/bamboo/apierr"
)

func setString(v url.Values, key, s string) {
	if s != "" {
		v.Set(key, s)
	}
}

func setBool(v url.Values, key string, b bool) {
	if b {
		v.Set(key, strconv.FormatBool(b))
	}
}

func setProjection(v url.Values, op string, cols []string) error {
	s, err := projection(op, cols)
	if err != nil {
		return err
	}
	v.Set("select", s)
	return nil
}

func setGroups(v url.Values, op string, groups []string) error {
	if len(groups) == 0 {
		return nil
	}
	s, err := JoinGroups(op, groups)
	if err != nil {
		return err
	}
	v.Set("group", s)
	return nil
}

func setJSON(v url.Values, op, key string, doc map[string]any) error {
	if len(doc) == 0 {
		return nil
	}
	s, err := MarshalJSON(op, key, doc)
	if err != nil {
		return err
	}
	v.Set(key, s)
	return nil
}

func setLimit(v url.Values, op string, limit int) error {
	if limit < 0 {
		return apierr.Validation(op, "limit", "must not be negative, got %d", limit)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return nil
}

func setFormat(v url.Values, op, format string) error {
	if format == "" {
		return nil
	}
	if !ValidFormat(format) {
		return apierr.Validation(op, "format", "must be %q or %q, got %q", FormatCSV, FormatJSON, format)
	}
	v.Set("format", format)
	return nil
}
