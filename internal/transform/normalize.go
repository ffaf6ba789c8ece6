package transform

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"time"

	"go-datasync/internal/connectors"
)

// DateTimeLayout is the canonical datetime string written to destination tables.
const DateTimeLayout = "2006-01-02 15:04:05"

// /Date(1700000000000)/ and /Date(1700000000000+0100)/, as emitted by
// some JSON and OData APIs.
var msJSONDate = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

const zeroDateTime = "0000-00-00 00:00:00"

// Normalize returns a copy of row with every value converted to something a
// SQL driver accepts: nested maps and slices are JSON encoded, times and known
// source date encodings become canonical datetime strings.
func Normalize(row connectors.Row) (connectors.Row, error) {
	out := make(connectors.Row, len(row))
	for k, v := range row {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize column %s: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return string(t), nil
	case time.Time:
		return t.UTC().Format(DateTimeLayout), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.UTC().Format(DateTimeLayout), nil
	case string:
		return sanitizeDate(t), nil
	case interface{ Hex() string }:
		return t.Hex(), nil
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}
	return v, nil
}

// sanitizeDate rewrites source specific date encodings. Anything else is
// returned unchanged.
func sanitizeDate(s string) interface{} {
	if s == zeroDateTime || s == "0000-00-00" {
		return nil
	}
	m := msJSONDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return s
	}
	// The offset only says which zone the producer was in; the millis are UTC.
	return time.UnixMilli(ms).UTC().Format(DateTimeLayout)
}
