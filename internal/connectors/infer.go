package connectors

import (
	"strconv"
	"strings"
	"time"
)

// Local column types understood by the destination dialects.
const (
	LocalTypeString   = "string"
	LocalTypeInteger  = "integer"
	LocalTypeFloat    = "float"
	LocalTypeDecimal  = "decimal"
	LocalTypeBoolean  = "boolean"
	LocalTypeDate     = "date"
	LocalTypeDateTime = "datetime"
	LocalTypeJSON     = "json"
)

// inferLocalType guesses the narrowest local type all non-empty sample values fit.
func inferLocalType(values []string) string {
	seen := false
	isInt, isFloat, isBool, isDate, isDateTime := true, true, true, true, true

	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
		if _, err := strconv.ParseBool(v); err != nil || isNumeric(v) {
			isBool = false
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			isDate = false
		}
		if !parsesAsDateTime(v) {
			isDateTime = false
		}
	}

	switch {
	case !seen:
		return LocalTypeString
	case isInt:
		return LocalTypeInteger
	case isFloat:
		return LocalTypeFloat
	case isBool:
		return LocalTypeBoolean
	case isDate:
		return LocalTypeDate
	case isDateTime:
		return LocalTypeDateTime
	}
	return LocalTypeString
}

func isNumeric(v string) bool {
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

func parsesAsDateTime(v string) bool {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// suggestLocalType maps a database reported column type to a local type.
func suggestLocalType(remoteType string) string {
	t := strings.ToLower(remoteType)
	switch {
	case t == "tinyint(1)" || strings.Contains(t, "bool"):
		return LocalTypeBoolean
	case strings.Contains(t, "int"):
		return LocalTypeInteger
	case strings.Contains(t, "numeric") || strings.Contains(t, "decimal"):
		return LocalTypeDecimal
	case strings.Contains(t, "float") || strings.Contains(t, "double") || strings.Contains(t, "real"):
		return LocalTypeFloat
	case strings.Contains(t, "timestamp") || strings.Contains(t, "datetime"):
		return LocalTypeDateTime
	case t == "date":
		return LocalTypeDate
	case strings.Contains(t, "json"):
		return LocalTypeJSON
	}
	return LocalTypeString
}
