package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NowFunc is the clock used by services. Tests replace it.
var NowFunc = func() time.Time { return time.Now().UTC() }

func init() {
	// amounts travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanStringPtr is CleanString for optional values; blank strings become nil.
func CleanStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := CleanString(*s)
	if c == "" {
		return nil
	}
	return &c
}

func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Today returns the current date at midnight UTC.
func Today() Date {
	return NewDate(NowFunc())
}
