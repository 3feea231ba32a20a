package relay

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmcleod/pushlog/internal/util"
)

// DefaultStyle is used when a submission names no style.
const DefaultStyle = "standard"

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Field names accepted from clients and forwarded upstream.
const (
	FieldDate       = "date"
	FieldTime       = "time"
	FieldCount      = "count"
	FieldStyle      = "style"
	FieldRecordedAt = "recordedAt"
)

var fields = []string{FieldDate, FieldTime, FieldCount, FieldStyle, FieldRecordedAt}

// Payload is a normalized submission.
type Payload struct {
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	Count      float64 `json:"count"`
	Style      string  `json:"style"`
	RecordedAt string  `json:"recordedAt"`
}

// Normalize builds a Payload from loosely typed client input. Missing, empty,
// zero or false values fall back to defaults: "" for date and time,
// DefaultStyle for style, now for recordedAt and 0 for count.
func Normalize(raw map[string]any, now time.Time) Payload {
	return Payload{
		Date:       coerceString(raw[FieldDate], ""),
		Time:       coerceString(raw[FieldTime], ""),
		Count:      coerceNumber(raw[FieldCount]),
		Style:      coerceString(raw[FieldStyle], DefaultStyle),
		RecordedAt: coerceString(raw[FieldRecordedAt], now.UTC().Format(isoMillis)),
	}
}

// FromQuery extracts submission fields from query parameters in the shape
// Normalize expects.
func FromQuery(q url.Values) map[string]any {
	raw := make(map[string]any, len(fields))
	for _, f := range fields {
		if q.Has(f) {
			raw[f] = q.Get(f)
		}
	}
	return raw
}

// Query encodes p as query parameters.
func (p Payload) Query() url.Values {
	q := url.Values{}
	q.Set(FieldDate, p.Date)
	q.Set(FieldTime, p.Time)
	q.Set(FieldCount, formatNumber(p.Count))
	q.Set(FieldStyle, p.Style)
	q.Set(FieldRecordedAt, p.RecordedAt)
	return q
}

func coerceString(v any, def string) string {
	var s string
	switch x := v.(type) {
	case nil:
		return def
	case string:
		s = x
	case bool:
		if !x {
			return def
		}
		s = "true"
	case float64:
		if x == 0 || math.IsNaN(x) {
			return def
		}
		s = formatNumber(x)
	case json.Number:
		s = x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return def
		}
		s = string(b)
	}
	s = util.Normalize(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}

func coerceNumber(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = n
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
