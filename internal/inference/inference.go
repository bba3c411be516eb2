// Package inference decides a storage type for a column from a sample of
// its raw string values.
//
// Detection is best-effort and must never fail the caller: any ambiguity or
// internal error resolves to the widest type (unbounded text) so ingestion
// can always proceed. Ordering runs from most restrictive to least to avoid
// false positives — a column of "2024"-style years must not be typed as an
// integer when sibling values match a date pattern, and a value carrying a
// time-of-day must resolve to timestamp before date gets a chance.
package inference

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"dataloft/internal/schema"
)

// numericThreshold is the minimum fraction of non-null values that must
// convert for a numeric or temporal type to win. The remaining minority is
// tolerated as malformed cells rather than discarding the type signal.
const numericThreshold = 0.8

// formatSampleCap bounds how many values the temporal format probing looks
// at. Samples beyond this add cost without changing the verdict.
const formatSampleCap = 100

// maxVarcharLen is the longest observed value (in bytes) that still gets a
// bounded VARCHAR; anything longer falls through to TEXT.
const maxVarcharLen = 255

// minVarcharLen is the floor for generated VARCHAR widths.
const minVarcharLen = 50

// Logger is the minimal logging seam used by the engine.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Engine performs per-column type detection.
//
// The zero value is usable; Logger is optional.
type Engine struct {
	Logger Logger
}

func (e *Engine) logf(format string, v ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, v...)
	}
}

// Detect returns the storage type for a column given a sample of raw string
// values. Empty and whitespace-only values are treated as nulls and ignored;
// an all-null column defaults to TEXT.
func (e *Engine) Detect(values []string, columnName string) schema.ColumnType {
	sample := nonNull(values)
	if len(sample) == 0 {
		e.logf("column=%q empty sample, defaulting to text", columnName)
		return schema.Text()
	}

	if isInteger(sample) {
		e.logf("column=%q detected type=integer", columnName)
		return schema.Integer()
	}
	if isDecimal(sample) {
		e.logf("column=%q detected type=decimal", columnName)
		return schema.Decimal(15, 6)
	}
	if isBoolean(sample) {
		e.logf("column=%q detected type=boolean", columnName)
		return schema.Boolean()
	}
	if isTimestamp(sample) {
		e.logf("column=%q detected type=timestamp", columnName)
		return schema.Timestamp()
	}
	if isDate(sample) {
		e.logf("column=%q detected type=date", columnName)
		return schema.Date()
	}

	max := maxLen(sample)
	if max <= maxVarcharLen {
		n := max * 2
		if n < minVarcharLen {
			n = minVarcharLen
		}
		e.logf("column=%q detected type=varchar(%d)", columnName, n)
		return schema.Varchar(n)
	}
	e.logf("column=%q detected type=text max_len=%d", columnName, max)
	return schema.Text()
}

func nonNull(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func maxLen(values []string) int {
	max := 0
	for _, v := range values {
		if len(v) > max {
			max = len(v)
		}
	}
	return max
}

// datePatterns recognize values that read as calendar dates regardless of
// whether they would also convert numerically. Any hit disqualifies the
// column from integer detection.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}`),  // MM/DD/YYYY or DD/MM/YYYY
	regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}`),  // YYYY-MM-DD
	regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}`),  // MM-DD-YYYY or DD-MM-YYYY
	regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}`), // DD.MM.YYYY
	regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}`),  // YYYY/MM/DD
}

func matchesDatePattern(v string) bool {
	for _, re := range datePatterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// isInteger reports whether the sample is a whole-number column.
//
// Any single date-like value rejects the whole column: digits-with-separators
// would otherwise sneak past the numeric conversion for some locales.
func isInteger(sample []string) bool {
	for _, v := range sample {
		if matchesDatePattern(v) {
			return false
		}
	}

	converted := 0
	for _, v := range sample {
		f, err := strconv.ParseFloat(normalizeNumeric(v), 64)
		if err != nil {
			continue
		}
		if f != float64(int64(f)) {
			return false
		}
		converted++
	}
	return rate(converted, len(sample)) >= numericThreshold
}

func isDecimal(sample []string) bool {
	converted := 0
	for _, v := range sample {
		if _, err := strconv.ParseFloat(normalizeNumeric(v), 64); err == nil {
			converted++
		}
	}
	return rate(converted, len(sample)) >= numericThreshold
}

// normalizeNumeric strips a leading sign-compatible currency-free form.
// Thousands separators are intentionally not handled: "1,234" is ambiguous
// with European decimal notation and must fall through to text.
func normalizeNumeric(v string) string {
	return strings.TrimSpace(v)
}

func rate(hit, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

// booleanVocabulary is the fixed truthy/falsy set. Every distinct
// lowercase-normalized value in the sample must belong to it.
var booleanVocabulary = map[string]struct{}{
	"true": {}, "false": {},
	"1": {}, "0": {},
	"yes": {}, "no": {},
	"t": {}, "f": {},
	"y": {}, "n": {},
	"on": {}, "off": {},
	"enabled": {}, "disabled": {},
}

func isBoolean(sample []string) bool {
	uniq := make(map[string]struct{})
	for _, v := range sample {
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			continue
		}
		uniq[s] = struct{}{}
	}
	if len(uniq) == 0 {
		return false
	}
	for v := range uniq {
		if _, ok := booleanVocabulary[v]; !ok {
			return false
		}
	}
	return true
}

// ParseBool maps a raw cell onto a boolean using the same vocabulary the
// detector accepts. The second return reports whether the value was
// recognized at all.
func ParseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "t", "y", "on", "enabled":
		return true, true
	case "false", "0", "no", "f", "n", "off", "disabled":
		return false, true
	default:
		return false, false
	}
}

// timestampLayouts are tried in order before falling back to generic
// parsing. Keep the list short: each layout is probed against the sample.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"01/02/2006 15:04",
}

var dateLayouts = []string{
	"02/01/2006",
	"01/02/2006",
	"2006-01-02",
	"01-02-2006",
	"02-01-2006",
	"2006/01/02",
	"02.01.2006",
}

// timeOfDayRe matches an H:MM fragment anywhere in the value. Timestamp
// detection requires it so that plain dates never get widened to timestamp.
var timeOfDayRe = regexp.MustCompile(`\d{1,2}:\d{2}`)

func isTimestamp(sample []string) bool {
	hasTime := false
	for _, v := range sample {
		if timeOfDayRe.MatchString(v) {
			hasTime = true
			break
		}
	}
	if !hasTime {
		return false
	}

	probe := capSample(sample)
	for _, layout := range timestampLayouts {
		if layoutRate(probe, layout) >= numericThreshold {
			return true
		}
	}
	return fallbackParseRate(probe) >= numericThreshold
}

func isDate(sample []string) bool {
	hasPattern := false
	for _, v := range sample {
		if matchesDatePattern(v) {
			hasPattern = true
			break
		}
	}
	if !hasPattern {
		return false
	}

	probe := capSample(sample)
	for _, layout := range dateLayouts {
		if layoutRate(probe, layout) >= numericThreshold {
			return true
		}
	}
	return fallbackParseRate(probe) >= numericThreshold
}

func capSample(sample []string) []string {
	if len(sample) <= formatSampleCap {
		return sample
	}
	return sample[:formatSampleCap]
}

func layoutRate(sample []string, layout string) float64 {
	hit := 0
	for _, v := range sample {
		if _, err := time.Parse(layout, v); err == nil {
			hit++
		}
	}
	return rate(hit, len(sample))
}

// fallbackParseRate uses dateparse's format inference for values the fixed
// layout list misses (month names, odd separators, RFC variants).
func fallbackParseRate(sample []string) float64 {
	hit := 0
	for _, v := range sample {
		if _, err := dateparse.ParseAny(v); err == nil {
			hit++
		}
	}
	return rate(hit, len(sample))
}

// ParseTime parses one raw cell into a time.Time using the same strategy as
// detection: known layouts first, generic inference last.
func ParseTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseAny(v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
