// Package sanitize turns arbitrary header strings into safe, unique SQL
// identifiers, and generates the physical table names datasets live under.
//
// Reserved words and system column names are carried on an explicitly
// constructed Config rather than package globals so deployments can extend
// them and tests can isolate them.
package sanitize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// MaxIdentifierLen is the cap applied to sanitized column names. It leaves
// headroom under the 63-character backend identifier limit for generated
// suffixes.
const MaxIdentifierLen = 60

// tableNameLimit is the hard backend identifier limit for table names.
const tableNameLimit = 63

// fallbackName substitutes for headers that sanitize to nothing at all.
const fallbackName = "unnamed_column"

// Config carries the identifier vocabulary the sanitizer must avoid.
// Construct it once (DefaultConfig) and treat it as immutable.
type Config struct {
	// ReservedWords are SQL keywords that cannot be used as bare column
	// names; a colliding name gets a "_col" suffix.
	ReservedWords map[string]struct{}

	// SystemColumns are names owned by the dynamic-table machinery itself.
	// They are pre-reserved so no user column can ever shadow them.
	SystemColumns []string
}

// DefaultConfig returns the stock reserved vocabulary.
func DefaultConfig() Config {
	words := []string{
		"select", "from", "where", "insert", "update", "delete", "create",
		"drop", "table", "index", "user", "group", "order", "by", "having",
		"union", "join", "inner", "outer", "left", "right", "on", "as",
		// Common surrogate/audit names that collide with system columns in
		// spirit even when spelled without the prefix.
		"id", "created_at", "updated_at",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return Config{
		ReservedWords: m,
		SystemColumns: []string{SystemID, SystemCreatedAt, SystemUpdatedAt},
	}
}

// System column names shared with the table backends.
const (
	SystemID        = "__sys_id"
	SystemCreatedAt = "__sys_created_at"
	SystemUpdatedAt = "__sys_updated_at"
)

// Sanitizer rewrites names according to one Config.
type Sanitizer struct {
	cfg    Config
	system map[string]struct{}
}

// New builds a Sanitizer. A zero Config is usable but reserves nothing.
func New(cfg Config) *Sanitizer {
	sys := make(map[string]struct{}, len(cfg.SystemColumns))
	for _, c := range cfg.SystemColumns {
		sys[c] = struct{}{}
	}
	return &Sanitizer{cfg: cfg, system: sys}
}

var nonIdentRe = regexp.MustCompile(`[^a-z0-9_]+`)
var underscoreRunRe = regexp.MustCompile(`_+`)

// Sanitize converts one header into a database-safe identifier:
// lowercased, non-identifier runs collapsed to single underscores, edge
// underscores trimmed, "col_" prefixed when the result does not start with
// a letter, renamed on reserved/system collision, truncated to
// MaxIdentifierLen. Sanitize is idempotent.
func (s *Sanitizer) Sanitize(name string) string {
	out := strings.ToLower(strings.TrimSpace(name))
	out = nonIdentRe.ReplaceAllString(out, "_")
	out = underscoreRunRe.ReplaceAllString(out, "_")
	out = strings.Trim(out, "_")

	if out != "" && (out[0] < 'a' || out[0] > 'z') {
		out = "col_" + out
	}
	if out == "" {
		out = fallbackName
	}
	if s.isReserved(out) {
		out += "_col"
	}
	if len(out) > MaxIdentifierLen {
		out = out[:MaxIdentifierLen]
		out = strings.TrimRight(out, "_")
	}
	return out
}

func (s *Sanitizer) isReserved(name string) bool {
	if _, ok := s.cfg.ReservedWords[name]; ok {
		return true
	}
	_, ok := s.system[name]
	return ok
}

// NewMapping sanitizes every name and disambiguates collisions with an
// incrementing numeric suffix. Names are processed in input order, so the
// mapping is deterministic for a given header list. System column names are
// pre-claimed and can never be produced.
func (s *Sanitizer) NewMapping(originals []string) map[string]string {
	used := make(map[string]struct{}, len(originals)+len(s.system))
	for sys := range s.system {
		used[sys] = struct{}{}
	}

	mapping := make(map[string]string, len(originals))
	for _, orig := range originals {
		name := s.Sanitize(orig)
		if _, taken := used[name]; taken {
			base := name
			for i := 1; ; i++ {
				cand := fmt.Sprintf("%s_%d", base, i)
				if len(cand) > MaxIdentifierLen {
					base = base[:MaxIdentifierLen-len(cand)+len(base)]
					cand = fmt.Sprintf("%s_%d", base, i)
				}
				if _, taken := used[cand]; !taken {
					name = cand
					break
				}
			}
		}
		mapping[orig] = name
		used[name] = struct{}{}
	}
	return mapping
}

var tableCleanRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// TableName generates the physical table name for a dataset:
// user_{userID}_{filenameStem}_{YYYYMMDD_HHMMSS}, lowercased, hyphens folded
// to underscores, and kept under the 63-character identifier budget by
// dropping the stem when necessary.
func TableName(userID, originalFilename string, now time.Time) string {
	stem := strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename))
	stem = tableCleanRe.ReplaceAllString(stem, "_")
	stem = underscoreRunRe.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "_")

	uid := strings.ReplaceAll(userID, "-", "_")
	ts := now.Format("20060102_150405")

	name := fmt.Sprintf("user_%s_%s_%s", uid, stem, ts)
	if len(name) > tableNameLimit {
		name = fmt.Sprintf("user_%s_%s", uid, ts)
	}
	if len(name) > tableNameLimit {
		name = name[:tableNameLimit]
	}
	return strings.ToLower(strings.ReplaceAll(name, "-", "_"))
}
