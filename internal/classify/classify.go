// Package classify maps dataset headers onto the semantic roles downstream
// analytics need (a datetime axis, a revenue measure, optional category and
// promotion columns).
//
// Matching runs in two strategies: exact/substring first, then fuzzy
// partial-ratio scoring against a word bank. A role is found when its best
// score clears the role's threshold; required roles gate the overall
// verdict, optional roles only produce suggestions.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"dataloft/internal/sanitize"
)

// Role is one semantic slot to fill from the header list.
type Role struct {
	Name      string
	Words     []string
	Required  bool
	Threshold int
}

// Config is the full role book the classifier scores against.
type Config struct {
	Roles []Role
}

// DefaultConfig returns the stock role book.
func DefaultConfig() Config {
	return Config{Roles: []Role{
		{
			Name:      "datetime",
			Required:  true,
			Threshold: 75,
			Words: []string{
				"date", "datetime", "time", "timestamp", "order date",
				"order_date", "created", "created_at", "transaction date",
				"purchase date", "day", "month", "year", "period",
			},
		},
		{
			Name:      "revenue_sales",
			Required:  true,
			Threshold: 75,
			Words: []string{
				"revenue", "sales", "amount", "total", "price", "value",
				"total revenue", "total_revenue", "sales amount", "turnover",
				"gross", "net sales", "income", "earnings",
			},
		},
		{
			Name:      "category_product",
			Required:  false,
			Threshold: 70,
			Words: []string{
				"category", "product", "item", "sku", "product name",
				"product_name", "department", "segment", "type", "group",
				"brand", "class",
			},
		},
		{
			Name:      "promotion_flag",
			Required:  false,
			Threshold: 70,
			Words: []string{
				"promotion", "promo", "discount", "offer", "campaign",
				"coupon", "sale flag", "on sale", "markdown", "deal",
			},
		},
	}}
}

// Match is the best candidate found for one role.
type Match struct {
	Role      string `json:"role"`
	Column    string `json:"column"`
	Score     int    `json:"score"`
	MatchedOn string `json:"matched_on"`
	Method    string `json:"method"`
	Found     bool   `json:"found"`
	Required  bool   `json:"required"`
	Threshold int    `json:"threshold"`
}

// Report is the full classification verdict for one header list.
type Report struct {
	Matches           map[string]Match `json:"matches"`
	RequiredFound     []string         `json:"required_found"`
	RequiredMissing   []string         `json:"required_missing"`
	OptionalFound     []string         `json:"optional_found"`
	OptionalMissing   []string         `json:"optional_missing"`
	ValidationSuccess bool             `json:"validation_success"`
	Recommendations   []string         `json:"recommendations"`
}

// Matcher scores one header against one word-bank entry.
type Matcher interface {
	Name() string
	Score(header, word string) int
}

// ExactMatcher scores case-insensitive equality at 100 and containment in
// either direction at 90.
type ExactMatcher struct{}

func (ExactMatcher) Name() string { return "exact" }

func (ExactMatcher) Score(header, word string) int {
	h := cleanHeader(header)
	w := cleanHeader(word)
	if h == "" || w == "" {
		return 0
	}
	if h == w {
		return 100
	}
	if strings.Contains(h, w) || strings.Contains(w, h) {
		return 90
	}
	return 0
}

// FuzzyMatcher scores with token partial-ratio over cleaned text, catching
// misspellings and word-order variants the exact strategy misses.
type FuzzyMatcher struct{}

func (FuzzyMatcher) Name() string { return "fuzzy" }

func (FuzzyMatcher) Score(header, word string) int {
	h := cleanHeader(header)
	w := cleanHeader(word)
	if h == "" || w == "" {
		return 0
	}
	return fuzzy.PartialRatio(h, w)
}

var headerCleanRe = regexp.MustCompile(`[^a-z0-9 ]+`)

// cleanHeader lowercases and strips punctuation so "Order-Date" and
// "order_date" score identically.
func cleanHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = headerCleanRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Classifier scores headers against a role book.
type Classifier struct {
	cfg      Config
	matchers []Matcher
}

// New builds a Classifier with the standard strategy order: exact wins over
// fuzzy at equal scores.
func New(cfg Config) *Classifier {
	return &Classifier{
		cfg:      cfg,
		matchers: []Matcher{ExactMatcher{}, FuzzyMatcher{}},
	}
}

// Classify scores every header against every role and aggregates the
// verdict. System columns never participate.
func (c *Classifier) Classify(headers []string) Report {
	candidates := make([]string, 0, len(headers))
	for _, h := range headers {
		if strings.HasPrefix(h, "__sys_") || strings.TrimSpace(h) == "" {
			continue
		}
		candidates = append(candidates, h)
	}

	matches := make(map[string]Match, len(c.cfg.Roles))
	for _, role := range c.cfg.Roles {
		matches[role.Name] = c.bestMatch(role, candidates)
	}
	return c.Summarize(matches)
}

// Summarize aggregates per-role matches into the full verdict. Classify
// uses it directly; callers holding persisted matches rebuild the report
// from them without rescoring. Roles absent from the map count as not
// found.
func (c *Classifier) Summarize(matches map[string]Match) Report {
	rep := Report{Matches: make(map[string]Match, len(c.cfg.Roles))}
	for _, role := range c.cfg.Roles {
		m, ok := matches[role.Name]
		if !ok {
			m = Match{Role: role.Name, Required: role.Required, Threshold: role.Threshold}
		}
		rep.Matches[role.Name] = m

		switch {
		case role.Required && m.Found:
			rep.RequiredFound = append(rep.RequiredFound, role.Name)
		case role.Required:
			rep.RequiredMissing = append(rep.RequiredMissing, role.Name)
		case m.Found:
			rep.OptionalFound = append(rep.OptionalFound, role.Name)
		default:
			rep.OptionalMissing = append(rep.OptionalMissing, role.Name)
		}
	}

	sort.Strings(rep.RequiredFound)
	sort.Strings(rep.RequiredMissing)
	sort.Strings(rep.OptionalFound)
	sort.Strings(rep.OptionalMissing)

	rep.ValidationSuccess = len(rep.RequiredMissing) == 0
	rep.Recommendations = c.recommendations(rep)
	return rep
}

// bestMatch returns the highest-scoring (column, word, method) triple for a
// role. Strategy order breaks score ties, then column order keeps the
// result deterministic.
func (c *Classifier) bestMatch(role Role, headers []string) Match {
	best := Match{
		Role:      role.Name,
		Required:  role.Required,
		Threshold: role.Threshold,
	}
	for _, m := range c.matchers {
		for _, h := range headers {
			for _, w := range role.Words {
				score := m.Score(h, w)
				if score > best.Score {
					best.Column = h
					best.Score = score
					best.MatchedOn = w
					best.Method = m.Name()
				}
			}
		}
	}
	best.Found = best.Score >= role.Threshold && best.Column != ""
	return best
}

func (c *Classifier) recommendations(rep Report) []string {
	var out []string
	for _, name := range rep.RequiredMissing {
		out = append(out, fmt.Sprintf(
			"required role %q not found: add a column such as %s", name, exampleWords(c.cfg, name)))
	}
	for _, name := range rep.OptionalMissing {
		out = append(out, fmt.Sprintf(
			"optional role %q not found: analytics using it will be unavailable", name))
	}
	return out
}

func exampleWords(cfg Config, roleName string) string {
	for _, r := range cfg.Roles {
		if r.Name == roleName && len(r.Words) > 0 {
			n := len(r.Words)
			if n > 3 {
				n = 3
			}
			return `"` + strings.Join(r.Words[:n], `", "`) + `"`
		}
	}
	return ""
}

// ClassifyDatasetColumns is a convenience for callers holding a sanitized
// column mapping: original headers are scored, never the sanitized names.
func (c *Classifier) ClassifyDatasetColumns(mapping map[string]string) Report {
	headers := make([]string, 0, len(mapping))
	for orig := range mapping {
		if isSystemColumn(orig) {
			continue
		}
		headers = append(headers, orig)
	}
	sort.Strings(headers)
	return c.Classify(headers)
}

func isSystemColumn(name string) bool {
	switch name {
	case sanitize.SystemID, sanitize.SystemCreatedAt, sanitize.SystemUpdatedAt:
		return true
	}
	return strings.HasPrefix(name, "__sys_")
}
