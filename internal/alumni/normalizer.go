// Package alumni normalizes scraped alumni profiles, derives their academic
// fields and filters the directory.
package alumni

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DegreeTier is a degree family the directory recognises.
type DegreeTier string

const (
	TierBTech DegreeTier = "BTech"
	TierMTech DegreeTier = "MTech"
	TierPhD   DegreeTier = "PhD"
)

// Tiers lists the degree tiers in display order.
var Tiers = []DegreeTier{TierBTech, TierMTech, TierPhD}

// DefaultInstitutionVariants are the spellings of the tracked institute.
var DefaultInstitutionVariants = []string{
	"IIIT-Naya Raipur",
	"IIIT Naya Raipur",
	"IIIT-NR",
	"IIIT NR",
	"iiitnr",
	"Dr. S.P.M. International Institute of Information Technology, Naya Raipur",
}

// BranchRule maps free-text keywords onto a canonical branch code.
type BranchRule struct {
	Canonical string
	Keywords  []string
}

// DefaultBranchRules are evaluated in order; the first matching rule wins.
var DefaultBranchRules = []BranchRule{
	{Canonical: "CSE", Keywords: []string{
		"computer science",
		"cse",
		"cs",
		"computer science and engineering",
		"computer science & engineering",
		"computer engineering",
		"computing",
		"computational",
	}},
	{Canonical: "ECE", Keywords: []string{
		"electronics",
		"ece",
		"electrical",
		"electronics and communication",
		"electronics & communication",
		"electronics and communication engineering",
		"electronics & communication engineering",
		"electrical and electronics",
		"electrical, electronics and communications",
		"communication engineering",
		"communications engineering",
		"vlsi",
		"embedded systems",
		"signal processing",
	}},
	{Canonical: "DSAI", Keywords: []string{
		"data science",
		"dsai",
		"ds",
		"ai",
		"artificial intelligence",
		"data science and artificial intelligence",
		"data science & artificial intelligence",
		"machine learning",
		"ml",
	}},
}

// DefaultDegreeCatalog lists the branches offered under each degree tier.
var DefaultDegreeCatalog = map[DegreeTier][]string{
	TierBTech: {"CSE", "DSAI", "ECE"},
	TierMTech: {
		"CSE (Data Science/AI)",
		"CSE (Information Security)",
		"ECE (VLSI & Embedded Systems)",
		"ECE (Communication & Signal Processing)",
	},
	TierPhD: {
		"Computer Science and Engineering",
		"Electronics and Communication Engineering",
		"Mathematics",
		"Management Studies",
		"Physics",
		"Humanities",
	},
}

// tokenKeywordLen is the longest keyword that must match a whole token.
// Shorter keywords such as "cs" or "ai" would otherwise hit inside
// unrelated words like "electronics" or "chain".
const tokenKeywordLen = 3

// Normalizer recognises the tracked institution and canonicalises branches.
// It is immutable and safe for concurrent use.
type Normalizer struct {
	variants []string
	rules    []BranchRule
}

// NewNormalizer builds a Normalizer. Empty arguments select the defaults.
func NewNormalizer(variants []string, rules []BranchRule) *Normalizer {
	if len(variants) == 0 {
		variants = DefaultInstitutionVariants
	}
	if len(rules) == 0 {
		rules = DefaultBranchRules
	}

	n := &Normalizer{variants: make([]string, 0, len(variants)), rules: lowerRules(rules)}
	for _, v := range variants {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			n.variants = append(n.variants, v)
		}
	}
	return n
}

func lowerRules(rules []BranchRule) []BranchRule {
	out := make([]BranchRule, 0, len(rules))
	for _, r := range rules {
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		out = append(out, BranchRule{Canonical: r.Canonical, Keywords: keywords})
	}
	return out
}

// IsKnownInstitution reports whether text equals or contains one of the
// institution variants, ignoring case.
func (n *Normalizer) IsKnownInstitution(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, v := range n.variants {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// NormalizeBranch returns the canonical branch code for text, or text
// unchanged when no rule matches.
func (n *Normalizer) NormalizeBranch(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return text
	}
	tokens := tokenize(lower)
	for _, r := range n.rules {
		if ruleMatches(r, lower, tokens) {
			return r.Canonical
		}
	}
	return text
}

func ruleMatches(r BranchRule, lower string, tokens map[string]struct{}) bool {
	for _, k := range r.Keywords {
		if keywordMatches(k, lower, tokens) {
			return true
		}
	}
	return false
}

func keywordMatches(keyword, lower string, tokens map[string]struct{}) bool {
	if len(keyword) <= tokenKeywordLen {
		_, ok := tokens[keyword]
		return ok
	}
	return strings.Contains(lower, keyword)
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

// ValidateBranchTable reports keywords that an earlier rule would claim
// before the rule that lists them, and keywords listed under two branches.
func ValidateBranchTable(rules []BranchRule) error {
	rules = lowerRules(rules)
	var errs []error
	owner := make(map[string]string)
	for i, r := range rules {
		for _, k := range r.Keywords {
			if prev, ok := owner[k]; ok && prev != r.Canonical {
				errs = append(errs, fmt.Errorf("keyword %q listed under %s and %s", k, prev, r.Canonical))
				continue
			}
			owner[k] = r.Canonical

			tokens := tokenize(k)
			for _, earlier := range rules[:i] {
				if earlier.Canonical != r.Canonical && ruleMatches(earlier, k, tokens) {
					errs = append(errs, fmt.Errorf("keyword %q of %s is shadowed by %s", k, r.Canonical, earlier.Canonical))
					break
				}
			}
		}
	}
	return errors.Join(errs...)
}

// DegreeTierOf classifies a degree label, returning "" for labels outside
// the recognised families.
func DegreeTierOf(label string) DegreeTier {
	lower := strings.ToLower(strings.TrimSpace(label))
	switch {
	case lower == "":
		return ""
	case containsAny(lower, "phd", "ph.d", "doctor of philosophy"):
		return TierPhD
	case containsAny(lower, "mtech", "m.tech", "master of technology"):
		return TierMTech
	case containsAny(lower, "btech", "b.tech", "bachelor of technology"):
		return TierBTech
	default:
		return ""
	}
}

// IsRelevantDegree reports whether label names a Bachelor's, Master's or
// Doctoral degree the directory tracks.
func IsRelevantDegree(label string) bool {
	return DegreeTierOf(label) != ""
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
