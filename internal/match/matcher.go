// Package match scores debtor names against registered company names. Names
// are normalized (legal entity suffixes, abbreviations, and generic trailing
// words removed) and compared with an ensemble of string similarity measures;
// a weighted confidence decides whether two names refer to the same company.
package match

import (
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// DefaultThreshold is the minimum confidence for a high-confidence match.
const DefaultThreshold = 0.95

// Scores holds the individual similarity measures between two names, each in
// [0, 1].
type Scores struct {
	ExactMatch     float64
	CoreMatch      float64
	TokenOverlap   float64
	Ratio          float64
	PartialRatio   float64
	TokenSortRatio float64
	TokenSetRatio  float64
}

// Match is one accepted candidate for a debtor name.
type Match struct {
	Name       string
	Confidence float64
	Scores     Scores
}

// Matcher normalizes and compares company names. Safe for concurrent use;
// all state is read-only after construction.
type Matcher struct {
	abbreviations map[string]string
	countries     map[string]string
	entityWords   map[string]bool
	commonWords   map[string]bool
	stopWords     map[string]bool
}

// NewMatcher builds a matcher with the standard normalization tables.
func NewMatcher() *Matcher {
	return &Matcher{
		abbreviations: map[string]string{
			"intl": "international", "int": "international",
			"natl": "national", "nat": "national",
			"grp": "group", "tech": "technology", "techs": "technologies",
			"sys": "systems", "svcs": "services", "svc": "service",
			"sol": "solutions", "assoc": "associates", "assn": "association",
			"bros": "brothers", "ctr": "center", "comm": "communications",
			"mgmt": "management", "mfg": "manufacturing", "eng": "engineering",
			"equip": "equipment", "elec": "electric", "envir": "environmental",
			"dev": "development", "dist": "distributing", "distr": "distribution",
			"ent": "enterprises", "govt": "government", "hosp": "hospital",
			"inst": "institute", "labs": "laboratories", "maint": "maintenance",
			"med": "medical", "petro": "petroleum", "prod": "products",
			"pub": "publishing", "transp": "transportation", "univ": "university",
			"util": "utility", "utils": "utilities",
		},
		countries: map[string]string{
			"us": "united states", "usa": "united states",
			"uk": "united kingdom", "gb": "great britain",
			"uae": "united arab emirates",
		},
		entityWords: toSet("limited", "ltd", "inc", "incorporated", "llc", "llp",
			"corp", "corporation", "co", "company", "gmbh", "ag", "sa", "nv",
			"bv", "plc", "lp", "pllc", "pty", "pvt"),
		commonWords: toSet("group", "holdings", "international", "global", "world",
			"worldwide", "solutions", "services", "technologies", "systems",
			"industries", "products", "enterprises", "ventures", "partners",
			"consulting", "investment", "investments", "management", "financial",
			"capital", "bank", "trust", "trading", "media", "communications",
			"technology", "software", "networks", "network", "pharmaceuticals",
			"pharma", "healthcare", "medical", "research", "development",
			"energy", "resources", "property", "properties", "construction"),
		stopWords: toSet("the", "a", "an", "and", "of", "for", "in", "on", "at",
			"to", "by", "with"),
	}
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// preprocess lowercases a name, replaces punctuation with spaces (keeping
// hyphens), expands ampersands, and collapses whitespace.
func (m *Matcher) preprocess(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "&", " and ")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Normalize reduces a company name to its comparable form: abbreviations and
// country codes expanded, legal entity words removed, and generic trailing
// words (group, holdings, ...) stripped. A name that normalizes to the empty
// string carries no company signal (often a personal name or bare suffix).
func (m *Matcher) Normalize(name string) string {
	tokens := strings.Fields(m.preprocess(name))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if full, ok := m.abbreviations[tok]; ok {
			tok = full
		} else if full, ok := m.countries[tok]; ok {
			tok = full
		}
		if m.entityWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	for len(out) > 0 && m.commonWords[out[len(out)-1]] {
		out = out[:len(out)-1]
	}
	return strings.Join(out, " ")
}

// coreName strips stopwords and all generic company words from the normalized
// form, leaving only the distinctive part of the name.
func (m *Matcher) coreName(name string) string {
	var out []string
	for _, tok := range strings.Fields(m.Normalize(name)) {
		if m.stopWords[tok] || m.commonWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// tokenSet returns the non-stopword tokens of an already normalized name.
func (m *Matcher) tokenSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		if m.stopWords[tok] {
			continue
		}
		set[tok] = true
	}
	return set
}

// Score computes all similarity measures between two raw company names.
func (m *Matcher) Score(name1, name2 string) Scores {
	n1, n2 := m.Normalize(name1), m.Normalize(name2)
	c1, c2 := m.coreName(name1), m.coreName(name2)
	t1, t2 := m.tokenSet(n1), m.tokenSet(n2)

	var s Scores
	if n1 != "" && n1 == n2 {
		s.ExactMatch = 1
	}
	if c1 != "" && c1 == c2 {
		s.CoreMatch = 1
	}
	if len(t1) > 0 && len(t2) > 0 {
		shared := 0
		for tok := range t1 {
			if t2[tok] {
				shared++
			}
		}
		larger := len(t1)
		if len(t2) > larger {
			larger = len(t2)
		}
		s.TokenOverlap = float64(shared) / float64(larger)
	}
	s.Ratio = float64(fuzzy.Ratio(n1, n2)) / 100
	s.PartialRatio = float64(fuzzy.PartialRatio(n1, n2)) / 100
	s.TokenSortRatio = float64(fuzzy.TokenSortRatio(n1, n2)) / 100
	s.TokenSetRatio = float64(fuzzy.TokenSetRatio(n1, n2)) / 100
	return s
}

// Confidence combines the similarity measures into one score in [0, 1].
// Normalized or core-name equality short-circuits near the top; otherwise a
// weighted ensemble applies, boosted when token-level agreement is strong
// despite string-level differences (reordered or partially quoted names).
func (m *Matcher) Confidence(name1, name2 string) (float64, Scores) {
	s := m.Score(name1, name2)

	if s.ExactMatch == 1 {
		return 1, s
	}
	if s.CoreMatch == 1 && s.TokenOverlap > 0.8 {
		return 0.98, s
	}

	weighted := (0.15*s.ExactMatch + 0.15*s.CoreMatch + 0.15*s.TokenOverlap +
		0.1*s.Ratio + 0.1*s.PartialRatio + 0.15*s.TokenSortRatio +
		0.1*s.TokenSetRatio) / 0.9

	if s.TokenSetRatio > 0.95 && s.TokenOverlap > 0.8 && weighted < 0.96 {
		weighted = 0.96
	}
	if s.PartialRatio == 1 && s.TokenSortRatio > 0.9 && weighted < 0.97 {
		weighted = 0.97
	}
	return weighted, s
}

// BestMatch returns the candidate with the highest confidence at or above
// threshold, or nil when no candidate qualifies.
func (m *Matcher) BestMatch(query string, candidates []string, threshold float64) *Match {
	var best *Match
	for _, cand := range candidates {
		confidence, scores := m.Confidence(query, cand)
		if confidence < threshold {
			continue
		}
		if best == nil || confidence > best.Confidence {
			best = &Match{Name: cand, Confidence: confidence, Scores: scores}
		}
	}
	return best
}
