package transformer

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const handoutMarker = "handout"

// DefaultLanguageAliases covers names whose CLDR English display name
// differs from the name used in the export ("Bangla", "Persian").
var DefaultLanguageAliases = map[string]string{
	"bengali": "bn",
	"farsi":   "fa",
}

// Language is one row of the languages dimension.
type Language struct {
	Code string // ISO 639-1
	Name string // handout token, e.g. "english"
}

// HandoutColumn is a handout URL column and the language token it carries.
type HandoutColumn struct {
	Column string
	Token  string
}

// LanguageResolver maps English language names to ISO 639-1 codes.
type LanguageResolver struct {
	byName  map[string]string
	aliases map[string]string
}

var englishNames = sync.OnceValue(buildEnglishNameIndex)

// buildEnglishNameIndex indexes every two-letter base language by its
// lowercased English display name. Deprecated codes that canonicalize to
// another code (iw -> he) are skipped.
func buildEnglishNameIndex() map[string]string {
	namer := display.English.Languages()
	idx := make(map[string]string, 200)
	for a := 'a'; a <= 'z'; a++ {
		for b := 'a'; b <= 'z'; b++ {
			code := string([]rune{a, b})
			base, err := language.ParseBase(code)
			if err != nil || base.String() != code {
				continue
			}
			name := strings.ToLower(namer.Name(base))
			if name == "" {
				continue
			}
			if _, dup := idx[name]; !dup {
				idx[name] = code
			}
		}
	}
	return idx
}

// NewLanguageResolver returns a resolver over the CLDR English names plus
// aliases. A nil aliases map uses DefaultLanguageAliases.
func NewLanguageResolver(aliases map[string]string) *LanguageResolver {
	if aliases == nil {
		aliases = DefaultLanguageAliases
	}
	norm := make(map[string]string, len(aliases))
	for k, v := range aliases {
		norm[Normalize(k)] = Normalize(v)
	}
	return &LanguageResolver{byName: englishNames(), aliases: norm}
}

// Resolve returns the two-letter code for an English language name.
func (r *LanguageResolver) Resolve(name string) (string, bool) {
	name = Normalize(name)
	if name == "" {
		return "", false
	}
	if code, ok := r.aliases[name]; ok {
		return code, true
	}
	code, ok := r.byName[name]
	return code, ok
}

// HandoutToken derives the language token from a handout column name.
//
//	handout           -> english
//	handout_french    -> french
//	chinese_handout   -> chinese
//	handout_old_norse -> old norse
func HandoutToken(col string) string {
	var tok string
	switch {
	case col == handoutMarker:
	case strings.HasPrefix(col, handoutMarker+"_"):
		tok = strings.TrimPrefix(col, handoutMarker+"_")
	case strings.HasSuffix(col, "_"+handoutMarker):
		tok = strings.TrimSuffix(col, "_"+handoutMarker)
	default:
		tok = strings.Trim(strings.Replace(col, handoutMarker, "", 1), "_")
	}
	tok = Normalize(strings.ReplaceAll(tok, "_", " "))
	if tok == "" {
		return "english"
	}
	return tok
}

// HandoutColumns lists every column whose name contains "handout", in column
// order.
func HandoutColumns(t *Table) []HandoutColumn {
	var out []HandoutColumn
	for _, c := range t.Columns {
		if strings.Contains(c, handoutMarker) {
			out = append(out, HandoutColumn{Column: c, Token: HandoutToken(c)})
		}
	}
	return out
}

// checkHandoutTokens fails on the first language token claimed by more than
// one handout column.
func checkHandoutTokens(t *Table) error {
	byToken := make(map[string][]string)
	var order []string
	for _, hc := range HandoutColumns(t) {
		if _, ok := byToken[hc.Token]; !ok {
			order = append(order, hc.Token)
		}
		byToken[hc.Token] = append(byToken[hc.Token], hc.Column)
	}
	for _, tok := range order {
		if cols := byToken[tok]; len(cols) > 1 {
			return &HandoutColumnConflictError{Token: tok, Columns: cols}
		}
	}
	return nil
}

// ExtractLanguages resolves every handout column to a Language, in column
// order and deduplicated by code (first wins). Any unresolvable token fails
// the whole extraction with *LanguageResolutionError.
func ExtractLanguages(t *Table, r *LanguageResolver) ([]Language, error) {
	if r == nil {
		r = NewLanguageResolver(nil)
	}

	out := []Language{}
	seen := make(map[string]bool)
	for _, hc := range HandoutColumns(t) {
		code, ok := r.Resolve(hc.Token)
		if !ok {
			return nil, &LanguageResolutionError{Column: hc.Column, Token: hc.Token}
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, Language{Code: code, Name: hc.Token})
	}
	return out, nil
}
