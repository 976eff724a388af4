// Package matcher finds doctors and departments mentioned in free text.
//
// Matching is whole-word: "ent" never matches inside "appointment". When
// several candidates could match, the first one in the given order wins.
package matcher

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
)

// minTokenLen is the shortest name token considered significant.
const minTokenLen = 3

// departmentAliases maps a shorthand the patient may type to word prefixes
// that identify the department it refers to.
var departmentAliases = map[string][]string{
	"ent":     {"ent", "ear", "otolaryngology"},
	"cardio":  {"cardio"},
	"ortho":   {"ortho"},
	"derma":   {"derma"},
	"pedia":   {"pedia", "paedia"},
	"general": {"general"},
	"skin":    {"derma"},
}

// FindMentionedDoctor returns the first doctor any of whose significant name
// tokens appears as a whole word in text.
func FindMentionedDoctor(text string, doctors []appointment.Doctor) (appointment.Doctor, bool) {
	words := Words(text)
	if len(words) == 0 {
		return appointment.Doctor{}, false
	}
	set := wordSet(words)

	for _, d := range doctors {
		for _, tok := range SignificantTokens(d.Name) {
			if set[tok] {
				return d, true
			}
		}
	}
	return appointment.Doctor{}, false
}

// FindMentionedDepartment checks the alias table first, then the full
// department name as a whole-word phrase.
func FindMentionedDepartment(text string, departments []appointment.Department) (appointment.Department, bool) {
	words := Words(text)
	if len(words) == 0 {
		return appointment.Department{}, false
	}
	set := wordSet(words)

	for _, dept := range departments {
		nameWords := Words(dept.Name)
		for alias, prefixes := range departmentAliases {
			if set[alias] && hasWordWithPrefix(nameWords, prefixes) {
				return dept, true
			}
		}
		if containsPhrase(words, nameWords) {
			return dept, true
		}
	}
	return appointment.Department{}, false
}

// Normalize lowercases s, trims it and drops a leading "Dr"/"Dr." honorific.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range []string{"dr.", "dr "} {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
			break
		}
	}
	return s
}

// SignificantTokens splits a normalized name into words longer than two runes.
func SignificantTokens(name string) []string {
	var out []string
	for _, w := range Words(Normalize(name)) {
		if utf8.RuneCountInString(w) >= minTokenLen && w != "dr" {
			out = append(out, w)
		}
	}
	return out
}

// Words lowercases text and splits it on anything that is not a letter,
// digit or combining mark.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func hasWordWithPrefix(words, prefixes []string) bool {
	for _, w := range words {
		for _, p := range prefixes {
			if strings.HasPrefix(w, p) {
				return true
			}
		}
	}
	return false
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(words); i++ {
		for j, p := range phrase {
			if words[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}
