package retrieval

import (
	"regexp"
	"strings"
	"unicode"
)

// contactTerms trigger contact-information enhancement when they appear as
// whole words, optionally inflected ("emails", "reached", "contacting").
var contactTerms = regexp.MustCompile(`\b(?:e-?mail|mail|phone|contact|address|reach)(?:s|es|ed|ing)?\b`)

// leadingNoise are capitalized words that start a name run without being part of the name.
var leadingNoise = map[string]struct{}{
	"email": {}, "mail": {}, "phone": {}, "contact": {}, "address": {}, "reach": {},
	"what": {}, "who": {}, "where": {}, "how": {}, "when": {}, "find": {}, "get": {},
	"show": {}, "give": {}, "tell": {}, "please": {}, "the": {}, "for": {}, "is": {},
	"can": {}, "i": {}, "need": {}, "info": {},
}

const contactSuffix = "contact information"

// EnhanceQuery lowercases query and, when it mentions contact details,
// appends the first detected proper name followed by "contact information".
func EnhanceQuery(query string) string {
	lower := strings.ToLower(query)
	if !mentionsContact(lower) {
		return lower
	}
	name := detectName(query)
	if name == "" {
		return lower
	}
	return lower + " " + name + " " + contactSuffix
}

func mentionsContact(lower string) bool {
	return contactTerms.MatchString(lower)
}

// detectName returns the first run of two or more capitalized words.
func detectName(query string) string {
	var run []string
	flush := func() string {
		for len(run) > 0 {
			if _, noise := leadingNoise[strings.ToLower(run[0])]; !noise {
				break
			}
			run = run[1:]
		}
		if len(run) >= 2 {
			return strings.Join(run, " ")
		}
		run = run[:0]
		return ""
	}

	for _, field := range strings.Fields(query) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && r != '\'' && r != '-'
		})
		trailingBreak := word != field && strings.ContainsAny(field[len(field)-1:], ",.;:?!")

		if isCapitalized(word) {
			run = append(run, word)
			if trailingBreak {
				if name := flush(); name != "" {
					return name
				}
			}
			continue
		}
		if name := flush(); name != "" {
			return name
		}
	}
	return flush()
}

func isCapitalized(word string) bool {
	if word == "" {
		return false
	}
	for i, r := range word {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return true
}

// SanitizePattern trims query and escapes every regex metacharacter,
// so keyword backends always receive a literal pattern.
func SanitizePattern(query string) string {
	return regexp.QuoteMeta(strings.TrimSpace(query))
}
