package conversation

import (
	"strings"
	"unicode"
)

var serviceStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "please": {}, "want": {}, "like": {}, "would": {}, "book": {},
	"booking": {}, "appointment": {}, "appt": {}, "schedule": {}, "reserve": {}, "get": {}, "can": {},
	"could": {}, "have": {}, "need": {}, "you": {}, "your": {}, "does": {}, "are": {}, "with": {},
	"one": {}, "some": {}, "this": {}, "that": {}, "next": {}, "today": {}, "tomorrow": {}, "week": {},
	"time": {}, "date": {}, "service": {}, "services": {}, "yes": {}, "yeah": {}, "okay": {}, "hello": {},
	"hey": {}, "thanks": {}, "thank": {}, "what": {}, "when": {}, "how": {}, "much": {}, "there": {},
	"let": {}, "lets": {}, "try": {}, "just": {}, "also": {}, "any": {}, "all": {}, "morning": {},
	"afternoon": {}, "evening": {}, "noon": {}, "about": {}, "make": {}, "set": {}, "offer": {},
	"cost": {}, "price": {}, "open": {},
}

// MatchServices returns the catalog services the text refers to. More than
// one result means the reference is ambiguous and must not be guessed.
func MatchServices(text string, catalog []Service) []Service {
	norm := normalizeText(text)
	if norm == "" || len(catalog) == 0 {
		return nil
	}
	padded := " " + norm + " "

	var named []Service
	for _, svc := range catalog {
		name := normalizeText(svc.Name)
		if name != "" && strings.Contains(padded, " "+name+" ") {
			named = append(named, svc)
		}
	}
	if len(named) > 0 {
		return dropShadowedNames(named)
	}

	words := significantTokens(norm)
	if len(words) == 0 {
		return nil
	}

	nameTokens := make([][]string, len(catalog))
	freq := make(map[string]int)
	for i, svc := range catalog {
		seen := make(map[string]struct{})
		for _, tok := range strings.Fields(normalizeText(svc.Name)) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			nameTokens[i] = append(nameTokens[i], tok)
			freq[tok]++
		}
	}

	distinctive := make([]int, len(catalog))
	generic := make([]int, len(catalog))
	best := 0
	for i, toks := range nameTokens {
		for _, tok := range toks {
			hit := false
			for _, w := range words {
				if tokenMatches(w, tok) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}
			if freq[tok] < len(catalog) {
				distinctive[i]++
			} else {
				generic[i]++
			}
		}
		if distinctive[i] > best {
			best = distinctive[i]
		}
	}

	var out []Service
	if best > 0 {
		for i, svc := range catalog {
			if distinctive[i] == best {
				out = append(out, svc)
			}
		}
		return out
	}
	for i, svc := range catalog {
		if generic[i] > 0 {
			out = append(out, svc)
		}
	}
	return out
}

// dropShadowedNames keeps "Deluxe Head Spa" over "Head Spa" when both appear.
func dropShadowedNames(named []Service) []Service {
	if len(named) < 2 {
		return named
	}
	out := make([]Service, 0, len(named))
	for i, svc := range named {
		name := " " + normalizeText(svc.Name) + " "
		shadowed := false
		for j, other := range named {
			otherName := " " + normalizeText(other.Name) + " "
			if i != j && len(otherName) > len(name) && strings.Contains(otherName, name) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, svc)
		}
	}
	return out
}

func tokenMatches(word, token string) bool {
	if word == token {
		return true
	}
	if len(word) >= 4 && strings.HasPrefix(token, word) {
		return true
	}
	if len(word) >= 5 && len(token) >= 5 && editDistanceAtMostOne(word, token) {
		return true
	}
	return false
}

func editDistanceAtMostOne(a, b string) bool {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(a)-len(b) > 1 {
		return false
	}
	i, j, edits := 0, 0, 0
	for i < len(a) && j < len(b) {
		if a[i] == b[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if len(a) == len(b) {
			j++
		}
		i++
	}
	return edits+(len(a)-i) <= 1
}

func significantTokens(norm string) []string {
	var out []string
	for _, tok := range strings.Fields(norm) {
		if len(tok) < 3 || strings.IndexFunc(tok, unicode.IsDigit) >= 0 {
			continue
		}
		if _, stop := serviceStopwords[tok]; stop {
			continue
		}
		if _, ok := weekdayNames[tok]; ok {
			continue
		}
		if _, ok := monthNames[tok]; ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// normalizeText lower-cases, drops apostrophes and turns other punctuation into spaces.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
