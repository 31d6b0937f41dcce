package util

import (
	"sort"
	"strings"
	"unicode"
)

var previewStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "is": {}, "are": {}, "all": {}, "each": {}, "every": {}, "list": {}, "extract": {},
	"return": {}, "give": {}, "with": {}, "from": {}, "json": {}, "array": {}, "objects": {},
}

// DisplaySnippet flattens whitespace and clips s to maxRunes for log lines and CLI tables.
func DisplaySnippet(s string, maxRunes int) string {
	return clipClean(s, maxRunes)
}

// SegmentPreview picks the sentences of a retrieved segment that best match the
// extraction prompt, so a reviewer can see why the segment was used.
func SegmentPreview(segment, prompt string, maxRunes int) string {
	segment = clipClean(segment, 4000)
	if segment == "" {
		return ""
	}
	terms := promptTerms(prompt)
	sentences := splitSentences(segment)
	if len(terms) == 0 || len(sentences) == 0 {
		return clipClean(segment, maxRunes)
	}

	type scored struct {
		text  string
		hits  int
		order int
	}
	list := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		low := strings.ToLower(s)
		hits := 0
		for _, term := range terms {
			if strings.Contains(low, term) {
				hits++
			}
		}
		list = append(list, scored{text: s, hits: hits, order: i})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].hits == list[j].hits {
			return list[i].order < list[j].order
		}
		return list[i].hits > list[j].hits
	})

	if list[0].hits == 0 {
		return clipClean(segment, maxRunes)
	}
	if len(list) > 1 && list[1].hits > 0 {
		return clipClean(list[0].text+" "+list[1].text, maxRunes)
	}
	return clipClean(list[0].text, maxRunes)
}

func splitSentences(s string) []string {
	out := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '|' {
			if x := strings.TrimSpace(b.String()); x != "" && x != "|" {
				out = append(out, x)
			}
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func promptTerms(s string) []string {
	fields := strings.Fields(strings.ToLower(clipClean(s, 2000)))
	seen := map[string]struct{}{}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",.;:!?()[]{}\"'`")
		if len(f) < 3 {
			continue
		}
		if _, ok := previewStopwords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func clipClean(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 240
	}
	s = strings.Join(strings.Fields(SanitizeText(s)), " ")
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsPrint(r) {
			out = append(out, r)
		}
	}
	if len(out) > maxRunes {
		return strings.TrimSpace(string(out[:maxRunes])) + "..."
	}
	return strings.TrimSpace(string(out))
}
