package trends

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z]{3,}`)

// stopWords are common words never treated as topics.
var stopWords = func() map[string]struct{} {
	words := strings.Fields(`the a an and or but in on at to for of is it
		this that with from by as are was were be been has have had do does
		did will would can could may might shall should not no so if then
		than too also just about up its my your his her our their what which
		who whom how when where why all each every both few more most other
		some such only own same into over after before between through
		during above below out off again further once here there these
		those am i me we they them he she you`)

	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// ExtractKeywords pulls candidate topics out of a title: lowercased
// alphabetic runs with stop words removed and tokens shorter than four
// letters dropped. Duplicates are kept so callers can count occurrences.
func ExtractKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(w) <= 3 {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}
