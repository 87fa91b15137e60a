package contract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// SelectorKind is the robustness class of a selector string.
type SelectorKind int

const (
	SelectorUnknown SelectorKind = iota
	SelectorTestID
	SelectorAriaLabel
	SelectorID
	SelectorDataAttribute
	SelectorClassCombination
	SelectorXPath
)

func (k SelectorKind) String() string {
	switch k {
	case SelectorTestID:
		return "test-id"
	case SelectorAriaLabel:
		return "aria-label"
	case SelectorID:
		return "id"
	case SelectorDataAttribute:
		return "data-attribute"
	case SelectorClassCombination:
		return "class-combination"
	case SelectorXPath:
		return "xpath"
	}
	return "unknown"
}

const unranked = 7

var (
	testIDPattern = regexp.MustCompile(`\[\s*data-(?:testid|test-id|test|qa|cy|automation-id|automation)\s*(?:[~|^$*]?=|\])`)
	ariaPattern   = regexp.MustCompile(`\[\s*aria-label\s*(?:[~|^$*]?=|\])`)
	idPattern     = regexp.MustCompile(`^(?:[a-zA-Z][\w-]*)?#[\w-]+|\[\s*id\s*=`)
	dataPattern   = regexp.MustCompile(`\[\s*data-[\w-]+`)
)

// RankSelectorCandidate orders selector kinds from most to least robust,
// 1 being best. Unknown kinds sort last.
func RankSelectorCandidate(kind SelectorKind) int {
	switch kind {
	case SelectorTestID:
		return 1
	case SelectorAriaLabel:
		return 2
	case SelectorID:
		return 3
	case SelectorDataAttribute:
		return 4
	case SelectorClassCombination:
		return 5
	case SelectorXPath:
		return 6
	}
	return unranked
}

// PriorityFor maps a selector kind onto the 1..5 priority scale carried by a
// SelectorObject.
func PriorityFor(kind SelectorKind) int {
	switch kind {
	case SelectorTestID, SelectorAriaLabel:
		return 1
	case SelectorID:
		return 2
	case SelectorDataAttribute:
		return 3
	case SelectorClassCombination:
		return 4
	}
	return MaxPriority
}

// ClassifySelector guesses the kind of a CSS or XPath selector. Any CSS that
// matches none of the attribute forms is treated as a structural class
// combination.
func ClassifySelector(selector string) SelectorKind {
	s := strings.TrimSpace(selector)
	switch {
	case s == "":
		return SelectorUnknown
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "./"), strings.HasPrefix(s, "("):
		return SelectorXPath
	case testIDPattern.MatchString(s):
		return SelectorTestID
	case ariaPattern.MatchString(s):
		return SelectorAriaLabel
	case idPattern.MatchString(s):
		return SelectorID
	case dataPattern.MatchString(s):
		return SelectorDataAttribute
	}
	return SelectorClassCombination
}

// RankCandidates drops blanks and duplicates and sorts the rest by robustness.
// Candidates of equal rank keep their input order.
func RankCandidates(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return RankSelectorCandidate(ClassifySelector(out[i])) < RankSelectorCandidate(ClassifySelector(out[j]))
	})
	return out
}

// BuildSelectorObject ranks the candidates and fills primary, secondary and
// xpath from them. The best CSS candidate becomes primary, the remaining CSS
// candidates become fallbacks and the first XPath candidate fills xpath.
// Priority follows the best candidate overall.
func BuildSelectorObject(elementType, location string, candidates []string) (*SelectorObject, error) {
	ranked := RankCandidates(candidates)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("build %s selector: %w", elementType, ErrEmptySelectorObject)
	}

	so := &SelectorObject{
		ElementType: elementType,
		Location:    location,
		Priority:    PriorityFor(ClassifySelector(ranked[0])),
		Selectors:   Selectors{Secondary: []string{}},
	}
	for _, c := range ranked {
		if ClassifySelector(c) == SelectorXPath {
			if so.Selectors.XPath == "" {
				so.Selectors.XPath = c
			}
			continue
		}
		if so.Selectors.Primary == "" {
			so.Selectors.Primary = c
			continue
		}
		so.Selectors.Secondary = append(so.Selectors.Secondary, c)
	}
	return so, nil
}
