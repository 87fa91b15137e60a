// browser/dom/candidates.go
package dom

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// testIDAttributes are checked in order; the first present one wins.
var testIDAttributes = []string{"data-testid", "data-test-id", "data-test", "data-qa", "data-cy", "data-automation-id"}

const (
	maxDataAttributes = 2
	maxClassTokens    = 3
	maxAttrValueLen   = 64
	maxTextXPathLen   = 40
)

// candidate pairs a CSS selector with an equivalent XPath, so uniqueness can
// be checked with the XPath engine.
type candidate struct {
	css   string
	xpath string
}

// SelectorCandidates returns CSS and XPath selectors that match node and only
// node within root. CSS candidates come first in rough robustness order,
// followed by a text XPath when the text is short and the positional XPath.
func SelectorCandidates(root, node *html.Node) []string {
	if node == nil || node.Type != html.ElementNode {
		return nil
	}
	data := ExtractElementData(node)

	var out []string
	for _, c := range cssCandidates(data) {
		if CountMatches(root, c.xpath) == 1 {
			out = append(out, c.css)
		}
	}

	if text := data.TextContent; text != "" && len(text) <= maxTextXPathLen && !strings.HasSuffix(text, "...") {
		if xp := TextXPath(data.Tag, text); CountMatches(root, xp) == 1 {
			out = append(out, xp)
		}
	}
	if xp := GenerateUniqueXPath(node); CountMatches(root, xp) == 1 {
		out = append(out, xp)
	}
	return out
}

func cssCandidates(d ElementData) []candidate {
	var out []candidate

	for _, attr := range testIDAttributes {
		if v := d.Attributes[attr]; usableValue(v) {
			out = append(out, attrCandidate("", attr, v))
			break
		}
	}
	if v := d.Attributes["aria-label"]; usableValue(v) {
		out = append(out, attrCandidate(d.Tag, "aria-label", v))
	}
	if id := d.Attributes["id"]; IsStableToken(id) {
		out = append(out, candidate{css: "#" + id, xpath: fmt.Sprintf("//*[@id=%s]", XPathLiteral(id))})
	}

	dataAttrs := make([]string, 0, len(d.Attributes))
	for k, v := range d.Attributes {
		if strings.HasPrefix(k, "data-") && !isTestIDAttribute(k) && usableValue(v) && !strings.HasPrefix(strings.TrimSpace(v), "{") {
			dataAttrs = append(dataAttrs, k)
		}
	}
	sort.Strings(dataAttrs)
	for i, k := range dataAttrs {
		if i == maxDataAttributes {
			break
		}
		out = append(out, attrCandidate(d.Tag, k, d.Attributes[k]))
	}

	if name := d.Attributes["name"]; usableValue(name) {
		out = append(out, attrCandidate(d.Tag, "name", name))
	}

	var classes []string
	for _, cls := range strings.Fields(d.Attributes["class"]) {
		if IsStableToken(cls) {
			classes = append(classes, cls)
		}
		if len(classes) == maxClassTokens {
			break
		}
	}
	if len(classes) > 0 {
		conds := make([]string, len(classes))
		for i, cls := range classes {
			conds[i] = fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", cls)
		}
		out = append(out, candidate{
			css:   d.Tag + "." + strings.Join(classes, "."),
			xpath: fmt.Sprintf("//%s[%s]", d.Tag, strings.Join(conds, " and ")),
		})
	}
	return out
}

func attrCandidate(tag, attr, value string) candidate {
	xpTag := tag
	if xpTag == "" {
		xpTag = "*"
	}
	return candidate{
		css:   fmt.Sprintf(`%s[%s="%s"]`, tag, attr, cssEscape(value)),
		xpath: fmt.Sprintf("//%s[@%s=%s]", xpTag, attr, XPathLiteral(value)),
	}
}

func isTestIDAttribute(attr string) bool {
	for _, a := range testIDAttributes {
		if a == attr {
			return true
		}
	}
	return false
}

func usableValue(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && len(v) <= maxAttrValueLen && !strings.ContainsAny(v, "\n\r")
}

// cssEscape escapes a value for use inside a double-quoted CSS string.
func cssEscape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}
