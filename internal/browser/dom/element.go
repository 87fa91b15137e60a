// browser/dom/element.go
package dom

import (
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const maxTextLen = 64

// ElementData holds essential information about a DOM node.
type ElementData struct {
	Node        *html.Node
	Tag         string
	Attributes  map[string]string
	TextContent string
}

// ExtractElementData reads the tag, attributes and truncated text of a node.
func ExtractElementData(node *html.Node) ElementData {
	attrs := make(map[string]string, len(node.Attr))
	for _, attr := range node.Attr {
		attrs[strings.ToLower(attr.Key)] = attr.Val
	}

	text := strings.Join(strings.Fields(htmlquery.InnerText(node)), " ")
	if len(text) > maxTextLen {
		text = truncate(text, maxTextLen)
	}
	if text == "" && strings.EqualFold(node.Data, "input") {
		text = strings.TrimSpace(attrs["value"])
	}

	return ElementData{
		Node:        node,
		Tag:         strings.ToLower(node.Data),
		Attributes:  attrs,
		TextContent: text,
	}
}

// Descriptor is the lower-cased text plus the identifying attributes, used for
// keyword matching.
func (d ElementData) Descriptor() string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(d.TextContent))
	for _, key := range []string{"id", "class", "name", "aria-label", "title", "value", "href", "data-testid", "data-action"} {
		if v := d.Attributes[key]; v != "" {
			sb.WriteByte(' ')
			sb.WriteString(strings.ToLower(v))
		}
	}
	return sb.String()
}

// IsHidden reports whether the markup itself hides the node or an ancestor.
// Stylesheets are not evaluated.
func IsHidden(node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if htmlquery.ExistsAttr(n, "hidden") || htmlquery.SelectAttr(n, "aria-hidden") == "true" {
			return true
		}
		if strings.EqualFold(n.Data, "input") && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(n, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

var generatedToken = regexp.MustCompile(`[0-9]{4,}|^(?:css|sc|jsx|emotion|svelte)-|__[A-Za-z0-9]{5,}$|^[0-9a-f]{8}-[0-9a-f]{4}-`)

var cssIdent = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)

// IsStableToken reports whether an id or class looks hand-written rather than
// generated by a build tool or framework.
func IsStableToken(token string) bool {
	return token != "" && cssIdent.MatchString(token) && !generatedToken.MatchString(token)
}

func truncate(s string, n int) string {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
