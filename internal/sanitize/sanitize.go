// internal/sanitize/sanitize.go
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/config"
)

// strippedSubtrees are removed together with everything inside them.
var strippedSubtrees = []string{
	"head", "script", "style", "noscript", "template",
	"nav", "footer", "header",
	"svg", "iframe", "object", "embed", "canvas",
}

// keptElements survive sanitization; everything else is unwrapped to its text.
var keptElements = []string{
	"html", "body", "main", "div", "span", "section", "article", "aside", "dialog",
	"a", "button", "form", "input", "select", "option", "label", "textarea", "fieldset", "legend",
	"h1", "h2", "h3", "h4", "h5", "h6", "p", "strong", "em", "b", "i", "small", "s", "del", "ins",
	"ul", "ol", "li", "dl", "dt", "dd",
	"table", "thead", "tbody", "tfoot", "tr", "th", "td",
	"img", "picture", "figure", "figcaption", "details", "summary",
}

var ariaAttributes = []string{
	"aria-label", "aria-labelledby", "aria-describedby", "aria-modal", "aria-hidden",
	"aria-expanded", "aria-controls", "aria-haspopup", "aria-live", "aria-checked",
	"aria-pressed", "aria-selected", "aria-disabled", "aria-current",
}

var blankLines = regexp.MustCompile(`\n[ \t\r]*(\n[ \t\r]*)+`)

// Result is the cleaned markup plus bookkeeping for logs.
type Result struct {
	HTML          string
	OriginalBytes int
	CleanBytes    int
	Truncated     bool
}

// Sanitizer reduces a rendered page to the structure a selector producer
// needs. It is safe for concurrent use.
type Sanitizer struct {
	policy   *bluemonday.Policy
	maxBytes int
	logger   *zap.Logger
}

// New builds a Sanitizer from configuration.
func New(cfg config.SanitizerConfig, logger *zap.Logger) *Sanitizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sanitizer{
		policy:   newPolicy(),
		maxBytes: cfg.MaxBytes,
		logger:   logger.Named("sanitizer"),
	}
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(keptElements...)
	p.AllowNoAttrs().OnElements(keptElements...)
	p.SkipElementsContent(strippedSubtrees...)

	p.AllowAttrs("id", "class", "role", "name", "title", "type", "value", "for", "placeholder", "alt").Globally()
	p.AllowAttrs(ariaAttributes...).Globally()
	p.AllowDataAttributes()
	p.AllowAttrs("checked", "disabled", "open", "hidden").Globally()

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("action", "method").OnElements("form")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto", "tel")
	return p
}

// Clean strips non-content subtrees, drops presentation and event-handler
// attributes, collapses blank lines and applies the optional byte cap.
func (s *Sanitizer) Clean(raw string) Result {
	cleaned := s.policy.Sanitize(raw)
	cleaned = strings.TrimSpace(blankLines.ReplaceAllString(cleaned, "\n"))

	res := Result{OriginalBytes: len(raw)}
	if s.maxBytes > 0 && len(cleaned) > s.maxBytes {
		cleaned = truncateUTF8(cleaned, s.maxBytes)
		res.Truncated = true
	}
	res.HTML = cleaned
	res.CleanBytes = len(cleaned)

	s.logger.Debug("Sanitized page markup",
		zap.Int("original_bytes", res.OriginalBytes),
		zap.Int("clean_bytes", res.CleanBytes),
		zap.Bool("truncated", res.Truncated),
	)
	return res
}

func truncateUTF8(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
