// internal/producer/heuristic.go
package producer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/funnel-recon/internal/browser/dom"
	"github.com/xkilldash9x/funnel-recon/internal/config"
	"github.com/xkilldash9x/funnel-recon/internal/contract"
)

const (
	controlsXPath = "//button | //a | //input[@type='submit' or @type='button'] | //*[@role='button']"
	popupXPath    = "//dialog | //*[@role='dialog' or @role='alertdialog' or @aria-modal='true'] | " +
		"//*[contains(@class,'modal') or contains(@class,'popup') or contains(@class,'newsletter')]"
	maxPopups = 5
)

var (
	bannerMarkers = []string{"cookie", "consent", "gdpr", "onetrust", "cookiebot", "didomi", "cmp-", "cc-window"}

	rejectAllWords = []string{"reject all", "deny all", "refuse all", "decline all"}
	acceptAllWords = []string{"accept all", "allow all", "agree to all", "accept cookies", "allow cookies"}
	settingsWords  = []string{"settings", "preferences", "manage", "customi", "options"}
	declineWords   = []string{"decline", "reject", "deny", "refuse", "necessary only", "only necessary", "essential only"}
	acceptWords    = []string{"accept", "agree", "allow", "got it", "i understand"}
	acceptExact    = []string{"ok", "okay", "yes"}

	marketingWords  = []string{"marketing", "advertis", "targeting"}
	analyticsWords  = []string{"analytic", "performance", "statistic"}
	functionalWords = []string{"functional", "preference", "personalis", "personaliz"}

	addToCartWords = []string{"add to cart", "add to basket", "add to bag", "add-to-cart", "add_to_cart", "addtocart", "add-to-basket", "add_to_basket"}
	cartWords      = []string{"mini-cart", "minicart", "view cart", "view basket", "shopping cart", "basket", "cart", "bag"}
	cartPaths      = []string{"/cart", "/basket", "/bag"}
	checkoutWords  = []string{"checkout", "check out", "proceed to"}
	closeWords     = []string{"close", "dismiss", "no thanks", "not now", "×", "✕"}

	productPaths = []string{"/product/", "/products/", "/p/", "/item/"}
)

// HeuristicProducer maps a page from its raw markup without any external
// service. It finds controls by keyword and attribute matching and ranks
// selectors with the contract's ranking rules.
type HeuristicProducer struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewHeuristicProducer creates an offline producer.
func NewHeuristicProducer(logger *zap.Logger) *HeuristicProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeuristicProducer{logger: logger.Named("producer.heuristic"), now: time.Now}
}

func (p *HeuristicProducer) Name() string { return string(config.ProducerHeuristic) }

// Produce builds and serializes a report for the page.
func (p *HeuristicProducer) Produce(ctx context.Context, req Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	markup := req.RawHTML
	if markup == "" {
		markup = req.CleanHTML
	}
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	m := newPageMapper(root, req.URL)
	report := m.run()
	report.Timestamp = p.now().UTC().Truncate(time.Second)

	doc, err := contract.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize heuristic report: %w", err)
	}
	p.logger.Info("Heuristic mapping complete",
		zap.String("url", req.URL),
		zap.String("status", string(report.Status)),
		zap.Int("errors", len(report.Errors)),
	)
	return &Output{Document: doc, Raw: string(doc), Producer: p.Name()}, nil
}

type pageMapper struct {
	root     *html.Node
	pageURL  string
	base     *url.URL
	controls []dom.ElementData
	banner   *html.Node
	report   *contract.AnalysisReport
}

func newPageMapper(root *html.Node, pageURL string) *pageMapper {
	base, _ := url.Parse(pageURL)
	m := &pageMapper{
		root:    root,
		pageURL: pageURL,
		base:    base,
		report: &contract.AnalysisReport{
			URL:             pageURL,
			Notes:           []string{"Mapped from static markup; selectors are unique in the captured DOM but visibility was not verified."},
			Errors:          []contract.ErrorObject{},
			Recommendations: []string{},
		},
	}

	seen := make(map[*html.Node]bool)
	for _, n := range htmlquery.Find(root, controlsXPath) {
		if seen[n] || dom.IsHidden(n) {
			continue
		}
		seen[n] = true
		m.controls = append(m.controls, dom.ExtractElementData(n))
	}
	return m
}

func (m *pageMapper) run() *contract.AnalysisReport {
	m.mapCookies()
	m.mapProduct()
	m.mapCartAndCheckout()
	m.mapPopups()
	m.report.Status = m.status()
	return m.report
}

// -- Cookie banner --

func (m *pageMapper) mapCookies() {
	m.banner = m.findBanner()
	if m.banner == nil {
		m.report.Notes = append(m.report.Notes, "No cookie consent banner was found in the markup.")
		return
	}
	m.report.Elements.HasCookieBanner = true

	block := &contract.CookieBlock{}
	location := "cookie banner"
	if id := htmlquery.SelectAttr(m.banner, "id"); id != "" {
		location = fmt.Sprintf("cookie banner (#%s)", id)
	}

	slots := []struct {
		elementType string
		dst         **contract.SelectorObject
		words       []string
		exact       []string
	}{
		{"cookieRejectAll", &block.RejectAll, rejectAllWords, nil},
		{"cookieAcceptAll", &block.AcceptAll, acceptAllWords, nil},
		{"cookieSettings", &block.Settings, settingsWords, nil},
		{"cookieDecline", &block.Decline, declineWords, nil},
		{"cookieAccept", &block.Accept, acceptWords, acceptExact},
	}
	taken := make(map[*html.Node]bool)
	for _, c := range m.controls {
		if !isDescendant(c.Node, m.banner) {
			continue
		}
		label := controlLabel(c)
		for _, slot := range slots {
			if *slot.dst != nil || taken[c.Node] {
				continue
			}
			if containsAny(label, slot.words) || equalsAny(label, slot.exact) {
				*slot.dst = m.selectorFor(slot.elementType, location, c.Node)
				taken[c.Node] = true
			}
		}
	}

	block.MarketingChoices, block.AnalyticsChoices, block.FunctionalChoices = m.consentChoices()
	m.report.Elements.Cookies = block

	if block.Accept == nil && block.AcceptAll == nil {
		m.missing("cookies.accept", "a consent banner is present but no accept control was recognized",
			"Inspect the banner after it renders; the controls may be injected from an iframe or shadow root.")
	}
	if block.AcceptAll != nil && block.RejectAll == nil {
		m.report.Notes = append(m.report.Notes, "The banner offers accept-all without a matching reject-all control.")
	}
}

func (m *pageMapper) findBanner() *html.Node {
	for _, n := range htmlquery.Find(m.root, "//*[@id or @class or @aria-label or @data-testid]") {
		if dom.IsHidden(n) || isControlTag(n.Data) || !hasConsentMarker(n) {
			continue
		}
		for _, c := range m.controls {
			if c.Node != n && isDescendant(c.Node, n) {
				return n
			}
		}
	}
	return nil
}

func hasConsentMarker(n *html.Node) bool {
	attrs := strings.ToLower(strings.Join([]string{
		htmlquery.SelectAttr(n, "id"),
		htmlquery.SelectAttr(n, "class"),
		htmlquery.SelectAttr(n, "aria-label"),
		htmlquery.SelectAttr(n, "data-testid"),
	}, " "))
	return containsAny(attrs, bannerMarkers)
}

func isControlTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "a", "button", "input", "label", "html", "body":
		return true
	}
	return false
}

// consentChoices only looks at toggles inside the banner or its settings
// panel, so a newsletter opt-in elsewhere on the page does not count.
func (m *pageMapper) consentChoices() (marketing, analytics, functional bool) {
	panels := m.settingsPanels()
	toggles := htmlquery.Find(m.root, "//input[@type='checkbox'] | //*[@role='switch'] | //*[@role='checkbox']")
	for _, n := range toggles {
		if !m.inConsentScope(n, panels) {
			continue
		}
		desc := m.toggleDescriptor(n)
		marketing = marketing || containsAny(desc, marketingWords)
		analytics = analytics || containsAny(desc, analyticsWords)
		functional = functional || containsAny(desc, functionalWords)
	}
	return marketing, analytics, functional
}

// settingsPanels returns the elements the banner's controls point at through
// aria-controls.
func (m *pageMapper) settingsPanels() []*html.Node {
	var panels []*html.Node
	for _, c := range m.controls {
		if !isDescendant(c.Node, m.banner) {
			continue
		}
		for _, id := range strings.Fields(htmlquery.SelectAttr(c.Node, "aria-controls")) {
			if panel := htmlquery.FindOne(m.root, "//*[@id="+dom.XPathLiteral(id)+"]"); panel != nil {
				panels = append(panels, panel)
			}
		}
	}
	return panels
}

// inConsentScope reports whether n sits in the banner, in a panel it controls
// or under any element that carries a consent marker, such as a hidden
// preference center rendered next to the banner.
func (m *pageMapper) inConsentScope(n *html.Node, panels []*html.Node) bool {
	for _, panel := range append([]*html.Node{m.banner}, panels...) {
		if isDescendant(n, panel) {
			return true
		}
	}
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data != "html" && p.Data != "body" && hasConsentMarker(p) {
			return true
		}
	}
	return false
}

func (m *pageMapper) toggleDescriptor(n *html.Node) string {
	d := dom.ExtractElementData(n)
	parts := []string{d.Descriptor()}
	if id := d.Attributes["id"]; id != "" {
		if label := htmlquery.FindOne(m.root, "//label[@for="+dom.XPathLiteral(id)+"]"); label != nil {
			parts = append(parts, htmlquery.InnerText(label))
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "label") {
			parts = append(parts, htmlquery.InnerText(p))
			break
		}
	}
	if n.Parent != nil {
		text := strings.Join(strings.Fields(htmlquery.InnerText(n.Parent)), " ")
		if len(text) > 160 {
			text = text[:160]
		}
		parts = append(parts, text)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// -- Product --

func (m *pageMapper) mapProduct() {
	block := &contract.ProductBlock{}

	if add := m.firstControl(func(c dom.ElementData) bool {
		return containsAny(c.Descriptor(), addToCartWords)
	}); add != nil {
		block.AddToCart = m.selectorFor("addToCart", "product page", add)
	}
	block.Price = m.firstMatch("price", "product summary",
		"//*[@itemprop='price']",
		"//*[@data-testid and contains(@data-testid,'price')]",
		"//*[contains(@class,'price')]",
	)
	block.Stock = m.firstMatch("stock", "product summary",
		"//*[@itemprop='availability']",
		"//*[contains(@class,'stock')]",
		"//*[contains(@class,'availability')]",
	)

	switch {
	case m.isProductPage():
		block.URL = m.pageURL
	default:
		if link := m.productLink(); link != "" {
			block.URL = link
		} else if block.AddToCart != nil {
			block.URL = m.pageURL
		}
	}

	if block.URL == "" && block.AddToCart == nil && block.Price == nil && block.Stock == nil {
		m.missing("product", "no product link or product detail controls were found",
			"Run the analysis against a product detail page URL.")
		return
	}
	if block.URL == "" {
		m.missing("product.url", "no product detail link was found", "Pass a product detail URL explicitly.")
	}
	if block.AddToCart == nil {
		m.missing("product.addToCart", "no add-to-cart control was found on this page",
			"Analyze a product detail page; listing pages often render add-to-cart on hover only.")
	}
	m.report.Elements.Product = block
}

func (m *pageMapper) isProductPage() bool {
	if htmlquery.FindOne(m.root, "//*[@itemtype and contains(@itemtype,'schema.org/Product')]") != nil {
		return true
	}
	if htmlquery.FindOne(m.root, "//meta[@property='og:type' and @content='product']") != nil {
		return true
	}
	body := htmlquery.FindOne(m.root, "//body")
	if body != nil {
		cls := strings.ToLower(htmlquery.SelectAttr(body, "class"))
		return strings.Contains(cls, "single-product") || strings.Contains(cls, "product-template")
	}
	return false
}

func (m *pageMapper) productLink() string {
	for _, c := range m.controls {
		if c.Tag != "a" {
			continue
		}
		href := strings.TrimSpace(c.Attributes["href"])
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		lower := strings.ToLower(href)
		if containsAny(lower, productPaths) || strings.Contains(strings.ToLower(c.Attributes["class"]), "product") {
			return m.resolve(href)
		}
	}
	return ""
}

// -- Cart & checkout --

func (m *pageMapper) mapCartAndCheckout() {
	var add *contract.SelectorObject
	if m.report.Elements.Product != nil {
		add = m.report.Elements.Product.AddToCart
	}

	cartNode := m.firstControl(func(c dom.ElementData) bool {
		desc := c.Descriptor()
		if containsAny(desc, addToCartWords) || containsAny(desc, checkoutWords) {
			return false
		}
		if href := strings.ToLower(c.Attributes["href"]); href != "" {
			u, err := url.Parse(href)
			if err == nil && containsAny(u.Path, cartPaths) && !strings.Contains(u.Path, "/add") {
				return true
			}
		}
		return containsAny(controlLabel(c), cartWords) || containsAny(strings.ToLower(c.Attributes["class"]+" "+c.Attributes["id"]), []string{"mini-cart", "minicart", "cart-link", "header-cart"})
	})
	var cart *contract.SelectorObject
	if cartNode != nil {
		cart = m.selectorFor("cart", "site header", cartNode)
	}

	checkoutNode := m.firstControl(func(c dom.ElementData) bool {
		return containsAny(c.Descriptor(), checkoutWords)
	})
	var checkout *contract.SelectorObject
	if checkoutNode != nil {
		checkout = m.selectorFor("checkout", "cart summary", checkoutNode)
	}

	if add != nil || cart != nil {
		m.report.Elements.AddToCart = &contract.CartBlock{Button: add, Cart: cart}
	}
	if checkout != nil || cart != nil {
		m.report.Elements.Checkout = &contract.CheckoutBlock{Button: checkout, Cart: cart}
	}
	if cart == nil {
		m.missing("addtocart.cart", "no cart or basket link was found", "The mini-cart may be rendered after add-to-cart; re-run after adding a product.")
	}
	if checkout == nil {
		m.missing("checkout.button", "no checkout control was found on this page",
			"Checkout entry points usually appear in the cart drawer or on the cart page.")
	}
}

// -- Popups --

func (m *pageMapper) mapPopups() {
	var picked []*html.Node
	for _, n := range htmlquery.Find(m.root, popupXPath) {
		if len(picked) == maxPopups {
			break
		}
		if m.banner != nil && (isDescendant(n, m.banner) || isDescendant(m.banner, n)) {
			continue
		}
		nested := false
		for _, p := range picked {
			if isDescendant(n, p) || n == p {
				nested = true
				break
			}
		}
		if nested {
			continue
		}
		picked = append(picked, n)
	}

	popups := make([]contract.PopupObject, 0, len(picked))
	for _, n := range picked {
		trigger := "visible on page load"
		if dom.IsHidden(n) {
			trigger = "present in markup but hidden; shown by script"
		}
		dismissal := "no dismissal control found"
		for _, c := range htmlquery.Find(n, ".//button | .//a | .//*[@role='button']") {
			d := dom.ExtractElementData(c)
			if containsAny(controlLabel(d), closeWords) || containsAny(strings.ToLower(d.Attributes["class"]), []string{"close", "dismiss"}) {
				if cands := dom.SelectorCandidates(m.root, c); len(cands) > 0 {
					dismissal = "click " + contract.RankCandidates(cands)[0]
				}
				break
			}
		}
		popups = append(popups, contract.PopupObject{Trigger: trigger, Dismissal: dismissal})
	}
	m.report.Elements.Popups = popups
}

// -- Helpers --

// selectorFor builds the selector object for a located control and records
// an error when no unique selector exists.
func (m *pageMapper) selectorFor(elementType, location string, n *html.Node) *contract.SelectorObject {
	so := m.build(elementType, location, n)
	if so == nil {
		m.missing(elementType, "the element was found but no unique selector could be derived", "Add a data-testid attribute to the element.")
	}
	return so
}

func (m *pageMapper) build(elementType, location string, n *html.Node) *contract.SelectorObject {
	so, err := contract.BuildSelectorObject(elementType, location, dom.SelectorCandidates(m.root, n))
	if err != nil {
		return nil
	}
	if so.Priority >= 4 {
		best := so.Selectors.Primary
		if best == "" {
			best = so.Selectors.XPath
		}
		m.report.Recommendations = append(m.report.Recommendations,
			fmt.Sprintf("Add a data-testid to the %s element; the best available selector (%s) is fragile.", elementType, best))
	}
	return so
}

func (m *pageMapper) firstControl(match func(dom.ElementData) bool) *html.Node {
	for _, c := range m.controls {
		if m.banner != nil && isDescendant(c.Node, m.banner) {
			continue
		}
		if match(c) {
			return c.Node
		}
	}
	return nil
}

func (m *pageMapper) firstMatch(elementType, location string, xpaths ...string) *contract.SelectorObject {
	for _, xp := range xpaths {
		for _, n := range htmlquery.Find(m.root, xp) {
			if dom.IsHidden(n) {
				continue
			}
			if elementType == "price" && !strings.ContainsAny(htmlquery.InnerText(n)+htmlquery.SelectAttr(n, "content"), "0123456789") {
				continue
			}
			if so := m.build(elementType, location, n); so != nil {
				return so
			}
		}
	}
	return nil
}

func (m *pageMapper) missing(element, message, suggestion string) {
	m.report.Errors = append(m.report.Errors, contract.ErrorObject{Element: element, Message: message, Suggestion: suggestion})
}

func (m *pageMapper) status() contract.Status {
	e := m.report.Elements
	steps := []bool{
		e.Product != nil && e.Product.URL != "",
		e.Product != nil && e.Product.AddToCart != nil,
		e.AddToCart != nil && e.AddToCart.Cart != nil,
		e.Checkout != nil && e.Checkout.Button != nil,
	}
	if e.HasCookieBanner {
		steps = append(steps, e.Cookies.Accept != nil || e.Cookies.AcceptAll != nil)
	}
	found := 0
	for _, ok := range steps {
		if ok {
			found++
		}
	}
	switch found {
	case len(steps):
		return contract.StatusSuccess
	case 0:
		return contract.StatusFailed
	}
	return contract.StatusPartial
}

func (m *pageMapper) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil || m.base == nil {
		return href
	}
	return m.base.ResolveReference(ref).String()
}

// controlLabel is the human-facing label of a control, lower-cased.
func controlLabel(c dom.ElementData) string {
	label := strings.TrimSpace(strings.ToLower(strings.Join([]string{
		c.TextContent, c.Attributes["aria-label"], c.Attributes["title"],
	}, " ")))
	if label == "" && c.Tag == "input" {
		label = strings.ToLower(c.Attributes["value"])
	}
	return label
}

func isDescendant(n, ancestor *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func equalsAny(s string, words []string) bool {
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}
