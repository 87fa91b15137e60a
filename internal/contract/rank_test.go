package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySelector(t *testing.T) {
	tests := []struct {
		selector string
		want     SelectorKind
	}{
		{"[data-testid='add-to-cart']", SelectorTestID},
		{"button[data-test=\"checkout\"]", SelectorTestID},
		{"[data-qa=accept]", SelectorTestID},
		{"button[aria-label='Accept all cookies']", SelectorAriaLabel},
		{"#onetrust-accept-btn-handler", SelectorID},
		{"button#accept", SelectorID},
		{"[id=\"cookie-accept\"]", SelectorID},
		{"[data-action='add-to-cart']", SelectorDataAttribute},
		{"button[data-test-variant='primary']", SelectorDataAttribute},
		{".btn.btn-primary", SelectorClassCombination},
		{"form.cart button[type=submit]", SelectorClassCombination},
		{"a.btn[href='#checkout']", SelectorClassCombination},
		{"//button[@id='accept']", SelectorXPath},
		{"(//a[contains(., 'Checkout')])[1]", SelectorXPath},
		{"./div/span", SelectorXPath},
		{"   ", SelectorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySelector(tt.selector))
		})
	}
}

func TestRankSelectorCandidate_Order(t *testing.T) {
	order := []SelectorKind{
		SelectorTestID,
		SelectorAriaLabel,
		SelectorID,
		SelectorDataAttribute,
		SelectorClassCombination,
		SelectorXPath,
		SelectorUnknown,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, RankSelectorCandidate(order[i-1]), RankSelectorCandidate(order[i]),
			"%s should outrank %s", order[i-1], order[i])
	}
}

func TestPriorityFor_StaysInRange(t *testing.T) {
	for k := SelectorUnknown; k <= SelectorXPath; k++ {
		p := PriorityFor(k)
		assert.GreaterOrEqual(t, p, MinPriority, k.String())
		assert.LessOrEqual(t, p, MaxPriority, k.String())
	}
	assert.Equal(t, 1, PriorityFor(SelectorTestID))
	assert.Equal(t, 5, PriorityFor(SelectorXPath))
}

func TestRankCandidates(t *testing.T) {
	got := RankCandidates([]string{
		".add-to-cart",
		"//button[@name='add']",
		"",
		"#add-btn",
		".single_add_to_cart_button",
		"[data-testid='add']",
		"#add-btn",
	})

	assert.Equal(t, []string{
		"[data-testid='add']",
		"#add-btn",
		".add-to-cart",
		".single_add_to_cart_button",
		"//button[@name='add']",
	}, got)
}

func TestBuildSelectorObject(t *testing.T) {
	so, err := BuildSelectorObject("button", "product form", []string{
		"//form//button[@type='submit']",
		".single_add_to_cart_button",
		"button[aria-label='Add to basket']",
		"//button[1]",
	})

	require.NoError(t, err)
	assert.Equal(t, "button", so.ElementType)
	assert.Equal(t, "product form", so.Location)
	assert.Equal(t, "button[aria-label='Add to basket']", so.Selectors.Primary)
	assert.Equal(t, []string{".single_add_to_cart_button"}, so.Selectors.Secondary)
	assert.Equal(t, "//form//button[@type='submit']", so.Selectors.XPath)
	assert.Equal(t, 1, so.Priority)
	assert.False(t, so.IsEmpty())
}

func TestBuildSelectorObject_XPathOnly(t *testing.T) {
	so, err := BuildSelectorObject("a", "header", []string{"//a[@href='/checkout']"})

	require.NoError(t, err)
	assert.Empty(t, so.Selectors.Primary)
	assert.Equal(t, "//a[@href='/checkout']", so.Selectors.XPath)
	assert.Equal(t, 5, so.Priority)
}

func TestBuildSelectorObject_NoCandidates(t *testing.T) {
	so, err := BuildSelectorObject("button", "banner", []string{"", "  "})

	assert.Nil(t, so)
	assert.ErrorIs(t, err, ErrEmptySelectorObject)
}

func TestBuildSelectorObject_PassesValidation(t *testing.T) {
	so, err := BuildSelectorObject("button", "banner", []string{"#accept", "[data-cy='accept']"})
	require.NoError(t, err)

	report := &AnalysisReport{
		URL:    "https://shop.example/",
		Status: StatusSuccess,
		Elements: Elements{
			HasCookieBanner: true,
			Cookies:         &CookieBlock{Accept: so},
		},
	}
	data, err := Marshal(report)
	require.NoError(t, err)

	got, err := ValidateJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "[data-cy='accept']", got.Elements.Cookies.Accept.Selectors.Primary)
	assert.Equal(t, []string{"#accept"}, got.Elements.Cookies.Accept.Selectors.Secondary)
}
