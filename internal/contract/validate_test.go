package contract

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/grass_direct.json")
	require.NoError(t, err)
	return data
}

func fixtureCandidate(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, decodeAPI.Unmarshal(loadFixture(t), &m))
	return m
}

func dig(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		m = m[k].(map[string]any)
	}
	return m
}

func requireViolations(t *testing.T, err error) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
	return verr
}

func findViolation(verr *ValidationError, path string) (Violation, bool) {
	for _, v := range verr.Violations {
		if v.Path == path {
			return v, true
		}
	}
	return Violation{}, false
}

func TestValidateJSON_Fixture(t *testing.T) {
	report, err := ValidateJSON(loadFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "https://www.grass-direct.co.uk/", report.URL)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), report.Timestamp)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, "manual", report.Extra["producer"])

	el := report.Elements
	assert.True(t, el.HasCookieBanner)
	require.NotNil(t, el.Cookies)
	assert.Nil(t, el.Cookies.Decline, "null slot means not found")
	assert.Nil(t, el.Cookies.AcceptAll, "absent slot means not found")
	require.NotNil(t, el.Cookies.Accept)
	assert.Equal(t, 2, el.Cookies.Accept.Priority)
	assert.Equal(t, "#onetrust-accept-btn-handler", el.Cookies.Accept.Selectors.Primary)
	assert.Equal(t, []string{}, el.Cookies.Settings.Selectors.Secondary)

	require.NotNil(t, el.Product)
	require.NotNil(t, el.Product.Price)
	assert.Contains(t, el.Product.Price.Extra, "confidence")
	assert.Nil(t, el.Product.Stock)

	require.Len(t, el.Popups, 2)
	assert.Nil(t, el.Popups[0].FrequencyLimit)
	require.NotNil(t, el.Popups[1].FrequencyLimit)
	assert.Equal(t, "", *el.Popups[1].FrequencyLimit)
}

func TestValidateReport_MissingStatus(t *testing.T) {
	c := fixtureCandidate(t)
	delete(c, "status")

	report, err := ValidateReport(c)

	assert.Nil(t, report)
	verr := requireViolations(t, err)
	v, ok := findViolation(verr, "status")
	require.True(t, ok, "violations: %v", verr.Paths())
	assert.Equal(t, KindMissingField, v.Kind)
	assert.NotErrorIs(t, err, ErrEmptySelectorObject)
}

func TestValidateReport_PriorityOutOfRange(t *testing.T) {
	c := fixtureCandidate(t)
	dig(c, "elements", "cookies")["acceptAll"] = map[string]any{
		"elementType": "button",
		"selectors":   map[string]any{"primary": "#accept-all"},
		"location":    "banner",
		"priority":    7,
	}

	_, err := ValidateReport(c)

	verr := requireViolations(t, err)
	require.Len(t, verr.Violations, 1)
	v := verr.Violations[0]
	assert.Equal(t, "elements.cookies.acceptAll.priority", v.Path)
	assert.Equal(t, KindOutOfRange, v.Kind)
	assert.Equal(t, "integer between 1 and 5", v.Expected)
	assert.Contains(t, err.Error(), "elements.cookies.acceptAll.priority")
}

func TestValidateReport_EmptySelectorObject(t *testing.T) {
	for _, priority := range []int{1, 3, 5} {
		c := fixtureCandidate(t)
		dig(c, "elements", "cookies")["accept"] = map[string]any{
			"elementType": "button",
			"selectors": map[string]any{
				"primary":   "",
				"secondary": []any{},
				"xpath":     "",
			},
			"location": "banner",
			"priority": priority,
		}

		_, err := ValidateReport(c)

		verr := requireViolations(t, err)
		assert.ErrorIs(t, err, ErrEmptySelectorObject)
		v, ok := findViolation(verr, "elements.cookies.accept.selectors")
		require.True(t, ok)
		assert.Equal(t, KindEmptySelectorObject, v.Kind)
	}
}

func TestValidateReport_MissingSelectorsIsEmptySelectorObject(t *testing.T) {
	c := fixtureCandidate(t)
	delete(dig(c, "elements", "checkout", "button"), "selectors")

	_, err := ValidateReport(c)

	requireViolations(t, err)
	assert.ErrorIs(t, err, ErrEmptySelectorObject)
}

func TestValidateReport_CollectsEveryViolation(t *testing.T) {
	c := fixtureCandidate(t)
	delete(c, "status")
	c["url"] = ""
	dig(c, "elements", "addtocart", "button")["priority"] = 0
	dig(c, "elements", "product", "price", "selectors")["secondary"] = []any{"", 12}

	_, err := ValidateReport(c)

	verr := requireViolations(t, err)
	assert.ElementsMatch(t, []string{
		"url",
		"status",
		"elements.product.price.selectors.secondary[0]",
		"elements.product.price.selectors.secondary[1]",
		"elements.addtocart.button.priority",
	}, verr.Paths())
}

func TestValidateReport_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c map[string]any)
		path   string
		kind   ViolationKind
	}{
		{"priority as string", func(c map[string]any) {
			dig(c, "elements", "cookies", "accept")["priority"] = "2"
		}, "elements.cookies.accept.priority", KindTypeMismatch},
		{"fractional priority", func(c map[string]any) {
			dig(c, "elements", "cookies", "accept")["priority"] = 2.5
		}, "elements.cookies.accept.priority", KindTypeMismatch},
		{"missing priority", func(c map[string]any) {
			delete(dig(c, "elements", "cookies", "accept"), "priority")
		}, "elements.cookies.accept.priority", KindMissingField},
		{"unknown status", func(c map[string]any) {
			c["status"] = "done"
		}, "status", KindInvalidEnum},
		{"unparseable timestamp", func(c map[string]any) {
			c["timestamp"] = "yesterday"
		}, "timestamp", KindInvalidFormat},
		{"missing hasCookieBanner", func(c map[string]any) {
			delete(dig(c, "elements"), "hasCookieBanner")
		}, "elements.hasCookieBanner", KindMissingField},
		{"missing elements", func(c map[string]any) {
			delete(c, "elements")
		}, "elements", KindMissingField},
		{"notes not an array", func(c map[string]any) {
			c["notes"] = "none"
		}, "notes", KindTypeMismatch},
		{"missing notes", func(c map[string]any) {
			delete(c, "notes")
		}, "notes", KindMissingField},
		{"error entry is a number", func(c map[string]any) {
			c["errors"] = []any{3}
		}, "errors[0]", KindTypeMismatch},
		{"consent flag as string", func(c map[string]any) {
			dig(c, "elements", "cookies")["analyticsChoices"] = "yes"
		}, "elements.cookies.analyticsChoices", KindTypeMismatch},
		{"frequency limit as number", func(c map[string]any) {
			popups := dig(c, "elements")["popups"].([]any)
			popups[0].(map[string]any)["frequencyLimit"] = 5
		}, "elements.popups[0].frequencyLimit", KindTypeMismatch},
		{"selector slot as string", func(c map[string]any) {
			dig(c, "elements", "cookies")["decline"] = "#decline"
		}, "elements.cookies.decline", KindTypeMismatch},
		{"xpath as array", func(c map[string]any) {
			dig(c, "elements", "checkout", "button", "selectors")["xpath"] = []any{"//a"}
		}, "elements.checkout.button.selectors.xpath", KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixtureCandidate(t)
			tt.mutate(c)

			_, err := ValidateReport(c)

			verr := requireViolations(t, err)
			v, ok := findViolation(verr, tt.path)
			require.True(t, ok, "violations: %v", verr.Paths())
			assert.Equal(t, tt.kind, v.Kind)
		})
	}
}

func TestValidateReport_RootMustBeObject(t *testing.T) {
	_, err := ValidateReport([]any{"not", "a", "report"})
	verr := requireViolations(t, err)
	assert.Equal(t, []string{"$"}, verr.Paths())
}

func TestValidateReport_ConsentFlagsDefaultFalse(t *testing.T) {
	c := fixtureCandidate(t)
	cookies := dig(c, "elements", "cookies")
	delete(cookies, "marketingChoices")
	delete(cookies, "analyticsChoices")
	cookies["functionalChoices"] = nil

	report, err := ValidateReport(c)

	require.NoError(t, err)
	assert.False(t, report.Elements.Cookies.MarketingChoices)
	assert.False(t, report.Elements.Cookies.AnalyticsChoices)
	assert.False(t, report.Elements.Cookies.FunctionalChoices)
}

func TestValidateReport_ErrorsAcceptStringsAndObjects(t *testing.T) {
	c := fixtureCandidate(t)
	c["status"] = "partial"
	c["errors"] = []any{
		"Checkout button not found",
		map[string]any{"element": "stock", "message": "No stock indicator", "suggestion": "Check variant selector"},
	}

	report, err := ValidateReport(c)

	require.NoError(t, err)
	assert.Equal(t, []ErrorObject{
		{Message: "Checkout button not found"},
		{Element: "stock", Message: "No stock indicator", Suggestion: "Check variant selector"},
	}, report.Errors)
}

func TestValidateReport_TimestampLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-14T09:26:53Z", time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)},
		{"2026-03-14T11:26:53+02:00", time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)},
		{"2026-03-14T09:26:53.250Z", time.Date(2026, 3, 14, 9, 26, 53, 250_000_000, time.UTC)},
		{"2026-03-14T09:26:53", time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)},
		{"2026-03-14", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c := fixtureCandidate(t)
			c["timestamp"] = tt.in

			report, err := ValidateReport(c)

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(report.Timestamp), "got %s", report.Timestamp)
			assert.Equal(t, time.UTC, report.Timestamp.Location())
		})
	}
}

func TestValidateReport_AcceptsStdlibDecodedTrees(t *testing.T) {
	var c any
	require.NoError(t, json.Unmarshal(loadFixture(t), &c))

	report, err := ValidateReport(c)

	require.NoError(t, err)
	assert.Equal(t, 4, report.Elements.AddToCart.Button.Priority)
}

func TestValidateJSON_DecodeError(t *testing.T) {
	_, err := ValidateJSON([]byte(`{"url": "https://example.com",`))

	require.Error(t, err)
	var derr *DecodeError
	assert.True(t, errors.As(err, &derr))
	assert.NotErrorIs(t, err, ErrSchemaViolation)
}

func TestRoundTrip(t *testing.T) {
	first, err := ValidateJSON(loadFixture(t))
	require.NoError(t, err)

	data, err := Marshal(first)
	require.NoError(t, err)
	second, err := ValidateJSON(data)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("report changed across a round trip (-first +second):\n%s", diff)
	}

	again, err := Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestMarshal_PreservesNullVersusEmptyFrequencyLimit(t *testing.T) {
	report, err := ValidateJSON(loadFixture(t))
	require.NoError(t, err)

	data, err := Marshal(report)
	require.NoError(t, err)

	var out struct {
		Elements struct {
			Popups []map[string]any `json:"popups"`
		} `json:"elements"`
		Producer string `json:"producer"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Elements.Popups, 2)
	assert.Contains(t, out.Elements.Popups[0], "frequencyLimit")
	assert.Nil(t, out.Elements.Popups[0]["frequencyLimit"])
	assert.Equal(t, "", out.Elements.Popups[1]["frequencyLimit"])
	assert.Equal(t, "manual", out.Producer)
}

func TestMarshalIndent_EmitsEmptyArrays(t *testing.T) {
	report := &AnalysisReport{
		URL:       "https://shop.example/",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elements:  Elements{HasCookieBanner: false},
		Status:    StatusFailed,
	}

	data, err := MarshalIndent(report)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"notes": []`)
	assert.Contains(t, string(data), `"popups": []`)
	_, err = ValidateJSON(data)
	assert.NoError(t, err)
}

func TestWithNotes_DoesNotMutate(t *testing.T) {
	report, err := ValidateJSON(loadFixture(t))
	require.NoError(t, err)
	before := append([]string(nil), report.Notes...)

	annotated := report.WithNotes("DOM may not have fully stabilized")

	assert.Equal(t, before, report.Notes)
	assert.Equal(t, append(before, "DOM may not have fully stabilized"), annotated.Notes)
}
