package contract

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// decodeAPI keeps numbers as json.Number so "3" and "3.5" stay distinguishable.
var decodeAPI = jsoniter.Config{UseNumber: true}.Froze()

// Accepted timestamp layouts, most specific first. Zone-less values are read
// as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

const priorityExpectation = "integer between 1 and 5"

// Known keys per object. Anything else is carried in Extra.
var (
	reportKeys         = keySet("url", "timestamp", "elements", "notes", "status", "errors", "recommendations")
	elementsKeys       = keySet("hasCookieBanner", "cookies", "product", "addtocart", "checkout", "popups")
	cookieKeys         = keySet("accept", "decline", "settings", "acceptAll", "rejectAll", "marketingChoices", "analyticsChoices", "functionalChoices")
	productKeys        = keySet("url", "stock", "price", "addToCart")
	cartKeys           = keySet("button", "cart")
	selectorObjectKeys = keySet("elementType", "selectors", "location", "priority")
	selectorsKeys      = keySet("primary", "secondary", "xpath")
	popupKeys          = keySet("trigger", "dismissal", "frequencyLimit")
	errorObjectKeys    = keySet("element", "message", "suggestion")
)

func keySet(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

// jsonNumber is satisfied by both encoding/json and json-iterator numbers.
type jsonNumber interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// ValidateJSON decodes data and validates the resulting tree. Bytes that are
// not JSON yield a *DecodeError; a well-formed document that breaks the
// contract yields a *ValidationError.
func ValidateJSON(data []byte) (*AnalysisReport, error) {
	var candidate any
	if err := decodeAPI.Unmarshal(data, &candidate); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return ValidateReport(candidate)
}

// ValidateReport checks an untyped JSON tree against the selector contract.
// Every violation is collected; on any violation no report is returned.
func ValidateReport(candidate any) (*AnalysisReport, error) {
	v := &validator{}
	report := v.report(candidate)
	if len(v.violations) > 0 {
		return nil, &ValidationError{Violations: v.violations}
	}
	return report, nil
}

type validator struct {
	violations []Violation
}

func (v *validator) fail(path string, kind ViolationKind, expected, format string, args ...any) {
	v.violations = append(v.violations, Violation{
		Path:     path,
		Kind:     kind,
		Expected: expected,
		Message:  fmt.Sprintf(format, args...),
	})
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func index(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}

func (v *validator) report(candidate any) *AnalysisReport {
	root, ok := candidate.(map[string]any)
	if !ok {
		v.fail("$", KindTypeMismatch, "object", "report must be an object, got %s", describe(candidate))
		return nil
	}

	r := &AnalysisReport{
		URL:       v.requiredString(root, "", "url", true),
		Timestamp: v.timestamp(root, "timestamp"),
		Notes:     v.stringArray(root, "", "notes", true),
		Status:    v.status(root, "status"),
		Extra:     extras(root, reportKeys),
	}

	raw, present := root["elements"]
	switch obj, isObj := raw.(map[string]any); {
	case !present:
		v.fail("elements", KindMissingField, "object", "required field is missing")
	case !isObj:
		v.fail("elements", KindTypeMismatch, "object", "got %s", describe(raw))
	default:
		r.Elements = v.elements(obj, "elements")
	}

	r.Errors = v.errorList(root, "errors")
	r.Recommendations = v.stringArray(root, "", "recommendations", false)
	return r
}

func (v *validator) elements(obj map[string]any, path string) Elements {
	el := Elements{
		HasCookieBanner: v.requiredBool(obj, path, "hasCookieBanner"),
		Extra:           extras(obj, elementsKeys),
	}

	if m := v.optionalObject(obj, path, "cookies"); m != nil {
		el.Cookies = v.cookies(m, join(path, "cookies"))
	}
	if m := v.optionalObject(obj, path, "product"); m != nil {
		p := join(path, "product")
		el.Product = &ProductBlock{
			URL:       v.optionalString(m, p, "url"),
			Stock:     v.selectorSlot(m, p, "stock"),
			Price:     v.selectorSlot(m, p, "price"),
			AddToCart: v.selectorSlot(m, p, "addToCart"),
			Extra:     extras(m, productKeys),
		}
	}
	if m := v.optionalObject(obj, path, "addtocart"); m != nil {
		p := join(path, "addtocart")
		el.AddToCart = &CartBlock{
			Button: v.selectorSlot(m, p, "button"),
			Cart:   v.selectorSlot(m, p, "cart"),
			Extra:  extras(m, cartKeys),
		}
	}
	if m := v.optionalObject(obj, path, "checkout"); m != nil {
		p := join(path, "checkout")
		el.Checkout = &CheckoutBlock{
			Button: v.selectorSlot(m, p, "button"),
			Cart:   v.selectorSlot(m, p, "cart"),
			Extra:  extras(m, cartKeys),
		}
	}
	el.Popups = v.popups(obj, path, "popups")
	return el
}

func (v *validator) cookies(m map[string]any, path string) *CookieBlock {
	return &CookieBlock{
		Accept:            v.selectorSlot(m, path, "accept"),
		Decline:           v.selectorSlot(m, path, "decline"),
		Settings:          v.selectorSlot(m, path, "settings"),
		AcceptAll:         v.selectorSlot(m, path, "acceptAll"),
		RejectAll:         v.selectorSlot(m, path, "rejectAll"),
		MarketingChoices:  v.optionalBool(m, path, "marketingChoices"),
		AnalyticsChoices:  v.optionalBool(m, path, "analyticsChoices"),
		FunctionalChoices: v.optionalBool(m, path, "functionalChoices"),
		Extra:             extras(m, cookieKeys),
	}
}

// selectorSlot reads an optional selector. Absent and null both mean "not
// found" and yield nil.
func (v *validator) selectorSlot(obj map[string]any, parent, key string) *SelectorObject {
	raw, present := obj[key]
	if !present || raw == nil {
		return nil
	}
	path := join(parent, key)
	m, ok := raw.(map[string]any)
	if !ok {
		v.fail(path, KindTypeMismatch, "selector object or null", "got %s", describe(raw))
		return nil
	}
	return v.selectorObject(m, path)
}

func (v *validator) selectorObject(m map[string]any, path string) *SelectorObject {
	so := &SelectorObject{
		ElementType: v.optionalString(m, path, "elementType"),
		Location:    v.optionalString(m, path, "location"),
		Priority:    v.priority(m, path),
		Extra:       extras(m, selectorObjectKeys),
	}

	selPath := join(path, "selectors")
	raw := m["selectors"]
	if raw == nil {
		v.fail(selPath, KindEmptySelectorObject, "at least one of primary, secondary or xpath", "no selectors supplied")
		return so
	}
	sel, ok := raw.(map[string]any)
	if !ok {
		v.fail(selPath, KindTypeMismatch, "object", "got %s", describe(raw))
		return so
	}

	so.Selectors = Selectors{
		Primary:   v.optionalString(sel, selPath, "primary"),
		Secondary: v.secondary(sel, selPath),
		XPath:     v.optionalString(sel, selPath, "xpath"),
		Extra:     extras(sel, selectorsKeys),
	}
	if so.IsEmpty() {
		v.fail(selPath, KindEmptySelectorObject, "at least one of primary, secondary or xpath", "every selector field is empty")
	}
	return so
}

func (v *validator) secondary(sel map[string]any, parent string) []string {
	out := []string{}
	raw := sel["secondary"]
	if raw == nil {
		return out
	}
	path := join(parent, "secondary")
	items, ok := raw.([]any)
	if !ok {
		v.fail(path, KindTypeMismatch, "array of strings", "got %s", describe(raw))
		return out
	}
	for i, item := range items {
		s, isStr := item.(string)
		switch {
		case !isStr:
			v.fail(index(path, i), KindTypeMismatch, "string", "got %s", describe(item))
		case strings.TrimSpace(s) == "":
			v.fail(index(path, i), KindEmptyValue, "non-empty string", "fallback selector is blank")
		default:
			out = append(out, s)
		}
	}
	return out
}

func (v *validator) priority(m map[string]any, parent string) int {
	path := join(parent, "priority")
	raw, present := m["priority"]
	if !present {
		v.fail(path, KindMissingField, priorityExpectation, "required field is missing")
		return 0
	}

	var (
		n     float64
		isNum = true
	)
	switch x := raw.(type) {
	case jsonNumber:
		if i, err := x.Int64(); err == nil {
			n = float64(i)
		} else if f, err := x.Float64(); err == nil {
			n = f
		} else {
			isNum = false
		}
	case float64:
		n = x
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	default:
		isNum = false
	}

	if !isNum || n != math.Trunc(n) {
		v.fail(path, KindTypeMismatch, priorityExpectation, "got %s", describeValue(raw))
		return 0
	}
	if n < MinPriority || n > MaxPriority {
		v.fail(path, KindOutOfRange, priorityExpectation, "priority %v is outside the allowed range", n)
		return 0
	}
	return int(n)
}

func (v *validator) popups(obj map[string]any, parent, key string) []PopupObject {
	out := []PopupObject{}
	raw := obj[key]
	if raw == nil {
		return out
	}
	path := join(parent, key)
	items, ok := raw.([]any)
	if !ok {
		v.fail(path, KindTypeMismatch, "array of popup objects", "got %s", describe(raw))
		return out
	}
	for i, item := range items {
		itemPath := index(path, i)
		m, isObj := item.(map[string]any)
		if !isObj {
			v.fail(itemPath, KindTypeMismatch, "popup object", "got %s", describe(item))
			continue
		}
		out = append(out, PopupObject{
			Trigger:        v.requiredString(m, itemPath, "trigger", false),
			Dismissal:      v.requiredString(m, itemPath, "dismissal", false),
			FrequencyLimit: v.nullableString(m, itemPath, "frequencyLimit"),
			Extra:          extras(m, popupKeys),
		})
	}
	return out
}

func (v *validator) errorList(obj map[string]any, key string) []ErrorObject {
	out := []ErrorObject{}
	raw := obj[key]
	if raw == nil {
		return out
	}
	items, ok := raw.([]any)
	if !ok {
		v.fail(key, KindTypeMismatch, "array of strings or error objects", "got %s", describe(raw))
		return out
	}
	for i, item := range items {
		itemPath := index(key, i)
		switch x := item.(type) {
		case string:
			out = append(out, ErrorObject{Message: x})
		case map[string]any:
			out = append(out, ErrorObject{
				Element:    v.optionalString(x, itemPath, "element"),
				Message:    v.requiredString(x, itemPath, "message", false),
				Suggestion: v.optionalString(x, itemPath, "suggestion"),
				Extra:      extras(x, errorObjectKeys),
			})
		default:
			v.fail(itemPath, KindTypeMismatch, "string or error object", "got %s", describe(item))
		}
	}
	return out
}

func (v *validator) timestamp(obj map[string]any, key string) time.Time {
	s := v.requiredString(obj, "", key, true)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	v.fail(key, KindInvalidFormat, "RFC 3339 timestamp", "cannot parse %q", s)
	return time.Time{}
}

func (v *validator) status(obj map[string]any, key string) Status {
	raw, present := obj[key]
	const expected = "one of success, partial, failed"
	if !present {
		v.fail(key, KindMissingField, expected, "required field is missing")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(key, KindTypeMismatch, expected, "got %s", describe(raw))
		return ""
	}
	st := Status(s)
	if !st.Valid() {
		v.fail(key, KindInvalidEnum, expected, "unknown status %q", s)
		return ""
	}
	return st
}

func (v *validator) requiredString(obj map[string]any, parent, key string, nonEmpty bool) string {
	path := join(parent, key)
	raw, present := obj[key]
	if !present {
		v.fail(path, KindMissingField, "string", "required field is missing")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(path, KindTypeMismatch, "string", "got %s", describe(raw))
		return ""
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		v.fail(path, KindEmptyValue, "non-empty string", "must not be empty")
	}
	return s
}

// optionalString treats absent and null alike.
func (v *validator) optionalString(obj map[string]any, parent, key string) string {
	raw := obj[key]
	if raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(join(parent, key), KindTypeMismatch, "string", "got %s", describe(raw))
		return ""
	}
	return s
}

// nullableString keeps null distinct from the empty string.
func (v *validator) nullableString(obj map[string]any, parent, key string) *string {
	raw := obj[key]
	if raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(join(parent, key), KindTypeMismatch, "string or null", "got %s", describe(raw))
		return nil
	}
	return &s
}

func (v *validator) requiredBool(obj map[string]any, parent, key string) bool {
	path := join(parent, key)
	raw, present := obj[key]
	if !present {
		v.fail(path, KindMissingField, "boolean", "required field is missing")
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		v.fail(path, KindTypeMismatch, "boolean", "got %s", describe(raw))
	}
	return b
}

// optionalBool defaults to false when absent or null.
func (v *validator) optionalBool(obj map[string]any, parent, key string) bool {
	raw := obj[key]
	if raw == nil {
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		v.fail(join(parent, key), KindTypeMismatch, "boolean", "got %s", describe(raw))
	}
	return b
}

// optionalObject returns nil for absent or null values, recording a violation
// for anything that is not an object.
func (v *validator) optionalObject(obj map[string]any, parent, key string) map[string]any {
	raw := obj[key]
	if raw == nil {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		v.fail(join(parent, key), KindTypeMismatch, "object or null", "got %s", describe(raw))
		return nil
	}
	return m
}

func (v *validator) stringArray(obj map[string]any, parent, key string, required bool) []string {
	path := join(parent, key)
	out := []string{}
	raw, present := obj[key]
	if !present {
		if required {
			v.fail(path, KindMissingField, "array of strings", "required field is missing")
		}
		return out
	}
	if raw == nil && !required {
		return out
	}
	items, ok := raw.([]any)
	if !ok {
		v.fail(path, KindTypeMismatch, "array of strings", "got %s", describe(raw))
		return out
	}
	for i, item := range items {
		s, isStr := item.(string)
		if !isStr {
			v.fail(index(path, i), KindTypeMismatch, "string", "got %s", describe(item))
			continue
		}
		out = append(out, s)
	}
	return out
}

// extras collects the keys the contract does not know about.
func extras(obj map[string]any, known map[string]struct{}) map[string]any {
	var out map[string]any
	for k, val := range obj {
		if _, ok := known[k]; ok {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = val
	}
	return out
}

func describe(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case jsonNumber, float64, float32, int, int64:
		return "number"
	}
	return fmt.Sprintf("%T", val)
}

func describeValue(val any) string {
	switch x := val.(type) {
	case jsonNumber:
		return "number " + x.String()
	case float64:
		return fmt.Sprintf("number %v", x)
	}
	return describe(val)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
