// Package contract defines the selector contract that every analysis producer
// must satisfy, and the validator that turns an untyped JSON candidate into a
// typed, invariant-respecting AnalysisReport.
package contract

import (
	"strings"
	"time"
)

// Status is the producer's overall verdict for a report.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}

const (
	MinPriority = 1
	MaxPriority = 5
)

// Selectors holds the ranked ways to locate one element.
type Selectors struct {
	Primary   string         `json:"primary"`
	Secondary []string       `json:"secondary"`
	XPath     string         `json:"xpath"`
	Extra     map[string]any `json:"-"`
}

// SelectorObject describes one identified UI control.
type SelectorObject struct {
	ElementType string         `json:"elementType"`
	Selectors   Selectors      `json:"selectors"`
	Location    string         `json:"location"`
	Priority    int            `json:"priority"`
	Extra       map[string]any `json:"-"`
}

// IsEmpty reports whether no selector at all was supplied.
func (s SelectorObject) IsEmpty() bool {
	if strings.TrimSpace(s.Selectors.Primary) != "" || strings.TrimSpace(s.Selectors.XPath) != "" {
		return false
	}
	for _, sec := range s.Selectors.Secondary {
		if strings.TrimSpace(sec) != "" {
			return false
		}
	}
	return true
}

// CookieBlock maps the consent banner controls. A nil selector means the
// control was not found.
type CookieBlock struct {
	Accept            *SelectorObject `json:"accept,omitempty"`
	Decline           *SelectorObject `json:"decline,omitempty"`
	Settings          *SelectorObject `json:"settings,omitempty"`
	AcceptAll         *SelectorObject `json:"acceptAll,omitempty"`
	RejectAll         *SelectorObject `json:"rejectAll,omitempty"`
	MarketingChoices  bool            `json:"marketingChoices"`
	AnalyticsChoices  bool            `json:"analyticsChoices"`
	FunctionalChoices bool            `json:"functionalChoices"`
	Extra             map[string]any  `json:"-"`
}

// ProductBlock maps the product detail page.
type ProductBlock struct {
	URL       string          `json:"url,omitempty"`
	Stock     *SelectorObject `json:"stock,omitempty"`
	Price     *SelectorObject `json:"price,omitempty"`
	AddToCart *SelectorObject `json:"addToCart,omitempty"`
	Extra     map[string]any  `json:"-"`
}

// CartBlock maps the add-to-cart step.
type CartBlock struct {
	Button *SelectorObject `json:"button,omitempty"`
	Cart   *SelectorObject `json:"cart,omitempty"`
	Extra  map[string]any  `json:"-"`
}

// CheckoutBlock maps the checkout entry.
type CheckoutBlock struct {
	Button *SelectorObject `json:"button,omitempty"`
	Cart   *SelectorObject `json:"cart,omitempty"`
	Extra  map[string]any  `json:"-"`
}

// PopupObject describes a transient overlay met between product view and
// checkout. A nil FrequencyLimit means undetermined; an empty string means
// confirmed to have no limit.
type PopupObject struct {
	Trigger        string         `json:"trigger"`
	Dismissal      string         `json:"dismissal"`
	FrequencyLimit *string        `json:"frequencyLimit"`
	Extra          map[string]any `json:"-"`
}

// ErrorObject is a producer-reported gap.
type ErrorObject struct {
	Element    string         `json:"element,omitempty"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Extra      map[string]any `json:"-"`
}

// Elements groups every funnel step.
type Elements struct {
	HasCookieBanner bool           `json:"hasCookieBanner"`
	Cookies         *CookieBlock   `json:"cookies,omitempty"`
	Product         *ProductBlock  `json:"product,omitempty"`
	AddToCart       *CartBlock     `json:"addtocart,omitempty"`
	Checkout        *CheckoutBlock `json:"checkout,omitempty"`
	Popups          []PopupObject  `json:"popups"`
	Extra           map[string]any `json:"-"`
}

// AnalysisReport is the root aggregate, built once per (url, run) and not
// modified after validation.
type AnalysisReport struct {
	URL             string         `json:"url"`
	Timestamp       time.Time      `json:"timestamp"`
	Elements        Elements       `json:"elements"`
	Notes           []string       `json:"notes"`
	Status          Status         `json:"status"`
	Errors          []ErrorObject  `json:"errors"`
	Recommendations []string       `json:"recommendations"`
	Extra           map[string]any `json:"-"`
}

// WithNotes returns a copy of the report with notes appended. The receiver is
// left untouched.
func (r *AnalysisReport) WithNotes(notes ...string) *AnalysisReport {
	cp := *r
	cp.Notes = make([]string, 0, len(r.Notes)+len(notes))
	cp.Notes = append(cp.Notes, r.Notes...)
	cp.Notes = append(cp.Notes, notes...)
	return &cp
}

// Ptr is a convenience for building optional string fields.
func Ptr[T any](v T) *T { return &v }
