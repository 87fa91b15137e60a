package schemas

import "strings"

// -- Browser Persona Schemas --

// Persona encapsulates the properties of a consistent browser fingerprint.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
	Mobile    bool     `json:"mobile"`
	Timezone  string   `json:"timezoneId"`
	Locale    string   `json:"locale"`
}

// DefaultPersona is a desktop Chrome on macOS browsing from the UK.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	Platform:  "MacIntel",
	Languages: []string{"en-GB", "en"},
	Width:     1440,
	Height:    900,
	Timezone:  "Europe/London",
	Locale:    "en-GB",
}

// AcceptLanguage renders Languages as an Accept-Language header value with
// descending quality factors.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return p.Locale
	}
	var b strings.Builder
	for i, lang := range p.Languages {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(lang)
		if i > 0 {
			q := 10 - i
			if q < 1 {
				q = 1
			}
			b.WriteString(";q=0.")
			b.WriteByte(byte('0' + q))
		}
	}
	return b.String()
}

// LanguagesFor derives a navigator.languages list from a locale such as
// "en-GB".
func LanguagesFor(locale string) []string {
	if locale == "" {
		return nil
	}
	langs := []string{locale}
	if base, _, found := strings.Cut(locale, "-"); found && base != "" {
		langs = append(langs, base)
	}
	return langs
}
