package contract

import (
	"bytes"
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// encodeAPI leaves selectors such as a[href*="cart"] > span readable.
var encodeAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Marshal renders a report as compact JSON.
func Marshal(r *AnalysisReport) ([]byte, error) {
	return encodeAPI.Marshal(r)
}

// MarshalIndent renders a report for humans and on-disk storage.
func MarshalIndent(r *AnalysisReport) ([]byte, error) {
	compact, err := encodeAPI.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// appendExtra splices unknown keys, sorted, after the known ones so the
// struct's field order is kept.
func appendExtra(base []byte, extra map[string]any, known map[string]struct{}) ([]byte, error) {
	if len(extra) == 0 || len(base) < 2 {
		return base, nil
	}
	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	wrote := len(base) > 2
	for _, k := range sortedKeys(extra) {
		if _, clash := known[k]; clash {
			continue
		}
		key, err := encodeAPI.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := encodeAPI.Marshal(extra[k])
		if err != nil {
			return nil, err
		}
		if wrote {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		wrote = true
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (r AnalysisReport) MarshalJSON() ([]byte, error) {
	type plain AnalysisReport
	p := plain(r)
	p.Timestamp = p.Timestamp.UTC()
	p.Notes = nonNil(p.Notes)
	p.Errors = nonNil(p.Errors)
	p.Recommendations = nonNil(p.Recommendations)
	base, err := encodeAPI.Marshal(p)
	if err != nil {
		return nil, err
	}
	return appendExtra(base, r.Extra, reportKeys)
}

func (e Elements) MarshalJSON() ([]byte, error) {
	type plain Elements
	p := plain(e)
	p.Popups = nonNil(p.Popups)
	base, err := encodeAPI.Marshal(p)
	if err != nil {
		return nil, err
	}
	return appendExtra(base, e.Extra, elementsKeys)
}

func (c CookieBlock) MarshalJSON() ([]byte, error) {
	type plain CookieBlock
	base, err := encodeAPI.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return appendExtra(base, c.Extra, cookieKeys)
}

func (p ProductBlock) MarshalJSON() ([]byte, error) {
	type plain ProductBlock
	base, err := encodeAPI.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	return appendExtra(base, p.Extra, productKeys)
}

func (c CartBlock) MarshalJSON() ([]byte, error) {
	type plain CartBlock
	base, err := encodeAPI.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return appendExtra(base, c.Extra, cartKeys)
}

func (c CheckoutBlock) MarshalJSON() ([]byte, error) {
	type plain CheckoutBlock
	base, err := encodeAPI.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return appendExtra(base, c.Extra, cartKeys)
}

func (s SelectorObject) MarshalJSON() ([]byte, error) {
	type plain SelectorObject
	base, err := encodeAPI.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	return appendExtra(base, s.Extra, selectorObjectKeys)
}

func (s Selectors) MarshalJSON() ([]byte, error) {
	type plain Selectors
	p := plain(s)
	p.Secondary = nonNil(p.Secondary)
	base, err := encodeAPI.Marshal(p)
	if err != nil {
		return nil, err
	}
	return appendExtra(base, s.Extra, selectorsKeys)
}

func (p PopupObject) MarshalJSON() ([]byte, error) {
	type plain PopupObject
	base, err := encodeAPI.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	return appendExtra(base, p.Extra, popupKeys)
}

func (e ErrorObject) MarshalJSON() ([]byte, error) {
	type plain ErrorObject
	base, err := encodeAPI.Marshal(plain(e))
	if err != nil {
		return nil, err
	}
	return appendExtra(base, e.Extra, errorObjectKeys)
}
