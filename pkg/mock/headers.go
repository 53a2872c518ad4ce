package mock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Header is one named header with all of its values.
type Header struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Headers is an ordered multi-map of header values. Names compare case-insensitively.
type Headers []Header

// Get returns the first value for name, or "".
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) && len(hdr.Values) > 0 {
			return hdr.Values[0]
		}
	}
	return ""
}

// Values returns every value for name.
func (h Headers) Values(name string) []string {
	var out []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr.Values...)
		}
	}
	return out
}

// Add appends value to name, keeping first-seen order of names.
func (h Headers) Add(name, value string) Headers {
	for i := range h {
		if strings.EqualFold(h[i].Name, name) {
			h[i].Values = append(h[i].Values, value)
			return h
		}
	}
	return append(h, Header{Name: name, Values: []string{value}})
}

// Set replaces all values of name.
func (h Headers) Set(name, value string) Headers {
	h = h.Del(name)
	return append(h, Header{Name: name, Values: []string{value}})
}

// Del removes name.
func (h Headers) Del(name string) Headers {
	out := make(Headers, 0, len(h))
	for _, hdr := range h {
		if !strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr)
		}
	}
	return out
}

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for i, hdr := range h {
		out[i] = Header{Name: hdr.Name, Values: append([]string(nil), hdr.Values...)}
	}
	return out
}

// HTTP converts to net/http headers.
func (h Headers) HTTP() http.Header {
	out := make(http.Header, len(h))
	for _, hdr := range h {
		for _, v := range hdr.Values {
			out.Add(hdr.Name, v)
		}
	}
	return out
}

// FromHTTP converts net/http headers. Names are sorted since http.Header has no order.
func FromHTTP(src http.Header) Headers {
	if len(src) == 0 {
		return nil
	}
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(Headers, 0, len(names))
	for _, name := range names {
		out = append(out, Header{Name: name, Values: append([]string(nil), src[name]...)})
	}
	return out
}

// UnmarshalJSON accepts the list form [{"name":..,"values":[..]}] and the
// object form {"Name": "value"} or {"Name": ["a","b"]}.
func (h *Headers) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*h = nil
		return nil
	}
	if trimmed[0] == '[' {
		var list []Header
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*h = list
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Headers, 0, len(obj))
	for _, name := range names {
		raw := obj[name]
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			out = append(out, Header{Name: name, Values: []string{single}})
			continue
		}
		var multi []string
		if err := json.Unmarshal(raw, &multi); err != nil {
			return fmt.Errorf("header %q: expected string or array of strings", name)
		}
		out = append(out, Header{Name: name, Values: multi})
	}
	*h = out
	return nil
}

func compactJSON(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
