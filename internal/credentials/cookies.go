package credentials

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// ErrEmptyCookieSet is returned when input contains no usable cookies.
var ErrEmptyCookieSet = errors.New("cookie set is empty")

// CookieSet is a normalized name to value mapping plus notes about records that were dropped.
type CookieSet struct {
	Cookies map[string]string
	Skipped []string
}

// Len returns the number of usable cookies.
func (c CookieSet) Len() int {
	return len(c.Cookies)
}

// Names returns cookie names in sorted order. Values are never exposed for logging.
func (c CookieSet) Names() []string {
	names := make([]string, 0, len(c.Cookies))
	for name := range c.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromMap copies a flat mapping, skipping entries with an empty name.
func FromMap(values map[string]string) CookieSet {
	set := CookieSet{Cookies: make(map[string]string, len(values))}
	for name, value := range values {
		name = strings.TrimSpace(name)
		if name == "" {
			set.Skipped = append(set.Skipped, "entry with empty name")
			continue
		}
		set.Cookies[name] = value
	}
	return set
}

// ParseCookieSet accepts a browser-extension export (list of {name, value} records), a flat
// name/value object, an object wrapping either under "cookies", or a raw Cookie header.
// Exports are parsed leniently so comments and trailing commas are tolerated.
func ParseCookieSet(raw []byte) (CookieSet, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return CookieSet{}, ErrEmptyCookieSet
	}

	if !strings.HasPrefix(text, "[") && !strings.HasPrefix(text, "{") {
		set := ParseCookieHeader(text)
		if set.Len() == 0 {
			return set, ErrEmptyCookieSet
		}
		return set, nil
	}

	var decoded interface{}
	if err := json5.Unmarshal([]byte(text), &decoded); err != nil {
		return CookieSet{}, fmt.Errorf("decode cookie export: %w", err)
	}

	set := CookieSet{Cookies: map[string]string{}}
	normalize(decoded, &set)
	if set.Len() == 0 {
		return set, ErrEmptyCookieSet
	}
	return set, nil
}

// ParseCookieHeader splits a "name=value; other=value" header into a set.
func ParseCookieHeader(header string) CookieSet {
	set := CookieSet{Cookies: map[string]string{}}
	for i, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			set.Skipped = append(set.Skipped, fmt.Sprintf("header segment %d has no name=value pair", i))
			continue
		}
		set.Cookies[name] = strings.TrimSpace(value)
	}
	return set
}

func normalize(decoded interface{}, set *CookieSet) {
	switch v := decoded.(type) {
	case []interface{}:
		for i, item := range v {
			record, ok := item.(map[string]interface{})
			if !ok {
				set.Skipped = append(set.Skipped, fmt.Sprintf("record %d is not an object", i))
				continue
			}
			name, nameOK := scalar(record["name"])
			value, valueOK := scalar(record["value"])
			if !nameOK || strings.TrimSpace(name) == "" {
				set.Skipped = append(set.Skipped, fmt.Sprintf("record %d is missing name", i))
				continue
			}
			if !valueOK {
				set.Skipped = append(set.Skipped, fmt.Sprintf("record %d (%s) is missing value", i, name))
				continue
			}
			set.Cookies[strings.TrimSpace(name)] = value
		}
	case map[string]interface{}:
		if nested, ok := v["cookies"]; ok {
			normalize(nested, set)
			return
		}
		for name, raw := range v {
			value, ok := scalar(raw)
			if !ok || strings.TrimSpace(name) == "" {
				set.Skipped = append(set.Skipped, fmt.Sprintf("entry %q has no scalar value", name))
				continue
			}
			set.Cookies[strings.TrimSpace(name)] = value
		}
	default:
		set.Skipped = append(set.Skipped, "unsupported cookie export shape")
	}
}

func scalar(v interface{}) (string, bool) {
	switch typed := v.(type) {
	case string:
		return typed, true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}
