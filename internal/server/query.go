package server

import (
	"net/url"
	"strings"
)

// Query is the parsed query component of a request target:
//
//	query = pair *( "&" pair )
//	pair  = key [ "=" value ]
//
// Parsing never fails. Malformed escapes are kept verbatim, empty pairs are
// skipped and a missing value is the empty string.
type Query []Param

// Param is one key/value pair, in request order.
type Param struct {
	Key   string
	Value string
}

// ParseQuery parses the raw query component of a target, without the "?".
func ParseQuery(raw string) Query {
	var q Query
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = unescape(key)
		if key == "" {
			continue
		}
		q = append(q, Param{Key: key, Value: unescape(value)})
	}
	return q
}

// Get returns the first value for key, or "" when absent.
func (q Query) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
