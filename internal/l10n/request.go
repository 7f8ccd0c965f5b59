package l10n

import (
	"sort"
	"strconv"
	"strings"
)

// Request is the language-relevant part of one incoming request. The
// language resolved for it is remembered on the value, so a Request must not
// be shared between requests.
type Request struct {
	AcceptLanguage string
	// UserID is empty for anonymous requests.
	UserID string

	lang string
}

func NewRequest(acceptLanguage, userID string) *Request {
	return &Request{AcceptLanguage: acceptLanguage, UserID: userID}
}

// Language returns the language resolved so far, if any.
func (r *Request) Language() string {
	return r.lang
}

type weightedCode struct {
	code   string
	weight float64
}

// parseAcceptLanguage turns "de-DE,en-US;q=0.8,en;q=0.6" into lowercase,
// underscore separated codes ordered by weight. Equal weights keep header
// order; q=0 and wildcard entries are dropped.
func parseAcceptLanguage(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}

	items := make([]weightedCode, 0)
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		code := strings.ToLower(strings.TrimSpace(fields[0]))
		if code == "" || code == "*" {
			continue
		}
		weight := 1.0
		for _, param := range fields[1:] {
			name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(name) != "q" {
				continue
			}
			if q, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				weight = q
			}
		}
		if weight <= 0 {
			continue
		}
		items = append(items, weightedCode{code: strings.ReplaceAll(code, "-", "_"), weight: weight})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].weight > items[j].weight
	})
	ret := make([]string, 0, len(items))
	for _, item := range items {
		ret = append(ret, item.code)
	}
	return ret
}
