// Package fetch implements the per-domain HTTP engine: a paced, redirect-
// following HTTPS client with HTTP/1.1 downgrade and TLS trust augmentation
// fallbacks.
package fetch

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jonesrussell/domaincrawl/internal/urls"
)

// Header is one response header. The response keeps headers as an ordered
// list; lookup is case-insensitive.
type Header struct {
	Name  string
	Value string
}

// Response is the outcome of a followed-to-completion fetch.
type Response struct {
	Status        int
	Headers       []Header
	Body          []byte
	RedirectCount int
	EffectiveURL  urls.URL
}

// IsOkay reports a 2xx status.
func (r *Response) IsOkay() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsRedirect reports a 3xx status.
func (r *Response) IsRedirect() bool {
	return r.Status >= 300 && r.Status < 400
}

// Header returns the first value for the given name, case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// HeaderMap flattens the headers for the cache sidecar; on duplicates the
// last value wins.
func (r *Response) HeaderMap() map[string]string {
	out := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		out[h.Name] = h.Value
	}
	return out
}

// headersFromResponse converts the net/http header map to the ordered list,
// names sorted, multiple values in arrival order per name.
func headersFromResponse(src http.Header) []Header {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Header
	for _, name := range names {
		for _, value := range src[name] {
			out = append(out, Header{Name: name, Value: value})
		}
	}
	return out
}
