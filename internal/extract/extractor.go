// Package extract defines the extractor capability: a per-domain script
// that turns (url, body) into a structured record and an optional
// client-side redirect directive. The engine makes no assumptions about how
// the script parses HTML; it only consumes the returned JSON object.
package extract

import (
	"encoding/json"

	"github.com/jonesrussell/domaincrawl/internal/urls"
)

// ClientRedirect is a detected (never executed) client-side redirect.
type ClientRedirect struct {
	Type  string `json:"type"` // "meta" or "js"
	Delay int    `json:"delay"`
	URL   string `json:"url"`
	Base  string `json:"base,omitempty"`
}

// Result is the decoded extractor output. Raw preserves the full JSON
// object exactly as the script produced it, for the cache sidecar.
type Result struct {
	Title          string          `json:"title,omitempty"`
	URL            string          `json:"url,omitempty"`
	URLs           []string        `json:"urls,omitempty"`
	ClientRedirect *ClientRedirect `json:"client_redirect,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Extractor transforms a fetched body into a Result. Implementations must
// be deterministic and side-effect-free from the engine's viewpoint.
type Extractor interface {
	// Process runs the extraction. A nil Result with nil error means the
	// script declined the input.
	Process(u urls.URL, body []byte) (*Result, error)

	// HasScript reports whether an extraction script is bound; domains
	// without one are skipped.
	HasScript() bool
}

// decodeResult parses a script's JSON object into a Result, keeping the raw
// bytes alongside.
func decodeResult(raw []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	result.Raw = json.RawMessage(raw)
	return &result, nil
}
