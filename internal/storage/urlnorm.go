package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped before computing the
// deduplication key. Anything with a utm_ prefix is also stripped.
var trackingParams = map[string]bool{
	"fbclid":     true,
	"gclid":      true,
	"dclid":      true,
	"msclkid":    true,
	"igshid":     true,
	"mc_cid":     true,
	"mc_eid":     true,
	"ref":        true,
	"ref_src":    true,
	"ref_url":    true,
	"source":     true,
	"_hsenc":     true,
	"_hsmi":      true,
	"spm":        true,
	"share_id":   true,
	"utm_id":     true,
	"vero_conv":  true,
	"vero_id":    true,
	"wickedid":   true,
	"yclid":      true,
	"twclid":     true,
	"li_fat_id":  true,
	"mkt_tok":    true,
	"trk":        true,
	"cmpid":      true,
	"session_id": true,
}

// NormalizeURL canonicalizes a URL for deduplication: scheme and host are
// lowercased, tracking query parameters are removed, and the remaining
// query is re-encoded in sorted key order. Path and fragment are preserved.
// Only http and https URLs with a host are accepted.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("unparseable URL %q: %w", raw, ErrValidation)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL %q must be http or https: %w", raw, ErrValidation)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host: %w", raw, ErrValidation)
	}
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
