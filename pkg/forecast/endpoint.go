// Package forecast builds the upstream endpoints whose responses are cached.
// Parsing and formatting of the forecast documents happens in the consumers.
package forecast

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the MeteoGalicia forecast service root.
const DefaultBaseURL = "https://servizos.meteogalicia.gal/rss/predicion"

// ErrInvalidPlace is returned for place codes that are empty or not numeric.
var ErrInvalidPlace = errors.New("invalid place code")

// PredictionURL returns the municipality forecast endpoint for placeCode.
// The returned string is used verbatim as the cache key.
func PredictionURL(baseURL, placeCode string) (string, error) {
	placeCode = strings.TrimSpace(placeCode)
	if !isNumeric(placeCode) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlace, placeCode)
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/jsonPredConcellos.action")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.RawQuery = url.Values{"idConc": []string{placeCode}}.Encode()

	return u.String(), nil
}

// PredictionURLs builds endpoints for several place codes, stopping at the
// first invalid one.
func PredictionURLs(baseURL string, placeCodes []string) ([]string, error) {
	urls := make([]string, 0, len(placeCodes))
	for _, code := range placeCodes {
		u, err := PredictionURL(baseURL, code)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
