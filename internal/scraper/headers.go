package scraper

import (
	"net/http"
	"sync/atomic"
)

// Rotated desktop user agents. The catalog serves bot-flagged clients a
// stripped page with none of the markers the parsers rely on.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

var uaCursor atomic.Int64

func nextUserAgent() string {
	n := uaCursor.Add(1)
	return userAgents[int(n)%len(userAgents)]
}

// setBrowserHeaders makes the request look like an ordinary browser visit.
// The user agent rotates per call.
func setBrowserHeaders(req *http.Request, baseURL string) {
	ua := nextUserAgent()

	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", baseURL+"/")
}

// setAPIHeaders is the JSON variant used against the info endpoint.
func setAPIHeaders(req *http.Request, baseURL string) {
	ua := nextUserAgent()

	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", baseURL+"/")
}
