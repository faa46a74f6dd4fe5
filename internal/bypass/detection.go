package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Evidence is what a detector gets to look at: a raw HTTP response, or the
// rendered HTML of a browser page (StatusCode 0, no headers).
type Evidence struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(ev *Evidence) (detected bool, source string)

// Verdict is the outcome of running a detector list.
type Verdict struct {
	Detected bool
	Source   string
}

// DefaultDetectors returns the vendor detectors followed by the engine's own
// block-page phrases.
func DefaultDetectors() []Detector {
	return DetectorsWith(NewClassifier(nil))
}

// DetectorsWith returns the vendor detectors followed by c's phrase check.
func DetectorsWith(c *Classifier) []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		c.Detector(),
	}
}

// Analyze runs the evidence through the detectors and returns the first hit.
func Analyze(ev *Evidence, detectors []Detector) Verdict {
	if ev == nil {
		return Verdict{}
	}
	for _, d := range detectors {
		if detected, source := d(ev); detected {
			return Verdict{Detected: true, Source: source}
		}
	}
	return Verdict{}
}

// SourceBlockPage labels detections made by phrase matching.
const SourceBlockPage = "BlockPage"

func getHeader(headers map[string][]string, key string) string {
	if vals, ok := headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(ev *Evidence) (bool, string) {
	if ev.StatusCode != http.StatusForbidden && ev.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(ev.Headers, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	for _, sig := range []string{"cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare"} {
		if bytes.Contains(ev.Body, []byte(sig)) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(ev *Evidence) (bool, string) {
	if ev.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(ev.Headers, "Server")), "akamai") {
		return true, "Akamai"
	}
	// Akamai's generic block page carries a "Reference #" id.
	if bytes.Contains(ev.Body, []byte("Reference #")) && bytes.Contains(ev.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(ev *Evidence) (bool, string) {
	if ev.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(ev.Headers, "Server")), "datadome") {
		return true, "DataDome"
	}
	if getHeader(ev.Headers, "X-DataDome") != "" || getHeader(ev.Headers, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(ev.Body, []byte("geo.captcha-delivery.com")) || bytes.Contains(ev.Body, []byte("datadome")) {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(ev *Evidence) (bool, string) {
	if ev.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if getHeader(ev.Headers, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	for _, sig := range []string{"client.perimeterx.net", "px-captcha", "_pxBlock"} {
		if bytes.Contains(ev.Body, []byte(sig)) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
