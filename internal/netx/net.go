// Package netx holds HTTP helpers shared by the worker, the API client and the
// local origin server.
package netx

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ModeHeaderName carries the browser request mode ("navigate", "cors", ...)
// for requests that do not come from a browser.
const ModeHeaderName = "X-Htgen-Mode"

// Origin returns the scheme://host[:port] part of u in lower case.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// SameOrigin reports whether a and b share scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return Origin(a) == Origin(b)
}

// IsNavigation reports whether r is a top-level document load. Browsers send
// Sec-Fetch-Mode; programmatic callers may set ModeHeaderName instead.
func IsNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Mode"), "navigate") ||
		strings.EqualFold(r.Header.Get(ModeHeaderName), "navigate") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// BufferBody drains r.Body into memory and installs a replayable copy, so the
// request can be sent and still be serialized afterwards.
func BufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	r.ContentLength = int64(len(data))
	return data, nil
}

// ReadAndClose reads the whole response body and closes it.
func ReadAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
