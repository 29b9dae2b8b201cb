// Package network provides the pre-configured HTTP client shared by every call to the video service.
package network

import (
	"net/http"
	"time"

	"github.com/reelcast/reelcast/constant"
)

// Client is the singleton HTTP client shared across the application.
// It carries no overall timeout: an upload of several gigabytes legitimately
// runs for minutes, and every request is bounded by its context instead.
var Client = &http.Client{
	Transport: &userAgent{next: newTransport()},
}

// newTransport initializes a tuned http.Transport with pool and dial parameters.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 32
	t.MaxIdleConnsPerHost = 16
	t.IdleConnTimeout = 90 * time.Second
	t.ExpectContinueTimeout = 5 * time.Second
	return t
}

// userAgent stamps outgoing requests with the application identifier.
type userAgent struct {
	next http.RoundTripper
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", constant.UserAgent)
	}
	return u.next.RoundTrip(req)
}
