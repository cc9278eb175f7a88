// Package httpx builds the HTTP clients used for operational probes.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultTimeout    = 5 * time.Second
	maxDialTimeout    = 3 * time.Second
	maxHeaderTimeout  = 3 * time.Second
	probeIdleConns    = 2
	probeIdleDuration = 10 * time.Second
)

// NewProbeClient returns a client for short one-shot requests against the
// local daemon. Proxies from the environment are ignored and connections are
// not kept alive between checks. A non-positive timeout selects the default.
func NewProbeClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dial := min(timeout, maxDialTimeout)
	header := min(timeout, maxHeaderTimeout)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           (&net.Dialer{Timeout: dial}).DialContext,
			DisableKeepAlives:     true,
			MaxIdleConns:          probeIdleConns,
			IdleConnTimeout:       probeIdleDuration,
			ResponseHeaderTimeout: header,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
