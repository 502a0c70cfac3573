package engine

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/utils"
)

var defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// newHTTPClient builds the engine's shared client. No overall timeout: bodies
// stream for as long as a download runs, and cancellation arrives through the
// request context. Callers wanting timeouts supply their own client.
func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		DisableCompression:    true,
		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: types.KeepAliveDuration,
		}).DialContext,
	}

	configureProxy(transport, proxyURL)

	return &http.Client{Transport: transport}
}

// configureProxy wires an HTTP or SOCKS5 proxy into the transport, falling
// back to the environment proxy settings.
func configureProxy(transport *http.Transport, proxyURL string) {
	if proxyURL == "" {
		transport.Proxy = http.ProxyFromEnvironment
		return
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		utils.Debug("Invalid proxy URL %s: %v", proxyURL, err)
		transport.Proxy = http.ProxyFromEnvironment
		return
	}

	if strings.HasPrefix(parsed.Scheme, "socks5") {
		dialer, dialErr := proxy.SOCKS5("tcp", parsed.Host, nil, proxy.Direct)
		if dialErr != nil {
			utils.Debug("Failed to create SOCKS5 dialer: %v", dialErr)
			transport.Proxy = http.ProxyFromEnvironment
			return
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		return
	}

	transport.Proxy = http.ProxyURL(parsed)
}

// newRequest builds a GET with the download's headers applied and a default
// User-Agent when the caller supplied none.
func (e *Engine) newRequest(ctx context.Context, rawurl string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	return req, nil
}
