// Package transport builds the HTTP clients and websocket dialers shared by
// every outbound connection, honouring the proxy and timeout settings.
package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"dodo/internal/config"

	"github.com/gorilla/websocket"
)

const DefaultRequestTimeout = 30 * time.Second

// RequestTimeout bounds a single REST request.
func RequestTimeout(settings config.SettingsConfig) time.Duration {
	if settings.Timeout > 0 {
		return settings.Timeout
	}
	return DefaultRequestTimeout
}

// ProxyFunc uses the configured proxy, falling back to the environment.
func ProxyFunc(settings config.SettingsConfig) (func(*http.Request) (*url.URL, error), error) {
	if settings.Proxy == "" {
		return http.ProxyFromEnvironment, nil
	}
	u, err := url.Parse(settings.Proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	return http.ProxyURL(u), nil
}

func NewHTTPClient(settings config.SettingsConfig) (*http.Client, error) {
	proxy, err := ProxyFunc(settings)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy
	return &http.Client{Transport: transport}, nil
}

func NewDialer(settings config.SettingsConfig) (*websocket.Dialer, error) {
	proxy, err := ProxyFunc(settings)
	if err != nil {
		return nil, err
	}

	return &websocket.Dialer{
		Proxy:            proxy,
		HandshakeTimeout: RequestTimeout(settings),
	}, nil
}
