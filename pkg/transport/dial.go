// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	mqtterrors "github.com/absmach/gmqtt/pkg/errors"
	"github.com/gorilla/websocket"
)

// Default broker ports per scheme.
const (
	DefaultPort    = "1883"
	DefaultTLSPort = "8883"
	DefaultWSPort  = "80"
	DefaultWSSPort = "443"
)

// DialConfig holds the broker connection settings.
type DialConfig struct {
	// URL is the broker URL, e.g. mqtt://localhost:1883 or wss://broker/mqtt.
	URL string

	// TLSConfig is used for mqtts, ssl, tls and wss URLs.
	TLSConfig *tls.Config

	// Timeout bounds connection establishment, including handshakes.
	Timeout time.Duration

	// Header is sent with the WebSocket upgrade request.
	Header http.Header
}

// Dial connects to the broker and returns a Transport for the URL scheme.
func Dial(ctx context.Context, cfg DialConfig) (Transport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	switch u.Scheme {
	case "mqtt", "tcp":
		return dialTCP(ctx, hostPort(u, DefaultPort), cfg)
	case "mqtts", "ssl", "tls":
		return dialTLS(ctx, u, cfg)
	case "ws", "wss":
		return dialWebSocket(ctx, u, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", mqtterrors.ErrUnsupportedScheme, u.Scheme)
	}
}

func dialTCP(ctx context.Context, address string, cfg DialConfig) (Transport, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	return NewConn(conn), nil
}

func dialTLS(ctx context.Context, u *url.URL, cfg DialConfig) (Transport, error) {
	tlsConfig := clientTLS(cfg.TLSConfig, u.Hostname())
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: cfg.Timeout},
		Config:    tlsConfig,
	}

	address := hostPort(u, DefaultTLSPort)
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	return NewConn(conn), nil
}

func dialWebSocket(ctx context.Context, u *url.URL, cfg DialConfig) (Transport, error) {
	port := DefaultWSPort
	if u.Scheme == "wss" {
		port = DefaultWSSPort
	}

	target := *u
	target.Host = hostPort(u, port)
	if target.Path == "" {
		target.Path = "/mqtt"
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.Timeout,
		Subprotocols:     []string{"mqtt"},
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = clientTLS(cfg.TLSConfig, u.Hostname())
	}

	conn, _, err := dialer.DialContext(ctx, target.String(), cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target.String(), err)
	}
	return NewWebSocket(conn), nil
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort)
}

func clientTLS(cfg *tls.Config, serverName string) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	return cfg
}
