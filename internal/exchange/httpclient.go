package exchange

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPClientConfig содержит настройки HTTP клиента для биржевого API
type HTTPClientConfig struct {
	// Таймауты
	ConnectTimeout time.Duration // таймаут установки TCP соединения (default: 5s)
	ReadTimeout    time.Duration // таймаут чтения ответа (default: 10s)
	TotalTimeout   time.Duration // общий таймаут операции (default: 30s)

	// Connection pooling
	MaxIdleConns        int           // максимум idle соединений (default: 100)
	MaxIdleConnsPerHost int           // максимум idle соединений на хост (default: 10)
	MaxConnsPerHost     int           // максимум соединений на хост (default: 20)
	IdleConnTimeout     time.Duration // таймаут простоя соединения (default: 90s)

	// TLS
	TLSHandshakeTimeout time.Duration // таймаут TLS handshake (default: 5s)

	// Keep-Alive
	DisableKeepAlives bool
	KeepAliveInterval time.Duration // интервал Keep-Alive (default: 30s)
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию.
// Бот делает один запрос в 2.5 секунды, поэтому пул скромный:
// главное - живое Keep-Alive соединение к единственному хосту.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		TotalTimeout:   30 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,

		DisableKeepAlives: false,
		KeepAliveInterval: 30 * time.Second,
	}
}

// HTTPClient - HTTP клиент с connection pooling для биржевого API
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// globalClient переиспользует connection pool между адаптерами
var (
	globalClient     *HTTPClient
	globalClientOnce sync.Once
)

// GetGlobalHTTPClient возвращает глобальный HTTP клиент с настройками
// по умолчанию
func GetGlobalHTTPClient() *HTTPClient {
	globalClientOnce.Do(func() {
		globalClient = NewHTTPClient(DefaultHTTPClientConfig())
	})
	return globalClient
}

// NewHTTPClient создаёт новый HTTP клиент с заданной конфигурацией
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		DisableKeepAlives: config.DisableKeepAlives,

		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.TotalTimeout,
	}

	return &HTTPClient{
		client: client,
		config: config,
	}
}

// Do выполняет HTTP запрос
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return hc.client.Do(req)
}

// GetClient возвращает базовый http.Client
func (hc *HTTPClient) GetClient() *http.Client {
	return hc.client
}

// GetConfig возвращает текущую конфигурацию клиента
func (hc *HTTPClient) GetConfig() HTTPClientConfig {
	return hc.config
}

// Close закрывает idle соединения.
// Вызывается при graceful shutdown.
func (hc *HTTPClient) Close() {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
