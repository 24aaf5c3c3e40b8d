package services

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"apple2chat/internal/logger"
)

// ProviderExchange summarizes one HTTP round trip to a completion API.
// Bodies are not captured: streamed replies must pass through untouched.
type ProviderExchange struct {
	Method     string
	URL        string
	Headers    map[string]string // Credentials masked
	StatusCode int
	Error      string
	Started    time.Time
	Duration   time.Duration
}

// providerTransport logs every provider request at debug level and remembers
// the most recent exchange.
type providerTransport struct {
	base http.RoundTripper

	mu   sync.RWMutex
	last *ProviderExchange
}

func newProviderTransport(base http.RoundTripper) *providerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &providerTransport{base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *providerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	exchange := &ProviderExchange{
		Method:  req.Method,
		URL:     req.URL.Redacted(),
		Headers: maskHeaders(req.Header),
		Started: time.Now(),
	}

	resp, err := t.base.RoundTrip(req)
	exchange.Duration = time.Since(exchange.Started)
	if err != nil {
		exchange.Error = err.Error()
		logger.Debug("Provider request failed", "method", exchange.Method, "url", exchange.URL, "duration", exchange.Duration, "error", err)
	} else {
		exchange.StatusCode = resp.StatusCode
		logger.Debug("Provider request", "method", exchange.Method, "url", exchange.URL, "status", resp.StatusCode, "duration", exchange.Duration)
	}

	t.mu.Lock()
	t.last = exchange
	t.mu.Unlock()
	return resp, err
}

// LastExchange returns the most recent round trip, or nil before the first one.
func (t *providerTransport) LastExchange() *ProviderExchange {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil
	}
	copied := *t.last
	return &copied
}

// maskHeaders flattens headers, keeping only a short prefix of credentials.
func maskHeaders(headers http.Header) map[string]string {
	masked := make(map[string]string, len(headers))
	for name, values := range headers {
		value := strings.Join(values, ", ")
		lower := strings.ToLower(name)
		if strings.Contains(lower, "authorization") || strings.Contains(lower, "api-key") || strings.Contains(lower, "token") {
			if len(value) > 10 {
				value = value[:10] + "***"
			} else {
				value = "***"
			}
		}
		masked[name] = value
	}
	return masked
}
