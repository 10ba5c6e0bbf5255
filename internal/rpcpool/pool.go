// Package rpcpool keeps the ordered set of RPC endpoints and the failover cursor.
package rpcpool

import (
	"strings"
	"sync"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

// Endpoint is a configured RPC URL and whether the last call through it succeeded.
type Endpoint struct {
	URL   string
	Alive bool
}

// Redacted returns the URL without path and query, which commonly carry provider API keys.
func (e Endpoint) Redacted() string {
	return RedactURL(e.URL)
}

// RedactURL strips everything after the host part of an endpoint URL.
func RedactURL(url string) string {
	scheme := ""
	rest := url
	if i := strings.Index(rest, "://"); i >= 0 {
		scheme, rest = rest[:i+3], rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		return scheme + rest[:i] + "/..."
	}
	return scheme + rest
}

// Pool is an ordered, non-empty set of endpoints with a wrapping cursor.
// It never does network I/O; callers decide when an endpoint failed.
type Pool struct {
	mu        sync.RWMutex
	endpoints []Endpoint
	cursor    int
}

// New builds a pool. Duplicate and blank URLs are dropped, order is preserved.
func New(urls []string) (*Pool, error) {
	seen := make(map[string]struct{}, len(urls))
	endpoints := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		endpoints = append(endpoints, Endpoint{URL: u, Alive: true})
	}

	if len(endpoints) == 0 {
		return nil, domain.ConfigurationError("at least one RPC endpoint is required")
	}

	return &Pool{endpoints: endpoints}, nil
}

// Current returns the active endpoint.
func (p *Pool) Current() Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.endpoints[p.cursor]
}

// Index returns the cursor position.
func (p *Pool) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.cursor
}

// Advance marks the active endpoint as failed, moves the cursor to (cursor+1) mod N
// and returns the new active endpoint.
func (p *Pool) Advance() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endpoints[p.cursor].Alive = false
	p.cursor = (p.cursor + 1) % len(p.endpoints)

	return p.endpoints[p.cursor]
}

// MarkAlive flags the endpoint with the given URL as healthy.
func (p *Pool) MarkAlive(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.endpoints {
		if p.endpoints[i].URL == url {
			p.endpoints[i].Alive = true
			return
		}
	}
}

// Size returns the number of endpoints.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.endpoints)
}

// Endpoints returns a snapshot of all endpoints in order.
func (p *Pool) Endpoints() []Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}
