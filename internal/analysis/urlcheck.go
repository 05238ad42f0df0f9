package analysis

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// localSuffixes are domain endings that never resolve to anything a remote
// provider can fetch.
var localSuffixes = []string{".local", ".internal", ".lan"}

// URLChecker decides whether an image URL may be handed to a remote
// provider. A URL is usable only when it resolves to a public unicast
// address and answers a HEAD probe; anything else forces inline encoding.
type URLChecker struct {
	client *http.Client
	lookup func(ctx context.Context, host string) ([]net.IP, error)
	log    *slog.Logger
}

func NewURLChecker(logger *slog.Logger) *URLChecker {
	if logger == nil {
		logger = slog.Default()
	}
	resolver := &net.Resolver{}
	return &URLChecker{
		client: &http.Client{Timeout: 5 * time.Second},
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := resolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
		log: logger,
	}
}

// Usable reports whether raw is a publicly reachable image URL. Any doubt
// answers false; the caller then inlines the bytes, which always works.
func (c *URLChecker) Usable(ctx context.Context, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return false
	}
	for _, suffix := range localSuffixes {
		if strings.HasSuffix(host, suffix) {
			return false
		}
	}

	ips, err := c.resolve(ctx, host)
	if err != nil || len(ips) == 0 {
		c.log.Debug("urlcheck.resolve_failed", "host", host, "error", err)
		return false
	}
	for _, ip := range ips {
		if !isPublicUnicast(ip) {
			c.log.Debug("urlcheck.private_address", "host", host, "ip", ip.String())
			return false
		}
	}

	return c.alive(ctx, raw)
}

func (c *URLChecker) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	return c.lookup(ctx, host)
}

func isPublicUnicast(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast())
}

func (c *URLChecker) alive(ctx context.Context, raw string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("urlcheck.probe_failed", "url", raw, "error", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
