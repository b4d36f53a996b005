package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrPrivateIP     = errors.New("URL resolves to private IP address")
	ErrUntrustedHost = errors.New("URL host is not trusted")
	ErrInvalidScheme = errors.New("only HTTPS URLs are allowed")
)

// DefaultAllowedHosts are the hosts the generation backends serve media from.
var DefaultAllowedHosts = []string{
	"generativelanguage.googleapis.com",
	"storage.googleapis.com",
	"googleusercontent.com",
	"api.openai.com",
	"videos.openai.com",
	"oaidalleapiprodscus.blob.core.windows.net",
}

// URLPolicy decides whether a media URL returned by a backend may be
// downloaded. In strict mode only allowed hosts pass; every mode rejects
// plain HTTP and hosts that resolve to private addresses.
type URLPolicy struct {
	Strict       bool
	AllowedHosts []string
	lookupIP     func(host string) ([]net.IP, error)
}

func NewURLPolicy(strict bool) *URLPolicy {
	return &URLPolicy{
		Strict:       strict,
		AllowedHosts: DefaultAllowedHosts,
		lookupIP:     net.LookupIP,
	}
}

func (p *URLPolicy) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if p.Strict && !p.isAllowedHost(host) {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, host)
	}
	return p.validateHostIP(host)
}

func (p *URLPolicy) isAllowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range p.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (p *URLPolicy) validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return ErrPrivateIP
	}

	// Unresolvable hosts fail later at download time.
	ips, err := p.lookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0:
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // CGNAT
			return true
		case ip4[0] == 192 && ip4[1] == 0 && (ip4[2] == 0 || ip4[2] == 2):
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100:
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113:
			return true
		case ip4[0] >= 240:
			return true
		}
	}
	return false
}
