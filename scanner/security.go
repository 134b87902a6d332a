package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrPrivateIP      = errors.New("target resolves to a private or reserved IP address")
	ErrInvalidScheme  = errors.New("only http and https schemes are allowed")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrEmptyHost      = errors.New("URL must have a valid hostname")
	ErrBlockedHost    = errors.New("this host is not allowed")
	ErrURLTooLong     = errors.New("URL exceeds maximum length")
	ErrHostNotAllowed = errors.New("only Saudi government, education, health and non-profit domains can be audited")
)

const MaxURLLength = 2048

// DefaultAllowedSuffixes are the host suffixes the HTTP API accepts.
var DefaultAllowedSuffixes = []string{".gov.sa", ".edu.sa", ".org.sa", ".med.sa", ".sch.sa"}

// blockedHosts contains hostnames that should never be scanned
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NormalizeURL trims rawURL, adds https:// when no scheme is given and
// checks scheme, host and length. It does no network I/O.
func NormalizeURL(rawURL string) (*url.URL, error) {
	if len(rawURL) > MaxURLLength {
		return nil, ErrURLTooLong
	}
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrInvalidURL
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(rawURL, "://") {
			return nil, ErrInvalidScheme
		}
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, ErrInvalidScheme
	}
	if parsed.Hostname() == "" {
		return nil, ErrEmptyHost
	}
	if blockedHosts[strings.ToLower(parsed.Hostname())] {
		return nil, ErrBlockedHost
	}
	return parsed, nil
}

// CheckAllowedHost accepts hosts that end in one of suffixes. An empty list
// allows every host.
func CheckAllowedHost(u *url.URL, suffixes []string) error {
	if len(suffixes) == 0 {
		return nil
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		if strings.HasSuffix(host, s) || host == s[1:] {
			return nil
		}
	}
	return ErrHostNotAllowed
}

// ValidateURL performs comprehensive URL validation including SSRF protection.
// It validates the scheme, resolves the hostname, and checks that the target
// IP is not private/reserved.
func ValidateURL(ctx context.Context, rawURL string, r Resolver) (string, error) {
	parsed, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	if err := checkResolved(ctx, parsed.Hostname(), r); err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// NewFetchGuard returns a fetch guard that rejects non-public targets. The
// lookup is bound to the request's context.
func NewFetchGuard(r Resolver) func(context.Context, string) error {
	return func(ctx context.Context, rawURL string) error {
		parsed, err := NormalizeURL(rawURL)
		if err != nil {
			return err
		}
		return checkResolved(ctx, parsed.Hostname(), r)
	}
}

func checkResolved(ctx context.Context, host string, r Resolver) error {
	if ip := net.ParseIP(host); ip != nil {
		return validateIP(ip)
	}
	if r == nil {
		r = net.DefaultResolver
	}

	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname: %w", err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("hostname resolved to no addresses")
	}

	// an attacker could publish one public and one private record
	for _, a := range addrs {
		if err := validateIP(a.IP); err != nil {
			return err
		}
	}
	return nil
}

// validateIP returns ErrPrivateIP for loopback, private, link-local,
// unspecified, multicast and cloud metadata addresses.
func validateIP(ip net.IP) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return ErrPrivateIP
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return ErrPrivateIP
	}

	metadataIPs := []string{
		"169.254.169.254",
		"fd00:ec2::254", // AWS IPv6 metadata
	}
	for _, metaIP := range metadataIPs {
		if ip.Equal(net.ParseIP(metaIP)) {
			return ErrPrivateIP
		}
	}

	// IPv4-mapped IPv6 addresses could bypass the IPv4 checks
	if ip4 := ip.To4(); ip4 != nil {
		if ip4.IsLoopback() || ip4.IsPrivate() || ip4.IsLinkLocalUnicast() {
			return ErrPrivateIP
		}
	}
	return nil
}

// IsPrivateIP reports whether ipStr is an address that must not be scanned.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return validateIP(ip) != nil
}
