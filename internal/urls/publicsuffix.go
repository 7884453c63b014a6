package urls

import (
	"net"
	"strings"
)

// multiLabelSuffixes is the compiled-in seed of multi-label public suffixes.
// Kept lowercase. Single-label TLDs fall out of the last-label fallback.
var multiLabelSuffixes = []string{
	"co.uk", "ac.uk", "gov.uk", "org.uk", "sch.uk",
	"com.au", "net.au", "org.au", "edu.au", "gov.au",
	"co.jp", "ne.jp", "or.jp", "ac.jp", "go.jp",
	"co.nz", "org.nz", "govt.nz", "ac.nz",
	"com.br", "net.br", "org.br", "gov.br",
	"com.cn", "net.cn", "org.cn", "gov.cn",
}

// HostIsIPv4 reports whether the host is a dotted-quad IPv4 literal.
func (u URL) HostIsIPv4() bool {
	return isIPv4(u.host)
}

// HostIsIPv6 reports whether the host is a bracketed IPv6 literal.
func (u URL) HostIsIPv6() bool {
	return isIPv6Literal(u.host)
}

// PublicSuffix returns the longest whole-label match from the compiled-in
// multi-label list, defaulting to the last label. IP literals have no
// public suffix.
func (u URL) PublicSuffix() string {
	host := u.host
	if isIPLiteral(host) {
		return ""
	}

	labels := strings.Split(host, ".")
	psLen := publicSuffixLen(host, labels)
	if psLen == 0 || psLen > len(labels) {
		return ""
	}

	return strings.Join(labels[len(labels)-psLen:], ".")
}

// RegistrableDomain returns the eTLD+1: one label left of the public suffix
// plus the suffix itself. IP-literal hosts return the literal host; hosts
// that are nothing but a public suffix return "".
func (u URL) RegistrableDomain() string {
	host := u.host
	if isIPLiteral(host) {
		return host
	}

	labels := strings.Split(host, ".")
	psLen := publicSuffixLen(host, labels)
	if psLen == 0 || len(labels) <= psLen {
		return ""
	}

	return strings.Join(labels[len(labels)-psLen-1:], ".")
}

// Domain returns the registrable domain re-parsed as a URL, suitable as a
// map key for per-domain partitioning.
func (u URL) Domain() URL {
	return Parse(u.RegistrableDomain())
}

// Subdomains returns the labels left of the registrable domain, outermost
// first: for a.b.example.com the result is [a, b].
func (u URL) Subdomains() []string {
	host := u.host
	if isIPLiteral(host) {
		return nil
	}

	labels := strings.Split(host, ".")
	psLen := publicSuffixLen(host, labels)
	if psLen == 0 || len(labels) <= psLen+1 {
		return nil
	}

	return labels[:len(labels)-psLen-1]
}

// publicSuffixLen returns the suffix length in labels: 2 for "co.uk",
// 1 for the last-label fallback, 0 for IP literals.
func publicSuffixLen(host string, labels []string) int {
	if isIPLiteral(host) {
		return 0
	}

	for _, ps := range multiLabelSuffixes {
		if !strings.HasSuffix(host, ps) {
			continue
		}
		// Whole-label boundary: either the whole host, or a '.' precedes.
		if len(host) == len(ps) || host[len(host)-len(ps)-1] == '.' {
			return strings.Count(ps, ".") + 1
		}
	}

	if len(labels) >= 1 {
		return 1
	}
	return 0
}

func isIPLiteral(host string) bool {
	return isIPv4(host) || isIPv6Literal(host)
}

func isIPv4(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil && strings.Count(host, ".") == 3
}

func isIPv6Literal(host string) bool {
	return len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']'
}
