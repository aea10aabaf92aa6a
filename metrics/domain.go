package metrics

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrDomain is the label value used when an endpoint URL has no usable host.
const ErrDomain = "error"

var errNoHost = errors.New("endpoint URL has no host")

// internalSuffixes mark hosts that never go through public DNS, such as a
// devnet node in a compose file.
var internalSuffixes = []string{".local", ".internal", ".lan"}

// EndpointDomain reduces an RPC endpoint URL to its registrable domain, so
// that rpc.ankr.com/eth_sepolia and rpc.ankr.com/eth share one label. IPs,
// localhost and internal names are kept whole. The scheme may be omitted.
func EndpointDomain(rawURL string) (string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errNoHost
	}

	if net.ParseIP(host) != nil || isInternalHost(host) {
		return host, nil
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain, nil
	}

	labels := strings.Split(host, ".")
	return strings.Join(labels[len(labels)-2:], "."), nil
}

// domainLabel is EndpointDomain for metric labels: failures collapse into
// ErrDomain.
func domainLabel(rawURL string) string {
	domain, err := EndpointDomain(rawURL)
	if err != nil {
		return ErrDomain
	}
	return domain
}

func isInternalHost(host string) bool {
	if host == "localhost" || !strings.Contains(host, ".") {
		return true
	}
	for _, suffix := range internalSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return strings.HasPrefix(host, "localhost.")
}
