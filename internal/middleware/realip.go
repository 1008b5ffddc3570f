package middleware

import (
	"net"

	"github.com/labstack/echo/v4"
)

// IPExtractor decides what echo's RealIP reports for a request. With no
// trusted proxies it is the TCP peer (or the PROXY protocol source address).
// Otherwise X-Forwarded-For is walked from the right, skipping only peers
// inside the trusted CIDRs. Entries that do not parse are ignored; config
// validation rejects them before this runs.
func IPExtractor(trustedProxies []string) echo.IPExtractor {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedProxies {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			opts = append(opts, echo.TrustIPRange(n))
		}
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
