package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/gin-gonic/gin"
)

// IPAllowlist holds the networks allowed to reach an internal endpoint
type IPAllowlist struct {
	networks []*net.IPNet
}

// LoadIPAllowlist parses a comma separated list of IPs and CIDRs from the environment.
// METRICS_ALLOWED_IPS=127.0.0.1,10.0.0.0/8
// An unset or empty variable yields nil, which allows everyone.
func LoadIPAllowlist(envKey string) *IPAllowlist {
	return ParseIPAllowlist(os.Getenv(envKey))
}

// ParseIPAllowlist parses a comma separated list. Invalid entries are skipped.
func ParseIPAllowlist(list string) *IPAllowlist {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	al := &IPAllowlist{}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil && ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn("ignoring invalid allowlist entry %q: %v", entry, err)
			continue
		}
		al.networks = append(al.networks, network)
	}
	return al
}

// Allows reports whether ip falls in one of the networks. A nil list allows everything.
func (a *IPAllowlist) Allows(ip string) bool {
	if a == nil {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range a.networks {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// IPProtection rejects callers outside the allowlist with 403
func IPProtection(al *IPAllowlist) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !al.Allows(c.ClientIP()) {
			common.ErrorResponse(c, http.StatusForbidden, "Access denied", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
