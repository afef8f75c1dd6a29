package util

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP extracts the client IP address from various sources
// Checks X-Forwarded-For, X-Real-IP headers and falls back to RemoteAddr
func ExtractClientIP(xForwardedFor string, realIp string, remoteAddr string) string {
	// Check X-Forwarded-For header first (may contain multiple IPs)
	if xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	if realIp != "" {
		return realIp
	}

	// Fall back to RemoteAddr
	if remoteAddr != "" {
		// RemoteAddr might include port, extract just the IP
		ip, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			return remoteAddr
		}
		return ip
	}

	return ""
}

// ClientIP resolves the caller's network origin for a request.
func ClientIP(r *http.Request) string {
	return ExtractClientIP(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), r.RemoteAddr)
}

// BearerToken extracts a bearer token from the Authorization header.
// Returns the empty string when no bearer credential is present.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
