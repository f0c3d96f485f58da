package http

import (
	"net/http"
	"strings"

	"djassa/internal/services"
	"djassa/internal/storage"
)

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func (s *Server) clientIP(r *http.Request) string {
	return s.securityDetector.ExtractClientIP(r)
}

func (s *Server) clientInfo(r *http.Request) services.ClientInfo {
	return services.ClientInfo{IP: s.clientIP(r), UserAgent: r.Header.Get("User-Agent")}
}

// auditMeta stamps manual writes with the caller's IP.
func (s *Server) auditMeta(r *http.Request) storage.AuditMeta {
	return storage.AuditMeta{IP: s.clientIP(r)}
}
