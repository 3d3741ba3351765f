package websocket

import (
	"net/http"
	"strings"
)

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	return ip
}

func (h *Hub) acquireIP(ip string) bool {
	if h.config.ConnectionsPerIP <= 0 {
		return true
	}

	h.ipMu.Lock()
	defer h.ipMu.Unlock()

	if h.ipConns[ip] >= h.config.ConnectionsPerIP {
		return false
	}
	h.ipConns[ip]++
	return true
}

func (h *Hub) releaseIP(ip string) {
	if h.config.ConnectionsPerIP <= 0 {
		return
	}

	h.ipMu.Lock()
	defer h.ipMu.Unlock()

	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
}
