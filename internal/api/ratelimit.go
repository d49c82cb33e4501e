package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

// allowReportRequest applies a fixed-window per-client limit to the
// generation endpoint, counting in Redis so every API replica shares the
// same window. Fails open: no Redis, no limiting.
func (s *Server) allowReportRequest(r *http.Request) bool {
	if s.rdb == nil || s.cfg.ReportRateLimit <= 0 {
		return true
	}

	ip := clientIP(r)
	key := "ratelimit:informe:" + ip

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn("rate limit counter unavailable", "err", err)
		return true
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, s.cfg.ReportRateWindow).Err(); err != nil {
			s.logger.Warn("rate limit expire failed", "key", key, "err", err)
		}
	}

	if count > int64(s.cfg.ReportRateLimit) {
		s.logger.Info("report request rate limited", "ip", ip, "count", count)
		return false
	}
	return true
}

// clientIP trusts middleware.RealIP to have rewritten RemoteAddr from
// the forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
