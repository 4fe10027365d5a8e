package middleware

import (
	"net/http"
	"time"

	"github.com/wolfman30/insurance-leads-platform/internal/enrichment"
	"github.com/wolfman30/insurance-leads-platform/internal/ratelimit"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

const ipLimitedMessage = "Muitas requisições deste endereço. Aguarde um minuto e tente novamente."

// IPGuard throttles requests per client address before they reach the
// lead pipeline. It complements the per-email limiter inside the pipeline
// and shares its best-effort nature. Run it after chi's RealIP.
func IPGuard(limiter ratelimit.Limiter, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := enrichment.ClientIPFromRequest(r)
			if ip == "" {
				ip = r.RemoteAddr
			}
			if !limiter.Allow(r.Context(), "ip:"+ip, time.Now()) {
				logger.Warn("request rate limited", "remote_ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, ipLimitedMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
