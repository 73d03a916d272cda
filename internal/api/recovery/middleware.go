package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/api/respond"
	"github.com/mycelian/mycelian-persona/internal/metrics"
)

// Middleware converts a handler panic into a 500 error envelope. The panic
// value and stack are logged; the caller only sees the generic envelope.
func Middleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				route := routeTemplate(r)
				metrics.PanicsRecoveredTotal.WithLabelValues(route).Inc()
				log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("route", route).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				respond.WriteInternalError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routeTemplate(r *http.Request) string {
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
