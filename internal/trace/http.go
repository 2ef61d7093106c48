package trace

import "net/http"

// Middleware continues the caller's trace from its traceparent header, or starts one, and
// echoes the request's own traceparent on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := ParseTraceparent(r.Header.Get(TraceparentKey))
		if !ok {
			tc = New()
		}
		w.Header().Set(TraceparentKey, tc.Traceparent())
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}
