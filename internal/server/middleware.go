// internal/server/middleware.go
package server

import (
	"log"
	"net/http"
	"time"
)

// MaxRequestBytes bounds request bodies accepted by the API
const MaxRequestBytes = 1 << 20 // 1MB

// SecurityHeadersMiddleware masks version headers from HTTP responses.
// It removes the default Server header that includes the Go version
// and any X-Powered-By header.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapper := &headerRemovalWriter{ResponseWriter: w}
		next.ServeHTTP(wrapper, r)
		if !wrapper.headerWritten {
			wrapper.writeSecurityHeaders()
		}
	})
}

// headerRemovalWriter wraps http.ResponseWriter to modify headers
// before the first write
type headerRemovalWriter struct {
	http.ResponseWriter
	headerWritten bool
}

// WriteHeader applies the header changes before the status line
func (w *headerRemovalWriter) WriteHeader(statusCode int) {
	w.writeSecurityHeaders()
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write ensures headers are applied before the body
func (w *headerRemovalWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.writeSecurityHeaders()
	}
	return w.ResponseWriter.Write(b)
}

func (w *headerRemovalWriter) writeSecurityHeaders() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true

	h := w.ResponseWriter.Header()
	h.Del("Server")
	h.Del("X-Powered-By")
	h.Set("Server", "agentcoord")
}

// Flush implements http.Flusher for streaming responses
func (w *headerRemovalWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// RequestSizeMiddleware caps request body size
func RequestSizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs each API request with its duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[HTTP] %s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
