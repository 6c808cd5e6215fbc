package httpserver

import (
	"net/http"
	"time"
)

// New builds the host HTTP server. Write timeout is generous because the
// bulk-upload routes accept large multipart payloads.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
