package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ms-security/internal/audit/metrics"
	"ms-security/pkg/requestcontext"
)

// maxSnapshotBytes bounds how much of a request or response body the
// interceptor will copy for auditing. Larger bodies are audited without
// body contents.
const maxSnapshotBytes = 64 << 10

// Dispatcher receives finished events for delivery. Implementations must not
// block the caller for longer than a send attempt and must never panic.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

// Interceptor wraps the host's handler chain and turns every finished
// request/response pair into an audit event. It is strictly
// behavior-preserving: status code, body, and headers reach the caller
// exactly as the wrapped handler produced them, and every capture failure is
// contained here.
type Interceptor struct {
	enricher *Enricher
	dispatch Dispatcher
	excluded []string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewInterceptor builds an Interceptor. Excluded routes are matched by
// case-insensitive path substring and skip all audit work.
func NewInterceptor(enricher *Enricher, dispatch Dispatcher, excluded []string, logger *slog.Logger, m *metrics.Metrics) *Interceptor {
	lowered := make([]string, 0, len(excluded))
	for _, e := range excluded {
		if e = strings.TrimSpace(strings.ToLower(e)); e != "" {
			lowered = append(lowered, e)
		}
	}
	return &Interceptor{
		enricher: enricher,
		dispatch: dispatch,
		excluded: lowered,
		logger:   logger,
		metrics:  m,
	}
}

// Middleware returns the chi-compatible middleware.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if i.isExcluded(r.URL.Path) {
			i.metrics.Excluded.Inc()
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		body := i.snapshotRequestBody(r)
		rec := newResponseRecorder(w)

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		req, resp := i.snapshot(r, rec, body)
		go i.capture(req, resp, duration)
	})
}

func (i *Interceptor) isExcluded(path string) bool {
	p := strings.ToLower(path)
	for _, e := range i.excluded {
		if strings.Contains(p, e) {
			return true
		}
	}
	return false
}

// snapshot collects everything the capture goroutine needs so it never
// touches the request or response writer after the handler returns.
func (i *Interceptor) snapshot(r *http.Request, rec *responseRecorder, body map[string]any) (RequestInfo, ResponseInfo) {
	ctx := r.Context()

	sessionID := requestcontext.SessionID(ctx)
	if sessionID == "" {
		// Correlate the event even for anonymous traffic.
		sessionID = uuid.NewString()
	}

	req := RequestInfo{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Params:     routeParams(r),
		Body:       body,
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
		UserID:     requestcontext.UserID(ctx),
		UserRole:   requestcontext.UserRole(ctx),
		SessionID:  sessionID,
	}
	resp := ResponseInfo{
		StatusCode:   rec.status,
		Body:         rec.body.Bytes(),
		Header:       rec.Header().Clone(),
		ResponseSize: rec.written,
	}
	return req, resp
}

// capture runs detached from the request path. Whatever goes wrong in here is
// logged and dropped; the caller's response has already been sent.
func (i *Interceptor) capture(req RequestInfo, resp ResponseInfo, duration time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			i.metrics.CaptureFailures.Inc()
			i.logger.Error("audit capture panicked", "panic", rec, "path", req.Path)
		}
	}()

	event := i.enricher.Enrich(req, resp, duration)
	i.dispatch.Dispatch(context.Background(), event)
}

// snapshotRequestBody reads and restores the request body, returning its
// decoded JSON object form when it is small enough and actually an object.
func (i *Interceptor) snapshotRequestBody(r *http.Request) map[string]any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	// Read one byte past the bound to tell a body of exactly
	// maxSnapshotBytes apart from a larger one.
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes+1))
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(buf))
		return nil
	}
	if int64(len(buf)) > maxSnapshotBytes {
		// Body exceeds the snapshot bound; hand the handler the full stream
		// and audit without body contents.
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))

	var body map[string]any
	if err := json.Unmarshal(buf, &body); err != nil {
		return nil
	}
	return body
}

func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for idx, key := range rctx.URLParams.Keys {
		if key == "*" {
			continue
		}
		params[key] = rctx.URLParams.Values[idx]
	}
	return params
}

// responseRecorder captures the final status code and a bounded copy of the
// body without changing how the response is written.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	body    bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if remaining := maxSnapshotBytes - r.body.Len(); remaining > 0 {
		if len(p) <= remaining {
			r.body.Write(p)
		} else {
			r.body.Write(p[:remaining])
		}
	}
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
