package auditlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// TraceHeader carries the trace identifier across services.
const TraceHeader = "X-Request-Id"

// Request is the HTTP context copied into every entry written while serving it.
// Each blob is a JSON object.
type Request struct {
	General string
	Get     string
	Post    string
}

// Middleware captures the request into the context for loggers and wrapped
// transactions downstream. A trace id is taken from X-Request-Id or generated.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(TraceHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceHeader, traceID)

		ctx := WithTraceID(r.Context(), traceID)
		ctx = WithRequest(ctx, h.CaptureRequest(r))
		// r may be a copy the server never sees, so its temp files are ours
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CaptureRequest renders the request line, query and form of r.
func (h *Handler) CaptureRequest(r *http.Request) *Request {
	general := map[string]any{
		"method":      r.Method,
		"path":        r.URL.Path,
		"host":        r.Host,
		"scheme":      scheme(r),
		"remote_addr": ipAddress(r),
		"user_agent":  r.UserAgent(),
	}
	if ref := r.Referer(); ref != "" {
		general["referer"] = ref
	}

	req := &Request{
		General: h.encodeBlob(general),
		Get:     h.encodeBlob(flatten(r.URL.Query())),
	}
	switch formBody(r) {
	case "urlencoded":
		if form, err := postForm(r); err == nil {
			req.Post = h.encodeBlob(flatten(form))
		}
	case "multipart":
		if err := r.ParseMultipartForm(h.cfg.FormMemory); err == nil {
			req.Post = h.encodeBlob(flatten(r.PostForm))
		}
	}
	return req
}

func (h *Handler) encodeBlob(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(h.applyRedact(m))
	if err != nil {
		return ""
	}
	return string(b)
}

// flatten keeps single values as strings and repeated ones as lists.
func flatten(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for key, vs := range values {
		if len(vs) == 1 {
			out[key] = vs[0]
		} else {
			out[key] = vs
		}
	}
	return out
}

const (
	defaultFormMemory = 32 << 20
	maxFormSize       = 10 << 20
)

// postForm parses a urlencoded body. net/http skips DELETE bodies, so those
// are read here and put back for the next handler.
func postForm(r *http.Request) (url.Values, error) {
	if r.Method != http.MethodDelete {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return url.Values{}, nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxFormSize+1))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(b), r.Body), Closer: r.Body}
	if err != nil {
		return nil, err
	}
	if len(b) > maxFormSize {
		return nil, errors.New("auditlog: form body too large")
	}
	return url.ParseQuery(string(b))
}

type readCloser struct {
	io.Reader
	io.Closer
}

// formBody reports which form encoding the body uses, if any.
func formBody(r *http.Request) string {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return ""
	}
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		return "urlencoded"
	case strings.HasPrefix(ct, "multipart/form-data"):
		return "multipart"
	}
	return ""
}

func scheme(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		return p
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// ipAddress extracts the client IP, checking X-Forwarded-For first.
func ipAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
