// Package proxy implements a minimal reverse proxy that forwards any
// request path to the backend, stripping the host header and adding the
// tunnel bypass header. It exists so a browser front-end on one origin can
// reach a backend exposed through an ngrok-style tunnel without tripping
// its interstitial page or CORS.
package proxy

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Hop-by-hop headers are not forwarded from the upstream response.
var skipHeaders = map[string]struct{}{
	"Transfer-Encoding":   {},
	"Content-Encoding":    {},
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Upgrade":             {},
}

// Forwarder proxies requests to a single upstream base URL.
type Forwarder struct {
	target string
	client *http.Client
	logger *zap.Logger
}

// New creates a forwarder for the given upstream base URL. Redirects are
// passed back to the caller rather than followed.
func New(target string, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		target: strings.TrimRight(target, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Register mounts the catch-all forwarding route.
func (f *Forwarder) Register(e *echo.Echo) {
	e.Any("/*", f.Handle)
}

func (f *Forwarder) Handle(c echo.Context) error {
	req := c.Request()

	url := f.target + "/" + strings.TrimLeft(req.URL.Path, "/")
	if req.URL.RawQuery != "" {
		url += "?" + req.URL.RawQuery
	}

	// Raw body passthrough so multipart uploads survive intact.
	var body io.Reader
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			f.logger.Warn("proxy body read failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "proxy error"})
		}
		if len(data) > 0 {
			body = bytes.NewReader(data)
		}
	}

	out, err := http.NewRequestWithContext(req.Context(), req.Method, url, body)
	if err != nil {
		f.logger.Warn("proxy request build failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "proxy error"})
	}
	for key, vals := range req.Header {
		if strings.EqualFold(key, "Host") {
			continue
		}
		for _, v := range vals {
			out.Header.Add(key, v)
		}
	}
	out.Header.Set("ngrok-skip-browser-warning", "1")

	resp, err := f.client.Do(out)
	if err != nil {
		f.logger.Warn("proxy upstream failed", zap.Error(err), zap.String("url", url))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "proxy error"})
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	for key, vals := range resp.Header {
		if _, skip := skipHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}
		for _, v := range vals {
			header.Add(key, v)
		}
	}
	header.Set("Access-Control-Allow-Origin", "*")

	c.Response().WriteHeader(resp.StatusCode)
	_, err = io.Copy(c.Response(), resp.Body)
	return err
}
