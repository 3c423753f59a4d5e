package promo

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxBodyLogSize = 1024

// DebugLogger dumps requests and responses in verbose mode. A nil logger is a no-op.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogRequest(worker, step string, req *http.Request, body []byte) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\n[%s] >>> REQUEST: %s\n", workerLabel(worker), step))
	buf.WriteString(fmt.Sprintf("  %s %s\n", req.Method, req.URL.String()))

	if len(req.Header) > 0 {
		buf.WriteString("  Headers:\n")
		for name, values := range req.Header {
			value := strings.Join(values, ", ")
			if name == "Authorization" {
				value = redact(value)
			}
			buf.WriteString(fmt.Sprintf("    %s: %s\n", name, value))
		}
	}

	if len(body) > 0 {
		buf.WriteString(fmt.Sprintf("  Body: %s\n", truncateBody(body)))
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogResponse(worker, step string, resp *http.Response, body []byte, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("[%s] <<< RESPONSE: %s (%s)\n", workerLabel(worker), step, duration.Round(time.Millisecond)))
	buf.WriteString(fmt.Sprintf("  Status: %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode)))
	if len(body) > 0 {
		buf.WriteString(fmt.Sprintf("  Body: %s\n", truncateBody(body)))
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogError(worker, step string, errMsg string, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[%s] !!! ERROR: %s (%s)\n  %s\n",
		workerLabel(worker), step, duration.Round(time.Millisecond), errMsg)
}

func workerLabel(worker string) string {
	if worker == "" {
		return "-"
	}
	return worker
}

// redact keeps the auth scheme and the last four characters of the token.
func redact(value string) string {
	scheme, token, found := strings.Cut(value, " ")
	if !found {
		token, scheme = scheme, ""
	}
	masked := "****"
	if len(token) > 8 {
		masked += token[len(token)-4:]
	}
	if scheme == "" {
		return masked
	}
	return scheme + " " + masked
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
