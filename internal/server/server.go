package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/manudelosrios02/datalogger/internal/errcode"
	"github.com/manudelosrios02/datalogger/internal/metrics"
	"github.com/manudelosrios02/datalogger/internal/record"
	"github.com/manudelosrios02/datalogger/internal/service"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultAcceptTimeout = 800 * time.Millisecond
	DefaultReplyTimeout  = 2 * time.Second
)

// Options configures the HTTP front-end.
type Options struct {
	// AcceptTimeout bounds the wait for the request line and headers.
	AcceptTimeout time.Duration
	// ReplyTimeout bounds the wait for the coordinator to service a request.
	ReplyTimeout time.Duration
	// Metrics, when set, is served at /metrics and counts requests.
	Metrics *metrics.Metrics
}

// Server is the remote control surface. Handlers never touch session state
// directly; every operation is queued on the coordinator.
type Server struct {
	service service.Service
	opts    Options
	router  *mux.Router
}

// New creates a server driving svc.
func New(svc service.Service, opts Options) *Server {
	if opts.AcceptTimeout <= 0 {
		opts.AcceptTimeout = DefaultAcceptTimeout
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}

	s := &Server{service: svc, opts: opts}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.closeConnection)

	r.HandleFunc("/", s.handleIndex).Name("index")
	r.HandleFunc("/log", s.handleLog).Name("log")
	r.HandleFunc("/last", s.handleLast).Name("last")
	r.HandleFunc("/download", s.handleDownload).Name("download")
	r.HandleFunc("/cmd", s.handleCommand).Name("cmd")
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler()).Name("metrics")
	}

	r.NotFoundHandler = http.HandlerFunc(s.handleRedirect)
	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds addr. Failing to listen is the one fatal startup condition.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve answers requests on ln until ctx is done. Connections are never kept
// alive.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.opts.AcceptTimeout,
		ReadTimeout:       s.opts.AcceptTimeout,
		WriteTimeout:      s.opts.ReplyTimeout + 30*time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
	}
	srv.SetKeepAlivesEnabled(false)

	slog.Info("Starting HTTP front-end",
		"address", ln.Addr().String(),
		"local_url", fmt.Sprintf("http://%s", localURL(ln.Addr())))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ReplyTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown incomplete", "error", err)
		}
		slog.Info("HTTP front-end stopped")
		return nil
	}
}

func (s *Server) closeConnection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		if s.opts.Metrics != nil {
			name := "unknown"
			if route := mux.CurrentRoute(r); route != nil {
				name = route.GetName()
			}
			s.opts.Metrics.Request(name)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) replyContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opts.ReplyTimeout)
}

// notServiced reports whether err means the coordinator never ran the request.
func notServiced(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, service.ErrStopped)
}

// unavailable answers a request the coordinator never serviced.
func unavailable(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("Request not serviced", "path", r.URL.Path, "error", err)
	http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
}

// handleRedirect sends every unknown path back to the status page.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	if s.opts.Metrics != nil {
		s.opts.Metrics.Request("redirect")
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLog returns the mirrored console output.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.replyContext(r)
	defer cancel()

	text, err := s.service.ConsoleLog(ctx)
	if err != nil {
		unavailable(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, text)
}

// handleLast returns the live preview line.
func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.replyContext(r)
	defer cancel()

	line, err := s.service.Live(ctx)
	if err != nil {
		unavailable(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, line)
}

// handleDownload streams a stored recording as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.replyContext(r)
	defer cancel()

	name := ParseQuery(r.URL.RawQuery).Get("name")
	rc, resolved, err := s.service.Open(ctx, name)
	switch {
	case errors.Is(err, errcode.NotFound), errors.Is(err, errcode.InvalidName):
		http.Error(w, "File not found", http.StatusNotFound)
		return
	case notServiced(err):
		unavailable(w, r, err)
		return
	case err != nil:
		slog.Error("Download failed", "file", name, "error", err)
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resolved))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Error("Error serving file download", "file", resolved, "error", err)
	}
}

// handleCommand runs start, stop or delete. The answer is always OK: the
// outcome is reported on the console and therefore in /log.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.replyContext(r)
	defer cancel()

	q := ParseQuery(r.URL.RawQuery)
	op, name := q.Get("op"), q.Get("name")
	slog.Debug("Command request received", "op", op, "name", name)

	var err error
	switch op {
	case "start":
		err = s.service.Start(ctx, name)
	case "stop":
		err = s.service.Stop(ctx)
	case "delete":
		err = s.service.Delete(ctx, name)
	default:
		slog.Warn("Unknown command", "op", op)
	}

	if notServiced(err) {
		unavailable(w, r, err)
		return
	}
	if err != nil {
		slog.Info("Command refused", "op", op, "name", name, "code", errcode.Of(err))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "OK")
}

// handleIndex renders the status and control page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.replyContext(r)
	defer cancel()

	snap, err := s.service.Snapshot(ctx)
	if err != nil {
		unavailable(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := indexTemplate.Execute(w, newIndexView(snap)); err != nil {
		slog.Error("Failed to render status page", "error", err)
	}
}

type liveCell struct {
	Column string
	Value  string
}

type indexView struct {
	service.Snapshot
	LiveCells []liveCell
	Active    bool
}

func newIndexView(snap service.Snapshot) indexView {
	v := indexView{Snapshot: snap, Active: snap.Session != nil}
	if snap.Live != "" {
		values := strings.Split(snap.Live, ",")
		for i, col := range record.Columns {
			if i < len(values) {
				v.LiveCells = append(v.LiveCells, liveCell{Column: col, Value: values[i]})
			}
		}
	}
	return v
}

func localURL(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	return net.JoinHostPort(getLocalIP(), fmt.Sprint(tcp.Port))
}

// getLocalIP returns the first non-loopback IPv4 address, or localhost.
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return "localhost"
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"bytes": formatBytes,
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Datalogger</title>
<style>
body { font-family: sans-serif; margin: 1em; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 2px 6px; text-align: right; }
.warn { color: #a00; }
</style>
</head>
<body>
<h1>Datalogger</h1>
<p>Mode: <b>{{.Mode}}</b> &middot; Status: <b>{{.Status}}</b> &middot; Period: {{.Period}}</p>
{{if .Active}}
<p>Recording <b>{{.Session.Filename}}</b> ({{.Session.Label}}), session {{.Session.ID}},
started {{stamp .Session.StartTime}}, {{.Session.Samples}} samples.</p>
<p><a href="/cmd?op=stop">Stop recording</a></p>
{{else}}
<form action="/cmd" method="get">
<input type="hidden" name="op" value="start">
<input type="text" name="name" placeholder="label">
<button type="submit">Start recording</button>
</form>
{{end}}
{{range .Failing}}<p class="warn">Read failure: {{.}}</p>{{end}}
<h2>Live</h2>
{{if .LiveCells}}
<table>
<tr>{{range .LiveCells}}<th>{{.Column}}</th>{{end}}</tr>
<tr>{{range .LiveCells}}<td>{{.Value}}</td>{{end}}</tr>
</table>
<p>Updated {{stamp .LiveAt}}</p>
{{else}}
<p>No measurements yet.</p>
{{end}}
<h2>Files</h2>
{{if .StorageErr}}<p class="warn">{{.StorageErr}}</p>{{end}}
{{if .Files}}
<table>
<tr><th>Name</th><th>Size</th><th></th><th></th></tr>
{{range .Files}}
<tr><td>{{.Name}}</td><td>{{bytes .Size}}</td>
<td><a href="/download?name={{.Name}}">download</a></td>
<td><a href="/cmd?op=delete&amp;name={{.Name}}">delete</a></td></tr>
{{end}}
</table>
{{else}}
<p>(no files)</p>
{{end}}
<p><a href="/log">Console log</a> &middot; <a href="/last">Last reading</a></p>
</body>
</html>
`))
