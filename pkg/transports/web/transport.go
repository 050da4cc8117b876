// Package web serves the farmer-facing upload form and a JSON API over the
// same triage handler.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/transports"
)

//go:embed templates/*.html
var templateFS embed.FS

type Config struct {
	ServerAddr     string        `mapstructure:"addr"`
	UploadDir      string        `mapstructure:"upload_dir"`
	OutputDir      string        `mapstructure:"output_dir"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":7860"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.OutputDir == "" {
		c.OutputDir = "outputs"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 20 << 20
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 3 * time.Minute
	}
	return c
}

type Transport struct {
	cfg      Config
	triager  transports.Triager
	log      *slog.Logger
	tmpl     *template.Template
	validate *validator.Validate
	decoder  *schema.Decoder
	router   chi.Router
	server   *http.Server
	draining atomic.Bool
}

func New(cfg Config, triager transports.Triager, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	t := &Transport{
		cfg:      cfg.withDefaults(),
		triager:  triager,
		log:      logging.NewComponentLogger(log, "web"),
		tmpl:     template.Must(template.ParseFS(templateFS, "templates/*.html")),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		decoder:  decoder,
	}
	t.router = t.routes()
	return t
}

func (t *Transport) Name() string { return "web" }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{"addr": t.cfg.ServerAddr, "output_dir": t.cfg.OutputDir}
}

// Handler exposes the router, mainly for tests.
func (t *Transport) Handler() http.Handler { return t.router }

func (t *Transport) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(t.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", t.handleIndex)
	r.Post("/triage", t.handleForm)
	r.Get("/audio/{name}", t.handleAudio)
	r.Get("/healthz", t.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", t.handleAPI)
		r.Get("/crops", t.handleCrops)
	})
	return r
}

// Start binds the listen address before returning so a busy port is
// reported to the caller. Serving continues in the background until ctx is
// done or Stop is called.
func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("web listen %s: %w", t.cfg.ServerAddr, err)
	}
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.router,
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("web_server_error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	if !t.draining.CompareAndSwap(false, true) {
		return nil
	}
	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}

func (t *Transport) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		t.log.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Duration("took", time.Since(start)))
	})
}

var _ transports.Transport = (*Transport)(nil)
