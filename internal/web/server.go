// Package web serves the upload form, the result page and a small JSON API
// on top of the transcription service.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/version"
)

// Transcriber is the part of transcribe.Service the handlers depend on.
type Transcriber interface {
	Transcribe(ctx context.Context, job transcribe.Job) (transcript.Transcript, error)
	Models() []transcribe.ModelStatus
	EngineName() string
	DefaultModel() string
	DefaultLanguage() string
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	Service         Transcriber
	Store           *transcript.Store
	Logger          *zap.Logger
}

type Server struct {
	opts       Options
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
	version    version.Info
}

var releaseMode sync.Once

func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("transcription service is required")
	}
	if opts.Store == nil {
		return nil, errors.New("transcript store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	releaseMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	engine := gin.New()
	engine.SetHTMLTemplate(tmpl)
	engine.MaxMultipartMemory = 8 << 20

	s := &Server{
		opts:    opts,
		engine:  engine,
		logger:  opts.Logger.Named("web"),
		version: version.Current(),
	}
	s.engine.Use(recovery(s.logger), requestID(), requestLogger(s.logger))
	s.routes()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
	}
	return s, nil
}

func (s *Server) routes() {
	upload := limitBody(s.opts.MaxUploadBytes)

	s.engine.GET("/", s.index)
	s.engine.POST("/transcribe", upload, s.submit)
	s.engine.GET("/transcripts/:id/download", s.download)
	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api/v1")
	{
		api.POST("/transcriptions", upload, s.createTranscription)
		api.GET("/transcriptions/:id", s.getTranscription)
		api.GET("/models", s.listModels)
		api.GET("/languages", s.listLanguages)
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Addr() string { return s.httpServer.Addr }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", "http://"+ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", zap.Duration("timeout", s.opts.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
