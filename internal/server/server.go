package server

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/browser"
	"github.com/omero-biomero/tusgate/internal/config"
	"github.com/omero-biomero/tusgate/internal/importer"
	"github.com/omero-biomero/tusgate/internal/logger"
	"github.com/omero-biomero/tusgate/internal/mappings"
	"github.com/omero-biomero/tusgate/internal/tus"
)

const (
	MetadataBackendFile    = "file"
	MetadataBackendLevelDB = "leveldb"

	mappingsPollInterval = 2 * time.Second
)

// Server ties the upload protocol and the JSON api to one gin engine.
type Server struct {
	conf     *config.Config
	tus      *tus.Handler
	resolver auth.Resolver
	browser  *browser.Browser
	mappings *mappings.Store
	importer *importer.Importer
	app      *gin.Engine
}

// New builds every component from conf. Nothing is started.
func New(conf *config.Config) (*Server, error) {
	var store tus.Store
	switch conf.MetadataBackend() {
	case "", MetadataBackendFile:
		store = tus.NewFileStore(conf.UploadDir())
	case MetadataBackendLevelDB:
		store = tus.NewLevelDBStore(conf.UploadDir(), conf.LevelDB())
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", conf.MetadataBackend())
	}

	handler, err := tus.NewHandler(tus.Config{
		BasePath:                conf.BasePath(),
		Store:                   store,
		UploadDir:               conf.UploadDir(),
		DestinationDir:          conf.DestinationDir(),
		MaxSize:                 conf.MaxSize(),
		ChunkBufferSize:         conf.ChunkBufferSize(),
		Extensions:              conf.Extensions(),
		DuplicatePolicy:         conf.DuplicatePolicy(),
		MaxDuplicateAttempts:    conf.MaxDuplicateAttempts(),
		AllowUnownedUploads:     conf.AllowUnownedUploads(),
		RequireTusResumable:     conf.RequireTusResumable(),
		RespectForwardedHeaders: conf.RespectForwardedHeaders(),
		CheckFreeSpace:          conf.CheckFreeSpace(),
		CrossOrigin:             conf.EnableCrossOrigin(),
		AllowedOrigins:          conf.CrossOriginAllow(),
		OnFinalized: func(f tus.FinalizedUpload) {
			log.Info(fmt.Sprintf("upload %s of user %s finalized into %s", f.Info.ID, f.Info.OwnerID, f.Path))
		},
	})
	if err != nil {
		return nil, err
	}

	resolver, err := auth.NewResolver(conf)
	if err != nil {
		return nil, err
	}

	mappingStore, err := mappings.NewStore(conf.GroupMappingsFile())
	if err != nil {
		return nil, err
	}

	sink, err := importer.NewSink(conf.OrderSink(), conf.LevelDB(), conf.OrderWebhookUrl(), conf.OrderWebhookTimeout())
	if err != nil {
		return nil, err
	}

	s := &Server{
		conf:     conf,
		tus:      handler,
		resolver: resolver,
		browser:  browser.New(conf.DestinationDir()),
		mappings: mappingStore,
		importer: importer.New(conf.DestinationDir(), sink),
		app:      gin.New(),
	}
	s.registerRoutes(s.app)
	return s, nil
}

// Handler is the root http handler, method overrides are applied before routing.
func (s *Server) Handler() http.Handler {
	return tus.MethodOverride(s.app)
}

// Run starts the background jobs and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.conf.UploadExpire() > 0 && s.conf.ReapInterval() > 0 {
		s.tus.StartReaper(ctx, s.conf.ReapInterval(), s.conf.UploadExpire())
	}
	if err := s.mappings.Watch(mappingsPollInterval); err != nil {
		log.Error("watch group mappings: ", err)
	}
	defer s.mappings.Close()

	srv := &http.Server{
		Addr:              s.conf.Addr(),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.conf.ReadTimeout()) * time.Second,
		ReadHeaderTimeout: time.Duration(s.conf.ReadHeaderTimeout()) * time.Second,
		WriteTimeout:      time.Duration(s.conf.WriteTimeout()) * time.Second,
		IdleTimeout:       time.Duration(s.conf.IdleTimeout()) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listen on ", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("**** Graceful shutdown tusgate server ****")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("**** tusgate server exiting **** ")
	return nil
}

// Start serves conf until SIGINT, SIGTERM or SIGQUIT and releases the
// database afterwards.
func Start(conf *config.Config) error {
	defer logger.Flush()
	defer conf.RegisterExit()

	s, err := New(conf)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	return s.Run(ctx)
}
