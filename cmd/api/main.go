package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/config"
	"github.com/pulpfiction/pulpfiction/pkg/database"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/pulpfiction/pulpfiction/pkg/migrations"
	"github.com/pulpfiction/pulpfiction/pkg/server"
	"github.com/pulpfiction/pulpfiction/pkg/version"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting pulpfiction", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	store, err := images.NewFromConfig(cfg)
	if err != nil {
		log.Err(err).Fatal("image store error")
	}
	log.Info("image directory initialized", logger.Data{"path": cfg.ImageDir})

	srv, err := server.New(cfg, db, store)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		log.Info("server started", logger.Data{"addr": srv.Addr, "environment": cfg.Environment})
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	<-graceful
	log.Info("starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	if err := db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
