// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/head_tracker/internal/calibration"
	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/osc"
	"github.com/relabs-tech/head_tracker/internal/store"
)

const shutdownTimeout = 3 * time.Second

// RunTracker runs the head tracker until ctx is cancelled: it reads the
// configured source, corrects every sample, sends it over OSC and serves
// the viewer.
func RunTracker(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (err error) {
	st, err := store.NewDir(cfg.StateDir)
	if err != nil {
		return err
	}
	logger.Infow("state directory", "path", st.Path())

	clk := clock.New()
	cal := calibration.New(st, logger.Named("calibration"))
	snd := osc.NewSender(st, logger.Named("osc"))
	defer func() {
		err = multierr.Append(err, snd.Close())
	}()
	pipeline := NewPipeline(cal, snd, clk, logger.Named("pipeline"))

	viewer := NewViewer(pipeline, cal, snd, cfg.WebStaticDir, cfg.WebMirror, logger.Named("web"))
	pipeline.AddSink(viewer)
	defer func() {
		err = multierr.Append(err, viewer.Close())
	}()

	if cfg.MQTTPublish {
		pub, perr := NewPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.TopicPose, cfg.TopicStatus, logger.Named("mqtt"))
		if perr != nil {
			return perr
		}
		pipeline.AddSink(pub)
		defer func() {
			err = multierr.Append(err, pub.Close())
		}()
	}

	det, err := NewDetector(cfg, clk, logger.Named("motion"))
	if err != nil {
		return err
	}
	det.OnSample = pipeline.HandleSample
	det.OnConnectionChange = pipeline.HandleConnection

	// calibration and OSC settings survive a restart even without a gesture
	defer cal.Save()
	defer snd.Save()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           viewer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return det.Run(gctx)
	})
	g.Go(func() error {
		logger.Infow("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("tracker stopped")
	return nil
}
