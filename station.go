package main

import (
	"context"

	"go.uber.org/zap"

	"packscan/camera"
	"packscan/capture"
	"packscan/config"
	"packscan/history"
	"packscan/notify"
	"packscan/overlay"
	"packscan/pkg/ffmpeg"
	"packscan/processor"
	"packscan/rtsp"
)

// station bundles the processor with the resources it owns.
type station struct {
	proc    *processor.Processor
	history *history.Store
}

func (s *station) Close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			logger.Warn("failed to close history", zap.Error(err))
		}
	}
}

func newStation(cfg *config.Config, logger *zap.Logger) *station {
	st := &station{}

	deps := processor.Deps{
		Sources:   func(c *config.Config) processor.Source { return sourceFor(c, logger) },
		Annotator: stampAnnotator{overlay.NewRenderer()},
		Notifier: func(c *config.Config) processor.Notifier {
			return notify.NewTelegram(c.TelegramToken, c.TelegramChatID, logger)
		},
		Alerts: notify.NewDesktop(cfg.DesktopAlerts, logger),
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		logger.Warn("scan history disabled", zap.String("path", cfg.HistoryDB), zap.Error(err))
	} else {
		st.history = store
		deps.History = store
	}

	st.proc = processor.New(cfg, deps, logger)
	return st
}

// sourceFor picks the recorder when enabled, otherwise the standalone
// camera.
func sourceFor(cfg *config.Config, logger *zap.Logger) processor.Source {
	if cfg.RecorderEnabled() {
		rec, err := newRecorder(cfg, logger)
		if err != nil {
			logger.Error("recorder unavailable", zap.Error(err))
			return nil
		}
		return rec
	}
	if cfg.CameraIP != "" {
		return camera.NewClient(cfg.CameraIP, cfg.CameraLogin, cfg.CameraPassword, logger)
	}
	return nil
}

func newRecorder(cfg *config.Config, logger *zap.Logger) (*rtsp.Recorder, error) {
	ep := rtsp.Endpoint{
		IP:       cfg.RecorderIP,
		Port:     cfg.RecorderPort,
		Login:    cfg.RecorderLogin,
		Password: cfg.RecorderPassword,
		Channel:  cfg.RecorderChannel,
	}
	return rtsp.NewRecorder(ep, cfg.RecorderTemplate, grabberFor(cfg.RTSPBackend), logger)
}

func grabberFor(backend string) rtsp.Grabber {
	if backend == config.BackendFFmpeg {
		return ffmpeg.NewGrabber()
	}
	return capture.NewGoCV()
}

// stampAnnotator adapts the overlay renderer to the processor.
type stampAnnotator struct {
	r *overlay.Renderer
}

func (a stampAnnotator) Annotate(snapshot []byte, code, timestamp, source string) ([]byte, error) {
	return a.r.Annotate(snapshot, overlay.Stamp{Code: code, Timestamp: timestamp, Source: source})
}

// watchConfig reloads the processor configuration when the file changes.
func watchConfig(ctx context.Context, path string, proc *processor.Processor, logger *zap.Logger) error {
	w, err := config.NewWatcher(path, logger, func(next *config.Config) {
		if _, err := rtsp.Lookup(next.RecorderTemplate); err != nil {
			logger.Warn("reloaded config has an unknown RTSP template", zap.String("template", next.RecorderTemplate))
		}
		proc.UpdateConfig(next)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}
