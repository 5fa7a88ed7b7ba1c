package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"speechforge/config"
	"speechforge/handlers"
	"speechforge/internal/audio"
	"speechforge/internal/pipeline"
	"speechforge/internal/segmenter"
	"speechforge/internal/store"
	"speechforge/internal/transcribe"
	"speechforge/internal/worker"
	"speechforge/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := config.InitLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("Creating data directory failed")
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("Opening database failed")
	}
	defer st.Close()

	// The model behind the transcriber is expensive; build the backend once
	// and share it behind the concurrency guard.
	var backend transcribe.Transcriber
	switch cfg.Transcriber.Backend {
	case "http":
		backend = transcribe.NewHTTPASR(cfg.Transcriber.URL)
	default:
		backend = transcribe.NewWhisperCPP(cfg.Transcriber.BinPath, cfg.Transcriber.ModelPath)
	}
	guarded := transcribe.NewGuard(backend, cfg.Transcriber.MaxConcurrent)

	pre := audio.NewPreprocessor(cfg.Audio.SampleRate, cfg.Audio.TargetPeak, cfg.Audio.MinRMS, cfg.Audio.FFmpegPath)
	seg := segmenter.New(segmenter.Config{
		FrameMs:              cfg.Segmenter.FrameMs,
		HopMs:                cfg.Segmenter.HopMs,
		MinSegmentSec:        cfg.Segmenter.MinSegmentSec,
		MaxSegmentSec:        cfg.Segmenter.MaxSegmentSec,
		MinSilenceSec:        cfg.Segmenter.MinSilenceSec,
		SpeechSNRdB:          cfg.Segmenter.SpeechSNRdB,
		NoiseFloorPercentile: cfg.Segmenter.NoiseFloorPercentile,
	})
	pl := pipeline.New(pre, seg, guarded, st, log, cfg.Server.DataDir, cfg.Transcriber.MaxAttempts)

	dispatcher := worker.NewDispatcher(pl, cfg.Worker.PoolSize, cfg.Worker.QueueSize, log)
	dispatcher.Run()

	h := handlers.NewApplicationHandler(dispatcher, st, log)

	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Server.MaxUploadMB * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"service": "speechforge",
		})
	})

	apiV1 := app.Group("/api/v1")
	apiV1.Post("/audio/upload", h.UploadAudio)
	apiV1.Get("/audio-files", h.ListAudioFiles)
	apiV1.Get("/audio-files/:id", h.GetAudioFile)
	apiV1.Get("/audio-files/:id/segments", h.GetFileSegments)
	apiV1.Get("/audio-files/:id/segments/archive", h.DownloadSegmentsArchive)
	apiV1.Get("/audio-files/:id/audio", h.StreamAudioFile)
	apiV1.Delete("/audio-files/:id", h.DeleteAudioFile)
	apiV1.Get("/segments/:id/audio", h.StreamSegmentAudio)
	apiV1.Get("/ml-ready-segments", h.GetMLReadySegments)
	apiV1.Get("/statistics", h.GetStatistics)
	apiV1.Get("/quality-statistics", h.GetQualityStatistics)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.WithField("addr", addr).Info("Server starting")
		if err := app.Listen(addr); err != nil {
			log.WithError(err).Fatal("Server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	if err := app.Shutdown(); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	dispatcher.Stop()
	log.Info("Shutdown complete")
}
