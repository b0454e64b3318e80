package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FRC5892/HeroHours/internal/attendance"
	"github.com/FRC5892/HeroHours/internal/config"
	"github.com/FRC5892/HeroHours/internal/export"
	"github.com/FRC5892/HeroHours/internal/observe"
	"github.com/FRC5892/HeroHours/internal/queue"
	"github.com/FRC5892/HeroHours/internal/store"
)

// Worker consumes queued export jobs, snapshots the roster and audit trail,
// and posts the package to the configured sheet endpoint.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var attStore attendance.Store
	if cfg.StoreBackend == "memory" {
		log.Println("WARNING: memory store shares no state with the api; exports will be empty")
		attStore = attendance.NewMemoryStore()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		attStore = attendance.NewPostgresStore(db.Client, cfg.LockTimeout)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "herohours:jobs")
	}

	sheet := export.New(cfg.SheetURL, cfg.SheetSkip, cfg.SheetTimeout)
	if sheet.Skip {
		log.Println("sheet endpoint not configured, export jobs will be acknowledged and skipped")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for export jobs...")
	for msg := range messages {
		if msg.Type != queue.TypeExport {
			continue
		}

		log.Printf("processing export job %s", msg.ID)
		payload, err := export.Snapshot(ctx, attStore, time.Now().UTC())
		if err != nil {
			log.Printf("export %s snapshot failed: %v", msg.ID, err)
			observe.ExportRuns.WithLabelValues("snapshot_error").Inc()
			continue
		}

		result, err := sheet.Send(ctx, payload)
		if err != nil {
			log.Printf("export %s send failed: %v", msg.ID, err)
			observe.ExportRuns.WithLabelValues("send_error").Inc()
			continue
		}

		observe.ExportRuns.WithLabelValues(result.Status).Inc()
		log.Printf("export %s done: %d members, %d logs, status %s",
			msg.ID, len(payload.Members), len(payload.Logs), result.Status)
	}

	log.Println("worker stopped")
}
