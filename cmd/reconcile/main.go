package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/service/reconcile"
	"github.com/Nirman0799/affordpill-checkout/internal/storage/postgres"
)

// Отдельный процесс reconcile-свипа: находит online-заказы, которые
// остались pending/pending дольше TTL, и отменяет их. Обычно свип крутится
// внутри checkout-service; этот бинарь — для разовых прогонов и cron-джобов.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	var (
		dsn        string
		pendingTTL time.Duration
		interval   time.Duration
		batchSize  int
		once       bool
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: AP_POSTGRES_DSN)")
	flag.DurationVar(&pendingTTL, "pending-ttl", 24*time.Hour, "age after which a pending online order is cancelled")
	flag.DurationVar(&interval, "interval", 15*time.Minute, "sweep interval in loop mode")
	flag.IntVar(&batchSize, "batch-size", 200, "max orders cancelled per sweep")
	flag.BoolVar(&once, "once", false, "run a single sweep and exit")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("AP_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("AP_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	worker := reconcile.NewWorker(
		postgres.NewOrderRepository(store),
		postgres.NewTimelineRepository(store),
		postgres.NewOutboxRepository(store),
		reconcile.WithLogger(log.WithField("component", "reconcile")),
		reconcile.WithPendingTTL(pendingTTL),
		reconcile.WithInterval(interval),
		reconcile.WithBatchSize(batchSize),
	)

	if once {
		cancelled, err := worker.SweepStale(ctx, time.Now().UTC())
		if err != nil {
			fail("sweep failed: %v", err)
		}
		fmt.Printf("sweep ok: cancelled=%d\n", cancelled)
		return
	}

	log.WithFields(log.Fields{
		"pending_ttl": pendingTTL,
		"interval":    interval,
	}).Info("запускаем reconcile loop")
	worker.Run(ctx)
	log.Info("reconcile остановлен")
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
