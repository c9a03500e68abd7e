package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realtime-core/auth"
	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/internal"
	"realtime-core/repositories"
	"realtime-core/runtime"
	"realtime-core/runtime/workers"
	"realtime-core/sink"
	"realtime-core/transport/ws"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
// Deferred cleanups run before the process exits.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	clock := clockwork.NewRealClock()

	// 2. Dead letter archive (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	deadLetterRepository := repositories.NewDeadLetterRepository(db, log)
	sinks := []contract.DeadLetterSink{sink.NewDiskSink(deadLetterRepository, log)}

	// 3. Coordination core
	hub := runtime.NewHub(log)
	rooms := runtime.NewRoomManager(log, clock)
	events := runtime.NewEventManager(log, clock, config.RetryPolicy())
	deadLetters := make(chan event.Record, config.DeadLetterBuffer)
	events.SetBroadcaster(hub)
	events.SetDeadLetterQueue(deadLetters)

	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer func() { _ = client.Close() }()
		sinks = append(sinks, sink.NewRedisStreamSink(client, config.RedisDLQStream, config.RedisStreamMaxLen, log))
		events.SetNotificationService(sink.NewRedisNotifier(client, config.RedisNotifyPrefix, config.RedisStreamMaxLen, log))
		log.Info("Redis wired", "dlq_stream", config.RedisDLQStream, "notify_prefix", config.RedisNotifyPrefix)
	}

	system := domain.User{ID: "system"}
	for _, id := range config.PermanentRoomIDs() {
		_, name := id.Split()
		if _, err = rooms.CreateRoom(system, domain.RoomSpec{Name: name, Type: domain.PermanentRoomType}); err != nil {
			return fmt.Errorf("opening %s: %w", id, err)
		}
	}
	if target := config.AnnounceRoomID(); target != "" {
		events.On(internal.RoomCreatedEvent, internal.AnnounceRoomCreated(log, hub, target))
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	sup := workers.NewSupervisor(log, clock, config.RestartInterval)
	sup.Add(
		workers.NewDeadLetterFanout(log, deadLetters, config.SinkTimeout, sinks...),
		workers.NewEventJanitor(log, clock, events, config.JanitorInterval, config.EventRetention),
	)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 6. HTTP Server Setup
	tokens := auth.NewTokenValidator(config.JWTSecret, config.TokenTTL, clock)
	if config.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := internal.NewRouter(log, internal.Dependencies{
		Events:      events,
		Rooms:       rooms,
		DeadLetters: deadLetterRepository,
		Tokens:      tokens,
		Socket:      ws.NewHandler(log, hub, rooms, tokens, config.WriteTimeout, config.Origins()),
	})
	server := &http.Server{Addr: config.Address(), Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", server.Addr, "at", clock.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		sup.Stop()
		<-supervisorDone
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")
	return nil
}
