package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/config"
	hub_handler "github.com/xenn00/crew-chat/internal/handlers/hub-handler"
	"github.com/xenn00/crew-chat/internal/queue"
	"github.com/xenn00/crew-chat/internal/realtime"
	chat_repo "github.com/xenn00/crew-chat/internal/repo/chat"
	"github.com/xenn00/crew-chat/internal/routers"
	chat_service "github.com/xenn00/crew-chat/internal/use-case/chat-case"
	"github.com/xenn00/crew-chat/internal/websocket"
	"github.com/xenn00/crew-chat/internal/worker"
	"github.com/xenn00/crew-chat/state"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// initialize the application
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	state, err := state.InitAppState(ctx, stop)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application state")
	}
	defer state.Close()

	var (
		publisher  realtime.Publisher = realtime.NewRedisPublisher(state.Redis)
		workerPool *worker.WorkerPool
		dlq        hub_handler.DLQStats
	)
	if config.Conf.REALTIME.Queued {
		workerPool = worker.NewWorkerPool(state.Redis, state.DB, config.Conf.REALTIME.Workers, publisher)
		workerPool.Start(ctx)
		workerPool.StartDLQWorker(ctx)
		workerPool.StartDLQRetryConsumer(ctx)
		dlq = workerPool

		publisher = queue.NewQueuedPublisher(queue.NewProducer(state.Redis))
		log.Info().Int("workers", config.Conf.REALTIME.Workers).Msg("change events go through the job queue")
	}

	service := chat_service.NewChatService(chat_repo.NewChatRepo(state.DB), state.Redis, publisher)

	hubConfig := websocket.DefaultHubConfig()
	hubConfig.ResubscribeDelay = config.Conf.ROOM.ResubscribeDelay
	wsHub := websocket.NewHub(realtime.NewRedisFeed(state.Redis), hubConfig)
	log.Info().Msg("Websocket hub initialized")

	server := &http.Server{
		Addr:         config.Conf.App.Port,
		Handler:      routers.NewRouter(service, wsHub, dlq),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// serve the application
	go func() {
		log.Info().Msgf("Starting server on http://localhost%s", config.Conf.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ListenAndServe failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown initiated...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	} else {
		log.Info().Msg("Server exited gracefully.")
	}

	wsHub.Close()
	if workerPool != nil {
		workerPool.Wait()
	}
}
