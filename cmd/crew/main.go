package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/xenn00/crew-chat/config"
	"github.com/xenn00/crew-chat/internal/queue"
	"github.com/xenn00/crew-chat/internal/realtime"
	chat_repo "github.com/xenn00/crew-chat/internal/repo/chat"
	chat_service "github.com/xenn00/crew-chat/internal/use-case/chat-case"
	"github.com/xenn00/crew-chat/state"
)

var (
	userID  string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "Terminal client for crew-chat rooms",
	Long: `crew joins a group chat room straight against the crew-chat database and redis.

Configuration is read from application.yaml and CHATAPP_* environment variables,
the same way the relay server reads it.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id to act as")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("user")

	groupCmd.AddCommand(groupCreateCmd)
	rootCmd.AddCommand(roomCmd)
	rootCmd.AddCommand(groupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339})

	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	return nil
}

// openBackend wires the chat service the same way the relay does. With REALTIME.QUEUED the
// relay's worker pool must be running for other members to see our changes.
func openBackend(ctx context.Context, cancel context.CancelFunc) (*state.AppState, *chat_service.ChatService, error) {
	app, err := state.InitAppState(ctx, cancel)
	if err != nil {
		return nil, nil, err
	}

	var publisher realtime.Publisher = realtime.NewRedisPublisher(app.Redis)
	if config.Conf.REALTIME.Queued {
		publisher = queue.NewQueuedPublisher(queue.NewProducer(app.Redis))
	}

	service := chat_service.NewChatService(chat_repo.NewChatRepo(app.DB), app.Redis, publisher)
	return app, service, nil
}
