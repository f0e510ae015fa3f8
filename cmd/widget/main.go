package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livechat/internal/config"
	"livechat/internal/db"
	"livechat/internal/domain"
	"livechat/internal/realtime"
	"livechat/internal/repository"
	"livechat/internal/service"
	"livechat/internal/widget"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	broker, err := openBroker(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}

	handles, err := widget.NewFileHandleStore(cfg.HandlePath)
	if err != nil {
		log.Fatal(err)
	}

	sessionSvc := service.NewSessionService(repository.NewPgSessionRepository(pool))
	messageSvc := service.NewMessageService(logger, repository.NewPgMessageRepository(pool), broker)
	agent := widget.NewAgent(logger, sessionSvc, messageSvc, broker, handles)
	defer agent.Stop()

	agent.SetOnInsert(func(msg domain.Message) {
		if msg.Sender != domain.SenderAdmin {
			return
		}
		name := msg.SenderName
		if name == "" {
			name = "Support"
		}
		fmt.Printf("\nAgent %s > %s\nYou > ", name, msg.Body)
	})

	if err := agent.Start(ctx); err != nil {
		fmt.Printf("Could not resume previous chat: %v\n", err)
	}

	if agent.State() == widget.StateCollectingIdentity {
		if err := collectIdentity(ctx, reader, agent); err != nil {
			log.Fatal(err)
		}
	} else {
		fmt.Println("Resuming your previous chat.")
		for _, msg := range agent.Messages() {
			printTurn(msg)
		}
	}

	fmt.Println("---- Chat (type 'exit' to quit, '/refresh' to resync) ----")
	for {
		fmt.Print("You > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "exit") {
			fmt.Println("Bye! Your chat will resume next time.")
			return
		}
		if text == "/refresh" {
			if err := agent.Refresh(ctx); err != nil {
				fmt.Printf("Refresh failed: %v\n", err)
				continue
			}
			for _, msg := range agent.Messages() {
				printTurn(msg)
			}
			continue
		}

		if err := agent.Send(ctx, text); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				fmt.Println("This chat was closed by the support team. Your text was kept, press enter to retry or 'exit' to quit.")
			} else {
				fmt.Printf("Send failed (%v). Your text was kept, try again.\n", err)
			}
			// El borrador queda disponible para reintento manual.
			if draft := agent.Draft(); draft != "" {
				fmt.Printf("Draft: %s\n", draft)
			}
		}
	}
}

func collectIdentity(ctx context.Context, reader *bufio.Reader, agent *widget.Agent) error {
	fmt.Println("===== Chat with us =====")
	for {
		fmt.Print("Your name: ")
		name, _ := reader.ReadString('\n')
		fmt.Print("Your email: ")
		email, _ := reader.ReadString('\n')

		err := agent.Begin(ctx, strings.TrimSpace(name), strings.TrimSpace(email), false)
		if err == nil {
			fmt.Println("Chat started. We typically reply within minutes.")
			return nil
		}
		if errors.Is(err, domain.ErrValidation) {
			fmt.Printf("Please check your details: %v\n", err)
			continue
		}
		return fmt.Errorf("could not start chat: %w", err)
	}
}

func printTurn(msg domain.Message) {
	who := "You"
	if msg.Sender == domain.SenderAdmin {
		who = "Agent " + msg.SenderName
	}
	fmt.Printf("[%s] %s > %s\n", msg.CreatedAt.Format("15:04"), who, msg.Body)
}

func openBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (realtime.Broker, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("redis not configured, realtime delivery stays in-process")
		return realtime.NewMemoryBroker(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return realtime.NewRedisBroker(client, logger), nil
}
