package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livechat/internal/config"
	"livechat/internal/console"
	"livechat/internal/db"
	"livechat/internal/domain"
	"livechat/internal/realtime"
	"livechat/internal/repository"
	"livechat/internal/service"
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

	sessionSvc := service.NewSessionService(repository.NewPgSessionRepository(pool))
	messageSvc := service.NewMessageService(logger, repository.NewPgMessageRepository(pool), broker)
	ctrl := console.NewController(logger, sessionSvc, messageSvc, broker, cfg.AgentName)
	defer ctrl.Stop()

	ctrl.SetOnInsert(func(msg domain.Message) {
		if msg.Sender != domain.SenderVisitor {
			return
		}
		fmt.Printf("\n%s > %s\nYou > ", msg.SenderName, msg.Body)
	})

	for {
		if err := ctrl.Load(ctx); err != nil {
			log.Fatalf("load sessions: %v", err)
		}
		sessions := ctrl.Sessions()

		fmt.Println("===== Active Chats =====")
		if len(sessions) == 0 {
			fmt.Println("No active chat sessions. [R] reload, [Q] quit")
		}
		for i, s := range sessions {
			fmt.Printf("[%d] %s <%s> (%s)\n", i+1, s.VisitorName, s.VisitorEmail, s.CreatedAt.Format(time.RFC822))
		}
		fmt.Print("Select a session (R reload, Q quit): ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(choice)
		if strings.EqualFold(choice, "Q") {
			return
		}
		if strings.EqualFold(choice, "R") {
			continue
		}
		idx, err := strconv.Atoi(choice)
		if err != nil || idx < 1 || idx > len(sessions) {
			fmt.Println("Invalid selection.")
			continue
		}

		if err := chatFlow(ctx, reader, ctrl, sessions[idx-1]); err != nil {
			fmt.Printf("Chat error: %v\n", err)
		}
	}
}

func chatFlow(ctx context.Context, reader *bufio.Reader, ctrl *console.Controller, session domain.Session) error {
	if err := ctrl.Select(ctx, session.ID); err != nil {
		return fmt.Errorf("select session: %w", err)
	}

	fmt.Printf("---- Chat with %s ('/close' ends the session, '/back' returns) ----\n", session.VisitorName)
	for _, msg := range ctrl.Messages() {
		who := session.VisitorName
		if msg.Sender == domain.SenderAdmin {
			who = "You"
		}
		fmt.Printf("[%s] %s > %s\n", msg.CreatedAt.Format("15:04"), who, msg.Body)
	}

	for {
		fmt.Print("You > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		switch text {
		case "/back":
			ctrl.Stop()
			return nil
		case "/close":
			if err := ctrl.CloseSelected(ctx); err != nil {
				fmt.Printf("Close failed: %v\n", err)
				continue
			}
			fmt.Println("Session closed.")
			return nil
		}

		if err := ctrl.Send(ctx, text); err != nil {
			fmt.Printf("Send failed (%v). Try again.\n", err)
		}
	}
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
