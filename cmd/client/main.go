package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"push_notify/internal/model"
	"push_notify/internal/service/app"
	"push_notify/internal/utils/log"
)

type senderConfig struct {
	Server      string `env:"SENDER_SERVER" env-default:"http://localhost:9090"`
	AuthSecret  string `env:"SENDER_AUTH_SECRET" env-required:"true"`
	PublicKey   string `env:"SENDER_PUBLIC_KEY"`
	Device      string `env:"SENDER_DEVICE"`
	Icon        string `env:"SENDER_ICON"`
	AccessToken string `env:"SENDER_ACCESS_TOKEN" env-default:"unknown"`
	Subtitle    string `env:"SENDER_SUBTITLE"`
	Listen      bool   `env:"SENDER_LISTEN"`
}

func main() {
	// os.Args[0] is the program name, os.Args[1:] are arguments
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: go run ./cmd/client <title> <body> [notification_id]")
		fmt.Fprintln(os.Stderr)
		help, _ := cleanenv.GetDescription(&senderConfig{}, nil)
		fmt.Fprintln(os.Stderr, help)
		os.Exit(2)
	}

	if err := log.Init("debug", true); err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	var cfg senderConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatal("read sender config failed", zap.Error(err))
	}

	auth, err := decodeKey(cfg.AuthSecret)
	if err != nil {
		log.Fatal("SENDER_AUTH_SECRET is not base64url", zap.Error(err))
	}
	var pub []byte
	if cfg.PublicKey != "" {
		if pub, err = decodeKey(cfg.PublicKey); err != nil {
			log.Fatal("SENDER_PUBLIC_KEY is not base64url", zap.Error(err))
		}
	}

	var id int64
	if len(os.Args) > 3 {
		if _, err := fmt.Sscan(os.Args[3], &id); err != nil {
			log.Fatal("notification_id must be an integer", zap.String("arg", os.Args[3]))
		}
	}

	sender, err := app.NewApp(cfg.Server, auth, pub)
	if err != nil {
		log.Fatal("init sender failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device := cfg.Device
	if device == "" {
		device = uuid.NewString()
	}

	listening := make(chan error, 1)
	if cfg.Listen {
		go func() {
			listening <- sender.Listen(ctx, device, func(c model.Content) {
				log.Info("device received", zap.String("title", c.Title), zap.String("body", c.Body), zap.Int64("badge", c.Badge))
			})
		}()
	}

	content, err := sender.Send(ctx, device, app.Message{
		Payload: app.Payload{
			Title:          os.Args[1],
			Body:           os.Args[2],
			Icon:           cfg.Icon,
			NotificationID: id,
			AccessToken:    cfg.AccessToken,
		},
		Subtitle: cfg.Subtitle,
		Fallback: model.Content{Title: "New notification", Body: "Open the app to read it"},
	})
	if err != nil {
		log.Fatal("send push failed", zap.Error(err))
	}
	log.Info("host delivered",
		zap.String("device", device),
		zap.String("title", content.Title),
		zap.String("body", content.Body),
		zap.Int64("badge", content.Badge),
		zap.Bool("rich", content.Sender != nil),
		zap.Int("attachments", len(content.Attachments)))

	if !cfg.Listen {
		return
	}
	if err := <-listening; err != nil {
		log.Error("device subscription ended", zap.Error(err))
	}
}

func decodeKey(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
