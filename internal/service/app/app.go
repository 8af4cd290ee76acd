// Package app is the reference sender: it encrypts a payload to the
// receiver the way a push relay does and hands it to the receiver's host.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"push_notify/internal/model"
	"push_notify/internal/protocol/webpush"
	"push_notify/internal/utils/log"
)

type (
	// Payload is the plaintext schema the receiver parses.
	Payload struct {
		Title          string `json:"title"`
		Body           string `json:"body"`
		Icon           string `json:"icon,omitempty"`
		NotificationID int64  `json:"notification_id"`
		AccessToken    string `json:"access_token"`
		Type           string `json:"notification_type,omitempty"`
	}

	Message struct {
		Payload  Payload
		Subtitle string
		// Fallback is what the receiver shows when it cannot decode the push.
		Fallback model.Content
		Padding  int
	}

	App struct {
		base   *url.URL
		client *http.Client
		auth   []byte

		// receiverPub is fetched from the host on first use when empty.
		keyMu       sync.Mutex
		receiverPub []byte
	}
)

func NewApp(server string, auth []byte, receiverPub []byte) (*App, error) {
	base, err := url.Parse(server)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", server)
	}
	if len(auth) != webpush.AuthSecretSize {
		return nil, fmt.Errorf("auth secret must be %d bytes", webpush.AuthSecretSize)
	}
	return &App{
		base:        base,
		client:      &http.Client{Timeout: 35 * time.Second},
		auth:        auth,
		receiverPub: receiverPub,
	}, nil
}

// Send encrypts msg to the receiver and posts it to the host, returning the
// content the host delivered. device may be empty.
func (c *App) Send(ctx context.Context, device string, msg Message) (*model.Content, error) {
	receiverPub, err := c.publicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch receiver key: %w", err)
	}

	plaintext, err := json.Marshal(&msg.Payload)
	if err != nil {
		return nil, err
	}

	rec, err := webpush.Encrypt(plaintext, receiverPub, c.auth, &webpush.EncryptOptions{Padding: msg.Padding})
	if err != nil {
		return nil, err
	}

	info := webpush.UserInfo(rec)
	if msg.Subtitle != "" {
		info[model.UserInfoSubtitle] = msg.Subtitle
	}

	content, err := c.postPush(ctx, device, model.Request{UserInfo: info, Content: msg.Fallback})
	if err != nil {
		return nil, err
	}

	log.Debug("push sent", zap.String("device", device), zap.Int("ciphertext_bytes", len(rec.Ciphertext)))
	return content, nil
}

// publicKey returns the receiver key, fetching it once. A failed fetch is
// retried on the next call.
func (c *App) publicKey(ctx context.Context) ([]byte, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	if len(c.receiverPub) == 0 {
		pub, err := c.getPublicKey(ctx)
		if err != nil {
			return nil, err
		}
		c.receiverPub = pub
	}
	return c.receiverPub, nil
}

// Listen subscribes as device and passes every delivered content to fn
// until ctx is done or the connection drops.
func (c *App) Listen(ctx context.Context, device string, fn func(model.Content)) error {
	conn, err := c.initWebhook(ctx, device)
	if err != nil {
		return fmt.Errorf("init webhook to server failed: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	return listenOnWebhook(ctx, conn, fn)
}

func listenOnWebhook(ctx context.Context, conn *websocket.Conn, fn func(model.Content)) error {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			log.Debug("device web socket closed", zap.Error(err))
			return err
		}

		var content model.Content
		if err := json.Unmarshal(data, &content); err != nil {
			log.Error("unmarshal delivered content failed", zap.Error(err))
			continue
		}
		fn(content)
	}
}
