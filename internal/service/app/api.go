package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"push_notify/internal/model"
)

func (c *App) endpoint(path string, query url.Values) url.URL {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u
}

func (c *App) getPublicKey(ctx context.Context) ([]byte, error) {
	u := c.endpoint("/keys", nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get public key: status %d", resp.StatusCode)
	}

	var body struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	return base64.RawURLEncoding.DecodeString(strings.TrimRight(body.PublicKey, "="))
}

func (c *App) postPush(ctx context.Context, device string, push model.Request) (*model.Content, error) {
	query := url.Values{}
	if device != "" {
		query.Set("device", device)
	}
	u := c.endpoint("/push", query)

	data, err := json.Marshal(&push)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("post push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var content model.Content
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, err
	}
	return &content, nil
}

func (c *App) initWebhook(ctx context.Context, device string) (*websocket.Conn, error) {
	u := c.endpoint("/ws", url.Values{"device": []string{device}})
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}
