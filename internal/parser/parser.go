// Package parser turns authenticated push plaintext into a DecodedNotification.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"push_notify/internal/model"
)

// ErrParse is wrapped by every failure. Callers treat it like a decryption
// failure and deliver the original content.
var ErrParse = errors.New("parser: cannot interpret plaintext")

type (
	// payload mirrors the server's push JSON. Pointers distinguish a missing
	// field from an empty one.
	payload struct {
		Title           *string         `json:"title" validate:"required,min=1"`
		Body            *string         `json:"body" validate:"required"`
		Icon            *string         `json:"icon"`
		NotificationID  *notificationID `json:"notification_id" validate:"required"`
		AccessToken     *string         `json:"access_token" validate:"required,min=1"`
		Type            string          `json:"notification_type"`
		PreferredLocale string          `json:"preferred_locale"`
	}

	// notificationID accepts a JSON number, or a string holding one.
	notificationID int64
)

var validate = validator.New()

func (n *notificationID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("notification_id %q is not an integer", b)
	}
	if v < 0 {
		return fmt.Errorf("notification_id must not be negative")
	}
	*n = notificationID(v)
	return nil
}

func Parse(plaintext []byte) (*model.DecodedNotification, error) {
	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, sanitize(err))
	}

	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	icon := ""
	if p.Icon != nil && *p.Icon != "" {
		u, err := url.Parse(*p.Icon)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: icon must be an http(s) URL", ErrParse)
		}
		icon = *p.Icon
	}

	return &model.DecodedNotification{
		Title:           *p.Title,
		Body:            html.UnescapeString(*p.Body),
		Icon:            icon,
		NotificationID:  int64(*p.NotificationID),
		AccessToken:     *p.AccessToken,
		Type:            p.Type,
		PreferredLocale: p.PreferredLocale,
	}, nil
}

// sanitize drops the offending value from JSON errors; it may be the access
// token.
func sanitize(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("field %q has type %s", typeErr.Field, typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("invalid JSON at offset %d", syntaxErr.Offset)
	}
	return errors.New("invalid payload")
}
