// Package notify delivers scan events to Telegram and to the operator's
// desktop.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAPIBase = "https://api.telegram.org"

	MessageTimeout = 10 * time.Second
	PhotoTimeout   = 30 * time.Second
)

var ErrNotConfigured = errors.New("telegram token or chat id not configured")

// Telegram posts to a single chat through the Bot API.
type Telegram struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	logger  *zap.Logger
}

// NewTelegram creates a client. Empty token or chat id produce a client whose
// sends are no-ops returning ErrNotConfigured.
func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		apiBase: DefaultAPIBase,
		client:  &http.Client{},
		logger:  logger.With(zap.String("component", "telegram")),
	}
}

// Configured reports whether both token and chat id are set.
func (t *Telegram) Configured() bool {
	return t.token != "" && t.chatID != ""
}

func (t *Telegram) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.apiBase, "/"), t.token, method)
}

// SendMessage posts a text message.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	if !t.Configured() {
		t.logger.Warn("telegram not configured")
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, MessageTimeout)
	defer cancel()

	form := url.Values{"chat_id": {t.chatID}, "text": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := t.do(req); err != nil {
		t.logger.Error("message not sent", zap.Error(err))
		return err
	}
	t.logger.Info("message sent")
	return nil
}

// SendPhoto uploads the file at path with a caption.
func (t *Telegram) SendPhoto(ctx context.Context, path, caption string) error {
	if !t.Configured() {
		t.logger.Warn("telegram not configured")
		return ErrNotConfigured
	}

	f, err := os.Open(path)
	if err != nil {
		t.logger.Error("photo not found", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to open photo: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", t.chatID); err != nil {
		return err
	}
	if err := mw.WriteField("caption", caption); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, PhotoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := t.do(req); err != nil {
		t.logger.Error("photo not sent", zap.String("path", path), zap.Error(err))
		return err
	}
	t.logger.Info("photo sent", zap.String("path", path))
	return nil
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		// the request URL carries the bot token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
