package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	maxMessageLen = 4096
	maxCaptionLen = 1024
	maxMediaGroup = 10
)

// Credentials resolves the bot token and chat id at send time so edits in
// the settings store apply without a restart.
type Credentials func() (botToken, chatID string)

// TelegramNotifier sends through the Telegram Bot API.
type TelegramNotifier struct {
	baseURL string
	creds   Credentials
	client  *http.Client
	logger  *logrus.Logger
}

// NewTelegramNotifier creates a notifier. A nil client gets a 20s timeout.
func NewTelegramNotifier(baseURL string, creds Credentials, client *http.Client, logger *logrus.Logger) *TelegramNotifier {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &TelegramNotifier{baseURL: strings.TrimRight(baseURL, "/"), creds: creds, client: client, logger: logger}
}

// Send posts text alone, a captioned photo, or a captioned media group.
func (t *TelegramNotifier) Send(ctx context.Context, text string, images ...[]byte) error {
	token, chatID := t.creds()
	if token == "" || chatID == "" {
		return fmt.Errorf("telegram: missing bot token or chat id")
	}

	caption := text
	if len(images) > 0 && len(caption) > maxCaptionLen {
		// Too long for a caption; send it as a message ahead of the images
		if err := t.sendText(ctx, token, chatID, text); err != nil {
			return err
		}
		caption = ""
	}

	switch {
	case len(images) == 0:
		return t.sendText(ctx, token, chatID, text)
	case len(images) == 1:
		return t.sendPhoto(ctx, token, chatID, caption, images[0])
	default:
		for start := 0; start < len(images); start += maxMediaGroup {
			end := start + maxMediaGroup
			if end > len(images) {
				end = len(images)
			}
			if err := t.sendMediaGroup(ctx, token, chatID, caption, images[start:end]); err != nil {
				return err
			}
			caption = ""
		}
		return nil
	}
}

func (t *TelegramNotifier) sendText(ctx context.Context, token, chatID, text string) error {
	for _, chunk := range splitText(text, maxMessageLen) {
		body, err := json.Marshal(map[string]string{
			"chat_id":    chatID,
			"text":       chunk,
			"parse_mode": "Markdown",
		})
		if err != nil {
			return fmt.Errorf("marshaling telegram payload: %w", err)
		}
		if err := t.post(ctx, token, "sendMessage", "application/json", bytes.NewReader(body)); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramNotifier) sendPhoto(ctx context.Context, token, chatID, caption string, img []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", chatID)
	if caption != "" {
		_ = w.WriteField("caption", caption)
		_ = w.WriteField("parse_mode", "Markdown")
	}
	part, err := w.CreateFormFile("photo", "pnl.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(img); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return t.post(ctx, token, "sendPhoto", w.FormDataContentType(), &buf)
}

type inputMedia struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (t *TelegramNotifier) sendMediaGroup(ctx context.Context, token, chatID, caption string, images [][]byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	media := make([]inputMedia, len(images))
	for i, img := range images {
		name := fmt.Sprintf("photo%d", i)
		media[i] = inputMedia{Type: "photo", Media: "attach://" + name}
		part, err := w.CreateFormFile(name, name+".png")
		if err != nil {
			return err
		}
		if _, err := part.Write(img); err != nil {
			return err
		}
	}
	if caption != "" {
		media[0].Caption = caption
		media[0].ParseMode = "Markdown"
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return err
	}
	_ = w.WriteField("chat_id", chatID)
	_ = w.WriteField("media", string(mediaJSON))
	if err := w.Close(); err != nil {
		return err
	}
	return t.post(ctx, token, "sendMediaGroup", w.FormDataContentType(), &buf)
}

func (t *TelegramNotifier) post(ctx context.Context, token, method, contentType string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.baseURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL embeds the token; keep it out of logs
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("telegram %s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// splitText breaks text into chunks of at most n bytes, preferring line breaks.
func splitText(text string, n int) []string {
	if len(text) <= n {
		return []string{text}
	}
	var out []string
	for len(text) > n {
		cut := strings.LastIndex(text[:n], "\n")
		if cut <= 0 {
			cut = n
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
