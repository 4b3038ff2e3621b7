package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/config"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"resty.dev/v3"
)

const _telegramAPI = "https://api.telegram.org"

// TelegramSink posts notifications to the Telegram bot API.
type TelegramSink struct {
	c     *resty.Client
	token string

	logger logger.Logger
}

func NewTelegramSink(cfg config.TelegramConfig, logger logger.Logger) *TelegramSink {
	return &TelegramSink{
		c:      resty.New().SetBaseURL(_telegramAPI).SetLogger(logger).SetTimeout(10 * time.Second),
		token:  cfg.Token,
		logger: logger,
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *TelegramSink) Send(ctx context.Context, n model.Notification) error {
	resp, err := s.c.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":    fmt.Sprintf("%d", n.ChatID),
			"text":       Render(n),
			"parse_mode": "HTML",
		}).
		SetResult(&telegramResponse{}).
		Post(fmt.Sprintf("/bot%s/sendMessage", s.token))
	if err != nil {
		return fmt.Errorf("can't send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("telegram api error: %s", resp.Status())
	}
	if r, ok := resp.Result().(*telegramResponse); ok && !r.OK {
		return fmt.Errorf("telegram rejected message: %s", r.Description)
	}

	return nil
}
