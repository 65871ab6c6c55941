package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"plasmatrader/internal/core"
)

// Embed colors
const (
	ColorGreen = 0x2ecc71
	ColorRed   = 0xe74c3c
	ColorBlue  = 0x3498db
)

const discordFooter = "PlasmaTrader | Paper Trading"

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordNotifier posts embeds to a Discord webhook. An empty webhook URL
// disables it.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (d *DiscordNotifier) SendAlert(ctx context.Context, title, message string, color int) error {
	if d.webhookURL == "" {
		return nil
	}

	embed := discordEmbed{
		Title:       title,
		Description: message,
		Color:       color,
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	embed.Footer.Text = discordFooter

	body, err := json.Marshal(discordMessage{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("encode discord message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode)
	}
	return nil
}

// NotifyFill posts one fill leg. Realized losses are red, gains and opens green.
func (d *DiscordNotifier) NotifyFill(ctx context.Context, trade core.Trade, balance string) error {
	color := ColorGreen
	if trade.PnL.IsNegative() {
		color = ColorRed
	}
	title := fmt.Sprintf("%s %s %s", trade.Side, trade.Size.String(), trade.Symbol)
	msg := fmt.Sprintf("Price: %s\nPnL: %s\nCommission: %s\nBalance: %s",
		trade.ExecPrice.StringFixed(2),
		trade.PnL.StringFixed(2),
		trade.Commission.StringFixed(4),
		balance,
	)
	return d.SendAlert(ctx, title, msg, color)
}
