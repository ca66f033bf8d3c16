package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Discord is a simple Discord webhook notifier for operational alerts.
type Discord struct {
	webhookURL string
	logger     *log.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		// The caller is usually a webhook handler whose context dies the
		// moment it responds; the alert must outlive it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Printf("discord: failed to marshal message: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Printf("discord: failed to create request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Printf("discord: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Printf("discord: webhook returned status %d", resp.StatusCode)
		}
	}()
}

// NotifyPlacementFailed alerts when an outbound call could not be placed.
func (d *Discord) NotifyPlacementFailed(ctx context.Context, prospectPhone, reason string) {
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Outbound call failed to place",
			Description: fmt.Sprintf("Call to `%s` was not placed.", prospectPhone),
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Reason", Value: reason},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

// NotifyTrialRestriction alerts when the account's trial status blocked a call.
// These need a human to verify the destination number or upgrade the account.
func (d *Discord) NotifyTrialRestriction(ctx context.Context, userID, prospectPhone string) {
	msg := discordMessage{
		Content: "@here",
		Embeds: []discordEmbed{{
			Title:       "Trial account restriction hit",
			Description: "Outbound call blocked by provider trial limits.",
			Color:       0xFFA500, // Orange
			Fields: []embedField{
				{Name: "User ID", Value: fmt.Sprintf("`%s`", userID), Inline: true},
				{Name: "Number", Value: fmt.Sprintf("`%s`", prospectPhone), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

// NotifyBridgeError alerts when a live media bridge dies unexpectedly.
func (d *Discord) NotifyBridgeError(ctx context.Context, callSID string, bridgeErr error) {
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Media bridge error",
			Description: fmt.Sprintf("Bridge for call `%s` ended with an error.", callSID),
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Error", Value: bridgeErr.Error()},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}
