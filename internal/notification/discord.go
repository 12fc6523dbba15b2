package notification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"vigil/internal/models"
	vigilerrors "vigil/pkg/errors"
)

type Message struct {
	Title       string
	Description string
	Severity    string
	Fields      map[string]string
	Timestamp   time.Time
}

// EmbedSender is the part of a discord session the client needs.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

type NotificationClient struct {
	sg        EmbedSender
	channelID string
}

// NewNotificationClient opens a bot session. Both token and channel are
// required.
func NewNotificationClient(token, channelID string) (*NotificationClient, error) {
	if token == "" || channelID == "" {
		return nil, vigilerrors.ErrDiscordNotConfigured
	}

	sg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	if err := sg.Open(); err != nil {
		return nil, err
	}

	return &NotificationClient{sg: sg, channelID: channelID}, nil
}

// NewWithSender wraps an existing sender.
func NewWithSender(sg EmbedSender, channelID string) *NotificationClient {
	return &NotificationClient{sg: sg, channelID: channelID}
}

func (c *NotificationClient) getSeverityColor(severity string) int {
	switch severity {
	case "critical":
		return 0x8B0000
	case "high":
		return 0xFF0000
	case "medium":
		return 0xFF8C00
	case "low":
		return 0xFFD700
	case "info":
		return 0x00BFFF
	default:
		return 0x808080
	}
}

func (c *NotificationClient) Send(msg Message) error {
	if c.sg == nil {
		return fmt.Errorf("Discord client not initialized")
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       c.getSeverityColor(msg.Severity),
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
	}

	if len(msg.Fields) > 0 {
		keys := make([]string, 0, len(msg.Fields))
		for k := range msg.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := make([]*discordgo.MessageEmbedField, 0, len(keys))
		for _, key := range keys {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   key,
				Value:  msg.Fields[key],
				Inline: true,
			})
		}
		embed.Fields = fields
	}

	_, err := c.sg.ChannelMessageSendEmbed(c.channelID, embed)
	return err
}

func (c *NotificationClient) Close() error {
	if c.sg != nil {
		return c.sg.Close()
	}
	return nil
}

// ScanSummary builds the message sent when a scan finishes.
func ScanSummary(scan *models.Scan) Message {
	counts := make(map[models.Severity]int)
	worst := models.SeverityInfo
	for _, r := range scan.Results {
		for _, f := range r.Findings {
			counts[f.Severity]++
			if f.Severity.AtLeast(worst) {
				worst = f.Severity
			}
		}
	}

	var failed []string
	for _, r := range scan.Results {
		if r.Status != models.StatusSuccess {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Module, r.Status))
		}
	}

	desc := fmt.Sprintf("**Target:** `%s`\n%d module(s), %d finding(s)", scan.Target, len(scan.Results), scan.FindingsCount())
	if len(failed) > 0 {
		desc += "\n**Incomplete:** " + strings.Join(failed, ", ")
	}

	msg := Message{
		Title:       fmt.Sprintf("Scan %s finished: %s", scan.ScanID, scan.Status),
		Description: desc,
		Severity:    string(worst),
		Fields:      map[string]string{},
	}
	if scan.CompletedAt != nil {
		msg.Timestamp = *scan.CompletedAt
	}
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if n := counts[sev]; n > 0 {
			msg.Fields[strings.ToUpper(string(sev))] = fmt.Sprintf("%d", n)
		}
	}
	return msg
}

// FindingAlert builds the message for a single finding.
func FindingAlert(scan *models.Scan, module string, f models.Finding) Message {
	desc := fmt.Sprintf("**Target:** `%s`", scan.Target)
	if f.Description != "" {
		d := f.Description
		if len(d) > 200 {
			d = d[:197] + "..."
		}
		desc = fmt.Sprintf("%s\n\n%s", d, desc)
	}

	msg := Message{
		Title:       f.Title,
		Description: desc,
		Severity:    string(f.Severity),
		Fields: map[string]string{
			"Severity": strings.ToUpper(string(f.Severity)),
			"Module":   module,
		},
	}
	if f.CVE != nil {
		msg.Fields["CVE"] = *f.CVE
	}
	if f.CVSSScore != nil {
		msg.Fields["CVSS"] = fmt.Sprintf("%.1f", *f.CVSSScore)
	}
	if f.Reference != nil {
		msg.Fields["Reference"] = *f.Reference
	}
	return msg
}
