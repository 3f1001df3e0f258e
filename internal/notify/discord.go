// Package notify posts job lifecycle notifications to external channels.
//
// The only sink currently implemented is Discord: when a translation job
// reaches a terminal state, a short message is posted to a configured channel.
// Sinks implement [jobs.EventSink]; the jobs manager fans events out to every
// registered sink.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tomeglot/internal/jobs"
)

// messageSender is the slice of discordgo.Session the notifier uses.
// Narrowed to an interface so tests can run without a live gateway.
type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// statusLookup resolves a job id to its current snapshot. Satisfied by
// [jobs.Manager].
type statusLookup interface {
	Status(id string) (jobs.Snapshot, bool)
}

// Discord posts a message to a channel whenever a job completes, fails or is
// interrupted. Non-terminal events are ignored. Implements [jobs.EventSink].
type Discord struct {
	session   messageSender
	jobs      statusLookup
	channelID string
	logger    *slog.Logger
}

var _ jobs.EventSink = (*Discord)(nil)

// NewDiscord opens a Discord session with the given bot token and returns a
// notifier for channelID. The lookup resolves job details for the message
// text. Close must be called on shutdown.
func NewDiscord(token, channelID string, lookup statusLookup) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	// No gateway intents needed; sending messages works over REST.
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("notify: open discord session: %w", err)
	}
	return &Discord{
		session:   session,
		jobs:      lookup,
		channelID: channelID,
		logger:    slog.Default(),
	}, nil
}

// SetLookup attaches the job status lookup after construction. Needed because
// the notifier is created before the jobs manager that references it as a
// sink.
func (d *Discord) SetLookup(lookup statusLookup) {
	d.jobs = lookup
}

// Close shuts down the underlying Discord session.
func (d *Discord) Close() error {
	if s, ok := d.session.(*discordgo.Session); ok {
		return s.Close()
	}
	return nil
}

// Emit implements [jobs.EventSink]. Send failures are logged, never
// propagated — notifications must not affect job processing.
func (d *Discord) Emit(e jobs.Event) {
	if e.Type != jobs.EventStatus || !e.Status.Terminal() {
		return
	}

	input := e.JobID
	var detail string
	if d.jobs != nil {
		if snap, ok := d.jobs.Status(e.JobID); ok {
			input = snap.Config.InputName
			switch e.Status {
			case jobs.StatusCompleted:
				detail = fmt.Sprintf(" → `%s` (%d chunks)", snap.OutputName, snap.Stats.CompletedChunks)
			case jobs.StatusError:
				detail = ": " + snap.Error
			}
		}
	}

	var msg string
	switch e.Status {
	case jobs.StatusCompleted:
		msg = fmt.Sprintf("✅ Translation of **%s** finished%s", input, detail)
	case jobs.StatusError:
		msg = fmt.Sprintf("❌ Translation of **%s** failed%s", input, detail)
	case jobs.StatusInterrupted:
		msg = fmt.Sprintf("⏹ Translation of **%s** was interrupted", input)
	}

	if _, err := d.session.ChannelMessageSend(d.channelID, msg); err != nil {
		d.logger.Warn("notify: discord send failed", "channel", d.channelID, "err", err)
	}
}

// newForTest builds a notifier around a fake sender without opening a
// session.
func newForTest(sender messageSender, channelID string, lookup statusLookup) *Discord {
	return &Discord{
		session:   sender,
		jobs:      lookup,
		channelID: channelID,
		logger:    slog.Default(),
	}
}
