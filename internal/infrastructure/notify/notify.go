package notify

import (
	"context"
	"log/slog"
)

// Welcome is the confirmation sent to a new founding member.
type Welcome struct {
	UserID       string
	Email        string
	Name         string
	MemberNumber string
	Badge        string
}

// LogNotifier hands welcome emails to the mail pipeline by logging them; the
// mail worker tails these records.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) SendWelcome(ctx context.Context, w Welcome) error {
	if w.Email == "" {
		n.log.InfoContext(ctx, "welcome email skipped, no address", "user_id", w.UserID)
		return nil
	}
	n.log.InfoContext(ctx, "welcome email queued",
		"user_id", w.UserID,
		"email", w.Email,
		"member_number", w.MemberNumber,
		"badge", w.Badge,
	)
	return nil
}
