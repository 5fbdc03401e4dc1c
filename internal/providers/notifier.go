package providers

import (
	"context"
	"log/slog"

	"skipper/internal/types"
)

// LogNotifier writes notifications to the structured log instead of a chat
// workspace. It is the default sink in local and dry-run setups and the
// fallback when no messaging integration is configured. It satisfies the
// agent package's Notifier interface.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendLeadReminder(ctx context.Context, practice *types.Practice, lead types.PracticeLead) error {
	n.logger.InfoContext(ctx, "lead confirmation reminder",
		"practice_id", practice.ID,
		"practice_name", practice.Name,
		"starts_at", practice.StartsAt,
		"lead_name", lead.Name,
		"lead_slack_uid", lead.SlackUID,
	)
	return nil
}

func (n *LogNotifier) SendWorkoutReminder(ctx context.Context, practice *types.Practice) error {
	n.logger.InfoContext(ctx, "workout posting reminder",
		"practice_id", practice.ID,
		"practice_name", practice.Name,
		"starts_at", practice.StartsAt,
	)
	return nil
}

func (n *LogNotifier) SendProposalAlert(ctx context.Context, practice *types.Practice, req *types.CancellationRequest) error {
	n.logger.WarnContext(ctx, "cancellation proposal awaiting decision",
		"practice_id", practice.ID,
		"practice_name", practice.Name,
		"request_id", req.ID,
		"reason_type", req.ReasonType,
		"reason_summary", req.ReasonSummary,
		"expires_at", req.ExpiresAt,
	)
	return nil
}
