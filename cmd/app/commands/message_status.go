package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	messageUseCase "github.com/allisson/courier/internal/message/usecase"
)

// RunMessageStatus prints the status of a queued message and, with withEvents,
// its delivery event history.
func RunMessageStatus(
	ctx context.Context,
	useCase messageUseCase.MessageUseCase,
	logger *slog.Logger,
	out io.Writer,
	idStr string,
	withEvents bool,
	format string,
) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid message ID format: %w", err)
	}

	view, err := useCase.GetStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get message status: %w", err)
	}

	var events []*deliveryDomain.Event
	if withEvents {
		events, err = useCase.ListEvents(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list message events: %w", err)
		}
	}

	logger.Debug("message status loaded", slog.String("id", id.String()), slog.String("status", string(view.Status)))

	if format == "json" {
		result := map[string]any{"message": view}
		if withEvents {
			result["events"] = events
		}
		return writeJSON(out, result)
	}

	outputStatusText(out, view, events)
	return nil
}

func outputStatusText(out io.Writer, view *messageDomain.StatusView, events []*deliveryDomain.Event) {
	fmt.Fprintf(out, "Message:   %s\n", view.ID)
	fmt.Fprintf(out, "Status:    %s\n", view.Status)
	fmt.Fprintf(out, "Channel:   %s\n", view.Channel)
	fmt.Fprintf(out, "Priority:  %s\n", view.Priority)
	if view.Gateway != nil {
		fmt.Fprintf(out, "Gateway:   %s\n", *view.Gateway)
	}
	fmt.Fprintf(out, "Attempts:  %d/%d\n", view.Attempts, view.MaxAttempts)
	if view.SentAt != nil {
		fmt.Fprintf(out, "Sent at:   %s\n", view.SentAt.Format(time.RFC3339))
	}
	if view.DeliveredAt != nil {
		fmt.Fprintf(out, "Delivered: %s\n", view.DeliveredAt.Format(time.RFC3339))
	}
	if view.NextRetryAt != nil {
		fmt.Fprintf(out, "Retry at:  %s\n", view.NextRetryAt.Format(time.RFC3339))
	}
	if view.LastError != nil {
		fmt.Fprintf(out, "Error:     %s\n", *view.LastError)
	}
	for _, e := range events {
		fmt.Fprintf(out, "  %s  %-10s %s\n", e.OccurredAt.Format(time.RFC3339), e.Type, e.Source)
	}
}
