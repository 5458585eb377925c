package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	messageUseCase "github.com/allisson/courier/internal/message/usecase"
)

// RunCancelMessage cancels a message that has not reached a gateway yet.
func RunCancelMessage(
	ctx context.Context,
	useCase messageUseCase.MessageUseCase,
	logger *slog.Logger,
	out io.Writer,
	idStr string,
	format string,
) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid message ID format: %w", err)
	}

	if err := useCase.Cancel(ctx, id); err != nil {
		return fmt.Errorf("failed to cancel message: %w", err)
	}

	logger.Info("message cancelled", slog.String("id", id.String()))

	if format == "json" {
		return writeJSON(out, map[string]any{"id": id, "status": "cancelled"})
	}
	_, err = fmt.Fprintf(out, "Message %s cancelled\n", id)
	return err
}
