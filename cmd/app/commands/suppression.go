package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
	suppressionUseCase "github.com/allisson/courier/internal/suppression/usecase"
)

// RunSuppress adds an address to the suppression list. A zero communityID scopes
// the entry globally and a zero expiresIn makes it permanent.
func RunSuppress(
	ctx context.Context,
	useCase suppressionUseCase.SuppressionUseCase,
	logger *slog.Logger,
	out io.Writer,
	channel string,
	address string,
	reason string,
	communityID int64,
	expiresIn time.Duration,
	format string,
) error {
	if expiresIn < 0 {
		return fmt.Errorf("expires-in must not be negative, got: %s", expiresIn)
	}

	source := "cli"
	input := suppressionUseCase.SuppressInput{
		Channel:     messageDomain.Channel(channel),
		Address:     address,
		Reason:      suppressionDomain.Reason(reason),
		Source:      &source,
		CommunityID: communityScope(communityID),
	}
	if expiresIn > 0 {
		expiresAt := time.Now().UTC().Add(expiresIn)
		input.ExpiresAt = &expiresAt
	}

	entry, err := useCase.Suppress(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to suppress address: %w", err)
	}

	logger.Info("address suppressed",
		slog.String("channel", string(entry.Channel)),
		slog.String("reason", string(entry.Reason)),
	)

	if format == "json" {
		return writeJSON(out, map[string]any{
			"id":           entry.ID,
			"channel":      entry.Channel,
			"address":      entry.Address,
			"reason":       entry.Reason,
			"community_id": entry.CommunityID,
			"expires_at":   entry.ExpiresAt,
		})
	}

	_, err = fmt.Fprintf(out, "Suppressed %s on %s (%s)\n", entry.Address, entry.Channel, entry.Reason)
	return err
}

// RunUnsuppress removes an address from the suppression list.
func RunUnsuppress(
	ctx context.Context,
	useCase suppressionUseCase.SuppressionUseCase,
	logger *slog.Logger,
	out io.Writer,
	channel string,
	address string,
	communityID int64,
	format string,
) error {
	ch := messageDomain.Channel(channel)
	if err := useCase.Unsuppress(ctx, ch, address, communityScope(communityID)); err != nil {
		return fmt.Errorf("failed to unsuppress address: %w", err)
	}

	logger.Info("address unsuppressed", slog.String("channel", channel))

	if format == "json" {
		return writeJSON(out, map[string]any{"channel": ch, "address": address, "removed": true})
	}
	_, err := fmt.Fprintf(out, "Removed %s on %s from the suppression list\n", address, ch)
	return err
}

// RunPurgeSuppressions deletes suppression entries whose expiry has passed.
func RunPurgeSuppressions(
	ctx context.Context,
	useCase suppressionUseCase.SuppressionUseCase,
	logger *slog.Logger,
	out io.Writer,
	format string,
) error {
	count, err := useCase.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge expired suppressions: %w", err)
	}

	logger.Info("expired suppressions purged", slog.Int64("count", count))

	if format == "json" {
		return writeJSON(out, map[string]any{"count": count})
	}
	_, err = fmt.Fprintf(out, "Successfully purged %d expired suppression(s)\n", count)
	return err
}
