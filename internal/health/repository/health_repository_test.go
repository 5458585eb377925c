package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthDomain "github.com/allisson/courier/internal/health/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

func TestMemoryHealthRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryHealthRepository()

	require.NoError(t, repo.Upsert(ctx, healthDomain.Record{Channel: messageDomain.ChannelSMS, Gateway: "twilio"}))
	require.NoError(t, repo.Upsert(ctx, healthDomain.Record{Channel: messageDomain.ChannelEmail, Gateway: "ses"}))
	require.NoError(t, repo.Upsert(ctx, healthDomain.Record{
		Channel: messageDomain.ChannelEmail, Gateway: "postal", Healthy: true,
	}))
	require.NoError(t, repo.Upsert(ctx, healthDomain.Record{
		Channel: messageDomain.ChannelEmail, Gateway: "postal", Healthy: false,
	}))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "postal", records[0].Gateway)
	assert.False(t, records[0].Healthy)
	assert.Equal(t, "ses", records[1].Gateway)
	assert.Equal(t, "twilio", records[2].Gateway)
}

func TestPostgreSQLHealthRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success_Upsert", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		mock.ExpectExec("INSERT INTO channel_health").
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewPostgreSQLHealthRepository(db)
		err = repo.Upsert(ctx, healthDomain.Record{
			Channel: messageDomain.ChannelEmail, Gateway: "postal", Healthy: true, LastCheckAt: now,
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_List", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck

		rows := sqlmock.NewRows([]string{
			"channel", "gateway", "is_healthy", "circuit_open", "success_rate_1h", "success_rate_24h",
			"samples_1h", "avg_latency_ms", "current_rate_per_sec", "max_rate_per_sec",
			"consecutive_failures", "last_check_at", "last_failure_at", "failure_reason",
		}).AddRow("sms", "twilio", false, true, 0.5, 0.9, 40, 120, 0.25, 10, 5, now, now, "timeout")
		mock.ExpectQuery("SELECT (.+) FROM channel_health").WillReturnRows(rows)

		repo := NewPostgreSQLHealthRepository(db)
		records, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, messageDomain.ChannelSMS, records[0].Channel)
		assert.True(t, records[0].CircuitOpen)
		assert.Equal(t, 5, records[0].ConsecutiveFailures)
		assert.Equal(t, "timeout", *records[0].FailureReason)
		assert.Equal(t, now, *records[0].LastFailureAt)
	})
}
