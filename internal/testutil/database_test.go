package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dialects = []struct {
	name    string
	driver  string
	setup   func(t *testing.T) *sql.DB
	skip    func(t *testing.T)
	cleanup func(t *testing.T, db *sql.DB)
}{
	{"PostgreSQL", "postgres", SetupPostgresDB, SkipIfNoPostgres, CleanupPostgresDB},
	{"MySQL", "mysql", SetupMySQLDB, SkipIfNoMySQL, CleanupMySQLDB},
}

func TestTestDSN(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		fallback string
		get      func() string
		custom   string
	}{
		{"Postgres", "TEST_POSTGRES_DSN", defaultPostgresTestDSN, GetPostgresTestDSN,
			"postgres://courier:courier@db:5432/courier"},
		{"MySQL", "TEST_MYSQL_DSN", defaultMySQLTestDSN, GetMySQLTestDSN,
			"courier:courier@tcp(db:3306)/courier"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"_Default", func(t *testing.T) {
			t.Setenv(tt.env, "")
			assert.Equal(t, tt.fallback, tt.get())
		})
		t.Run(tt.name+"_FromEnv", func(t *testing.T) {
			t.Setenv(tt.env, tt.custom)
			assert.Equal(t, tt.custom, tt.get())
		})
	}
}

func TestGetMigrationsPath(t *testing.T) {
	for _, dbType := range []string{"postgresql", "mysql"} {
		t.Run(dbType, func(t *testing.T) {
			got, err := getMigrationsPath(dbType)
			require.NoError(t, err)
			assert.Equal(t, dbType, filepath.Base(got))

			entries, err := os.ReadDir(got)
			require.NoError(t, err)
			assert.NotEmpty(t, entries)
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		got, err := getMigrationsPath("oracle")
		assert.Error(t, err)
		assert.Empty(t, got)
	})

	t.Run("FromNestedWorkingDir", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(filepath.Join(wd, "..")))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		got, err := getMigrationsPath("postgresql")
		require.NoError(t, err)
		assert.Contains(t, got, filepath.Join("migrations", "postgresql"))
	})
}

func TestUuidToDriverValue(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	t.Run("Postgres", func(t *testing.T) {
		v, err := uuidToDriverValue(id, "postgres")
		require.NoError(t, err)
		assert.Equal(t, id, v)
	})

	t.Run("MySQL", func(t *testing.T) {
		v, err := uuidToDriverValue(id, "mysql")
		require.NoError(t, err)
		raw, ok := v.([]byte)
		require.True(t, ok)
		assert.Len(t, raw, 16)

		back, err := uuid.FromBytes(raw)
		require.NoError(t, err)
		assert.Equal(t, id, back)
	})
}

func TestTeardownDB_Nil(t *testing.T) {
	assert.NotPanics(t, func() { TeardownDB(t, nil) })
}

func TestSetupAndCleanup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			d.skip(t)

			db := d.setup(t)
			defer TeardownDB(t, db)

			for _, table := range tables {
				assert.Zero(t, CountRows(t, db, table), table)
			}

			CreateTestMessage(t, db, d.driver, "email", "ana@example.com")
			require.Equal(t, 1, CountRows(t, db, "message_queue"))

			d.cleanup(t, db)
			assert.Zero(t, CountRows(t, db, "message_queue"))
		})
	}
}

func TestCreateTestMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			d.skip(t)

			db := d.setup(t)
			defer TeardownDB(t, db)

			first := CreateTestMessage(t, db, d.driver, "sms", "+15550001111")
			second := CreateTestMessage(t, db, d.driver, "push", "device-token")
			assert.NotEqual(t, first, second)
			assert.Equal(t, 2, CountRows(t, db, "message_queue"))
			assert.Equal(t, 0, CountRows(t, db, "delivery_events"))
		})
	}
}

func TestSkipHelpers(t *testing.T) {
	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			assert.NotPanics(t, func() { d.skip(t) })
		})
	}
}
