package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/concur-gateway/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// useSQLite points the token commands at a shared in-memory database for the
// duration of the test.
func useSQLite(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	keepAlive, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, migrations.Migrate(keepAlive))

	sqlDB, err := keepAlive.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	orig := openDBFunc
	openDBFunc = func(ctx context.Context, _ string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
	}
	t.Cleanup(func() {
		openDBFunc = orig
	})
}

func TestMigrateDBClosesPoolOnFailure(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	migrateErr := errors.New("migration 0003 failed")
	got, err := migrateDB(db, func(*gorm.DB) error { return migrateErr })
	require.ErrorIs(t, err, migrateErr)
	assert.Nil(t, got)
	assert.Error(t, sqlDB.Ping(), "pool should be closed after a failed migration")
}

func TestMigrateDB(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	got, err := migrateDB(db, migrations.Migrate)
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.NoError(t, sqlDB.Ping())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	cmd := newRootCmd()

	require.NotNil(t, cmd)
	assert.Equal(t, "gatewayctl", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	dsn := cmd.PersistentFlags().Lookup("dsn")
	require.NotNil(t, dsn)

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "token")
	assert.Contains(t, names, "channel")
}

func TestTokenIssueCmdFlags(t *testing.T) {
	cmd := tokenIssueCmd()

	assert.Equal(t, "issue", cmd.Use)
	assert.NotNil(t, cmd.RunE)

	repo := cmd.Flags().Lookup("repo")
	require.NotNil(t, repo)
	assert.Equal(t, "", repo.DefValue)
}

func TestChannelTestCmdFlags(t *testing.T) {
	cmd := channelTestCmd()

	assert.Equal(t, "test", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{"kind", "url", "secret", "timeout"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "10s", cmd.Flags().Lookup("timeout").DefValue)
}

func TestTokenGenerate(t *testing.T) {
	out, err := execute(t, "token", "generate")
	require.NoError(t, err)

	raw := strings.TrimSpace(out)
	assert.True(t, token.ValidateFormat(raw), "generated token %q has invalid format", raw)
}

func TestTokenInspect(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := token.Generate(created)
	require.NoError(t, err)

	out, err := execute(t, "token", "inspect", raw)
	require.NoError(t, err)

	var info TokenInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Valid)
	assert.True(t, info.CreatedAt.Equal(created))
	assert.NotContains(t, out, raw[len(raw)-32:])
	assert.True(t, strings.HasSuffix(info.Token, "REDACTED"))
}

func TestTokenInspectMalformed(t *testing.T) {
	out, err := execute(t, "token", "inspect", "not-a-token")
	require.NoError(t, err)

	var info TokenInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.False(t, info.Valid)
	assert.True(t, info.CreatedAt.IsZero())
}

func TestTokenIssueAndRevoke(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "token", "issue", "--repo", "org/repo")
	require.NoError(t, err)

	var issued IssuedTokenResult
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.Equal(t, "org/repo", issued.RepositoryID)
	assert.True(t, token.ValidateFormat(issued.Token))
	assert.NotEmpty(t, issued.ID)

	out, err = execute(t, "token", "revoke", issued.Token)
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")
	assert.NotContains(t, out, issued.Token)
}

func TestTokenIssueRequiresRepo(t *testing.T) {
	_, err := execute(t, "token", "issue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repo")
}

func TestTokenRevokeRequiresDSN(t *testing.T) {
	raw, err := token.Generate(time.Now())
	require.NoError(t, err)

	_, err = execute(t, "token", "revoke", raw, "--dsn", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestChannelTest(t *testing.T) {
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out, err := execute(t, "channel", "test", "--kind", "webhook", "--url", server.URL+"/hook/secret-path")
	require.NoError(t, err)
	assert.Equal(t, int32(1), received.Load())

	var result ChannelTestResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Connected)
	assert.Equal(t, "webhook", result.Kind)
	assert.NotContains(t, result.Endpoint, "secret-path")
}

func TestChannelTestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := execute(t, "channel", "test", "--kind", "slack", "--url", server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")
}

func TestChannelTestInvalidKind(t *testing.T) {
	_, err := execute(t, "channel", "test", "--kind", "pager", "--url", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid channel kind")
}
