//go:build integration

package integration_test

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-keeper/internal/dbtest/postgrestest"
)

func TestHousekeeper(t *testing.T) {
	const cmdName = "housekeeper"

	ctx := t.Context()

	istat := initInfra(t, cmdName)
	defer istat.Close(ctx)

	istat.PreparePostgres(t)
	istat.Cfg.Housekeeper.PurgeInterval = time.Second
	istat.PrepareConfig(t)

	conn, err := pgx.Connect(ctx, postgrestest.URL(istat.PostgresPort))
	require.NoError(t, err)
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `INSERT INTO revoked_tokens (token_id, expires_at) VALUES
		('expired', now() - interval '1 minute'),
		('live', now() + interval '1 hour')`)
	require.NoError(t, err)

	commandCtx, cancelCommand := context.WithTimeout(ctx, 5*time.Second)
	defer cancelCommand()

	cmd := istat.Command(t, commandCtx, cmdName, cmdName)
	cmd.Stdout = cmd.Stderr
	if err := cmd.Run(); err != nil && !errors.Is(err, context.Canceled) {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && !exitErr.Sys().(syscall.WaitStatus).Signaled() {
			t.Fatalf("housekeeper process exited abnormally: %s", err)
		}
	}

	var remaining []string
	rows, err := conn.Query(ctx, "SELECT token_id FROM revoked_tokens ORDER BY token_id")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		remaining = append(remaining, id)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []string{"live"}, remaining)
}
