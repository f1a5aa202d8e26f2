//go:build integration

package repository

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

func startPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}

	ctx = context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "disputa",
				"POSTGRES_PASSWORD": "disputa",
				"POSTGRES_DB":       "disputa",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	repo, err := NewPostgresRepository(ctx, config.DatabaseConfig{
		DSN: fmt.Sprintf("postgres://disputa:disputa@%s:%s/disputa?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrate is idempotent")
	return repo
}

func TestPostgres_Upserts(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	invID, changed, err := repo.UpsertInvoice(ctx, core.Invoice{
		Number:       "7521698941",
		Carrier:      "maersk",
		CustomerCode: "305S3073SPA",
		IssuedAt:     time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
		Amount:       amount(1200.5),
		Currency:     "BRL",
		Status:       "OPEN",
	})
	require.NoError(t, err)
	assert.True(t, changed)

	again, changed, err := repo.UpsertInvoice(ctx, core.Invoice{Number: "7521698941", Carrier: "maersk", Status: "OPEN"})
	require.NoError(t, err)
	assert.Equal(t, invID, again)
	assert.False(t, changed)

	invoices, err := repo.ListInvoices(ctx, core.InvoiceFilter{Carrier: "maersk", Customer: "305S3073SPA"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "BRL", invoices[0].Currency, "empty fields keep stored values")
	require.NotNil(t, invoices[0].Amount)
	assert.InDelta(t, 1200.5, *invoices[0].Amount, 0.001)

	d := core.Dispute{Number: "18472", Status: "Pending", Amount: amount(250), Currency: "USD"}
	dID, changed, err := repo.UpsertDispute(ctx, invID, d)
	require.NoError(t, err)
	assert.True(t, changed)

	// transaction timestamps differ between statements
	time.Sleep(10 * time.Millisecond)
	sameID, changed, err := repo.UpsertDispute(ctx, invID, d)
	require.NoError(t, err)
	assert.Equal(t, dID, sameID)
	assert.False(t, changed)

	d.Status = "Approved"
	_, changed, err = repo.UpsertDispute(ctx, invID, d)
	require.NoError(t, err)
	assert.True(t, changed)

	stale, err := repo.ListStale(ctx, "maersk", "305S3073SPA", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "Approved", stale[0].Status)
	assert.Equal(t, "7521698941", stale[0].InvoiceNumber)
	assert.Equal(t, "305S3073SPA", stale[0].CustomerCode)
	assert.False(t, stale[0].SyncedAt.Before(stale[0].UpdatedAt))

	counts, err := repo.Counts(ctx, "maersk")
	require.NoError(t, err)
	assert.Equal(t, core.Counts{Invoices: 1, Disputes: 1}, counts)

	deleted, err := repo.Reset(ctx, "maersk")
	require.NoError(t, err)
	assert.Equal(t, core.Counts{Invoices: 1, Disputes: 1}, deleted)

	numbers, err := repo.InvoiceNumbers(ctx, "maersk")
	require.NoError(t, err)
	assert.Empty(t, numbers)
}
