package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/store/memstore"
)

func TestRunEnqueueAddsPendingMigration(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	require.NoError(t, runEnqueue(ctx, st, []string{"alice", "pub1", "sec1"}))

	depth, err := st.QueueDepth(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, depth.Migrations)
}

func TestRunRequeueReturnsProcessingToPending(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	mig := model.Migration{ID: "mig1", Handle: "bob", PublicKey: "pub", SecretKey: "sec", KeySource: model.StoredKey, Status: model.MigrationProcessing}
	require.NoError(t, st.CreateMigration(ctx, mig))

	require.NoError(t, runRequeue(ctx, st, []string{"mig1"}))

	got, err := st.GetMigration(ctx, "mig1")
	require.NoError(t, err)
	require.Equal(t, model.MigrationPending, got.Status)
}

func TestRunGCDeletesOldTerminalMigrations(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	mig := model.Migration{ID: "mig1", Handle: "carol", PublicKey: "pub", SecretKey: model.ScrubbedSecretKey, KeySource: model.StoredKey, Status: model.MigrationComplete}
	require.NoError(t, st.CreateMigration(ctx, mig))

	require.NoError(t, runGC(ctx, st, []string{"-1"}))

	_, err := st.GetMigration(ctx, "mig1")
	require.Error(t, err, "expected migration to be garbage collected")
}

func TestRunGCRejectsNonNumericArg(t *testing.T) {
	st := memstore.New()
	err := runGC(context.Background(), st, []string{"not-a-number"})
	require.Error(t, err)
}

func TestRunShowUnknownMigrationErrors(t *testing.T) {
	st := memstore.New()
	err := runShow(context.Background(), st, []string{"does-not-exist"})
	require.Error(t, err)
}

func TestCommandTableUsageNonEmpty(t *testing.T) {
	for name, cmd := range commands {
		require.NotEmpty(t, cmd.usage, "command %q has empty usage", name)
	}
}
