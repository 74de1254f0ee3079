package audit

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

func TestSlogSinkWritesLevelAndReceipt(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := common.WithReceiptID(context.Background(), "abc")

	sink.Log(ctx, constants.LevelWarning, "pipeline", "Process", "no text detected", map[string]any{"chars": 0})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "receipt_id=abc")
	assert.Contains(t, out, "module=pipeline")
	assert.Contains(t, out, "no text detected")
}

func TestRepositorySinkPersists(t *testing.T) {
	drv, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	ctx := context.Background()
	require.NoError(t, repository.Migrate(ctx, drv, nil))
	store := repository.NewStore(drv, nil)

	var rec recorder
	sink := Multi{NewRepositorySink(store.Logs, nil), &rec, nil}
	sink.Log(ctx, constants.LevelError, "pipeline", "Process", "LLM timeout", map[string]any{"attempts": 3})

	entries, err := store.Logs.List(ctx, nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, constants.LevelError, entries[0].Level)
	assert.JSONEq(t, `{"attempts":3}`, entries[0].Details)
	assert.Equal(t, []string{"LLM timeout"}, rec.messages)
}

type recorder struct{ messages []string }

func (r *recorder) Log(_ context.Context, _ constants.LogLevel, _, _, message string, _ map[string]any) {
	r.messages = append(r.messages, message)
}
