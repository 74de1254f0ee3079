package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pantry-receipts/internal/common"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	return &common.Config{
		Database: common.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "app.db")},
		Storage:  common.StorageConfig{UploadDir: filepath.Join(dir, "uploads"), MaxUploadBytes: 1 << 20},
		LLM:      common.LLMConfig{BaseURL: "http://127.0.0.1:1", Model: "bielik-local-q8", Timeout: time.Second, RetryAttempts: 1},
		Worker:   common.WorkerConfig{Workers: 1, QueueSize: 4, TaskTimeout: time.Minute},
		Mapper:   common.MapperConfig{Threshold: 80, Limit: 3},
	}
}

func TestNewWiresStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.NotNil(t, a.Receipts)
	assert.NotNil(t, a.Export)
	assert.NotNil(t, a.Processor)

	recs, total, err := a.Receipts.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, total)

	stats, err := a.Receipts.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalProducts)
}

func TestVerifyModelUnreachable(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Error(t, a.VerifyModel(ctx))
}

func TestConfigTranslation(t *testing.T) {
	db := DatabaseConfig(common.DatabaseConfig{Driver: "postgres", DSN: "postgres://x", MaxConns: 7, DialTimeout: 2 * time.Second})
	assert.Equal(t, "postgres", db.Driver)
	assert.Equal(t, int32(7), db.MaxConns)
	assert.Equal(t, 2*time.Second, db.DialTimeout)

	oc := OCRConfig(common.OCRConfig{TesseractLang: "pol", DPI: 200})
	assert.Equal(t, "pol", oc.TesseractLang)
	assert.Equal(t, 200, oc.DPI)
	assert.Equal(t, 6, oc.PSM)
}
