package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	drv, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "export.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, repository.Migrate(context.Background(), drv, nil))
	return repository.NewStore(drv, nil)
}

func addReceipt(t *testing.T, s *repository.Store, store string, bought time.Time, items ...string) *entity.Receipt {
	t.Helper()
	ctx := context.Background()
	rec := &entity.Receipt{OriginalFilename: store + ".jpg", FilePath: "/u/" + store + ".jpg", MIMEType: constants.MIMEJPEG}
	require.NoError(t, s.Receipts.Create(ctx, rec))
	require.NoError(t, s.Receipts.SetMetadata(ctx, rec.ID, entity.ReceiptMetadata{
		StoreName: store, PurchaseDate: bought, TotalAmount: decimal.RequireFromString("12.50"),
	}))
	var news []entity.NewItem
	for _, n := range items {
		news = append(news, entity.NewItem{Name: n, Category: constants.Dairy, Price: decimal.RequireFromString("2.25")})
	}
	_, err := s.Items.InsertForReceipt(ctx, rec.ID, news)
	require.NoError(t, err)
	return rec
}

func open(t *testing.T, b []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestExportReceiptsXLSX(t *testing.T) {
	s := newStore(t)
	addReceipt(t, s, "Biedronka", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), "Mleko", "Ser")
	addReceipt(t, s, "Lidl", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), "Chleb")
	svc := NewService(s.Receipts, s.Items, nil)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out, err := svc.ExportReceiptsXLSX(context.Background(), &from, nil)
	require.NoError(t, err)

	f := open(t, out)
	rows, err := f.GetRows(receiptsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Data zakupu", rows[0][0])
	assert.Equal(t, "2024-03-15", rows[1][0])
	assert.Equal(t, "Biedronka", rows[1][1])
	assert.Equal(t, "12.5", rows[1][2])

	items, err := f.GetRows(itemsSheet)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.ElementsMatch(t, []string{"Mleko", "Ser"}, []string{items[1][1], items[2][1]})

	all, err := svc.ExportReceiptsXLSX(context.Background(), nil, nil)
	require.NoError(t, err)
	rows, err = open(t, all).GetRows(receiptsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestExportPantryXLSX(t *testing.T) {
	s := newStore(t)
	_, err := s.Items.InsertPantry(context.Background(), entity.NewItem{
		Name: "Mleko 1L", Category: constants.Dairy, Price: decimal.RequireFromString("3.49"),
	}, 4)
	require.NoError(t, err)
	svc := NewService(s.Receipts, s.Items, nil)

	out, err := svc.ExportPantryXLSX(context.Background())
	require.NoError(t, err)
	rows, err := open(t, out).GetRows(pantrySheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Mleko 1L", "Nabiał", "4", "3.49"}, rows[1])
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "żółw", truncate("żółw", 4))
	assert.Equal(t, "żó…", truncate("żółw", 3))
}
