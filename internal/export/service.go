package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

const (
	receiptsSheet = "Paragony"
	itemsSheet    = "Produkty"
	pantrySheet   = "Spiżarnia"
	dateLayout    = "2006-01-02"
)

// Service is a tiny façade over repositories that produces XLSX bytes for exports.
type Service struct {
	receipts repository.ReceiptRepository
	items    repository.ItemRepository
	logger   *slog.Logger
}

func NewService(receipts repository.ReceiptRepository, items repository.ItemRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{receipts: receipts, items: items, logger: logger}
}

// ExportReceiptsXLSX returns a workbook with one sheet of receipts and one of
// their products. Receipts are filtered by purchase date (submission date
// when the purchase date is unknown).
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all receipts.
func (s *Service) ExportReceiptsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	fromDate, toDate := window(from, to)

	all, err := s.receipts.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	var recs []*entity.Receipt
	for _, r := range all {
		if inWindow(receiptDate(r), fromDate, toDate) {
			recs = append(recs, r)
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := newSheet(f, receiptsSheet, []string{
		"Data zakupu", "Sklep", "Kwota", "Status", "Plik", "Przesłano", "Komentarz", "Błąd",
	}); err != nil {
		return nil, err
	}
	if err := newSheet(f, itemsSheet, []string{
		"Paragon", "Produkt", "Kategoria", "Cena", "Ilość", "Status mapowania", "Termin ważności",
	}); err != nil {
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")
	idx, _ := f.GetSheetIndex(receiptsSheet)
	f.SetActiveSheet(idx)

	itemRow := 2
	for i, r := range recs {
		row := i + 2
		write := func(col int, v any) { setCell(f, receiptsSheet, col, row, v) }

		write(1, receiptDate(r).Format(dateLayout))
		write(2, deref(r.StoreName))
		if r.TotalAmount != nil {
			amount, _ := r.TotalAmount.Float64()
			write(3, amount)
		}
		write(4, string(r.Status))
		write(5, r.OriginalFilename)
		write(6, r.SubmittedAt.Format(time.DateTime))
		write(7, truncate(r.Comment, 140))
		write(8, truncate(deref(r.ProcessingError), 140))

		items, err := s.items.ListByReceipt(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("query items for %s: %w", r.ID, err)
		}
		for _, it := range items {
			price, _ := it.Price.Float64()
			setCell(f, itemsSheet, 1, itemRow, r.OriginalFilename)
			setCell(f, itemsSheet, 2, itemRow, it.Name)
			setCell(f, itemsSheet, 3, itemRow, string(it.Category))
			setCell(f, itemsSheet, 4, itemRow, price)
			setCell(f, itemsSheet, 5, itemRow, it.ReceiptQuantity)
			setCell(f, itemsSheet, 6, itemRow, string(it.MappingStatus))
			setCell(f, itemsSheet, 7, itemRow, expiry(it))
			itemRow++
		}
	}

	_ = f.SetColWidth(receiptsSheet, "A", "A", 14) // date
	_ = f.SetColWidth(receiptsSheet, "B", "B", 28) // store
	_ = f.SetColWidth(receiptsSheet, "C", "D", 14)
	_ = f.SetColWidth(receiptsSheet, "E", "F", 24)
	_ = f.SetColWidth(receiptsSheet, "G", "H", 48) // notes
	_ = f.SetColWidth(itemsSheet, "A", "B", 28)
	_ = f.SetColWidth(itemsSheet, "C", "G", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"sheet", receiptsSheet,
		"rows", len(recs),
		"item_rows", itemRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportPantryXLSX returns a workbook listing the pantry.
func (s *Service) ExportPantryXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()
	items, err := s.items.ListPantry(ctx)
	if err != nil {
		return nil, fmt.Errorf("query pantry: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := newSheet(f, pantrySheet, []string{"Produkt", "Kategoria", "Ilość", "Cena", "Termin ważności"}); err != nil {
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")
	idx, _ := f.GetSheetIndex(pantrySheet)
	f.SetActiveSheet(idx)

	for i, it := range items {
		row := i + 2
		price, _ := it.Price.Float64()
		setCell(f, pantrySheet, 1, row, it.Name)
		setCell(f, pantrySheet, 2, row, string(it.Category))
		setCell(f, pantrySheet, 3, row, it.PantryQuantity)
		setCell(f, pantrySheet, 4, row, price)
		setCell(f, pantrySheet, 5, row, expiry(it))
	}
	_ = f.SetColWidth(pantrySheet, "A", "A", 32)
	_ = f.SetColWidth(pantrySheet, "B", "E", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok", "sheet", pantrySheet, "rows", len(items), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func newSheet(f *excelize.File, name string, headers []string) error {
	if index, _ := f.GetSheetIndex(name); index == -1 {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	for i, h := range headers {
		setCell(f, name, i+1, 1, h)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	_ = f.SetCellValue(sheet, cell, v)
}

// window normalizes the bounds to UTC dates.
func window(from, to *time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := dateOnly(*from)
		fromDate = &f
	}
	if to != nil {
		t := dateOnly(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := dateOnly(time.Now().UTC())
		toDate = &t
	}
	return fromDate, toDate
}

func inWindow(d time.Time, from, to *time.Time) bool {
	d = dateOnly(d)
	if from != nil && d.Before(*from) {
		return false
	}
	if to != nil && d.After(*to) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func receiptDate(r *entity.Receipt) time.Time {
	if r.PurchaseDate != nil {
		return *r.PurchaseDate
	}
	return r.SubmittedAt
}

func expiry(it *entity.Item) string {
	if it.ExpiryDate == nil {
		return ""
	}
	return it.ExpiryDate.Format(dateLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
