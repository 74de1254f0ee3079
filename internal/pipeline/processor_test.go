package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/llm"
	"github.com/joseph-ayodele/pantry-receipts/internal/mapper"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

const receiptJSON = `Oto wynik:
` + "```json" + `
{
  "store_name": "Biedronka",
  "date": "2024-03-15",
  "total_amount": 15.47,
  "items": [
    {"name": "Mleko UHT 1L", "quantity": 2, "price": 3.49, "total": 6.98, "category": "Nabiał"},
    {"name": "Chleb żytni", "quantity": 1, "price": 4.99, "total": 4.99, "category": "pieczywo"},
    {"name": "Jabłka", "quantity": 0.5, "price": 7.00, "total": 3.50, "category": "snacks"}
  ]
}
` + "```"

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) ExtractText(context.Context, string) (string, error) { return f.text, f.err }

type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (g *fakeGenerator) Generate(_ context.Context, prompt, system string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return receiptJSON, nil
	}
	r := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return r, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []string
}

func (s *recordingSink) Log(_ context.Context, level constants.LogLevel, _, _, message string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, string(level)+" "+message)
}

type harness struct {
	store *repository.Store
	proc  *Processor
	gen   *fakeGenerator
	sink  *recordingSink
}

func newHarness(t *testing.T, ocr TextExtractor) *harness {
	t.Helper()
	drv, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "pipeline.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, repository.Migrate(context.Background(), drv, nil))
	store := repository.NewStore(drv, nil)

	gen := &fakeGenerator{}
	sink := &recordingSink{}
	m := mapper.New(store, mapper.Config{}, sink, nil)
	return &harness{
		store: store,
		proc:  NewProcessor(store, ocr, gen, m, sink, nil),
		gen:   gen,
		sink:  sink,
	}
}

func (h *harness) queued(t *testing.T) *entity.Receipt {
	t.Helper()
	rec := &entity.Receipt{
		OriginalFilename: "paragon.jpg",
		FilePath:         "/uploads/paragon.jpg",
		MIMEType:         constants.MIMEJPEG,
		Status:           constants.StatusAwaitingProcessing,
	}
	require.NoError(t, h.store.Receipts.Create(context.Background(), rec))
	return rec
}

func (h *harness) pantry(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := h.store.Items.InsertPantry(context.Background(), entity.NewItem{
			Name: n, Category: constants.Dairy, Price: decimal.RequireFromString("3.00"),
		}, 1)
		require.NoError(t, err)
	}
}

func TestProcessHappyPath(t *testing.T) {
	h := newHarness(t, fakeOCR{text: "BIEDRONKA\nMleko UHT 1L 2 x 3,49\nSUMA PLN 15,47"})
	h.pantry(t, "Mleko 1L", "Mleko 2%", "Chleb żytni", "Chleb pszenny")
	rec := h.queued(t)
	ctx := context.Background()

	res := h.proc.Process(ctx, rec.ID)
	require.True(t, res.OK(), res.Message)

	got, err := h.store.Receipts.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDone, got.Status)
	assert.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.ProcessingError)
	require.NotNil(t, got.DetailedStatus)
	assert.Equal(t, DetailDone, *got.DetailedStatus)
	require.NotNil(t, got.StoreName)
	assert.Equal(t, "Biedronka", *got.StoreName)
	require.NotNil(t, got.TotalAmount)
	assert.True(t, decimal.RequireFromString("15.47").Equal(*got.TotalAmount))

	items, err := h.store.Items.ListByReceipt(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	byName := map[string]*entity.Item{}
	for _, it := range items {
		assert.Equal(t, constants.MappingPending, it.MappingStatus)
		assert.LessOrEqual(t, len(it.MappingSuggestions), 3)
		byName[it.Name] = it
	}
	assert.Equal(t, 2, byName["Mleko UHT 1L"].ReceiptQuantity)
	assert.Equal(t, constants.Dairy, byName["Mleko UHT 1L"].Category)
	require.NotEmpty(t, byName["Mleko UHT 1L"].MappingSuggestions)
	assert.Equal(t, "Mleko 1L", byName["Mleko UHT 1L"].MappingSuggestions[0].Name)
	assert.Equal(t, constants.Bread, byName["Chleb żytni"].Category)
	assert.Equal(t, "Chleb żytni", byName["Chleb żytni"].MappingSuggestions[0].Name)
	assert.Equal(t, 1, byName["Jabłka"].ReceiptQuantity)
	assert.Equal(t, constants.Other, byName["Jabłka"].Category)

	h.sink.mu.Lock()
	assert.Contains(t, h.sink.entries, "INFO status changed")
	h.sink.mu.Unlock()
}

func TestProcessEmptyOCRFails(t *testing.T) {
	h := newHarness(t, fakeOCR{text: "  \n\t "})
	rec := h.queued(t)
	ctx := context.Background()

	res := h.proc.Process(ctx, rec.ID)
	assert.Equal(t, ResultError, res.Status)
	assert.Contains(t, res.Message, "no text")

	got, err := h.store.Receipts.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, got.Status)
	require.NotNil(t, got.ProcessingError)
	assert.Contains(t, *got.ProcessingError, "no text")
	assert.NotNil(t, got.ProcessedAt)
	assert.Equal(t, DetailNoText, *got.DetailedStatus)

	items, err := h.store.Items.ListByReceipt(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, h.gen.calls)
}

func TestProcessUnknownReceipt(t *testing.T) {
	h := newHarness(t, fakeOCR{text: "x"})
	res := h.proc.Process(context.Background(), uuid.New())
	assert.Equal(t, Result{Status: ResultError, Message: "receipt not found"}, res)
}

func TestProcessRejectsReceiptNotQueued(t *testing.T) {
	h := newHarness(t, fakeOCR{text: "x"})
	ctx := context.Background()
	rec := &entity.Receipt{OriginalFilename: "a.png", FilePath: "/a.png", MIMEType: constants.MIMEPNG, Status: constants.StatusAwaitingPreview}
	require.NoError(t, h.store.Receipts.Create(ctx, rec))

	res := h.proc.Process(ctx, rec.ID)
	assert.Equal(t, ResultError, res.Status)

	got, err := h.store.Receipts.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusAwaitingPreview, got.Status)
}

func TestReprocessingReplacesItems(t *testing.T) {
	h := newHarness(t, fakeOCR{text: "BIEDRONKA"})
	rec := h.queued(t)
	ctx := context.Background()

	require.True(t, h.proc.Process(ctx, rec.ID).OK())
	first, err := h.store.Items.ListByReceipt(ctx, rec.ID)
	require.NoError(t, err)

	require.NoError(t, h.store.Receipts.Transition(ctx, rec.ID, constants.StatusAwaitingProcessing, repository.StatusChange{ClearResult: true}))
	require.True(t, h.proc.Process(ctx, rec.ID).OK())

	second, err := h.store.Items.ListByReceipt(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	names := func(items []*entity.Item) []string {
		var out []string
		for _, it := range items {
			out = append(out, it.Name)
		}
		return out
	}
	assert.ElementsMatch(t, names(first), names(second))
}

func TestProcessClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		ocrErr error
		genErr error
		reply  string
		detail string
	}{
		{name: "ocr", ocrErr: errors.New("tesseract exited 1"), detail: DetailOCRFailed},
		{name: "unreachable", genErr: fmt.Errorf("%w: dial tcp: connection refused", llm.ErrConnection), detail: DetailLLMDown},
		{name: "model", genErr: fmt.Errorf("%w: model not found", llm.ErrModel), detail: DetailLLMModel},
		{name: "timeout", genErr: fmt.Errorf("%w: %w", llm.ErrTimeout, context.DeadlineExceeded), detail: DetailLLMTimeout},
		{name: "malformed", reply: "przepraszam, nie potrafię", detail: DetailBadOutput},
		{name: "invalid", reply: `{"store_name": "", "date": "2024-01-01", "total_amount": 1, "items": []}`, detail: DetailBadOutput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, fakeOCR{text: "PARAGON FISKALNY", err: tc.ocrErr})
			h.gen.err = tc.genErr
			if tc.reply != "" {
				h.gen.replies = []string{tc.reply}
			}
			rec := h.queued(t)
			ctx := context.Background()

			res := h.proc.Process(ctx, rec.ID)
			assert.Equal(t, ResultError, res.Status)

			got, err := h.store.Receipts.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.StatusFailed, got.Status)
			require.NotNil(t, got.DetailedStatus)
			assert.Equal(t, tc.detail, *got.DetailedStatus)
			require.NotNil(t, got.ProcessingError)
			assert.NotEmpty(t, *got.ProcessingError)

			items, err := h.store.Items.ListByReceipt(ctx, rec.ID)
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

type panickingOCR struct{}

func (panickingOCR) ExtractText(context.Context, string) (string, error) { panic("nil image") }

func TestProcessRecoversPanic(t *testing.T) {
	h := newHarness(t, panickingOCR{})
	rec := h.queued(t)
	ctx := context.Background()

	res := h.proc.Process(ctx, rec.ID)
	assert.Equal(t, ResultError, res.Status)

	got, err := h.store.Receipts.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, got.Status)
	assert.Equal(t, DetailUnexpected, *got.DetailedStatus)
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t, fakeOCR{text: "BIEDRONKA"})
	rec := h.queued(t)
	ctx := context.Background()

	v, err := h.proc.GetStatus(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusAwaitingProcessing, v.Status)
	assert.Zero(t, v.Progress)

	require.True(t, h.proc.Process(ctx, rec.ID).OK())
	v, err = h.proc.GetStatus(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDone, v.Status)
	assert.Equal(t, DetailDone, v.DetailedStatus)
	assert.Equal(t, 1.0, v.Progress)

	_, err = h.proc.GetStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestWholeQuantity(t *testing.T) {
	assert.Equal(t, 1, wholeQuantity(decimal.RequireFromString("0.5")))
	assert.Equal(t, 2, wholeQuantity(decimal.RequireFromString("1.2")))
	assert.Equal(t, 3, wholeQuantity(decimal.NewFromInt(3)))
	assert.Equal(t, 1, wholeQuantity(decimal.Zero))
}
