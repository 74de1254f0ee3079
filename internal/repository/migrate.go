package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var longText = map[string]string{dialect.Postgres: "text"}
var money = map[string]string{dialect.Postgres: "numeric(12,2)"}

var (
	// ReceiptsColumns holds the columns for the "receipts" table.
	ReceiptsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "original_filename", Type: field.TypeString},
		{Name: "file_path", Type: field.TypeString, SchemaType: longText},
		{Name: "original_path", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "mime_type", Type: field.TypeString, Size: 64},
		{Name: "thumbnail_path", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "comment", Type: field.TypeString, Default: "", SchemaType: longText},
		{Name: "status", Type: field.TypeString, Size: 32},
		{Name: "detailed_status", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "progress", Type: field.TypeFloat64, Default: 0},
		{Name: "submitted_at", Type: field.TypeTime},
		{Name: "processed_at", Type: field.TypeTime, Nullable: true},
		{Name: "processing_error", Type: field.TypeString, Nullable: true, SchemaType: longText},
		{Name: "store_name", Type: field.TypeString, Nullable: true},
		{Name: "purchase_date", Type: field.TypeTime, Nullable: true, SchemaType: map[string]string{dialect.Postgres: "date"}},
		{Name: "total_amount", Type: field.TypeFloat64, Nullable: true, SchemaType: money},
	}
	// ReceiptsTable holds the schema information for the "receipts" table.
	ReceiptsTable = &schema.Table{
		Name:       "receipts",
		Columns:    ReceiptsColumns,
		PrimaryKey: []*schema.Column{ReceiptsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "receipt_status", Unique: false, Columns: []*schema.Column{ReceiptsColumns[7]}},
			{Name: "receipt_submitted_at", Unique: false, Columns: []*schema.Column{ReceiptsColumns[10]}},
		},
	}

	// ProductsColumns holds the columns for the "products" table.
	ProductsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString},
		{Name: "category", Type: field.TypeString, Size: 64},
		{Name: "price", Type: field.TypeFloat64, SchemaType: money},
		{Name: "expiry_date", Type: field.TypeTime, Nullable: true, SchemaType: map[string]string{dialect.Postgres: "date"}},
		{Name: "receipt_quantity", Type: field.TypeInt, Default: 1},
		{Name: "pantry_quantity", Type: field.TypeInt, Default: 0},
		{Name: "mapping_status", Type: field.TypeString, Size: 16},
		{Name: "mapped_to_id", Type: field.TypeUUID, Nullable: true},
		{Name: "mapping_suggestions", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "receipt_id", Type: field.TypeUUID, Nullable: true},
	}
	// ProductsTable holds the schema information for the "products" table.
	ProductsTable = &schema.Table{
		Name:       "products",
		Columns:    ProductsColumns,
		PrimaryKey: []*schema.Column{ProductsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "products_receipts_items",
				Columns:    []*schema.Column{ProductsColumns[11]},
				RefColumns: []*schema.Column{ReceiptsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "product_mapping_status", Unique: false, Columns: []*schema.Column{ProductsColumns[7]}},
		},
	}

	// LogEntriesColumns holds the columns for the "log_entries" table.
	LogEntriesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "level", Type: field.TypeString, Size: 16},
		{Name: "module", Type: field.TypeString},
		{Name: "function", Type: field.TypeString},
		{Name: "message", Type: field.TypeString, SchemaType: longText},
		{Name: "details", Type: field.TypeString, Nullable: true, SchemaType: longText},
	}
	// LogEntriesTable holds the schema information for the "log_entries" table.
	LogEntriesTable = &schema.Table{
		Name:       "log_entries",
		Columns:    LogEntriesColumns,
		PrimaryKey: []*schema.Column{LogEntriesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "log_entry_level_timestamp", Unique: false, Columns: []*schema.Column{LogEntriesColumns[2], LogEntriesColumns[1]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ReceiptsTable,
		ProductsTable,
		LogEntriesTable,
	}
)

func init() {
	ProductsTable.ForeignKeys[0].RefTable = ReceiptsTable
}

// Migrate creates or upgrades the schema in place.
func Migrate(ctx context.Context, drv dialect.Driver, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema migrated", "tables", len(Tables))
	return nil
}
