// Package pricefeed reads closing prices from the backing store for indicator tools.
package pricefeed

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"jan-server/services/query-tools/internal/domain/indicator"
	"jan-server/services/query-tools/utils/platformerrors"
)

// DefaultTable is the price table used when none is configured.
const DefaultTable = "price_bars"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ORMProvider hands out gorm sessions over the shared store handle.
type ORMProvider interface {
	ORM(ctx context.Context) (*gorm.DB, error)
}

// bar is one row of the price table.
type bar struct {
	Symbol string          `gorm:"column:symbol;size:32;index:idx_price_bars_symbol_ts,priority:1"`
	Ts     time.Time       `gorm:"column:ts;index:idx_price_bars_symbol_ts,priority:2"`
	Close  decimal.Decimal `gorm:"column:close;type:numeric"`
}

// Repository implements indicator.PriceSource on a table of (symbol, ts, close).
type Repository struct {
	orm   ORMProvider
	table string
}

// NewRepository validates table and returns a repository reading from it.
func NewRepository(orm ORMProvider, table string) (*Repository, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid price table name %q", table)
	}
	return &Repository{orm: orm, table: table}, nil
}

// Closes returns up to count most recent closes for symbol, oldest first.
func (r *Repository) Closes(ctx context.Context, symbol string, count int) ([]indicator.PricePoint, error) {
	db, err := r.orm.ORM(ctx)
	if err != nil {
		return nil, r.failure(ctx, "price store unavailable", err, symbol)
	}

	var bars []bar
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(r.table).
			Select("symbol, ts, close").
			Where("symbol = ?", symbol).
			Order("ts DESC").
			Limit(count).
			Find(&bars).Error
	}, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, r.failure(ctx, "failed to load closing prices", err, symbol)
	}

	points := make([]indicator.PricePoint, len(bars))
	for i, b := range bars {
		points[len(bars)-1-i] = indicator.PricePoint{Time: b.Ts, Close: b.Close}
	}
	return points, nil
}

func (r *Repository) failure(ctx context.Context, message string, err error, symbol string) error {
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExecution,
		message, err, map[string]any{"table": r.table, "symbol": symbol})
}
