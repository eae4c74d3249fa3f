package normalize_test

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/query-tools/internal/domain/normalize"
)

func TestRowsCountQuery(t *testing.T) {
	rows := normalize.Rows([]string{"count(n)"}, [][]any{{int64(0)}})

	text, err := normalize.JSON(rows)
	require.NoError(t, err)
	assert.Equal(t, `[{"count(n)":0}]`, text)
}

func TestRowsEmptyResultIsEmptyList(t *testing.T) {
	text, err := normalize.JSON(normalize.Rows([]string{"id"}, nil))
	require.NoError(t, err)
	assert.Equal(t, `[]`, text)
}

func TestRowsShortRowPadsNull(t *testing.T) {
	rows := normalize.Rows([]string{"a", "b"}, [][]any{{"x"}})
	assert.Equal(t, []map[string]any{{"a": "x", "b": nil}}, rows)
}

func TestValueCoercions(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"small int64", int64(42), int64(42)},
		{"int32", int32(-7), int64(-7)},
		{"unsafe int64", int64(math.MaxInt64), "9223372036854775807"},
		{"unsafe uint64", uint64(math.MaxUint64), "18446744073709551615"},
		{"big int fits", big.NewInt(9), int64(9)},
		{"big int huge", huge, "123456789012345678901234567890"},
		{"decimal", decimal.RequireFromString("12.3400"), "12.34"},
		{"float", 1.5, 1.5},
		{"nan", math.NaN(), "NaN"},
		{"time", ts, "2024-03-01T12:30:00Z"},
		{"uuid bytes", [16]byte(id), id.String()},
		{"utf8 bytes", []byte("hello"), "hello"},
		{"binary bytes", []byte{0xff, 0x00}, "/wA="},
		{"raw json", json.RawMessage(`{"k":[1,2]}`), map[string]any{"k": []any{float64(1), float64(2)}}},
		{"nested", map[string]any{"at": ts, "ids": []any{int64(1), nil}}, map[string]any{"at": "2024-03-01T12:30:00Z", "ids": []any{int64(1), nil}}},
		{"typed slice", []int32{1, 2}, []any{int64(1), int64(2)}},
		{"pointer", &ts, "2024-03-01T12:30:00Z"},
		{"duration", 90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize.Value(tt.in))
		})
	}
}

func TestJSONDoesNotEscapeHTML(t *testing.T) {
	text, err := normalize.JSON(map[string]any{"q": "a < b && c > d"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a < b && c > d"}`, text)
}
