package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	monthly   = Cycle{ID: 1, Kind: CycleMonth, Multiplier: 1}
	quarterly = Cycle{ID: 3, Kind: CycleMonth, Multiplier: 3}
	annually  = Cycle{ID: 12, Kind: CycleYear, Multiplier: 1}
	biennial  = Cycle{ID: 24, Kind: CycleYear, Multiplier: 2}
	onetime   = Cycle{ID: 99, Kind: CycleOneTime, Multiplier: 1}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConvertCyclePrice(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		from, to Cycle
		want     string
	}{
		{"same cycle", "10", monthly, monthly, "10"},
		{"month to quarter", "10", monthly, quarterly, "30"},
		{"quarter to month", "30", quarterly, monthly, "10"},
		{"month to year", "10", monthly, annually, "120"},
		{"year to month", "120", annually, monthly, "10"},
		{"year to biennial", "100", annually, biennial, "200"},
		{"quarter to biennial", "30", quarterly, biennial, "240"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertCyclePrice(dec(tt.price), tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestConvertCyclePrice_Errors(t *testing.T) {
	_, err := ConvertCyclePrice(dec("10"), onetime, monthly)
	assert.Error(t, err)

	_, err = ConvertCyclePrice(dec("10"), monthly, Cycle{Kind: CycleMonth, Multiplier: 0})
	assert.Error(t, err)

	_, err = ConvertCyclePrice(dec("10"), monthly, Cycle{Kind: "weekly", Multiplier: 1})
	assert.Error(t, err)
}

func TestBasePrice(t *testing.T) {
	service := &Service{ID: 1, Cycle: monthly, FixedPrice: dec("8"), BasePrice: dec("10")}

	tests := []struct {
		name string
		item *OrderItem
		want string
	}{
		{
			name: "service uses fixed price",
			item: &OrderItem{ID: 1, Type: ItemTypeService, Cycle: annually, FixedPrice: dec("200")},
			want: "200",
		},
		{
			name: "renew converts service base price",
			item: &OrderItem{ID: 2, Type: ItemTypeServiceRenew, Cycle: annually, FixedPrice: dec("96"), Service: service},
			want: "120",
		},
		{
			name: "upgrade uses baseline fixed price",
			item: &OrderItem{ID: 3, Type: ItemTypeServiceUpgrade, Cycle: annually, FixedPrice: dec("12"), BaselineFixedPrice: dec("15"), Service: service},
			want: "15",
		},
		{
			name: "resize uses baseline fixed price",
			item: &OrderItem{ID: 4, Type: ItemTypeServiceResize, Cycle: monthly, BaselineFixedPrice: dec("7"), Service: service},
			want: "7",
		},
		{
			name: "one-time service uses baseline fixed price",
			item: &OrderItem{
				ID: 5, Type: ItemTypeServiceRenew, Cycle: monthly, FixedPrice: dec("45"), BaselineFixedPrice: dec("50"),
				Service: &Service{Cycle: onetime, BasePrice: dec("60")},
			},
			want: "50",
		},
		{
			name: "one-time item cycle uses baseline fixed price",
			item: &OrderItem{ID: 6, Type: ItemTypeServiceRenew, Cycle: onetime, BaselineFixedPrice: dec("40"), Service: service},
			want: "40",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BasePrice(tt.item)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestBasePrice_Errors(t *testing.T) {
	_, err := BasePrice(&OrderItem{ID: 7, Type: ItemTypeServiceRenew, Cycle: monthly})
	var pricingErr *PricingError
	require.True(t, errors.As(err, &pricingErr))
	assert.Equal(t, int64(7), pricingErr.ItemID)
	assert.True(t, errors.Is(err, ErrMissingService))

	_, err = BasePrice(&OrderItem{ID: 8, Type: ItemTypeAddon})
	assert.True(t, errors.Is(err, ErrUnknownPricingBasis))
	assert.False(t, errors.As(err, &pricingErr))

	// 服务周期无法换算
	_, err = BasePrice(&OrderItem{
		ID: 9, Type: ItemTypeServiceRenew, Cycle: monthly,
		Service: &Service{Cycle: Cycle{Kind: "weekly", Multiplier: 1}, BasePrice: dec("5")},
	})
	assert.True(t, errors.As(err, &pricingErr))
}
