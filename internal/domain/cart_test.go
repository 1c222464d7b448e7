package domain_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/shopcart/internal/domain"
)

func mustItem(t *testing.T, productID string, qty int64, price int64) domain.LineItem {
	t.Helper()

	item, err := domain.NewLineItem(productID, qty, decimal.NewFromInt(price))
	require.NoError(t, err)

	return item
}

func assertTotalIsLineSum(t *testing.T, cart domain.Cart) {
	t.Helper()

	sum := decimal.Zero
	for _, it := range cart.Items {
		assert.True(t, it.Subtotal.Equal(it.Price.Mul(decimal.NewFromInt(it.Quantity))),
			"subtotal of %s", it.ProductID)
		sum = sum.Add(it.Subtotal)
	}

	assert.True(t, cart.TotalPrice.Equal(sum), "total %s != sum %s", cart.TotalPrice, sum)
}

func TestCart_Scenario(t *testing.T) {
	t.Parallel()

	cart := domain.NewCart("u1", mustItem(t, "p1", 2, 10))
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(20)))
	assertTotalIsLineSum(t, cart)

	require.NoError(t, cart.AddItem(mustItem(t, "p1", 3, 10)))
	require.Len(t, cart.Items, 1)
	assert.EqualValues(t, 5, cart.Items[0].Quantity)
	assert.True(t, cart.Items[0].Subtotal.Equal(decimal.NewFromInt(50)))
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(50)))

	require.NoError(t, cart.AddItem(mustItem(t, "p2", 1, 5)))
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "p2", cart.Items[1].ProductID)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(55)))
	assertTotalIsLineSum(t, cart)

	require.NoError(t, cart.RemoveItem("p1"))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p2", cart.Items[0].ProductID)
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(5)))
	assertTotalIsLineSum(t, cart)
}

func TestCart_AddItemKeepsStoredPrice(t *testing.T) {
	t.Parallel()

	cart := domain.NewCart("u1", mustItem(t, "p1", 1, 10))
	require.NoError(t, cart.AddItem(mustItem(t, "p1", 2, 99)))

	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(30)))
}

func TestCart_AddItemQuantityOverflow(t *testing.T) {
	t.Parallel()

	cart := domain.NewCart("u1", mustItem(t, "p1", math.MaxInt64, 1))
	before := cart.Clone()

	err := cart.AddItem(mustItem(t, "p1", 1, 1))
	require.ErrorIs(t, err, domain.ErrInvalidItem)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, before, cart)
	assert.EqualValues(t, int64(math.MaxInt64), cart.Items[0].Quantity)
	assertTotalIsLineSum(t, cart)
}

func TestCart_InsertionOrder(t *testing.T) {
	t.Parallel()

	cart := domain.NewCart("u1", mustItem(t, "p3", 1, 1))
	require.NoError(t, cart.AddItem(mustItem(t, "p1", 1, 1)))
	require.NoError(t, cart.AddItem(mustItem(t, "p2", 1, 1)))

	require.NoError(t, cart.RemoveItem("p3"))
	require.NoError(t, cart.AddItem(mustItem(t, "p3", 1, 1)))

	var got []string
	for _, it := range cart.Items {
		got = append(got, it.ProductID)
	}

	assert.Equal(t, []string{"p1", "p2", "p3"}, got)
	assertTotalIsLineSum(t, cart)
}

func TestCart_RemoveItemNotFound(t *testing.T) {
	t.Parallel()

	cart := domain.NewCart("u1", mustItem(t, "p1", 1, 1))
	before := cart.Clone()

	err := cart.RemoveItem("nope")
	require.ErrorIs(t, err, domain.ErrItemNotFound)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, before, cart)
}

func TestCart_RemoveDoesNotAliasClone(t *testing.T) {
	t.Parallel()

	cart := domain.NewCart("u1", mustItem(t, "p1", 1, 1))
	require.NoError(t, cart.AddItem(mustItem(t, "p2", 1, 2)))
	stored := cart.Clone()

	require.NoError(t, cart.RemoveItem("p1"))
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, "p1", stored.Items[0].ProductID)
}

func TestCart_DecimalTotals(t *testing.T) {
	t.Parallel()

	price := decimal.RequireFromString("0.10")
	item, err := domain.NewLineItem("p1", 1, price)
	require.NoError(t, err)

	cart := domain.NewCart("u1", item)
	for range 9 {
		require.NoError(t, cart.AddItem(item))
	}

	assert.True(t, cart.TotalPrice.Equal(decimal.NewFromInt(1)), "got %s", cart.TotalPrice)
}

func TestNewLineItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		productID string
		quantity  int64
		price     decimal.Decimal
		wantErr   error
	}{
		{name: "valid", productID: "p1", quantity: 2, price: decimal.NewFromInt(10)},
		{name: "free item", productID: "p1", quantity: 1, price: decimal.Zero},
		{name: "empty product", productID: "", quantity: 1, price: decimal.Zero, wantErr: domain.ErrInvalidArgument},
		{name: "zero quantity", productID: "p1", quantity: 0, price: decimal.Zero, wantErr: domain.ErrInvalidArgument},
		{name: "negative price", productID: "p1", quantity: 1, price: decimal.NewFromInt(-1), wantErr: domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			item, err := domain.NewLineItem(tt.productID, tt.quantity, tt.price)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.True(t, item.Subtotal.Equal(tt.price.Mul(decimal.NewFromInt(tt.quantity))))
		})
	}
}
