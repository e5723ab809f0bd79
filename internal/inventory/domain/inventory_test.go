package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventory(available, reserved int) Inventory {
	return Inventory{
		ID:                1,
		ProductID:         "P1",
		AvailableQuantity: available,
		ReservedQuantity:  reserved,
		TotalQuantity:     available + reserved,
	}
}

func assertInvariant(t *testing.T, inv Inventory) {
	t.Helper()
	assert.Equal(t, inv.TotalQuantity, inv.AvailableQuantity+inv.ReservedQuantity)
	assert.GreaterOrEqual(t, inv.AvailableQuantity, 0)
	assert.GreaterOrEqual(t, inv.ReservedQuantity, 0)
	assert.GreaterOrEqual(t, inv.TotalQuantity, 0)
}

func TestReserveReleaseConfirmScenario(t *testing.T) {
	inv := newInventory(100, 0)

	require.NoError(t, inv.ReserveStock(40))
	assert.Equal(t, 60, inv.AvailableQuantity)
	assert.Equal(t, 40, inv.ReservedQuantity)
	assert.Equal(t, 100, inv.TotalQuantity)
	assertInvariant(t, inv)

	require.NoError(t, inv.ReleaseReservedStock(20))
	assert.Equal(t, 80, inv.AvailableQuantity)
	assert.Equal(t, 20, inv.ReservedQuantity)
	assert.Equal(t, 100, inv.TotalQuantity)
	assertInvariant(t, inv)

	require.NoError(t, inv.ConfirmReservedStock(20))
	assert.Equal(t, 80, inv.AvailableQuantity)
	assert.Equal(t, 0, inv.ReservedQuantity)
	assert.Equal(t, 80, inv.TotalQuantity)
	assertInvariant(t, inv)
}

func TestReserveThenReleaseRestoresCounters(t *testing.T) {
	inv := newInventory(50, 10)

	require.NoError(t, inv.ReserveStock(15))
	require.NoError(t, inv.ReleaseReservedStock(15))

	assert.Equal(t, 50, inv.AvailableQuantity)
	assert.Equal(t, 10, inv.ReservedQuantity)
	assert.Equal(t, 60, inv.TotalQuantity)
}

func TestConfirmLeavesAvailableUntouched(t *testing.T) {
	inv := newInventory(70, 30)

	require.NoError(t, inv.ConfirmReservedStock(30))
	assert.Equal(t, 70, inv.AvailableQuantity)
	assert.Equal(t, 0, inv.ReservedQuantity)
	assert.Equal(t, 70, inv.TotalQuantity)
}

func TestIncreaseAndDecreaseStock(t *testing.T) {
	inv := newInventory(10, 5)

	require.NoError(t, inv.IncreaseStock(20))
	assert.Equal(t, 30, inv.AvailableQuantity)
	assert.Equal(t, 35, inv.TotalQuantity)
	assertInvariant(t, inv)

	require.NoError(t, inv.DecreaseStock(30))
	assert.Equal(t, 0, inv.AvailableQuantity)
	assert.Equal(t, 5, inv.TotalQuantity)
	assertInvariant(t, inv)
}

func TestInvalidQuantityRejected(t *testing.T) {
	inv := newInventory(10, 10)

	for name, op := range map[string]func(int) error{
		"increase": inv.IncreaseStock,
		"decrease": inv.DecreaseStock,
		"reserve":  inv.ReserveStock,
		"release":  inv.ReleaseReservedStock,
		"confirm":  inv.ConfirmReservedStock,
	} {
		for _, qty := range []int{0, -3} {
			err := op(qty)
			var invalid *InvalidQuantityError
			require.ErrorAs(t, err, &invalid, "%s(%d)", name, qty)
			assert.Equal(t, qty, invalid.Quantity)
		}
	}
	// Nothing mutated.
	assert.Equal(t, 10, inv.AvailableQuantity)
	assert.Equal(t, 10, inv.ReservedQuantity)
	assert.Equal(t, 20, inv.TotalQuantity)
}

func TestInsufficientStock(t *testing.T) {
	inv := newInventory(5, 3)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, inv.ReserveStock(6), &insufficient)
	assert.Equal(t, 5, insufficient.Available)
	assert.Equal(t, 6, insufficient.Requested)
	require.ErrorAs(t, inv.DecreaseStock(6), &insufficient)

	var reserved *InsufficientReservedStockError
	require.ErrorAs(t, inv.ReleaseReservedStock(4), &reserved)
	assert.Equal(t, 3, reserved.Reserved)
	require.ErrorAs(t, inv.ConfirmReservedStock(4), &reserved)

	assertInvariant(t, inv)
	assert.Equal(t, 5, inv.AvailableQuantity)
	assert.Equal(t, 3, inv.ReservedQuantity)
}

func TestVersionBumpsOnMutation(t *testing.T) {
	inv := newInventory(10, 0)

	require.NoError(t, inv.ReserveStock(1))
	require.NoError(t, inv.ReleaseReservedStock(1))
	assert.Equal(t, int64(2), inv.Version)

	require.Error(t, inv.ReserveStock(0))
	assert.Equal(t, int64(2), inv.Version, "failed operation must not bump the version")
}
