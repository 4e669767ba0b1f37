package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/items/itemstest"
)

const (
	slotInput  = 0
	slotOutput = 1
)

func newMachineInventory(cat *items.Catalog) *inventory.Inventory {
	return inventory.New("Items", 2, cat, inventory.Rules{
		Accepts: func(slot int, s *items.Stack) bool {
			return slot == slotInput && cat.IsEmptyContainer(s)
		},
		CanExtract: func(slot int, _ *items.Stack, _ inventory.Side) bool {
			return slot == slotOutput
		},
	})
}

func TestSetChecksAcceptRule(t *testing.T) {
	cat := itemstest.Catalog()
	inv := newMachineInventory(cat)

	require.NoError(t, inv.Set(slotInput, items.NewStack(itemstest.Can, 3)))
	assert.ErrorIs(t, inv.Set(slotInput, items.NewStack(itemstest.Stick, 1)), inventory.ErrSlotRejects)
	assert.ErrorIs(t, inv.Set(slotOutput, items.NewStack(itemstest.CanWater, 1)), inventory.ErrSlotRejects)
	assert.ErrorIs(t, inv.Set(5, nil), inventory.ErrSlotRange)

	// The owner may write outputs the accept rule refuses.
	require.NoError(t, inv.Place(slotOutput, items.NewStack(itemstest.CanWater, 1)))
	assert.Equal(t, itemstest.CanWater, inv.Get(slotOutput).Item)

	// Clearing is always allowed.
	require.NoError(t, inv.Set(slotOutput, nil))
	assert.Nil(t, inv.Get(slotOutput))
}

func TestSetEnforcesStackLimit(t *testing.T) {
	cat := itemstest.Catalog()
	inv := inventory.New("Items", 1, cat, inventory.Rules{})
	assert.ErrorIs(t, inv.Place(0, items.NewStack(itemstest.Bucket, 17)), inventory.ErrStackSize)
	assert.NoError(t, inv.Place(0, items.NewStack(itemstest.Bucket, 16)))
}

func TestSetStoresCopy(t *testing.T) {
	cat := itemstest.Catalog()
	inv := inventory.New("Items", 1, cat, inventory.Rules{})
	s := items.NewStack(itemstest.Stick, 4)
	require.NoError(t, inv.Set(0, s))
	s.Size = 1
	assert.Equal(t, 4, inv.Get(0).Size)
}

func TestExtract(t *testing.T) {
	cat := itemstest.Catalog()
	inv := newMachineInventory(cat)
	require.NoError(t, inv.Set(slotInput, items.NewStack(itemstest.Can, 3)))
	require.NoError(t, inv.Place(slotOutput, items.NewStack(itemstest.CanWater, 5)))

	_, err := inv.Extract(slotInput, 1, inventory.SideDown)
	assert.ErrorIs(t, err, inventory.ErrNotExtracted)

	got, err := inv.Extract(slotOutput, 2, inventory.SideDown)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Size)
	assert.Equal(t, 3, inv.Get(slotOutput).Size)

	got, err = inv.Extract(slotOutput, 10, inventory.SideDown)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Size)
	assert.Nil(t, inv.Get(slotOutput))
}

func TestTryAddStack(t *testing.T) {
	cat := itemstest.Catalog()
	inv := inventory.New("Items", 3, cat, inventory.Rules{})
	require.NoError(t, inv.Place(0, items.NewStack(itemstest.Bucket, 10)))

	bucket := items.NewStack(itemstest.Bucket, 10)
	assert.True(t, inv.TryAddStack(bucket, 0, 2, true, false))
	assert.Equal(t, 10, inv.Get(0).Size, "dry run must not change the inventory")

	require.True(t, inv.TryAddStack(bucket, 0, 2, true, true))
	assert.Equal(t, 16, inv.Get(0).Size)
	assert.Equal(t, 4, inv.Get(1).Size)

	big := items.NewStack(itemstest.Bucket, 16)
	assert.False(t, inv.TryAddStack(big, 0, 2, true, true))
	assert.True(t, inv.TryAddStack(big, 0, 2, false, true))
	assert.Equal(t, 16, inv.Get(1).Size)
}

func TestRemoveSets(t *testing.T) {
	cat := itemstest.Catalog()
	inv := inventory.New("Items", 4, cat, inventory.Rules{})
	require.NoError(t, inv.Place(0, items.NewStack(itemstest.BirchPlanks, 3)))
	require.NoError(t, inv.Place(2, items.NewStack(itemstest.Stick, 1)))

	set := []*items.Stack{
		items.NewStack(itemstest.OakPlanks, 1),
		nil,
		items.NewStack(itemstest.OakPlanks, 1),
		items.NewStack(itemstest.Stick, 1),
	}
	assert.Nil(t, inv.RemoveSets(1, set, 0, 4, false, false))
	assert.Equal(t, 3, inv.Get(0).Size)

	removed := inv.RemoveSets(1, set, 0, 4, true, false)
	require.Len(t, removed, 4)
	assert.Equal(t, itemstest.BirchPlanks, removed[0].Item)
	assert.Nil(t, removed[1])
	assert.Equal(t, itemstest.Stick, removed[3].Item)
	assert.Equal(t, 1, inv.Get(0).Size)
	assert.Nil(t, inv.Get(2))
}

func TestRestoreRoundTrip(t *testing.T) {
	cat := itemstest.Catalog()
	inv := inventory.New("Items", 3, cat, inventory.Rules{})
	require.NoError(t, inv.Place(1, &items.Stack{Item: itemstest.Pickaxe, Size: 1, Damage: 7}))

	snap := inv.Snapshot()
	other := inventory.New("Items", 3, cat, inventory.Rules{})
	require.NoError(t, other.Restore(snap))
	assert.Equal(t, inv.Snapshot(), other.Snapshot())

	other.Clear()
	assert.Nil(t, other.Get(1))
}
