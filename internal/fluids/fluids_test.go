package fluids_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/fluids"
	"github.com/talgya/mini-factory/internal/inventory"
	"github.com/talgya/mini-factory/internal/items"
	"github.com/talgya/mini-factory/internal/items/itemstest"
)

func water(n int) items.FluidStack { return items.FluidStack{Fluid: itemstest.Water, Amount: n} }

func TestTankFillDrainClamps(t *testing.T) {
	tank := fluids.NewTank(1000)

	assert.Equal(t, 1000, tank.Fill(water(1500), false))
	assert.Equal(t, 1000, tank.Amount())
	assert.Zero(t, tank.Fill(water(1), false))
	assert.Zero(t, tank.Fill(items.FluidStack{Fluid: itemstest.Honey, Amount: 1}, false))

	got := tank.Drain(2000, false)
	assert.Equal(t, water(1000), got)
	assert.True(t, tank.IsEmpty())
	assert.Equal(t, items.FluidStack{}, tank.Fluid(), "an empty tank holds no fluid kind")
}

func TestFilteredTank(t *testing.T) {
	tank := fluids.NewFilteredTank(100, itemstest.Water)
	assert.Zero(t, tank.Fill(items.FluidStack{Fluid: itemstest.Lava, Amount: 10}, false))
	assert.Equal(t, 10, tank.Fill(water(10), false))
}

func TestTankProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fill then drain of the accepted amount restores the tank", prop.ForAll(
		func(capacity, initial, offer int) bool {
			initial = initial % (capacity + 1)
			tank := fluids.NewTank(capacity)
			tank.Fill(water(initial), false)
			before := tank.Fluid()

			n := tank.Fill(water(offer), false)
			if tank.Amount() > tank.Capacity() {
				return false
			}
			tank.Drain(n, false)
			return tank.Fluid() == before
		},
		gen.IntRange(1, 5000),
		gen.IntRange(0, 5000),
		gen.IntRange(0, 10000),
	))

	properties.Property("simulated calls match real calls and never mutate", prop.ForAll(
		func(capacity, initial, offer, take int) bool {
			initial = initial % (capacity + 1)
			tank := fluids.NewTank(capacity)
			tank.Fill(water(initial), false)
			before := tank.Fluid()

			simFill := tank.Fill(water(offer), true)
			simDrain := tank.Drain(take, true)
			if tank.Fluid() != before {
				return false
			}

			twin := fluids.NewTank(capacity)
			twin.Fill(water(initial), false)
			realDrain := twin.Drain(take, false)

			other := fluids.NewTank(capacity)
			other.Fill(water(initial), false)
			return simFill == other.Fill(water(offer), false) && simDrain == realDrain
		},
		gen.IntRange(1, 5000),
		gen.IntRange(0, 5000),
		gen.IntRange(0, 10000),
		gen.IntRange(0, 10000),
	))

	properties.TestingRun(t)
}

func TestManagerSelectors(t *testing.T) {
	cat := itemstest.Catalog()
	m := fluids.NewManager(cat, fluids.NewFilteredTank(100, itemstest.Water), fluids.NewTank(100))

	honey := items.FluidStack{Fluid: itemstest.Honey, Amount: 50}
	assert.Equal(t, 50, m.Fill(fluids.AnyTank, honey, false))
	assert.Equal(t, 50, m.Tank(1).Amount(), "honey skips the water-only tank")

	assert.Equal(t, 30, m.Fill(0, water(30), false))
	assert.Equal(t, items.FluidStack{}, m.DrainFluid(0, honey, false))
	assert.Equal(t, honey, m.DrainFluid(fluids.AnyTank, honey, true))
	assert.Equal(t, water(30), m.Drain(fluids.AnyTank, 100, false))
	assert.Zero(t, m.Fill(7, water(1), false))
}

func TestManagerSyncChannels(t *testing.T) {
	cat := itemstest.Catalog()
	src := fluids.NewManager(cat, fluids.NewTank(1000), fluids.NewTank(2000))
	assert.Equal(t, 5, src.MaxChannelID())
	assert.Equal(t, -1, fluids.NewManager(cat).MaxChannelID())

	src.Fill(1, water(700), false)
	full, err := deltasync.Full(src)
	require.NoError(t, err)
	require.Len(t, full, 6)

	observer := fluids.NewManager(cat, fluids.NewTank(0), fluids.NewTank(0))
	assert.Zero(t, deltasync.Apply(observer, full))
	assert.Equal(t, src.Snapshot(), observer.Snapshot())
	assert.Equal(t, 2000, observer.Tank(1).Capacity())

	s := deltasync.NewSender()
	_, err = s.Delta(src)
	require.NoError(t, err)
	src.Drain(1, 700, false)
	ups, err := s.Delta(src)
	require.NoError(t, err)
	assert.Equal(t, []deltasync.Update{{Channel: 4, Value: 0}, {Channel: 5, Value: 0}}, ups)
	deltasync.Apply(observer, ups)
	assert.True(t, observer.Tank(1).IsEmpty())
	assert.False(t, observer.ApplySync(6, 1))
}

func TestManagerRestoreValidates(t *testing.T) {
	cat := itemstest.Catalog()
	m := fluids.NewManager(cat, fluids.NewTank(1000))

	require.NoError(t, m.Restore([]fluids.TankState{{Fluid: itemstest.Water, Amount: 500}}))
	assert.Equal(t, water(500), m.Tank(0).Fluid())

	tests := []struct {
		name   string
		states []fluids.TankState
	}{
		{"over capacity", []fluids.TankState{{Fluid: itemstest.Water, Amount: 1001}}},
		{"amount without fluid", []fluids.TankState{{Amount: 5}}},
		{"unknown fluid", []fluids.TankState{{Fluid: "mercury", Amount: 5}}},
		{"too many tanks", []fluids.TankState{{}, {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, m.Restore(tt.states))
			assert.Equal(t, water(500), m.Tank(0).Fluid(), "failed restore leaves tanks alone")
		})
	}
}

func TestFillAndDrainContainers(t *testing.T) {
	cat := itemstest.Catalog()
	m := fluids.NewManager(cat, fluids.NewTank(5000))
	inv := inventory.New("Items", 3, cat, inventory.Rules{})
	require.NoError(t, inv.Place(0, items.NewStack(itemstest.Can, 2)))

	assert.False(t, fluids.FillContainers(m, inv, 0, 1, itemstest.Water, true), "tank is empty")

	m.Fill(fluids.AnyTank, water(1500), false)
	assert.True(t, fluids.FillContainers(m, inv, 0, 1, itemstest.Water, false))
	assert.Equal(t, 1500, m.Tank(0).Amount())

	require.True(t, fluids.FillContainers(m, inv, 0, 1, itemstest.Water, true))
	assert.Equal(t, 500, m.Tank(0).Amount())
	assert.Equal(t, 1, inv.Get(0).Size)
	assert.Equal(t, itemstest.CanWater, inv.Get(1).Item)
	assert.False(t, fluids.FillContainers(m, inv, 0, 1, itemstest.Water, true), "500 is less than a can")

	require.NoError(t, inv.Place(2, items.NewStack(itemstest.BucketWater, 1)))
	require.True(t, fluids.DrainContainers(m, inv, 2))
	assert.Equal(t, 1500, m.Tank(0).Amount())
	assert.Equal(t, itemstest.Bucket, inv.Get(2).Item)
	assert.False(t, fluids.DrainContainers(m, inv, 2), "empty bucket holds nothing")
}

func TestDrainContainersKeepsStackWhenEmptyHasNowhereToGo(t *testing.T) {
	cat := itemstest.Catalog()
	m := fluids.NewManager(cat, fluids.NewTank(5000))
	inv := inventory.New("Items", 1, cat, inventory.Rules{})
	require.NoError(t, inv.Place(0, items.NewStack(itemstest.CanWater, 2)))

	assert.False(t, fluids.DrainContainers(m, inv, 0))
	assert.Zero(t, m.Tank(0).Amount())
}
