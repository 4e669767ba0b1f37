// Package itemstest provides a small, fully populated item catalog for tests.
package itemstest

import "github.com/talgya/mini-factory/internal/items"

// Item and fluid IDs registered by Catalog.
const (
	Can          items.ItemID = "can"
	CanWater     items.ItemID = "can_water"
	CanHoney     items.ItemID = "can_honey"
	Bucket       items.ItemID = "bucket"
	BucketWater  items.ItemID = "bucket_water"
	OakLog       items.ItemID = "oak_log"
	BirchLog     items.ItemID = "birch_log"
	OakPlanks    items.ItemID = "oak_planks"
	BirchPlanks  items.ItemID = "birch_planks"
	Stick        items.ItemID = "stick"
	Pickaxe      items.ItemID = "pickaxe"
	Battery      items.ItemID = "battery"
	ChipsetBasic items.ItemID = "chipset_basic"
	Sand         items.ItemID = "sand"
	GlassPane    items.ItemID = "glass_pane"
	PlanPane     items.ItemID = "plan_pane"
	Cake         items.ItemID = "cake"

	Water items.FluidID = "water"
	Honey items.FluidID = "honey"
	Glass items.FluidID = "glass"
	Lava  items.FluidID = "lava"
)

// Catalog returns a catalog with containers, ore names, a repairable tool,
// a battery and a chipset registered.
func Catalog() *items.Catalog {
	c := items.NewCatalog()
	defs := []items.ItemDef{
		{ID: Can},
		{ID: CanWater},
		{ID: CanHoney},
		{ID: Bucket, MaxStackSize: 16},
		{ID: BucketWater, MaxStackSize: 1},
		{ID: OakLog},
		{ID: BirchLog},
		{ID: OakPlanks},
		{ID: BirchPlanks},
		{ID: Stick},
		{ID: Pickaxe, MaxStackSize: 1, MaxDamage: 100, Repairable: true},
		{ID: Battery, MaxStackSize: 1, ChargeCapacity: 1000},
		{ID: ChipsetBasic, MaxStackSize: 1, Circuit: &items.CircuitEffect{EUChange: 2, RFChange: 10, StorageChange: 50}},
		{ID: Sand},
		{ID: GlassPane},
		{ID: PlanPane, MaxStackSize: 1},
		{ID: Cake, MaxStackSize: 1},
	}
	for _, d := range defs {
		must(c.RegisterItem(d))
	}
	for _, f := range []items.FluidID{Water, Honey, Glass, Lava} {
		must(c.RegisterFluid(f))
	}
	must(c.RegisterOre("logWood", OakLog))
	must(c.RegisterOre("logWood", BirchLog))
	must(c.RegisterOre("plankWood", OakPlanks))
	must(c.RegisterOre("plankWood", BirchPlanks))

	must(c.RegisterContainer(items.ContainerData{Fluid: items.FluidStack{Fluid: Water, Amount: 1000}, Empty: Can, Filled: CanWater}))
	must(c.RegisterContainer(items.ContainerData{Fluid: items.FluidStack{Fluid: Honey, Amount: 1000}, Empty: Can, Filled: CanHoney}))
	must(c.RegisterContainer(items.ContainerData{Fluid: items.FluidStack{Fluid: Water, Amount: 1000}, Empty: Bucket, Filled: BucketWater}))
	return c
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
