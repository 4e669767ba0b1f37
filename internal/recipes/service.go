package recipes

import "github.com/talgya/mini-factory/internal/items"

// Service bundles every registry. It is built once at startup and handed
// to each unit; units never reach for recipes any other way.
type Service struct {
	Catalog    *items.Catalog
	Bottler    *BottlerRegistry
	Fabricator *FabricatorRegistry
	Smelting   *SmeltingRegistry
	Crafting   *Book
}

// NewService creates empty registries over the catalog.
func NewService(catalog *items.Catalog) *Service {
	return &Service{
		Catalog:    catalog,
		Bottler:    NewBottlerRegistry(catalog),
		Fabricator: NewFabricatorRegistry(catalog),
		Smelting:   NewSmeltingRegistry(catalog),
		Crafting:   NewBook(catalog),
	}
}

// Counts reports how many recipes each registry holds.
func (s *Service) Counts() map[string]int {
	return map[string]int{
		"bottler":    s.Bottler.Len(),
		"fabricator": s.Fabricator.Len(),
		"smelting":   s.Smelting.Len(),
		"crafting":   s.Crafting.Len(),
	}
}
