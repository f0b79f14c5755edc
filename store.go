package main

// Rarity levels for hull paints
const (
	RarityCommon    = 0
	RarityRare      = 1
	RarityEpic      = 2
	RarityLegendary = 3
)

// PaintItem is a purchasable hull paint. Prices are in the credits earned
// by saving planets.
type PaintItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Rarity  int    `json:"rarity"`
	Price   int    `json:"price"`
	Hull    string `json:"hull"` // hex
	Trim    string `json:"trim"` // hex
	Preview string `json:"preview"`
}

// PaintCatalog is the full list of paints, cheapest first.
var PaintCatalog = []PaintItem{
	{ID: "paint_crimson", Name: "Crimson", Rarity: RarityCommon, Price: 25, Hull: "#ff3333", Trim: "#cc0000", Preview: "Deep red hull plating"},
	{ID: "paint_ocean", Name: "Ocean", Rarity: RarityCommon, Price: 25, Hull: "#3399ff", Trim: "#0044aa", Preview: "Deep sea blue"},
	{ID: "paint_sunset", Name: "Sunset", Rarity: RarityCommon, Price: 50, Hull: "#ff8833", Trim: "#cc4400", Preview: "Warm orange tones"},

	{ID: "paint_gold", Name: "Golden", Rarity: RarityRare, Price: 100, Hull: "#ffcc00", Trim: "#aa8800", Preview: "Gleaming gold plating"},
	{ID: "paint_ice", Name: "Ice", Rarity: RarityRare, Price: 100, Hull: "#88ddff", Trim: "#44aacc", Preview: "Frozen crystal coating"},

	{ID: "paint_phantom", Name: "Phantom", Rarity: RarityEpic, Price: 250, Hull: "#333344", Trim: "#111122", Preview: "Nearly invisible dark hull"},
	{ID: "paint_inferno", Name: "Inferno", Rarity: RarityEpic, Price: 300, Hull: "#ff4400", Trim: "#ff8800", Preview: "Burning flame pattern"},

	{ID: "paint_nebula", Name: "Nebula", Rarity: RarityLegendary, Price: 600, Hull: "#ff44ff", Trim: "#4444ff", Preview: "Swirling cosmic colors"},
	{ID: "paint_void", Name: "Void", Rarity: RarityLegendary, Price: 750, Hull: "#000000", Trim: "#440088", Preview: "Absorbs all light"},
}

var paintByID = func() map[string]PaintItem {
	m := make(map[string]PaintItem, len(PaintCatalog))
	for _, item := range PaintCatalog {
		m[item.ID] = item
	}
	return m
}()

// LookupPaint finds a catalog item by ID.
func LookupPaint(id string) (PaintItem, bool) {
	item, ok := paintByID[id]
	return item, ok
}
