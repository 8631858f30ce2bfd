package world

// Static definition tables for structures, biomes, recipes and recruitable
// unit lines. These are the engine-side subset of the full game catalogues:
// enough for every command and tick pass to resolve costs and timings.

// StructureDef describes a buildable structure type.
type StructureDef struct {
	Type       string
	Cost       ItemBag
	BuildTicks int64
	Capacity   int64
	// UpgradeTicks[n] is the tick count to go from level n+1 to n+2.
	UpgradeTicks []int64
	// UpgradeCost[n] mirrors UpgradeTicks.
	UpgradeCost []ItemBag
}

var structureDefs = map[string]StructureDef{
	"outpost": {
		Type:         "outpost",
		Cost:         ItemBag{"WOODEN_STICKS": 5, "STONE_PIECES": 3},
		BuildTicks:   1,
		Capacity:     10,
		UpgradeTicks: []int64{2, 3, 4, 6},
		UpgradeCost: []ItemBag{
			{"WOODEN_STICKS": 10, "STONE_PIECES": 5},
			{"WOODEN_STICKS": 20, "STONE_PIECES": 15},
			{"STONE_PIECES": 30, "IRON_ORE": 10},
			{"STONE_PIECES": 50, "IRON_ORE": 25},
		},
	},
	"fortress": {
		Type:         "fortress",
		Cost:         ItemBag{"WOODEN_STICKS": 20, "STONE_PIECES": 30, "IRON_ORE": 10},
		BuildTicks:   4,
		Capacity:     10,
		UpgradeTicks: []int64{3, 5, 8, 12},
		UpgradeCost: []ItemBag{
			{"STONE_PIECES": 40, "IRON_ORE": 15},
			{"STONE_PIECES": 60, "IRON_ORE": 30},
			{"STONE_PIECES": 80, "IRON_ORE": 50},
			{"STONE_PIECES": 120, "IRON_ORE": 80},
		},
	},
	"watchtower": {
		Type:         "watchtower",
		Cost:         ItemBag{"WOODEN_STICKS": 10, "STONE_PIECES": 5},
		BuildTicks:   2,
		Capacity:     5,
		UpgradeTicks: []int64{2, 3, 4, 5},
		UpgradeCost: []ItemBag{
			{"WOODEN_STICKS": 15, "STONE_PIECES": 10},
			{"WOODEN_STICKS": 25, "STONE_PIECES": 20},
			{"STONE_PIECES": 30, "IRON_ORE": 5},
			{"STONE_PIECES": 45, "IRON_ORE": 15},
		},
	},
	"stronghold": {
		Type:         "stronghold",
		Cost:         ItemBag{"STONE_PIECES": 50, "IRON_ORE": 20},
		BuildTicks:   6,
		Capacity:     15,
		UpgradeTicks: []int64{4, 6, 9, 14},
		UpgradeCost: []ItemBag{
			{"STONE_PIECES": 70, "IRON_ORE": 30},
			{"STONE_PIECES": 100, "IRON_ORE": 50},
			{"STONE_PIECES": 140, "IRON_ORE": 80},
			{"STONE_PIECES": 200, "IRON_ORE": 120},
		},
	},
}

// StructureDefOf looks up the definition for a structure type.
func StructureDefOf(structureType string) (StructureDef, bool) {
	d, ok := structureDefs[structureType]
	return d, ok
}

// UpgradeTicksFor returns the tick count for upgrading from fromLevel. An
// unknown type falls back to a flat schedule.
func UpgradeTicksFor(structureType string, fromLevel int64) int64 {
	if d, ok := structureDefs[structureType]; ok {
		if i := int(fromLevel) - 1; i >= 0 && i < len(d.UpgradeTicks) {
			return d.UpgradeTicks[i]
		}
	}
	return 3 * fromLevel
}

// UpgradeCostFor returns the resource cost for upgrading from fromLevel.
func UpgradeCostFor(structureType string, fromLevel int64) ItemBag {
	if d, ok := structureDefs[structureType]; ok {
		if i := int(fromLevel) - 1; i >= 0 && i < len(d.UpgradeCost) {
			return d.UpgradeCost[i].Clone()
		}
	}
	return ItemBag{"STONE_PIECES": 20 * fromLevel}
}

// DefaultBiome is assumed for tiles that carry no biome.
const DefaultBiome = "plains"

// GatherYield is one possible item drop when gathering in a biome.
type GatherYield struct {
	Code   string
	Min    int64
	Max    int64
	Chance float64
}

var gatherTables = map[string][]GatherYield{
	"plains": {
		{Code: "WOODEN_STICKS", Min: 1, Max: 3, Chance: 1},
		{Code: "STONE_PIECES", Min: 1, Max: 2, Chance: 0.6},
		{Code: "FIBER", Min: 1, Max: 2, Chance: 0.4},
	},
	"forest": {
		{Code: "WOODEN_STICKS", Min: 2, Max: 5, Chance: 1},
		{Code: "FIBER", Min: 1, Max: 3, Chance: 0.5},
		{Code: "HERBS", Min: 1, Max: 1, Chance: 0.25},
	},
	"mountains": {
		{Code: "STONE_PIECES", Min: 2, Max: 5, Chance: 1},
		{Code: "IRON_ORE", Min: 1, Max: 2, Chance: 0.35},
		{Code: "GEMSTONE", Min: 1, Max: 1, Chance: 0.05},
	},
	"desert": {
		{Code: "SAND", Min: 2, Max: 4, Chance: 1},
		{Code: "STONE_PIECES", Min: 1, Max: 2, Chance: 0.4},
	},
	"swamp": {
		{Code: "FIBER", Min: 2, Max: 4, Chance: 1},
		{Code: "HERBS", Min: 1, Max: 2, Chance: 0.5},
	},
	"ocean": {
		{Code: "FISH", Min: 1, Max: 3, Chance: 1},
		{Code: "KELP", Min: 1, Max: 2, Chance: 0.6},
	},
}

// GatherTableFor returns the yield table for a biome, falling back to the
// default biome's table.
func GatherTableFor(biome string) []GatherYield {
	if t, ok := gatherTables[biome]; ok {
		return t
	}
	return gatherTables[DefaultBiome]
}

// GatheringTicks is how many ticks a gather order takes.
const GatheringTicks = 2

// RecipeDef is a craftable item recipe.
type RecipeDef struct {
	ID        string
	Output    string
	Quantity  int64
	Materials ItemBag
	BaseTime  int64 // ms
}

var recipeDefs = map[string]RecipeDef{
	"wooden_spear": {
		ID: "wooden_spear", Output: "WOODEN_SPEAR", Quantity: 1,
		Materials: ItemBag{"WOODEN_STICKS": 3, "FIBER": 1},
		BaseTime:  120000,
	},
	"stone_axe": {
		ID: "stone_axe", Output: "STONE_AXE", Quantity: 1,
		Materials: ItemBag{"WOODEN_STICKS": 2, "STONE_PIECES": 3},
		BaseTime:  180000,
	},
	"iron_sword": {
		ID: "iron_sword", Output: "IRON_SWORD", Quantity: 1,
		Materials: ItemBag{"IRON_ORE": 4, "WOODEN_STICKS": 1},
		BaseTime:  360000,
	},
	"healing_salve": {
		ID: "healing_salve", Output: "HEALING_SALVE", Quantity: 2,
		Materials: ItemBag{"HERBS": 2, "FIBER": 1},
		BaseTime:  90000,
	},
}

// RecipeOf looks up a recipe definition.
func RecipeOf(id string) (RecipeDef, bool) {
	r, ok := recipeDefs[id]
	return r, ok
}

// UnitDef describes a recruitable unit line.
type UnitDef struct {
	Type        string
	Race        string // empty means any race may recruit it
	Strength    int64
	Motion      []string
	TimePerUnit int64 // ticks per unit, before speed scaling
	Capacity    int64 // boat passenger capacity, 0 for non-carriers
}

var unitDefs = map[string]UnitDef{
	"human_warrior": {Type: "human_warrior", Race: "human", Strength: 2, TimePerUnit: 1},
	"human_archer":  {Type: "human_archer", Race: "human", Strength: 2, TimePerUnit: 1},
	"elf_scout":     {Type: "elf_scout", Race: "elf", Strength: 1, TimePerUnit: 1},
	"dwarf_miner":   {Type: "dwarf_miner", Race: "dwarf", Strength: 1, TimePerUnit: 1},
	"goblin_raider": {Type: "goblin_raider", Race: "goblin", Strength: 1, TimePerUnit: 1},
	"militia":       {Type: "militia", Strength: 1, TimePerUnit: 1},
	"longboat": {
		Type: "longboat", Strength: 1, TimePerUnit: 2,
		Motion: []string{MotionWater}, Capacity: 6,
	},
}

// UnitDefOf looks up a unit definition.
func UnitDefOf(unitType string) (UnitDef, bool) {
	d, ok := unitDefs[unitType]
	return d, ok
}

var itemKinds = map[string]ItemKind{
	"WOODEN_SPEAR":  KindWeapon,
	"IRON_SWORD":    KindWeapon,
	"STONE_AXE":     KindTool,
	"HEALING_SALVE": KindScroll,
	"GEMSTONE":      KindArtifact,
}

// ItemKindOf classifies an item code; unknown codes are resources.
func ItemKindOf(code string) ItemKind {
	if k, ok := itemKinds[code]; ok {
		return k
	}
	return KindResource
}
