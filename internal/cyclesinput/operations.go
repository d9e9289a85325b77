// Package cyclesinput renders the simulator's control and operation input
// files for a single-crop rotation and launches the simulator on them.
package cyclesinput

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DaysPerYear bounds a day of year.
const DaysPerYear = 365

// AutoEndDOY tells the simulator to pick the end of the planting window.
const AutoEndDOY = -999

// AdjustDOY wraps a day of year that drifted one year out of 1..365.
func AdjustDOY(doy int) int {
	if doy > DaysPerYear {
		doy -= DaysPerYear
	}
	if doy < 1 {
		doy += DaysPerYear
	}
	return doy
}

// Kind is a field operation type.
type Kind int

const (
	KillCrop Kind = iota
	Fertilize
	Tillage
	Plant
	WeedingTillage
	WeedPlanting
)

func (k Kind) String() string {
	switch k {
	case KillCrop:
		return "kill_crop"
	case Fertilize:
		return "fertilize"
	case Tillage:
		return "tillage"
	case Plant:
		return "plant"
	case WeedingTillage:
		return "weeding_tillage"
	case WeedPlanting:
		return "weed_planting"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Operation is one scheduled field operation in year 1 of the rotation.
type Operation struct {
	Kind Kind
	DOY  int

	Crop           string
	EndDOY         int
	FertilizerRate float64
	WeedFraction   float64
}

// Params are the inputs of one wrapper run.
type Params struct {
	StartYear        int
	EndYear          int
	Crop             string
	StartPlantingDay int
	// EndPlantingDay of 0 lets the simulator choose.
	EndPlantingDay int
	FertilizerRate float64
	WeedFraction   float64

	CropFile    string
	SoilFile    string
	WeatherFile string
}

// DefaultParams returns the wrapper's defaults.
func DefaultParams() Params {
	return Params{
		StartYear:        2000,
		EndYear:          2017,
		Crop:             "Maize",
		StartPlantingDay: 100,
	}
}

func (p Params) endDOY() int {
	if p.EndPlantingDay == 0 {
		return AutoEndDOY
	}
	return p.EndPlantingDay
}

// Operations schedules the season around the planting day: land preparation
// ten days before, planting, weed emergence a week after (only with a
// positive weed fraction) and weeding twenty days after. The result is
// stably sorted by day of year.
func Operations(p Params) []Operation {
	start := p.StartPlantingDay
	ops := []Operation{
		{Kind: KillCrop, DOY: AdjustDOY(start - 10)},
		{Kind: Fertilize, DOY: AdjustDOY(start - 10), FertilizerRate: p.FertilizerRate},
		{Kind: Tillage, DOY: AdjustDOY(start - 10)},
		{Kind: Plant, DOY: AdjustDOY(start), Crop: p.Crop, EndDOY: p.endDOY()},
		{Kind: WeedingTillage, DOY: AdjustDOY(start + 20)},
	}
	if p.WeedFraction > 0 {
		ops = append(ops, Operation{Kind: WeedPlanting, DOY: AdjustDOY(start + 7), WeedFraction: p.WeedFraction})
	}
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].DOY < ops[j].DOY })
	return ops
}

type field struct {
	key, value string
}

type block struct {
	name   string
	fields []field
}

func tillage(doy int, tool, depth, disturb, mixing string) block {
	return block{name: "TILLAGE", fields: []field{
		{"YEAR", "1"},
		{"DOY", strconv.Itoa(doy)},
		{"TOOL", tool},
		{"DEPTH", depth},
		{"SOIL_DISTURB_RATIO", disturb},
		{"MIXING_EFFICIENCY", mixing},
		{"CROP_NAME", "N/A"},
		{"FRAC_THERMAL_TIME", "0.0"},
		{"KILL_EFFICIENCY", "0.0"},
		{"GRAIN_HARVEST", "0"},
		{"FORAGE_HARVEST", "0.0"},
	}}
}

func planting(doy, endDOY int, crop, fraction, clipStart, clipEnd string) block {
	return block{name: "PLANTING", fields: []field{
		{"YEAR", "1"},
		{"DOY", strconv.Itoa(doy)},
		{"END_DOY", strconv.Itoa(endDOY)},
		{"MAX_SMC", "-999"},
		{"MIN_SMC", "-999"},
		{"MIN_SOIL_TEMP", "-999"},
		{"CROP", crop},
		{"USE_AUTO_IRR", "0"},
		{"USE_AUTO_FERT", "0"},
		{"FRACTION", fraction},
		{"CLIPPING_START", clipStart},
		{"CLIPPING_END", clipEnd},
	}}
}

func (op Operation) blocks() []block {
	switch op.Kind {
	case KillCrop:
		return []block{tillage(op.DOY, "Kill_Crop", "0", "0", "0")}
	case Tillage:
		return []block{tillage(op.DOY, "Hand_hoeing", "0.11", "25", "0.33")}
	case WeedingTillage:
		return []block{tillage(op.DOY, "Hand_hoeing_weeding", "0.06", "15", "0.25")}
	case Fertilize:
		return []block{{name: "FIXED_FERTILIZATION", fields: []field{
			{"YEAR", "1"},
			{"DOY", strconv.Itoa(op.DOY)},
			{"SOURCE", "32-00-00"},
			{"MASS", strconv.FormatFloat(op.FertilizerRate, 'f', 2, 64)},
			{"FORM", "Solid"},
			{"METHOD", "Incorporated"},
			{"LAYER", "2"},
			{"C_Organic", "0"},
			{"C_Charcoal", "0"},
			{"N_Organic", "0"},
			{"N_Charcoal", "0"},
			{"N_NH4", "1"},
			{"N_NO3", "0"},
			{"P_Organic", "0"},
			{"P_CHARCOAL", "0"},
			{"P_INORGANIC", "0"},
			{"K", "0"},
			{"S", "0"},
		}}}
	case Plant:
		return []block{planting(op.DOY, op.EndDOY, op.Crop, "0.67", "1", "366")}
	case WeedPlanting:
		if op.WeedFraction <= 0 {
			return nil
		}
		frac := strconv.FormatFloat(op.WeedFraction, 'g', -1, 64)
		return []block{
			planting(op.DOY, AutoEndDOY, "C3_weed", frac, "-999", "-999"),
			planting(op.DOY, AutoEndDOY, "C4_weed", frac, "-999", "-999"),
		}
	}
	return nil
}

// RenderOperations renders ops in the simulator's operation file layout:
// a block name line, one key/value line per field with the key padded to
// twenty columns, and a blank line after each block.
func RenderOperations(ops []Operation) string {
	var b strings.Builder
	for _, op := range ops {
		for _, blk := range op.blocks() {
			b.WriteString(blk.name)
			b.WriteByte('\n')
			for _, f := range blk.fields {
				fmt.Fprintf(&b, "%-20s%s\n", f.key, f.value)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
