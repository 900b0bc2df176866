// Package visual derives renderer-independent plant parameters from a room.
package visual

import (
	"fmt"
	"math"

	"plantroom/pkg/domain"
)

const (
	MinStemHeight = 150.0
	MaxStemHeight = 400.0
	// stemGrowthScale is the growth at which the stem covers ~63% of its range.
	stemGrowthScale = 20.0

	MinOrnaments = 4

	PotCracked    = "cracked"
	PotTerracotta = "terracotta"
	PotGlazed     = "glazed"
)

var (
	wiltedRGB   = [3]float64{155, 90, 40}
	thrivingRGB = [3]float64{0, 180, 137}
)

// Ornament is one leaf placed along the stem. X is the horizontal offset from
// the stem axis and Y the height above the pot rim, both in stem units.
type Ornament struct {
	Index   int     `json:"index"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Side    int     `json:"side"`
	Radius  float64 `json:"radius"`
	Palette int     `json:"palette"`
}

// Params is everything a renderer needs to draw the plant.
type Params struct {
	StemHeight        float64    `json:"stemHeight"`
	StemColor         string     `json:"stemColor"`
	StemTone          float64    `json:"stemTone"`
	OrnamentCount     int        `json:"ornamentCount"`
	OrnamentPositions []Ornament `json:"ornamentPositions"`
	PotStyle          string     `json:"potStyle"`
}

// Map turns a room into visual parameters. It only reads growth and health.
func Map(room domain.Room) Params {
	height := StemHeight(room.Growth)
	count := OrnamentCount(room.Growth)
	tone := healthTone(room.Health)
	return Params{
		StemHeight:        height,
		StemColor:         StemColor(room.Health),
		StemTone:          tone,
		OrnamentCount:     count,
		OrnamentPositions: Layout(height, count),
		PotStyle:          PotStyle(room.Health),
	}
}

// StemHeight saturates towards MaxStemHeight as growth increases.
func StemHeight(growth float64) float64 {
	if growth <= 0 || math.IsNaN(growth) {
		return MinStemHeight
	}
	return MinStemHeight + (MaxStemHeight-MinStemHeight)*(1-math.Exp(-growth/stemGrowthScale))
}

// StemColor blends from the wilted tone at health 0 to the thriving tone at 100.
func StemColor(health float64) string {
	t := healthTone(health)
	mix := func(i int) int {
		return int(math.Round(wiltedRGB[i] + (thrivingRGB[i]-wiltedRGB[i])*t))
	}
	return fmt.Sprintf("rgb(%d,%d,%d)", mix(0), mix(1), mix(2))
}

// OrnamentCount steps up with growth and never drops below MinOrnaments.
func OrnamentCount(growth float64) int {
	if growth < 0 || math.IsNaN(growth) {
		growth = 0
	}
	n := int(math.Floor(math.Log2(6 + growth)))
	if n < MinOrnaments {
		return MinOrnaments
	}
	return n
}

// Layout spreads count leaves evenly along a stem of the given height,
// alternating sides.
func Layout(height float64, count int) []Ornament {
	out := make([]Ornament, 0, count)
	for i := 0; i < count; i++ {
		t := float64(i+1) / float64(count+1)
		side := 1
		if i%2 == 1 {
			side = -1
		}
		out = append(out, Ornament{
			Index:   i,
			X:       float64(side) * (60 + float64(i%3)*18),
			Y:       height * t,
			Side:    side,
			Radius:  20 + float64(i%3)*6,
			Palette: i % 3,
		})
	}
	return out
}

// PotStyle buckets health into one of three pot finishes.
func PotStyle(health float64) string {
	switch {
	case health < 30:
		return PotCracked
	case health < 70:
		return PotTerracotta
	default:
		return PotGlazed
	}
}

func healthTone(health float64) float64 {
	if math.IsNaN(health) {
		return 0
	}
	return math.Max(0, math.Min(1, health/100))
}
