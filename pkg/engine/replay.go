package engine

import (
	"math"
	"time"

	"plantroom/pkg/domain"
)

const (
	// GrowthScale multiplies sqrt(water events).
	GrowthScale = 2.0
	// WaterRecovery is the share of the remaining distance to 100 a water event restores.
	WaterRecovery = 0.15
	// FightPenalty is the flat health loss of a fight event.
	FightPenalty = 25.0
)

type dayKind uint8

const (
	neutralDay dayKind = iota
	peaceDay
	fightDay
)

// Recompute replays the whole history of room and returns it with every
// derived field rebuilt. History itself is left as is.
func Recompute(room domain.Room) domain.Room {
	out := room.Clone()

	days := make(map[string]dayKind)
	latest := ""
	waters, fights, best := 0, 0, 0
	health := domain.BaselineHealth
	for _, ev := range out.History {
		switch ev.Action {
		case domain.ActionWater:
			waters++
			health = waterHealth(health)
			if days[ev.Date] != fightDay {
				days[ev.Date] = peaceDay
			}
		case domain.ActionFight:
			fights++
			health = fightHealth(health)
			days[ev.Date] = fightDay
		default:
			continue
		}
		// YYYY-MM-DD orders lexically.
		if ev.Date > latest {
			latest = ev.Date
		}
		if s := trailingStreak(days, latest); s > best {
			best = s
		}
	}

	peace := 0
	for _, kind := range days {
		if kind == peaceDay {
			peace++
		}
	}

	out.Growth = Growth(waters)
	out.Health = health
	out.Streak = trailingStreak(days, latest)
	out.BestStreak = best
	out.TotalPeaceDays = peace
	out.TotalFights = fights
	return out
}

// Growth maps the number of water events to plant growth. It is concave:
// every extra event adds less than the one before.
func Growth(waterEvents int) float64 {
	if waterEvents <= 0 {
		return 0
	}
	return GrowthScale * math.Sqrt(float64(waterEvents))
}

func waterHealth(h float64) float64 {
	return clampHealth(h + (100-h)*WaterRecovery)
}

func fightHealth(h float64) float64 {
	return clampHealth(h - FightPenalty)
}

func clampHealth(h float64) float64 {
	return math.Max(0, math.Min(100, h))
}

// trailingStreak counts consecutive peace days ending at latest.
func trailingStreak(days map[string]dayKind, latest string) int {
	if latest == "" {
		return 0
	}
	day, err := time.Parse(domain.DateLayout, latest)
	if err != nil {
		return 0
	}
	n := 0
	for days[day.Format(domain.DateLayout)] == peaceDay {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}
