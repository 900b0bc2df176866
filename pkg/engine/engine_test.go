package engine

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
	"time"

	"plantroom/pkg/domain"
)

func mustLog(t *testing.T, room domain.Room, action, by, date string) domain.Room {
	t.Helper()
	next, err := Apply(room, Log{Action: action, By: by, Date: date})
	if err != nil {
		t.Fatalf("log %s by %s on %s: %v", action, by, date, err)
	}
	return next
}

func strPtr(s string) *string { return &s }

func TestNewRoomDefaults(t *testing.T) {
	room := NewRoom("abc")
	if room.Me != "Me" || room.Partner != "Partner" {
		t.Fatalf("labels = %q/%q, want Me/Partner", room.Me, room.Partner)
	}
	want := domain.Room{ID: "abc", Me: "Me", Partner: "Partner", Health: 80, History: []domain.LogEvent{}}
	if !reflect.DeepEqual(room, want) {
		t.Fatalf("NewRoom() = %+v, want %+v", room, want)
	}
	if got := Recompute(room); !reflect.DeepEqual(got, want) {
		t.Fatalf("Recompute(empty) = %+v, want %+v", got, want)
	}
}

func TestTwoPeaceDays(t *testing.T) {
	room := NewRoom("r")
	first := mustLog(t, room, "water", "Me", "2024-01-01")
	second := mustLog(t, first, "water", "Partner", "2024-01-02")

	if second.Streak != 2 || second.TotalPeaceDays != 2 || second.TotalFights != 0 {
		t.Fatalf("streak=%d peace=%d fights=%d, want 2/2/0", second.Streak, second.TotalPeaceDays, second.TotalFights)
	}
	inc1 := first.Growth - room.Growth
	inc2 := second.Growth - first.Growth
	if inc1 <= 0 || inc2 <= 0 {
		t.Fatalf("growth did not increase: %v -> %v -> %v", room.Growth, first.Growth, second.Growth)
	}
	if inc2 >= inc1 {
		t.Fatalf("second growth increment %v should be smaller than first %v", inc2, inc1)
	}
	if second.History[0].By != domain.MemberMe || second.History[1].By != domain.MemberPartner {
		t.Fatalf("unexpected history members: %+v", second.History)
	}
}

func TestFightResetsStreak(t *testing.T) {
	room := NewRoom("r")
	room = mustLog(t, room, "water", "me", "2024-01-01")
	room = mustLog(t, room, "water", "me", "2024-01-02")
	room = mustLog(t, room, "water", "partner", "2024-01-03")
	if room.Streak != 3 {
		t.Fatalf("streak before fight = %d, want 3", room.Streak)
	}
	room = mustLog(t, room, "fight", "partner", "2024-01-04")
	if room.Streak != 0 || room.BestStreak != 3 || room.TotalFights != 1 {
		t.Fatalf("after fight streak=%d best=%d fights=%d, want 0/3/1", room.Streak, room.BestStreak, room.TotalFights)
	}

	room = mustLog(t, room, "water", "me", "2024-01-05")
	if room.Streak != 1 || room.BestStreak != 3 {
		t.Fatalf("after recovery streak=%d best=%d, want 1/3", room.Streak, room.BestStreak)
	}
}

func TestFightOnPeaceDayTurnsItIntoFightDay(t *testing.T) {
	room := NewRoom("r")
	room = mustLog(t, room, "water", "me", "2024-02-01")
	room = mustLog(t, room, "fight", "partner", "2024-02-01")
	if room.TotalPeaceDays != 0 || room.Streak != 0 || room.TotalFights != 1 {
		t.Fatalf("peace=%d streak=%d fights=%d, want 0/0/1", room.TotalPeaceDays, room.Streak, room.TotalFights)
	}
	if room.BestStreak != 1 {
		t.Fatalf("bestStreak = %d, want 1 (observed before the fight)", room.BestStreak)
	}
}

func TestGapBreaksStreak(t *testing.T) {
	room := NewRoom("r")
	room = mustLog(t, room, "water", "me", "2024-03-01")
	room = mustLog(t, room, "water", "me", "2024-03-03")
	if room.Streak != 1 || room.BestStreak != 1 || room.TotalPeaceDays != 2 {
		t.Fatalf("streak=%d best=%d peace=%d, want 1/1/2", room.Streak, room.BestStreak, room.TotalPeaceDays)
	}
}

func TestStreakAcrossMonthBoundary(t *testing.T) {
	room := NewRoom("r")
	room = mustLog(t, room, "water", "me", "2024-02-28")
	room = mustLog(t, room, "water", "me", "2024-02-29")
	room = mustLog(t, room, "water", "me", "2024-03-01")
	if room.Streak != 3 {
		t.Fatalf("streak = %d, want 3", room.Streak)
	}
}

func TestDuplicateLogRejected(t *testing.T) {
	room := mustLog(t, NewRoom("r"), "water", "Me", "2024-01-01")
	before, err := json.Marshal(room)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, action := range []string{"water", "fight"} {
		got, err := Apply(room, Log{Action: action, By: "Me", Date: "2024-01-01"})
		if !errors.Is(err, ErrDuplicateLog) {
			t.Fatalf("second %s: expected ErrDuplicateLog, got %v", action, err)
		}
		if got.ID != "" {
			t.Fatalf("expected zero room on error, got %+v", got)
		}
	}
	after, err := json.Marshal(room)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("room mutated by rejected log:\n%s\n%s", before, after)
	}

	if _, err := Apply(room, Log{Action: "water", By: "partner", Date: "2024-01-01"}); err != nil {
		t.Fatalf("other member on the same day should succeed: %v", err)
	}
}

func TestLogValidation(t *testing.T) {
	room := NewRoom("r")
	tests := []struct {
		name  string
		cmd   Log
		field string
	}{
		{name: "missing action", cmd: Log{By: "me", Date: "2024-01-01"}, field: "action"},
		{name: "unknown action", cmd: Log{Action: "hug", By: "me", Date: "2024-01-01"}, field: "action"},
		{name: "missing date", cmd: Log{Action: "water", By: "me"}, field: "date"},
		{name: "malformed date", cmd: Log{Action: "water", By: "me", Date: "2024-1-1"}, field: "date"},
		{name: "impossible date", cmd: Log{Action: "water", By: "me", Date: "2024-02-30"}, field: "date"},
		{name: "missing member", cmd: Log{Action: "water", Date: "2024-01-01"}, field: "by"},
		{name: "unknown member", cmd: Log{Action: "water", By: "stranger", Date: "2024-01-01"}, field: "by"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(room, tc.cmd)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
	if len(room.History) != 0 {
		t.Fatalf("validation failures must not touch history")
	}
}

func TestApplyNilCommand(t *testing.T) {
	var verr *ValidationError
	if _, err := Apply(NewRoom("r"), nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for nil command, got %v", err)
	}
}

func TestResolveMemberByLabel(t *testing.T) {
	room, err := Apply(NewRoom("r"), Rename{Me: strPtr("Alice"), Partner: strPtr("Bo")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if m, err := ResolveMember(room, "alice"); err != nil || m != domain.MemberMe {
		t.Fatalf("ResolveMember(alice) = %q, %v", m, err)
	}
	if m, err := ResolveMember(room, "PARTNER"); err != nil || m != domain.MemberPartner {
		t.Fatalf("ResolveMember(PARTNER) = %q, %v", m, err)
	}

	same, _ := Apply(NewRoom("r"), Rename{Me: strPtr("Sam"), Partner: strPtr("sam")})
	if _, err := ResolveMember(same, "Sam"); err == nil {
		t.Fatalf("expected ambiguity error when both labels match")
	}
}

func TestRename(t *testing.T) {
	room := mustLog(t, NewRoom("r"), "water", "me", "2024-01-01")

	renamed, err := Apply(room, Rename{Me: strPtr("  Alice "), Partner: strPtr("   ")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Me != "Alice" || renamed.Partner != "Partner" {
		t.Fatalf("labels = %q/%q", renamed.Me, renamed.Partner)
	}
	if !reflect.DeepEqual(renamed.History, room.History) || renamed.Growth != room.Growth || renamed.Streak != room.Streak {
		t.Fatalf("rename must not touch history or derived fields")
	}

	withPartner, _ := Apply(renamed, Rename{Me: strPtr("Alice"), Partner: strPtr("Bo")})
	reset, _ := Apply(withPartner, Rename{Me: strPtr("Ann")})
	if reset.Me != "Ann" || reset.Partner != "Partner" {
		t.Fatalf("absent field should fall back to default, got %q/%q", reset.Me, reset.Partner)
	}
	cleared, _ := Apply(withPartner, Rename{})
	if cleared.Me != "Me" || cleared.Partner != "Partner" {
		t.Fatalf("empty rename should restore defaults, got %q/%q", cleared.Me, cleared.Partner)
	}

	long, _ := Apply(room, Rename{Me: strPtr(strings.Repeat("ä", MaxLabelRunes+6))})
	if n := len([]rune(long.Me)); n != MaxLabelRunes {
		t.Fatalf("label runes = %d, want %d", n, MaxLabelRunes)
	}
}

func TestBackDatedLogRejected(t *testing.T) {
	room := NewRoom("r")
	room = mustLog(t, room, "water", "me", "2024-01-05")

	got, err := Apply(room, Log{Action: "water", By: "me", Date: "2024-01-01"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "date" {
		t.Fatalf("expected date ValidationError, got %v", err)
	}
	if got.ID != "" || len(room.History) != 1 {
		t.Fatalf("back-dated log must not change the room")
	}

	same := mustLog(t, room, "fight", "partner", "2024-01-05")
	if len(same.History) != 2 || same.TotalFights != 1 {
		t.Fatalf("second member on the latest day should be accepted: %+v", same)
	}
	if _, err := Apply(same, Log{Action: "water", By: "me", Date: "2024-01-05"}); !errors.Is(err, ErrDuplicateLog) {
		t.Fatalf("repeat on the latest day should stay a duplicate, got %v", err)
	}
}

func TestBestStreakFromChronologicalHistory(t *testing.T) {
	room := NewRoom("r")
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-05"} {
		room = mustLog(t, room, "water", "me", date)
	}
	if room.BestStreak != 3 || room.Streak != 1 {
		t.Fatalf("best=%d streak=%d, want 3/1", room.BestStreak, room.Streak)
	}

	late := mustLog(t, NewRoom("r"), "water", "me", "2024-01-05")
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		if _, err := Apply(late, Log{Action: "water", By: "me", Date: date}); err == nil {
			t.Fatalf("log for %s after 2024-01-05 should be rejected", date)
		}
	}
}

func TestReplayDeterministic(t *testing.T) {
	room := NewRoom("r")
	room = mustLog(t, room, "water", "me", "2024-01-01")
	room = mustLog(t, room, "fight", "partner", "2024-01-02")
	room = mustLog(t, room, "water", "partner", "2024-01-03")

	stale := room
	stale.Growth, stale.Health, stale.Streak, stale.BestStreak = 99, 3, 7, 9
	first := Recompute(stale)
	second := Recompute(stale)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replay not deterministic")
	}
	if !reflect.DeepEqual(first, room) {
		t.Fatalf("replay ignored history: got %+v want %+v", first, room)
	}
}

func TestHealthCurve(t *testing.T) {
	room := NewRoom("r")
	room = mustLog(t, room, "water", "me", "2024-01-01")
	if room.Health <= 80 || room.Health >= 100 {
		t.Fatalf("health after water = %v, want in (80,100)", room.Health)
	}
	room = mustLog(t, room, "fight", "partner", "2024-01-01")
	if room.Health >= 80 {
		t.Fatalf("health after fight = %v, want below baseline", room.Health)
	}
	for i := 0; i < 10; i++ {
		room = mustLog(t, room, "fight", "me", time.Date(2024, 2, 1+i, 0, 0, 0, 0, time.UTC).Format(domain.DateLayout))
	}
	if room.Health != 0 {
		t.Fatalf("health after many fights = %v, want floor 0", room.Health)
	}
}

func TestInvariantsHoldForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	members := []string{"me", "partner"}

	for run := 0; run < 20; run++ {
		room := NewRoom("r")
		day := 0
		for step := 0; step < 80; step++ {
			action := "water"
			if rng.IntN(5) == 0 {
				action = "fight"
			}
			day += rng.IntN(3)
			date := start.AddDate(0, 0, day).Format(domain.DateLayout)
			next, err := Apply(room, Log{Action: action, By: members[rng.IntN(2)], Date: date})
			if errors.Is(err, ErrDuplicateLog) {
				continue
			}
			if err != nil {
				t.Fatalf("run %d step %d: %v", run, step, err)
			}
			if next.Growth < room.Growth {
				t.Fatalf("growth decreased: %v -> %v", room.Growth, next.Growth)
			}
			if next.BestStreak < room.BestStreak {
				t.Fatalf("bestStreak decreased: %d -> %d", room.BestStreak, next.BestStreak)
			}
			if next.BestStreak < next.Streak {
				t.Fatalf("bestStreak %d < streak %d", next.BestStreak, next.Streak)
			}
			if next.Health < 0 || next.Health > 100 {
				t.Fatalf("health out of range: %v", next.Health)
			}
			fights := 0
			for _, ev := range next.History {
				if ev.Action == domain.ActionFight {
					fights++
				}
			}
			if next.TotalFights != fights {
				t.Fatalf("totalFights = %d, want %d", next.TotalFights, fights)
			}
			for i := 1; i < len(next.History); i++ {
				if next.History[i].Date < next.History[i-1].Date {
					t.Fatalf("history not chronological at %d: %s after %s", i, next.History[i].Date, next.History[i-1].Date)
				}
			}
			if _, err := Apply(next, Log{Action: "water", By: "me", Date: start.AddDate(0, 0, day-1).Format(domain.DateLayout)}); err == nil && day > 0 {
				t.Fatalf("log before the latest day was accepted")
			}
			room = next
		}
	}
}
