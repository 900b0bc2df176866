package engine

import (
	"fmt"
	"strings"
	"time"

	"plantroom/pkg/domain"
)

// ParseAction normalizes a wire action.
func ParseAction(input string) (domain.Action, error) {
	a := domain.Action(strings.ToLower(strings.TrimSpace(input)))
	switch a {
	case domain.ActionWater, domain.ActionFight:
		return a, nil
	case "":
		return "", invalid("action", "required")
	default:
		return "", invalid("action", fmt.Sprintf("unknown action %q", input))
	}
}

// ParseDate checks that input is a calendar day in YYYY-MM-DD form.
func ParseDate(input string) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, invalid("date", "required")
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil || t.Format(domain.DateLayout) != s {
		return time.Time{}, invalid("date", fmt.Sprintf("%q is not a YYYY-MM-DD day", input))
	}
	return t, nil
}

// ResolveMember maps a wire "by" value onto a member slot. Slot keys match
// case-insensitively ("Me" is the client default); otherwise the value must
// match exactly one of the room's current display labels.
func ResolveMember(room domain.Room, by string) (domain.Member, error) {
	s := strings.TrimSpace(by)
	if s == "" {
		return "", invalid("by", "required")
	}
	switch m := domain.Member(strings.ToLower(s)); m {
	case domain.MemberMe, domain.MemberPartner:
		return m, nil
	}
	me := strings.EqualFold(s, strings.TrimSpace(room.Me))
	partner := strings.EqualFold(s, strings.TrimSpace(room.Partner))
	switch {
	case me && partner:
		return "", invalid("by", fmt.Sprintf("%q matches both members", by))
	case me:
		return domain.MemberMe, nil
	case partner:
		return domain.MemberPartner, nil
	default:
		return "", invalid("by", fmt.Sprintf("unknown member %q", by))
	}
}
