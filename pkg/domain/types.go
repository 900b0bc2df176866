package domain

// Action is what a member logged for a day.
type Action string

const (
	ActionWater Action = "water"
	ActionFight Action = "fight"
)

// Member is one of the two fixed role slots of a room.
type Member string

const (
	MemberMe      Member = "me"
	MemberPartner Member = "partner"
)

const (
	DefaultMeLabel      = "Me"
	DefaultPartnerLabel = "Partner"
	// BaselineHealth is the health of a room with no history.
	BaselineHealth = 80.0
	// DateLayout is the calendar day format used in history.
	DateLayout = "2006-01-02"
)

// LogEvent is one dated, member-attributed action.
type LogEvent struct {
	Date   string `json:"date"`
	By     Member `json:"by"`
	Action Action `json:"action"`
}

// Room is the shared document of a couple. The numeric fields are derived
// from History and are only ever written by the engine.
type Room struct {
	ID             string     `json:"id"`
	Me             string     `json:"me"`
	Partner        string     `json:"partner"`
	Growth         float64    `json:"growth"`
	Health         float64    `json:"health"`
	Streak         int        `json:"streak"`
	BestStreak     int        `json:"bestStreak"`
	TotalPeaceDays int        `json:"totalPeaceDays"`
	TotalFights    int        `json:"totalFights"`
	History        []LogEvent `json:"history"`
}

// Clone returns a copy that shares no backing storage with r.
func (r Room) Clone() Room {
	out := r
	out.History = make([]LogEvent, len(r.History))
	copy(out.History, r.History)
	return out
}
