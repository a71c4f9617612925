// Package schema provides the typed data model for the full-state document
// exchanged between tracker clients and the sync service.
//
// A Document is the complete snapshot of one client's tracker state: habits,
// habit entries, todos, expenses, wishlist items, the pomodoro timer and view
// preferences. Clients always exchange whole documents; there is no partial
// update. The package also implements the sanitation layer that turns an
// untyped incoming document into validated records, silently dropping records
// that fail their per-entity rules.
package schema

import "time"

// Habit display modes, priorities and periods accepted on the wire.
// Anything else falls back to the documented default during sanitation.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"

	PeriodOnce    = "once"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"

	ModeFocus = "focus"
	ModeBreak = "break"
	ModeLong  = "long"

	ChartWeek  = "week"
	ChartMonth = "month"
)

// Pomodoro timer defaults, filled in for missing sub-fields.
const (
	DefaultFocusMin = 25
	DefaultBreakMin = 5
	DefaultLongMin  = 15
)

// DefaultWishSortMode is the wishlist ordering used when a client has no
// stored preference.
const DefaultWishSortMode = "date-desc"

// DateISOFormat is the strict calendar-date layout used everywhere on the
// wire and in storage.
const DateISOFormat = "2006-01-02"

// Meta identifies the client and clock a reconstructed document belongs to.
type Meta struct {
	ClientID    string `json:"clientId"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// Habit is a tracked habit. Entries reference it by ID.
type Habit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EntryKey builds the wire key for a habit entry: "<habitID>|<YYYY-MM-DD>".
func EntryKey(habitID, dateISO string) string {
	return habitID + "|" + dateISO
}

// Todo is a dated task. Done days are never removed automatically; the
// client decides retention.
type Todo struct {
	ID        string `json:"id"`
	DateISO   string `json:"dateISO"`
	Text      string `json:"text"`
	Priority  string `json:"priority"`
	Done      bool   `json:"done"`
	CreatedAt int64  `json:"createdAt"`
}

// Expense is a dated spending record.
type Expense struct {
	ID        string  `json:"id"`
	DateISO   string  `json:"dateISO"`
	Amount    float64 `json:"amount"`
	What      string  `json:"what"`
	Category  string  `json:"category"`
	Score     string  `json:"score"`
	Period    string  `json:"period"`
	CreatedAt int64   `json:"createdAt"`
}

// WishlistItem is a wanted item. Price is nil when the client left the
// field blank; a blank price is distinct from a price of zero.
type WishlistItem struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     *float64 `json:"price"`
	CreatedAt int64    `json:"createdAt"`
}

// ModeMinutes holds the configured duration, in minutes, for each pomodoro
// mode.
type ModeMinutes struct {
	Focus int `json:"focus"`
	Break int `json:"break"`
	Long  int `json:"long"`
}

// ModeSeconds holds the remaining time, in seconds, for each pomodoro mode.
type ModeSeconds struct {
	Focus int `json:"focus"`
	Break int `json:"break"`
	Long  int `json:"long"`
}

// Pomodoro is the persisted timer state. The live countdown happens on the
// client; the service only stores the last snapshot it was handed.
type Pomodoro struct {
	Mode            string      `json:"mode"`
	DurationsMin    ModeMinutes `json:"durationsMin"`
	RemainingByMode ModeSeconds `json:"remainingByMode"`
	RemainingSec    int         `json:"remainingSec"`
	IsRunning       bool        `json:"isRunning"`
	LastTick        int64       `json:"lastTick"`
	Session         int         `json:"session"`
}

// Document is the full tracker snapshot for one client.
//
// List-shaped sections preserve the order the client sent them in. Entries
// is an unordered mapping from EntryKey to +1 (done) or -1 (failed); a
// neutral day is the absence of a key, never a zero value.
type Document struct {
	Meta *Meta `json:"_meta,omitempty"`

	Habits   []Habit        `json:"habits"`
	Entries  map[string]int `json:"entries"`
	Todos    []Todo         `json:"todos"`
	Expenses []Expense      `json:"expenses"`
	Wishlist []WishlistItem `json:"wishlist"`
	Pomodoro *Pomodoro      `json:"pomodoro"`

	SelectedDate      string `json:"selectedDate"`
	ViewMonth         int    `json:"viewMonth"`
	ViewYear          int    `json:"viewYear"`
	ChartMode         string `json:"chartMode"`
	WishSortMode      string `json:"wishSortMode"`
	ExpFilterCategory string `json:"expFilterCategory"`
}

// ValidDateISO reports whether s is a real calendar date in strict
// YYYY-MM-DD form.
func ValidDateISO(s string) bool {
	if len(s) != 10 {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			if r != '-' {
				return false
			}
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	_, err := time.Parse(DateISOFormat, s)
	return err == nil
}
