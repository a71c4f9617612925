package schema

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// SanitizeOptions configures a Sanitize pass.
type SanitizeOptions struct {
	// Now is the reference wall clock for view-preference defaults
	// (selected date, viewed month/year).
	Now time.Time

	// ClockMs is the logical clock of the write. Records that carry no
	// createdAt of their own are stamped with it.
	ClockMs int64
}

// Sanitize converts an untyped full-state document into a validated Document.
//
// Each top-level section is coerced independently: a missing or wrong-shaped
// section becomes empty (or the default), never an error. Individual records
// that fail their validation rules are dropped; the rest of the document
// survives. The result is always non-nil with non-nil list sections, so a
// sanitized document round-trips through storage unchanged.
func Sanitize(raw map[string]any, opts SanitizeOptions) *Document {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	doc := &Document{
		Habits:   []Habit{},
		Entries:  map[string]int{},
		Todos:    []Todo{},
		Expenses: []Expense{},
		Wishlist: []WishlistItem{},
	}

	doc.Habits = sanitizeHabits(rawList(raw, "habits"))

	habitIDs := make(map[string]bool, len(doc.Habits))
	for _, h := range doc.Habits {
		habitIDs[h.ID] = true
	}
	doc.Entries = sanitizeEntries(rawMap(raw, "entries"), habitIDs)

	doc.Todos = sanitizeTodos(rawList(raw, "todos"), opts.ClockMs)
	doc.Expenses = sanitizeExpenses(rawList(raw, "expenses"), opts.ClockMs)
	doc.Wishlist = sanitizeWishlist(rawList(raw, "wishlist"), opts.ClockMs)

	if p := rawMap(raw, "pomodoro"); p != nil {
		doc.Pomodoro = sanitizePomodoro(p)
	}

	doc.SelectedDate = asString(raw["selectedDate"])
	if !ValidDateISO(doc.SelectedDate) {
		doc.SelectedDate = opts.Now.Format(DateISOFormat)
	}
	if v, ok := raw["viewMonth"]; ok {
		doc.ViewMonth = int(asInt64(v))
	} else {
		doc.ViewMonth = int(opts.Now.Month()) - 1 // zero-based, matching the client calendar
	}
	if v, ok := raw["viewYear"]; ok {
		doc.ViewYear = int(asInt64(v))
	} else {
		doc.ViewYear = opts.Now.Year()
	}
	if asString(raw["chartMode"]) == ChartMonth {
		doc.ChartMode = ChartMonth
	} else {
		doc.ChartMode = ChartWeek
	}
	if v, ok := raw["wishSortMode"]; ok {
		doc.WishSortMode = asString(v)
	} else {
		doc.WishSortMode = DefaultWishSortMode
	}
	doc.ExpFilterCategory = asString(raw["expFilterCategory"])

	return doc
}

func sanitizeHabits(items []any) []Habit {
	habits := []Habit{}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		h := Habit{
			ID:   asString(m["id"]),
			Name: strings.TrimSpace(asString(m["name"])),
		}
		if h.ID == "" || h.Name == "" {
			continue
		}
		habits = append(habits, h)
	}
	return habits
}

// sanitizeEntries keeps only entries keyed "<habitID>|<date>" whose habit
// exists in the same document, whose date is a real calendar date, and whose
// value coerces to exactly +1 or -1. A zero (neutral) value is dropped, so
// neutral days are represented purely by absence.
func sanitizeEntries(raw map[string]any, habitIDs map[string]bool) map[string]int {
	entries := map[string]int{}
	for k, v := range raw {
		habitID, dateISO, ok := strings.Cut(k, "|")
		if !ok || habitID == "" || !ValidDateISO(dateISO) {
			continue
		}
		if !habitIDs[habitID] {
			continue
		}
		val := int(asInt64(v))
		if val != 1 && val != -1 {
			continue
		}
		entries[EntryKey(habitID, dateISO)] = val
	}
	return entries
}

func sanitizeTodos(items []any, clockMs int64) []Todo {
	todos := []Todo{}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t := Todo{
			ID:        asString(m["id"]),
			DateISO:   asString(m["dateISO"]),
			Text:      strings.TrimSpace(asString(m["text"])),
			Priority:  asString(m["priority"]),
			Done:      asBool(m["done"]),
			CreatedAt: clockMs,
		}
		if v, ok := m["createdAt"]; ok {
			t.CreatedAt = asInt64(v)
		}
		if t.ID == "" || t.Text == "" || !ValidDateISO(t.DateISO) {
			continue
		}
		switch t.Priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			t.Priority = PriorityMedium
		}
		todos = append(todos, t)
	}
	return todos
}

func sanitizeExpenses(items []any, clockMs int64) []Expense {
	expenses := []Expense{}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := Expense{
			ID:        asString(m["id"]),
			DateISO:   asString(m["dateISO"]),
			Amount:    asFloat(m["amount"]),
			What:      strings.TrimSpace(asString(m["what"])),
			Category:  asString(m["category"]),
			Score:     asString(m["score"]),
			Period:    asString(m["period"]),
			CreatedAt: clockMs,
		}
		if v, ok := m["createdAt"]; ok {
			e.CreatedAt = asInt64(v)
		}
		if e.ID == "" || e.What == "" || !ValidDateISO(e.DateISO) {
			continue
		}
		if e.Amount < 0 {
			e.Amount = 0
		}
		switch e.Period {
		case PeriodOnce, PeriodWeekly, PeriodMonthly, PeriodYearly:
		default:
			e.Period = PeriodOnce
		}
		expenses = append(expenses, e)
	}
	return expenses
}

func sanitizeWishlist(items []any, clockMs int64) []WishlistItem {
	wishlist := []WishlistItem{}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		w := WishlistItem{
			ID:        asString(m["id"]),
			Name:      strings.TrimSpace(asString(m["name"])),
			CreatedAt: clockMs,
		}
		if v, ok := m["createdAt"]; ok {
			w.CreatedAt = asInt64(v)
		}
		if w.ID == "" || w.Name == "" {
			continue
		}
		// Blank price stays null; it is not a price of zero.
		if v, ok := m["price"]; ok && v != nil && v != "" {
			p := asFloat(v)
			if p < 0 {
				p = 0
			}
			w.Price = &p
		}
		wishlist = append(wishlist, w)
	}
	return wishlist
}

func sanitizePomodoro(m map[string]any) *Pomodoro {
	p := &Pomodoro{
		Mode: asString(m["mode"]),
		DurationsMin: ModeMinutes{
			Focus: DefaultFocusMin,
			Break: DefaultBreakMin,
			Long:  DefaultLongMin,
		},
	}
	switch p.Mode {
	case ModeFocus, ModeBreak, ModeLong:
	default:
		p.Mode = ModeFocus
	}

	if dur := rawMap(m, "durationsMin"); dur != nil {
		if v, ok := dur["focus"]; ok {
			p.DurationsMin.Focus = int(asInt64(v))
		}
		if v, ok := dur["break"]; ok {
			p.DurationsMin.Break = int(asInt64(v))
		}
		if v, ok := dur["long"]; ok {
			p.DurationsMin.Long = int(asInt64(v))
		}
	}

	p.RemainingByMode = ModeSeconds{
		Focus: p.DurationsMin.Focus * 60,
		Break: p.DurationsMin.Break * 60,
		Long:  p.DurationsMin.Long * 60,
	}
	if rem := rawMap(m, "remainingByMode"); rem != nil {
		if v, ok := rem["focus"]; ok {
			p.RemainingByMode.Focus = int(asInt64(v))
		}
		if v, ok := rem["break"]; ok {
			p.RemainingByMode.Break = int(asInt64(v))
		}
		if v, ok := rem["long"]; ok {
			p.RemainingByMode.Long = int(asInt64(v))
		}
	}

	p.RemainingSec = p.RemainingByMode.Focus
	if v, ok := m["remainingSec"]; ok {
		p.RemainingSec = int(asInt64(v))
	}
	p.IsRunning = asBool(m["isRunning"])
	p.LastTick = asInt64(m["lastTick"])
	p.Session = int(asInt64(m["session"]))

	return p
}

// rawList extracts a list-shaped section, returning nil when the section is
// missing or not a list.
func rawList(raw map[string]any, key string) []any {
	v, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	return v
}

// rawMap extracts an object-shaped section, returning nil when the section
// is missing or not an object.
func rawMap(raw map[string]any, key string) map[string]any {
	v, ok := raw[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

// Loose scalar coercions. Incoming documents come from loosely typed
// clients, so numbers may arrive as strings and flags as numbers; coercion
// is total and never errors.

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return ""
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	f := asFloat(v)
	if math.IsNaN(f) {
		return 0
	}
	// Conversion of an out-of-range float is implementation-defined, so
	// clamp before converting.
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != "" && x != "0"
	default:
		return false
	}
}
