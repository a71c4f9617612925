package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edward/tracksync/internal/schema"
)

// LoadState reconstructs the full-state document for a client from its
// normalized rows, paired with the given clock in the document's _meta.
//
// Habits, todos, expenses and wishlist items come back in original insertion
// order; habit entries come back as an unordered key-to-value mapping. View
// preferences fall back to today's date, the current month/year and the
// week chart when the client has never stored any.
func (s *Store) LoadState(ctx context.Context, clientID string, clockMs int64) (*schema.Document, error) {
	doc := &schema.Document{
		Meta: &schema.Meta{
			ClientID:    clientID,
			UpdatedAtMs: clockMs,
		},
		Habits:   []schema.Habit{},
		Entries:  map[string]int{},
		Todos:    []schema.Todo{},
		Expenses: []schema.Expense{},
		Wishlist: []schema.WishlistItem{},
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name FROM habits WHERE client_id = ? ORDER BY position ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	for rows.Next() {
		var h schema.Habit
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		doc.Habits = append(doc.Habits, h)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT habit_id, date_iso, value FROM habit_entries WHERE client_id = ?`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habit entries: %w", err)
	}
	for rows.Next() {
		var habitID, dateISO string
		var value int
		if err := rows.Scan(&habitID, &dateISO, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan habit entry: %w", err)
		}
		doc.Entries[schema.EntryKey(habitID, dateISO)] = value
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating habit entries: %w", err)
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT id, date_iso, text, priority, done, created_at_ms
		 FROM todos WHERE client_id = ? ORDER BY position ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	for rows.Next() {
		var t schema.Todo
		var done int
		if err := rows.Scan(&t.ID, &t.DateISO, &t.Text, &t.Priority, &done, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		t.Done = done != 0
		doc.Todos = append(doc.Todos, t)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT id, date_iso, amount, what, category, score, period, created_at_ms
		 FROM expenses WHERE client_id = ? ORDER BY position ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	for rows.Next() {
		var e schema.Expense
		if err := rows.Scan(&e.ID, &e.DateISO, &e.Amount, &e.What, &e.Category,
			&e.Score, &e.Period, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		doc.Expenses = append(doc.Expenses, e)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT id, name, price, created_at_ms
		 FROM wishlist WHERE client_id = ? ORDER BY position ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist: %w", err)
	}
	for rows.Next() {
		var w schema.WishlistItem
		var price sql.NullFloat64
		if err := rows.Scan(&w.ID, &w.Name, &price, &w.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		if price.Valid {
			p := price.Float64
			w.Price = &p
		}
		doc.Wishlist = append(doc.Wishlist, w)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("error iterating wishlist: %w", err)
	}

	var p schema.Pomodoro
	var running int
	err = s.conn.QueryRowContext(ctx,
		`SELECT mode, focus_min, break_min, long_min, rem_focus_sec, rem_break_sec,
		        rem_long_sec, remaining_sec, is_running, last_tick_ms, session
		 FROM pomodoro WHERE client_id = ?`, clientID).
		Scan(&p.Mode, &p.DurationsMin.Focus, &p.DurationsMin.Break, &p.DurationsMin.Long,
			&p.RemainingByMode.Focus, &p.RemainingByMode.Break, &p.RemainingByMode.Long,
			&p.RemainingSec, &running, &p.LastTick, &p.Session)
	switch {
	case err == sql.ErrNoRows:
		// No timer state is a valid state.
	case err != nil:
		return nil, fmt.Errorf("failed to query pomodoro state: %w", err)
	default:
		p.IsRunning = running != 0
		doc.Pomodoro = &p
	}

	now := time.Now()
	doc.SelectedDate = now.Format(schema.DateISOFormat)
	doc.ViewMonth = int(now.Month()) - 1
	doc.ViewYear = now.Year()
	doc.ChartMode = schema.ChartWeek
	doc.WishSortMode = schema.DefaultWishSortMode
	doc.ExpFilterCategory = ""

	var selectedDate sql.NullString
	var viewMonth, viewYear sql.NullInt64
	var chartMode, wishSort, expFilter string
	err = s.conn.QueryRowContext(ctx,
		`SELECT selected_date, view_month, view_year, chart_mode, wish_sort_mode, exp_filter_category
		 FROM ui_prefs WHERE client_id = ?`, clientID).
		Scan(&selectedDate, &viewMonth, &viewYear, &chartMode, &wishSort, &expFilter)
	switch {
	case err == sql.ErrNoRows:
		// Defaults stand.
	case err != nil:
		return nil, fmt.Errorf("failed to query ui prefs: %w", err)
	default:
		if selectedDate.Valid && selectedDate.String != "" {
			doc.SelectedDate = selectedDate.String
		}
		if viewMonth.Valid {
			doc.ViewMonth = int(viewMonth.Int64)
		}
		if viewYear.Valid {
			doc.ViewYear = int(viewYear.Int64)
		}
		doc.ChartMode = chartMode
		doc.WishSortMode = wishSort
		doc.ExpFilterCategory = expFilter
	}

	return doc, nil
}

// closeRows closes rows and folds the iteration error into one check.
func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
