package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/edward/tracksync/internal/schema"
)

// ReplaceState atomically replaces every entity the client owns with the
// contents of doc and records clockMs as the client's new logical clock.
//
// The document must already be sanitized (schema.Sanitize); this method does
// no per-record validation of its own. Delete-all, re-insert-all and the
// clock advance execute in a single transaction, so a concurrent reader
// never observes a half-replaced entity set or an advanced clock without its
// entities.
func (s *Store) ReplaceState(ctx context.Context, clientID string, doc *schema.Document, clockMs int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Entries go first so the habit foreign key never dangles mid-delete.
	deletes := []string{
		`DELETE FROM habit_entries WHERE client_id = ?`,
		`DELETE FROM habits WHERE client_id = ?`,
		`DELETE FROM todos WHERE client_id = ?`,
		`DELETE FROM expenses WHERE client_id = ?`,
		`DELETE FROM wishlist WHERE client_id = ?`,
	}
	for _, q := range deletes {
		if _, err := tx.ExecContext(ctx, q, clientID); err != nil {
			return fmt.Errorf("failed to clear previous state: %w", err)
		}
	}

	if len(doc.Habits) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO habits (client_id, id, name, position, created_at_ms) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare habit insert: %w", err)
		}
		for i, h := range doc.Habits {
			if _, err := stmt.ExecContext(ctx, clientID, h.ID, h.Name, i, clockMs); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert habit %s: %w", h.ID, err)
			}
		}
		stmt.Close()
	}

	if len(doc.Entries) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO habit_entries (client_id, habit_id, date_iso, value, created_at_ms) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare entry insert: %w", err)
		}
		for key, val := range doc.Entries {
			habitID, dateISO, ok := splitEntryKey(key)
			if !ok {
				continue
			}
			if _, err := stmt.ExecContext(ctx, clientID, habitID, dateISO, val, clockMs); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert entry %s: %w", key, err)
			}
		}
		stmt.Close()
	}

	if len(doc.Todos) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO todos (client_id, id, date_iso, text, priority, done, position, created_at_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare todo insert: %w", err)
		}
		for i, t := range doc.Todos {
			if _, err := stmt.ExecContext(ctx, clientID, t.ID, t.DateISO, t.Text, t.Priority,
				boolToInt(t.Done), i, t.CreatedAt); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert todo %s: %w", t.ID, err)
			}
		}
		stmt.Close()
	}

	if len(doc.Expenses) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO expenses (client_id, id, date_iso, amount, what, category, score, period, position, created_at_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare expense insert: %w", err)
		}
		for i, e := range doc.Expenses {
			if _, err := stmt.ExecContext(ctx, clientID, e.ID, e.DateISO, e.Amount, e.What,
				e.Category, e.Score, e.Period, i, e.CreatedAt); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert expense %s: %w", e.ID, err)
			}
		}
		stmt.Close()
	}

	if len(doc.Wishlist) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO wishlist (client_id, id, name, price, position, created_at_ms) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare wishlist insert: %w", err)
		}
		for i, w := range doc.Wishlist {
			var price any
			if w.Price != nil {
				price = *w.Price
			}
			if _, err := stmt.ExecContext(ctx, clientID, w.ID, w.Name, price, i, w.CreatedAt); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert wishlist item %s: %w", w.ID, err)
			}
		}
		stmt.Close()
	}

	// Omitting the pomodoro section means the timer state is gone, not
	// unchanged.
	if doc.Pomodoro != nil {
		p := doc.Pomodoro
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pomodoro (client_id, mode, focus_min, break_min, long_min,
				rem_focus_sec, rem_break_sec, rem_long_sec, remaining_sec,
				is_running, last_tick_ms, session)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(client_id) DO UPDATE SET
				mode = excluded.mode,
				focus_min = excluded.focus_min,
				break_min = excluded.break_min,
				long_min = excluded.long_min,
				rem_focus_sec = excluded.rem_focus_sec,
				rem_break_sec = excluded.rem_break_sec,
				rem_long_sec = excluded.rem_long_sec,
				remaining_sec = excluded.remaining_sec,
				is_running = excluded.is_running,
				last_tick_ms = excluded.last_tick_ms,
				session = excluded.session`,
			clientID, p.Mode, p.DurationsMin.Focus, p.DurationsMin.Break, p.DurationsMin.Long,
			p.RemainingByMode.Focus, p.RemainingByMode.Break, p.RemainingByMode.Long,
			p.RemainingSec, boolToInt(p.IsRunning), p.LastTick, p.Session); err != nil {
			return fmt.Errorf("failed to upsert pomodoro state: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pomodoro WHERE client_id = ?`, clientID); err != nil {
			return fmt.Errorf("failed to clear pomodoro state: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ui_prefs (client_id, selected_date, view_month, view_year,
			chart_mode, wish_sort_mode, exp_filter_category)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			selected_date = excluded.selected_date,
			view_month = excluded.view_month,
			view_year = excluded.view_year,
			chart_mode = excluded.chart_mode,
			wish_sort_mode = excluded.wish_sort_mode,
			exp_filter_category = excluded.exp_filter_category`,
		clientID, doc.SelectedDate, doc.ViewMonth, doc.ViewYear,
		doc.ChartMode, doc.WishSortMode, doc.ExpFilterCategory); err != nil {
		return fmt.Errorf("failed to upsert ui prefs: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE state_meta SET updated_at_ms = ? WHERE client_id = ?`, clockMs, clientID); err != nil {
		return fmt.Errorf("failed to advance clock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state replacement: %w", err)
	}

	return nil
}

func splitEntryKey(key string) (habitID, dateISO string, ok bool) {
	return strings.Cut(key, "|")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
