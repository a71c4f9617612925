package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/edward/tracksync/internal/schema"
)

func benchDocument(habits int) *schema.Document {
	doc := &schema.Document{
		Habits:    make([]schema.Habit, 0, habits),
		Entries:   make(map[string]int, habits),
		Todos:     []schema.Todo{},
		Expenses:  []schema.Expense{},
		Wishlist:  []schema.WishlistItem{},
		ChartMode: schema.ChartWeek,
	}
	for i := 0; i < habits; i++ {
		id := fmt.Sprintf("h%d", i)
		doc.Habits = append(doc.Habits, schema.Habit{ID: id, Name: fmt.Sprintf("Habit %d", i)})
		doc.Entries[schema.EntryKey(id, "2024-03-15")] = 1
	}
	return doc
}

func BenchmarkReplaceState(b *testing.B) {
	st, err := Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.InitSchema(ctx); err != nil {
		b.Fatalf("failed to initialize schema: %v", err)
	}
	if err := st.EnsureClient(ctx, "bench"); err != nil {
		b.Fatalf("failed to ensure client: %v", err)
	}

	doc := benchDocument(50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := st.ReplaceState(ctx, "bench", doc, int64(i+1)); err != nil {
			b.Fatalf("replace failed: %v", err)
		}
	}
}

func BenchmarkLoadState(b *testing.B) {
	st, err := Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.InitSchema(ctx); err != nil {
		b.Fatalf("failed to initialize schema: %v", err)
	}
	if err := st.EnsureClient(ctx, "bench"); err != nil {
		b.Fatalf("failed to ensure client: %v", err)
	}
	if err := st.ReplaceState(ctx, "bench", benchDocument(50), 1000); err != nil {
		b.Fatalf("seed failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := st.LoadState(ctx, "bench", 1000); err != nil {
			b.Fatalf("load failed: %v", err)
		}
	}
}
