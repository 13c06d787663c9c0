package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vitalstream/vitalstream/pkg/types"
)

func content(patient string, hr float64) types.Content {
	return types.Content{
		Timestamp: 1700000000,
		PatientID: patient,
		Vitals:    types.Vitals{types.HeartRate: hr},
		AIResult:  "Normal",
	}
}

func TestMemory_InsertAssignsSequentialIDs(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		id, err := st.Insert(ctx, content("p", 80), "h", 1)
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id != want {
			t.Errorf("Insert: got id %d, want %d", id, want)
		}
	}
}

func TestMemory_GetRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	id, _ := st.Insert(ctx, content("p1", 90), "abc", 1)

	r, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.PatientID != "p1" || r.Hash != "abc" || r.HashVersion != 1 {
		t.Errorf("Get: got %+v", r)
	}
	if r.Vitals[types.HeartRate] != 90 {
		t.Errorf("heart_rate: got %v, want 90", r.Vitals[types.HeartRate])
	}
}

func TestMemory_GetMissing(t *testing.T) {
	st := NewMemory()
	for _, id := range []int64{0, -1, 1, 42} {
		if _, err := st.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%d): got err %v, want ErrNotFound", id, err)
		}
	}
}

func TestMemory_InsertCopiesVitals(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	c := content("p", 80)
	id, _ := st.Insert(ctx, c, "h", 1)

	c.Vitals[types.HeartRate] = 200
	r, _ := st.Get(ctx, id)
	if r.Vitals[types.HeartRate] != 80 {
		t.Errorf("stored vitals mutated through caller map: got %v", r.Vitals[types.HeartRate])
	}

	r.Vitals[types.HeartRate] = 300
	again, _ := st.Get(ctx, id)
	if again.Vitals[types.HeartRate] != 80 {
		t.Errorf("stored vitals mutated through returned map: got %v", again.Vitals[types.HeartRate])
	}
}

func TestMemory_ListRecent_NewestFirst(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		st.Insert(ctx, content("p", float64(60+i)), "h", 1) //nolint:errcheck
	}

	got, err := st.ListRecent(ctx, 4)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("ListRecent: got %d records, want 4", len(got))
	}
	for i, want := range []int64{10, 9, 8, 7} {
		if got[i].ID != want {
			t.Errorf("ListRecent[%d].ID: got %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestMemory_ListRecent_DefaultAndCap(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	for i := 0; i < MaxListLimit+20; i++ {
		st.Insert(ctx, content("p", 70), "h", 1) //nolint:errcheck
	}

	for _, limit := range []int{0, -5, 1000} {
		got, _ := st.ListRecent(ctx, limit)
		if len(got) != MaxListLimit {
			t.Errorf("ListRecent(%d): got %d, want %d", limit, len(got), MaxListLimit)
		}
		if got[0].ID != MaxListLimit+20 {
			t.Errorf("ListRecent(%d)[0].ID: got %d, want %d", limit, got[0].ID, MaxListLimit+20)
		}
	}
}

func TestMemory_ListRecent_Empty(t *testing.T) {
	got, err := NewMemory().ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListRecent on empty store: got %d", len(got))
	}
}

func TestMemory_CancelledContext_NoIDConsumed(t *testing.T) {
	st := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Insert(ctx, content("p", 80), "h", 1); err == nil {
		t.Fatal("Insert with cancelled ctx: expected error")
	}

	id, err := st.Insert(context.Background(), content("p", 80), "h", 1)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 1 {
		t.Errorf("id after failed insert: got %d, want 1", id)
	}
}

func TestMemory_ConcurrentInserts_DenseUniqueIDs(t *testing.T) {
	st := NewMemory()
	const n = 200
	ids := make(chan int64, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := st.Insert(context.Background(), content("p", 80), "h", 1)
			if err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	for id := int64(1); id <= n; id++ {
		if !seen[id] {
			t.Errorf("missing id %d", id)
		}
	}
	if c, _ := st.Count(context.Background()); c != n {
		t.Errorf("Count: got %d, want %d", c, n)
	}
}

func TestMemory_ConcurrentMixedOps(t *testing.T) {
	st := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Insert(context.Background(), content("p", 80), "h", 1) //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			st.ListRecent(context.Background(), 10) //nolint:errcheck
		}()
	}
	wg.Wait()
}
