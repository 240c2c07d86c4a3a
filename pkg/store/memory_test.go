package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetGetDel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, found, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || got != "v" {
		t.Fatalf("Get() = (%q, %v), want (\"v\", true)", got, found)
	}

	if err := m.Del(ctx, "k"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatalf("Get() after Del found = true, want false")
	}
}

func TestMemoryStore_GetMissingKey(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()

	got, found, err := m.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found || got != "" {
		t.Fatalf("Get() = (%q, %v), want (\"\", false)", got, found)
	}
}

func TestMemoryStore_ValueTTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	now := time.Unix(1_700_000_000, 0)
	m.SetClock(func() time.Time { return now })

	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, found, _ := m.Get(ctx, "k"); !found {
		t.Fatalf("Get() before expiry found = false, want true")
	}

	now = now.Add(time.Minute)
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatalf("Get() after expiry found = true, want false")
	}
}

func TestMemoryStore_ListPushOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	for _, v := range []string{"a", "b", "c"} {
		if err := m.ListPush(ctx, "l", v, 0); err != nil {
			t.Fatalf("ListPush(%q) error = %v", v, err)
		}
	}

	got, err := m.ListRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("ListRange() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListRange()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMemoryStore_ListTrim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	for _, v := range []string{"a", "b", "c", "d", "e"} {
		if err := m.ListPush(ctx, "l", v, 0); err != nil {
			t.Fatalf("ListPush(%q) error = %v", v, err)
		}
	}
	if err := m.ListTrim(ctx, "l", 0, 2); err != nil {
		t.Fatalf("ListTrim() error = %v", err)
	}

	got, err := m.ListRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len after trim = %d, want 3", len(got))
	}
	if got[0] != "e" || got[2] != "c" {
		t.Fatalf("trimmed list = %v, want [e d c]", got)
	}
}

func TestMemoryStore_ListRangeNegativeIndices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	for _, v := range []string{"a", "b", "c"} {
		if err := m.ListPush(ctx, "l", v, 0); err != nil {
			t.Fatalf("ListPush(%q) error = %v", v, err)
		}
	}

	got, err := m.ListRange(ctx, "l", -2, -1)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("ListRange(-2, -1) = %v, want [b a]", got)
	}
}

func TestMemoryStore_ListTTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	now := time.Unix(1_700_000_000, 0)
	m.SetClock(func() time.Time { return now })

	if err := m.ListPush(ctx, "l", "a", time.Minute); err != nil {
		t.Fatalf("ListPush() error = %v", err)
	}
	now = now.Add(2 * time.Minute)

	got, err := m.ListRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListRange() after expiry = %v, want empty", got)
	}
}

func TestMemoryStore_DelRemovesLists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	if err := m.ListPush(ctx, "l", "a", 0); err != nil {
		t.Fatalf("ListPush() error = %v", err)
	}
	if err := m.Del(ctx, "l"); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	got, err := m.ListRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("ListRange() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListRange() after Del = %v, want empty", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStore()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := SetJSON(ctx, m, "k", payload{Name: "x", Count: 3}, 0); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	got, found, err := GetJSON[payload](ctx, m, "k")
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !found {
		t.Fatalf("GetJSON() found = false, want true")
	}
	if got.Name != "x" || got.Count != 3 {
		t.Fatalf("GetJSON() = %+v, want {x 3}", got)
	}
}

func TestGetJSON_MissingKey(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()

	got, found, err := GetJSON[struct{}](context.Background(), m, "absent")
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if found || got != nil {
		t.Fatalf("GetJSON() = (%v, %v), want (nil, false)", got, found)
	}
}
