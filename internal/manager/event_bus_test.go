package manager

import (
	"testing"
	"time"
)

func TestEventPublisher_EnsureAndUnload_EmitsEvents(t *testing.T) {
	m := newManager(t, ManagerConfig{
		Registry:     dummyModels(t, 16, "m"),
		DefaultModel: "m",
		DrainTimeout: 50 * time.Millisecond,
	})
	pub := NewMemoryPublisher()
	m.SetEventPublisher(pub)
	if err := m.EnsureModel(testCtx(t), "m"); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if err := m.Unload("m"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	want := []string{"ensure_start", "ensure_ready", "unload_start", "unload_done"}
	got := pub.Names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	for _, e := range pub.Events() {
		if e.ModelID != "m" || e.Fields == nil {
			t.Fatalf("malformed event: %+v", e)
		}
	}
}

func TestSetEventPublisher_NilRestoresNoop(t *testing.T) {
	m := newManager(t, ManagerConfig{Registry: dummyModels(t, 16, "m")})
	m.SetEventPublisher(nil)
	if err := m.EnsureModel(testCtx(t), "m"); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
}
