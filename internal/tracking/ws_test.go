package tracking

import (
	"testing"

	"go.uber.org/zap"
)

func TestRemoveConnLeavesSnapshotsIntact(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	c1, c2, c3 := &safeConn{}, &safeConn{}, &safeConn{}
	h.conns["v1"] = []*safeConn{c1, c2, c3}

	// a broadcaster's view taken before the removal
	snapshot := h.conns["v1"]

	h.removeConn("v1", c2)

	if len(snapshot) != 3 || snapshot[0] != c1 || snapshot[1] != c2 || snapshot[2] != c3 {
		t.Fatal("removal mutated a previously taken slice snapshot")
	}
	got := h.conns["v1"]
	if len(got) != 2 || got[0] != c1 || got[1] != c3 {
		t.Fatalf("unexpected connection set after removal: %d conns", len(got))
	}
}

func TestRemoveLastConnDropsVehicleKey(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	c := &safeConn{}
	h.conns["v1"] = []*safeConn{c}

	h.removeConn("v1", c)

	if _, ok := h.conns["v1"]; ok {
		t.Fatal("empty vehicle entry not deleted")
	}
}
