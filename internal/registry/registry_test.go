package registry

import (
	"reflect"
	"testing"

	"horde-monitor/internal/horde"
)

func TestCancelThenReplaceDoesNotMerge(t *testing.T) {
	r := New()
	r.ReplaceAll([]string{"a", "b"}, nil)

	if !r.Cancel("a", horde.GenerationImage) {
		t.Fatal("a should have been tracked")
	}
	if got := r.Snapshot().Image; !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("after cancel image = %v", got)
	}

	r.ReplaceAll([]string{"b", "c"}, nil)
	if got := r.Snapshot().Image; !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("replace must not merge, got %v", got)
	}
}

func TestCancelUnknown(t *testing.T) {
	r := New()
	r.ReplaceAll([]string{"a"}, []string{"t"})

	if r.Cancel("zzz", horde.GenerationImage) {
		t.Fatal("unknown id reported as present")
	}
	if r.Cancel("a", horde.GenerationText) {
		t.Fatal("cancel must only touch the named set")
	}
	if r.Cancel("a", horde.GenerationType("audio")) {
		t.Fatal("unknown type must be a no-op")
	}
	snap := r.Snapshot()
	if !reflect.DeepEqual(snap.Image, []string{"a"}) || !reflect.DeepEqual(snap.Text, []string{"t"}) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestReplaceAllDedupes(t *testing.T) {
	r := New()
	r.ReplaceAll([]string{"x", "", "x", "y"}, []string{"t", "t"})
	snap := r.Snapshot()
	if !reflect.DeepEqual(snap.Image, []string{"x", "y"}) || !reflect.DeepEqual(snap.Text, []string{"t"}) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !r.Contains("y", horde.GenerationImage) || r.Contains("y", horde.GenerationText) {
		t.Fatal("Contains disagrees with snapshot")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New()
	r.ReplaceAll([]string{"a"}, nil)
	snap := r.Snapshot()
	snap.Image[0] = "mutated"
	if r.Snapshot().Image[0] != "a" {
		t.Fatal("snapshot shares storage with registry")
	}
	if snap.Text == nil {
		t.Fatal("empty sets should be non-nil for JSON output")
	}
}

func TestClear(t *testing.T) {
	r := New()
	r.ReplaceAll([]string{"a"}, []string{"b"})
	r.Clear()
	snap := r.Snapshot()
	if len(snap.Image) != 0 || len(snap.Text) != 0 {
		t.Fatalf("clear left ids: %+v", snap)
	}
}
