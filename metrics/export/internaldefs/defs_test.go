package internaldefs

import (
	"strings"
	"testing"
)

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDefinitionsAreUnique(t *testing.T) {
	seen := map[string]bool{AuditDroppedName: true}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "deskauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate metric %q", def.Name)
		}
		seen[def.Name] = true
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatal("bucket bounds and suffixes disagree")
	}
}
