package session

import (
	"html/template"
	"testing"
)

func TestTranscriptEvictsOldest(t *testing.T) {
	tr := NewTranscript(3)
	for i, f := range []template.HTML{"1", "2", "3"} {
		if tr.Append(f) {
			t.Fatalf("append %d evicted early", i)
		}
	}
	if !tr.Append("4") {
		t.Fatal("expected eviction at the limit")
	}
	got := tr.Snapshot()
	want := []template.HTML{"2", "3", "4"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTranscriptUnbounded(t *testing.T) {
	tr := NewTranscript(0)
	for i := 0; i < 5000; i++ {
		if tr.Append("x") {
			t.Fatal("unbounded transcript evicted")
		}
	}
	if tr.Len() != 5000 || tr.Limit() != 0 || tr.Seq() != 5000 {
		t.Fatalf("len=%d limit=%d", tr.Len(), tr.Limit())
	}
}

func TestTranscriptSnapshotIsCopy(t *testing.T) {
	tr := NewTranscript(2)
	tr.Append("a")
	snap := tr.Snapshot()
	snap[0] = "changed"
	if tr.Snapshot()[0] != "a" {
		t.Fatal("snapshot aliases transcript storage")
	}
}

func TestTranscriptSeqSurvivesEviction(t *testing.T) {
	tr := NewTranscript(2)
	for _, f := range []template.HTML{"a", "b", "c"} {
		tr.Append(f)
	}
	if tr.Len() != 2 || tr.Seq() != 3 {
		t.Fatalf("len=%d seq=%d", tr.Len(), tr.Seq())
	}
}
