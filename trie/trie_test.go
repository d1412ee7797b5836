package trie

import "testing"

func TestAddFindRemove(t *testing.T) {
	var tr Trie[int]
	tr.Add("target1", 7)
	tr.Add("target2", 8)
	tr.Add("targetname", 9)

	got := tr.FindPrefix("target")
	if len(got) != 3 {
		t.Fatalf("expected 3 values, got %d: %v", len(got), got)
	}

	tr.Remove("target1", 7)
	got = tr.Find("target1")
	if len(got) != 0 {
		t.Errorf("expected target1 empty after remove, got %v", got)
	}
}

func TestIdempotentAddRemove(t *testing.T) {
	var tr Trie[string]
	tr.Add("light", "e1")
	tr.Add("light", "e1") // duplicate insertion for the same (key, value).
	tr.Remove("light", "e1")
	got := tr.Find("light")
	if len(got) != 1 || got[0] != "e1" {
		t.Errorf("expected e1 to survive one remove after two adds, got %v", got)
	}
	tr.Remove("light", "e1")
	if len(tr.Find("light")) != 0 {
		t.Errorf("expected light empty after second remove")
	}
}

func TestQueryLiteralVsPrefix(t *testing.T) {
	var tr Trie[string]
	tr.Add("wood", "brush1")
	tr.Add("wood_floor", "brush2")

	if got := tr.Query("wood"); len(got) != 1 {
		t.Errorf("literal query should only match exact key, got %v", got)
	}
	if got := tr.Query("wood*"); len(got) != 2 {
		t.Errorf("prefix query should match both, got %v", got)
	}
}
