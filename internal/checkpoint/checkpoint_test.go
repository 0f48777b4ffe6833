package checkpoint

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("failed to open checkpoint store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCompleteAndIsComplete(t *testing.T) {
	s := openTestStore(t)

	done, err := s.IsComplete("extract", "bill-hader/1")
	if err != nil || done {
		t.Fatalf("fresh key should be incomplete, done=%v err=%v", done, err)
	}

	if err := s.Complete("extract", "bill-hader/1", map[string]any{"quotes": 12}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	done, err = s.IsComplete("extract", "bill-hader/1")
	if err != nil || !done {
		t.Fatalf("key should be complete, done=%v err=%v", done, err)
	}

	meta, err := s.Meta("extract", "bill-hader/1")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta["quotes"] != float64(12) {
		t.Errorf("meta = %v", meta)
	}
}

func TestStagesAreIndependent(t *testing.T) {
	s := openTestStore(t)
	s.Complete("extract", "parasite-2019", nil)

	done, _ := s.IsComplete("enrich_film", "parasite-2019")
	if done {
		t.Error("completion in one stage leaked into another")
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	s.Complete("extract", "bong-joon-ho/1", nil)
	s.Clear("extract", "bong-joon-ho/1")

	done, _ := s.IsComplete("extract", "bong-joon-ho/1")
	if done {
		t.Error("cleared key still complete")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	s.Complete("extract", "k", map[string]any{"n": 1})
	if err := s.Complete("extract", "k", map[string]any{"n": 2}); err != nil {
		t.Fatalf("re-complete: %v", err)
	}

	n, err := s.Count("extract")
	if err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
	meta, _ := s.Meta("extract", "k")
	if meta["n"] != float64(2) {
		t.Errorf("meta not updated: %v", meta)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Complete("enrich_film", "parasite-2019", nil)
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	done, err := s2.IsComplete("enrich_film", "parasite-2019")
	if err != nil || !done {
		t.Fatalf("completion lost across reopen, done=%v err=%v", done, err)
	}
}

func TestKeysOrdered(t *testing.T) {
	s := openTestStore(t)
	s.Complete("extract", "a/1", nil)
	s.Complete("extract", "b/1", nil)
	s.Complete("extract", "c/2", nil)

	keys, err := s.Keys("extract")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 3 || keys[0] != "a/1" || keys[2] != "c/2" {
		t.Errorf("keys = %v", keys)
	}
}
