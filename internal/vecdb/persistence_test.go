package vecdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pm, err := NewPersistenceManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	c, err := NewCollection("images", 4, L2, HNSWParams{})
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(0); i < 10; i++ {
		vec := []float32{float32(i), float32(i) * 2, float32(i) * 3, float32(i) * 4}
		if err := c.Insert(i, vec); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Delete(3); err != nil {
		t.Fatal(err)
	}

	if err := pm.SaveCollection(c); err != nil {
		t.Fatal(err)
	}
	if c.IsDirty() {
		t.Fatal("expected collection to be clean after save")
	}

	for _, suffix := range []string{metaSuffix, hnswSuffix, vectorsSuffix} {
		p := filepath.Join(dir, "collections", "images"+suffix)
		if !fileExists(p) {
			t.Fatalf("expected %s to exist", p)
		}
	}

	loaded, err := pm.LoadCollection("images")
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("expected LoadCollection to return a collection")
	}
	if loaded.Count() != 9 {
		t.Fatalf("expected count 9, got %d", loaded.Count())
	}
	if loaded.Contains(3) {
		t.Fatal("expected deleted id 3 to stay absent after reload")
	}
	v, ok := loaded.Get(5)
	if !ok {
		t.Fatal("expected id 5 present after reload")
	}
	want := []float32{5, 10, 15, 20}
	for i := range want {
		if v[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, v)
		}
	}

	// Reinsert id 3 must not collide with a reused internal id.
	if err := loaded.Insert(3, []float32{1, 1, 1, 1}); err != nil {
		t.Fatalf("expected reinsert of id 3 to succeed after reload: %v", err)
	}
}

func TestPersistenceMissingFileMeansAbsent(t *testing.T) {
	dir := t.TempDir()
	pm, _ := NewPersistenceManager(dir)
	c, _ := NewCollection("partial", 2, L2, HNSWParams{})
	_ = c.Insert(1, []float32{1, 1})
	if err := pm.SaveCollection(c); err != nil {
		t.Fatal(err)
	}

	// Remove just the .vectors file to simulate a partial write.
	if err := os.Remove(filepath.Join(dir, "collections", "partial"+vectorsSuffix)); err != nil {
		t.Fatal(err)
	}

	loaded, err := pm.LoadCollection("partial")
	if err != nil {
		t.Fatal(err)
	}
	if loaded != nil {
		t.Fatal("expected LoadCollection to report absent for a partially written collection")
	}
}

func TestPersistenceListAndDelete(t *testing.T) {
	dir := t.TempDir()
	pm, _ := NewPersistenceManager(dir)
	for _, name := range []string{"b", "a", "c"} {
		c, _ := NewCollection(name, 2, L2, HNSWParams{})
		_ = c.Insert(1, []float32{1, 1})
		if err := pm.SaveCollection(c); err != nil {
			t.Fatal(err)
		}
	}
	names, err := pm.ListCollections()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if names[i] != w {
			t.Fatalf("expected sorted names %v, got %v", want, names)
		}
	}

	if !pm.DeleteCollection("b") {
		t.Fatal("expected DeleteCollection(b) to report true")
	}
	if pm.DeleteCollection("nonexistent") {
		t.Fatal("expected DeleteCollection(nonexistent) to report false")
	}
}

func TestLoadCollectionRejectsCountMismatch(t *testing.T) {
	dir := t.TempDir()
	pm, _ := NewPersistenceManager(dir)
	c, _ := NewCollection("counted", 2, L2, HNSWParams{})
	_ = c.Insert(1, []float32{1, 1})
	_ = c.Insert(2, []float32{2, 2})
	if err := pm.SaveCollection(c); err != nil {
		t.Fatal(err)
	}

	// Corrupt the .meta file's declared count so it no longer matches
	// the two entries actually present in .vectors.
	metaP := filepath.Join(dir, "collections", "counted"+metaSuffix)
	blob, err := os.ReadFile(metaP)
	if err != nil {
		t.Fatal(err)
	}
	var meta metaFile
	if err := json.Unmarshal(blob, &meta); err != nil {
		t.Fatal(err)
	}
	meta.Count = 99
	blob, err = json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(metaP, blob, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := pm.LoadCollection("counted"); err == nil {
		t.Fatal("expected deserialization error for count mismatch")
	}
}

func TestValidateBijectionRejectsDuplicateInternalID(t *testing.T) {
	u2i := map[int64]uint64{1: 10, 2: 10}
	if err := validateBijection(u2i, 100); err == nil {
		t.Fatal("expected error for two user ids sharing one internal id")
	}
}

func TestValidateBijectionRejectsOutOfBoundInternalID(t *testing.T) {
	u2i := map[int64]uint64{1: 50}
	if err := validateBijection(u2i, 10); err == nil {
		t.Fatal("expected error for internal id not less than next_internal_id")
	}
}
