package vecdb

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryCreateGetDelete(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.CreateCollection("images", 512, Cosine, HNSWParams{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateCollection("images", 512, Cosine, HNSWParams{}); !errors.Is(err, ErrCollectionExists) {
		t.Fatalf("expected ErrCollectionExists, got %v", err)
	}

	c, err := r.GetCollection("images")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "images" {
		t.Fatalf("expected name images, got %s", c.Name())
	}

	if _, err := r.GetCollection("missing"); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}

	ok, err := r.DeleteCollection("images")
	if err != nil || !ok {
		t.Fatalf("expected delete to succeed, got ok=%v err=%v", ok, err)
	}
	if _, err := r.GetCollection("images"); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatal("expected images to be gone after delete")
	}
}

func TestRegistryMultipleCollectionsIndependentDimensions(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		name   string
		dim    int
		metric Metric
	}{
		{"images", 512, Cosine},
		{"texts", 384, Cosine},
		{"preferences", 64, Dot},
	}
	for _, s := range specs {
		if _, err := r.CreateCollection(s.name, s.dim, s.metric, HNSWParams{}); err != nil {
			t.Fatal(err)
		}
	}

	names := r.ListCollections()
	if len(names) != 3 {
		t.Fatalf("expected 3 collections, got %d", len(names))
	}

	imgs, _ := r.GetCollection("images")
	if err := imgs.Insert(1, make([]float32, 512)); err != nil {
		t.Fatal(err)
	}
	prefs, _ := r.GetCollection("preferences")
	if err := prefs.Insert(1, make([]float32, 64)); err != nil {
		t.Fatal(err)
	}
	if imgs.Count() != 1 || prefs.Count() != 1 {
		t.Fatal("collections must not share state")
	}
}

func TestRegistrySaveAndReopen(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := r.CreateCollection("docs", 3, L2, HNSWParams{})
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(0); i < 5; i++ {
		if err := c.Insert(i, []float32{float32(i), float32(i), float32(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	r2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := r2.GetCollection("docs")
	if err != nil {
		t.Fatal(err)
	}
	if c2.Count() != 5 {
		t.Fatalf("expected count 5 after reopen, got %d", c2.Count())
	}
	res, err := c2.Search([]float32{4, 4, 4}, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) == 0 || res[0].UserID != 4 {
		t.Fatalf("expected closest id 4, got %+v", res)
	}
}

func TestRegistryDeleteOrphanedFiles(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	// r2 is opened before the collection reaches disk, so it never
	// loads it and DeleteCollection exercises the "not registered but
	// present on disk" branch.
	r2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateCollection("orphan", 2, L2, HNSWParams{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Save(); err != nil {
		t.Fatal(err)
	}

	ok, err := r2.DeleteCollection("orphan")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected delete of an unregistered collection with files on disk to report true")
	}
}

func TestRegistryWatchDetectsExternalChange(t *testing.T) {
	dir := t.TempDir()

	writer, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := writer.CreateCollection("live", 2, L2, HNSWParams{}); err != nil {
		t.Fatal(err)
	}
	if err := writer.Save(); err != nil {
		t.Fatal(err)
	}

	reader, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	w, err := reader.Watch()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// A write from a separate Registry instance against the same
	// directory (simulating another process) is not in reader's
	// suppress set, so it must surface as a reload event.
	c, err := writer.GetCollection("live")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Insert(1, []float32{1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := writer.Save(); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.Name != "live" {
			t.Fatalf("expected reload event for \"live\", got %q", ev.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for external change notification")
	}

	if err := reader.Reload("live"); err != nil {
		t.Fatal(err)
	}
	c2, err := reader.GetCollection("live")
	if err != nil {
		t.Fatal(err)
	}
	if c2.Count() != 1 {
		t.Fatalf("expected reloaded collection to have 1 entry, got %d", c2.Count())
	}
}

func TestRegistrySelfWritesAreSuppressed(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateCollection("quiet", 2, L2, HNSWParams{}); err != nil {
		t.Fatal(err)
	}
	w, err := r.Watch()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := r.Save(); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no reload event for a self-initiated save, got %+v", ev)
	case <-time.After(500 * time.Millisecond):
		// No event within the debounce window plus margin: self-writes
		// were correctly suppressed.
	}
}
