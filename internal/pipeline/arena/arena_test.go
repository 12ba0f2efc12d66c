package arena

import (
	"os"
	"path/filepath"
	"testing"
)

func TestArena_WriteReadExists(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Exists("config.json") {
		t.Fatalf("expected config.json to be absent before write")
	}
	if err := a.Write("config.json", []byte(`{"layout":"overlay"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !a.Exists("config.json") {
		t.Fatalf("expected config.json to exist after write")
	}
	got, err := a.Read("config.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != `{"layout":"overlay"}` {
		t.Fatalf("got %q", got)
	}
}

func TestArena_WriteCreatesSubdirs(t *testing.T) {
	root := t.TempDir()
	a, _ := New(root)
	if err := a.Write("shorts/short_0.mp4", []byte("fake")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "shorts", "short_0.mp4")); err != nil {
		t.Fatalf("expected nested file to exist: %v", err)
	}
}

func TestArena_List(t *testing.T) {
	root := t.TempDir()
	a, _ := New(root)
	_ = a.Write("broll/clip_0.mp4", []byte("a"))
	_ = a.Write("broll/clip_1.mp4", []byte("b"))
	_ = a.MkdirAll("broll")
	names, err := a.List("broll")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %v", names)
	}
}

// Reset is the arena half of reboot(): every file disappears except the
// named seed set.
func TestArena_ResetKeepsOnlySeeds(t *testing.T) {
	root := t.TempDir()
	a, _ := New(root)
	seeds := []string{"config.json", "screen.mp4", "webcam.mp4"}
	for _, s := range seeds {
		_ = a.Write(s, []byte("seed"))
	}
	_ = a.Write("original.mp4", []byte("derived"))
	_ = a.Write("segments.json", []byte("derived"))
	_ = a.Write("shorts/short_0.mp4", []byte("derived"))

	if err := a.Reset(seeds); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	for _, s := range seeds {
		if !a.Exists(s) {
			t.Fatalf("expected seed %q to survive reset", s)
		}
	}
	for _, gone := range []string{"original.mp4", "segments.json", "shorts"} {
		if a.Exists(gone) {
			t.Fatalf("expected %q to be removed by reset", gone)
		}
	}
}

func TestArena_RemoveIsIdempotent(t *testing.T) {
	root := t.TempDir()
	a, _ := New(root)
	if err := a.Remove("never_written.mp4"); err != nil {
		t.Fatalf("Remove on missing file should be a no-op, got: %v", err)
	}
}

func TestCopyFile(t *testing.T) {
	root := t.TempDir()
	a, _ := New(root)
	_ = a.Write("nosilence.mp4", []byte("video-bytes"))
	if err := CopyFile(a, "nosilence.mp4", "illustrated.mp4"); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, err := a.Read("illustrated.mp4")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "video-bytes" {
		t.Fatalf("got %q", got)
	}
}
