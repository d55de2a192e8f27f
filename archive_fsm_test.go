package zipfsm_test

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/sansio/zipfsm/ziosync"
)

// buildZip writes a trivial archive with the stdlib writer and returns its
// bytes, used as a fixture instead of embedded binary testdata.
func buildZip(t *testing.T, entries map[string]string, comment string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if comment != "" {
		if err := w.SetComment(comment); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestArchiveFSMBasic(t *testing.T) {
	data := buildZip(t, map[string]string{"hello.txt": "hi"}, "")
	r := bytes.NewReader(data)

	arc, err := ziosync.Open(context.Background(), r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(arc.Entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(arc.Entries))
	}
	e := arc.Entries[0]
	if e.Name != "hello.txt" {
		t.Errorf("name = %q", e.Name)
	}
	if e.UncompressedSize != 2 {
		t.Errorf("size = %d", e.UncompressedSize)
	}
	if e.CRC32 != 0xD8932AAC {
		t.Errorf("crc = %#x, want 0xd8932aac", e.CRC32)
	}
}

func TestArchiveFSMEmpty(t *testing.T) {
	data := buildZip(t, nil, "")
	r := bytes.NewReader(data)

	arc, err := ziosync.Open(context.Background(), r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(arc.Entries) != 0 {
		t.Errorf("want 0 entries, got %d", len(arc.Entries))
	}
}

func TestArchiveFSMComment(t *testing.T) {
	data := buildZip(t, map[string]string{"a": "1"}, "a comment")
	r := bytes.NewReader(data)

	arc, err := ziosync.Open(context.Background(), r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if arc.Comment != "a comment" {
		t.Errorf("comment = %q", arc.Comment)
	}
}

func TestArchiveFSMTruncatedIsRejected(t *testing.T) {
	data := buildZip(t, map[string]string{"hello.txt": "hi"}, "")
	truncated := data[:42]

	_, err := ziosync.Open(context.Background(), bytes.NewReader(truncated), int64(len(truncated)))
	if err == nil {
		t.Fatal("expected an error on a 42-byte fragment of a real archive")
	}
}

func TestArchiveFSMMultipleEntriesPreserveOrder(t *testing.T) {
	data := buildZip(t, nil, "")
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	names := []string{"a.txt", "b/c.txt", "b/"}
	for _, n := range names {
		fw, err := w.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(n))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	data = buf.Bytes()

	arc, err := ziosync.Open(context.Background(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(arc.Entries) != len(names) {
		t.Fatalf("got %d entries, want %d", len(arc.Entries), len(names))
	}
	for i, e := range arc.Entries {
		want := names[i]
		isDir := want[len(want)-1] == '/'
		if isDir {
			want = want[:len(want)-1]
		}
		if e.Name != want {
			t.Errorf("entry %d name = %q, want %q", i, e.Name, want)
		}
		if e.IsDir != isDir {
			t.Errorf("entry %d IsDir = %v, want %v", i, e.IsDir, isDir)
		}
	}
}

func TestGlob(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, n := range []string{"a/b.txt", "a/c.txt", "d.txt"} {
		fw, _ := w.Create(n)
		fw.Write([]byte(n))
	}
	w.Close()
	data := buf.Bytes()

	arc, err := ziosync.Open(context.Background(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	matches, err := arc.Glob("a/*.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
}

func TestEntryUTF8AndDataDescriptorFlags(t *testing.T) {
	// A non-ASCII name: the stdlib writer only sets the UTF-8 bit when the
	// name is not plain CP-437-compatible ASCII.
	data := buildZip(t, map[string]string{"é.txt": "y"}, "")
	arc, err := ziosync.Open(context.Background(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	e := arc.Entries[0]
	if !e.UTF8() {
		t.Error("expected the stdlib writer to set the UTF-8 general purpose bit")
	}
	_ = e.HasDataDescriptor() // just must not panic; the stdlib writer sets bit 3 on every file entry
}
