package zipfsm_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sansio/zipfsm/ziosync"
)

func buildZipMethod(t *testing.T, method uint16, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readEntry(t *testing.T, data []byte, name string) string {
	t.Helper()
	ctx := context.Background()
	r := bytes.NewReader(data)
	arc, err := ziosync.Open(ctx, r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range arc.Entries {
		if e.Name != name {
			continue
		}
		er := ziosync.OpenEntry(ctx, r, e)
		got, err := io.ReadAll(er)
		if err != nil {
			t.Fatal(err)
		}
		return string(got)
	}
	t.Fatalf("entry %q not found", name)
	return ""
}

func TestEntryFSMStore(t *testing.T) {
	data := buildZipMethod(t, zip.Store, map[string]string{"a.txt": "hello world"})
	if got := readEntry(t, data, "a.txt"); got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestEntryFSMDeflate(t *testing.T) {
	content := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)
	data := buildZipMethod(t, zip.Deflate, map[string]string{"big.txt": content})
	if got := readEntry(t, data, "big.txt"); got != content {
		t.Errorf("length mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestEntryFSMEmptyFile(t *testing.T) {
	data := buildZipMethod(t, zip.Store, map[string]string{"empty.txt": ""})
	if got := readEntry(t, data, "empty.txt"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestEntryFSMSmallReadBuffer(t *testing.T) {
	content := strings.Repeat("abc", 5000)
	data := buildZipMethod(t, zip.Deflate, map[string]string{"f": content})

	ctx := context.Background()
	r := bytes.NewReader(data)
	arc, err := ziosync.Open(ctx, r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	er := ziosync.OpenEntry(ctx, r, arc.Entries[0])

	var got bytes.Buffer
	small := make([]byte, 7) // deliberately smaller than any internal chunk size
	for {
		n, err := er.Read(small)
		got.Write(small[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if got.String() != content {
		t.Errorf("length mismatch: got %d bytes, want %d", got.Len(), len(content))
	}
}

func TestEntryFSMCorruptedCRCIsDetected(t *testing.T) {
	data := buildZipMethod(t, zip.Store, map[string]string{"a": "hello"})
	// Flip a byte inside the entry's data region, after the local header and
	// name, leaving the central directory's recorded CRC untouched.
	idx := bytes.Index(data, []byte("hello"))
	if idx < 0 {
		t.Fatal("fixture data not found in archive bytes")
	}
	corrupt := append([]byte(nil), data...)
	corrupt[idx] ^= 0xFF

	ctx := context.Background()
	r := bytes.NewReader(corrupt)
	arc, err := ziosync.Open(ctx, r, int64(len(corrupt)))
	if err != nil {
		t.Fatal(err)
	}
	er := ziosync.OpenEntry(ctx, r, arc.Entries[0])
	_, err = io.ReadAll(er)
	if err == nil {
		t.Fatal("expected a CRC mismatch error")
	}
}
