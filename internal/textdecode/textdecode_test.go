package textdecode

import "testing"

func TestDecodeUTF8Flag(t *testing.T) {
	raw := []byte("héllo") // valid UTF-8 regardless, but the flag path should short-circuit
	got := Decode(raw, true, "", false)
	if got != "héllo" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeUnicodeOverride(t *testing.T) {
	raw := []byte{0x80} // CP437 'Ç' if it fell through
	got := Decode(raw, false, "override.txt", true)
	if got != "override.txt" {
		t.Errorf("got %q, want the override to win", got)
	}
}

func TestDecodeValidatesAsUTF8(t *testing.T) {
	raw := []byte("plain.txt")
	got := Decode(raw, false, "", false)
	if got != "plain.txt" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeFallsBackToCP437(t *testing.T) {
	raw := []byte{0x80, 0x81} // Ç, ü: not valid UTF-8 as a pair of lone high bytes
	got := Decode(raw, false, "", false)
	if got != "Çü" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeCP437ASCIIPassesThrough(t *testing.T) {
	raw := []byte{0x80, 'a', 'b'}
	got := decodeCP437(raw)
	if got != "Çab" {
		t.Errorf("got %q", got)
	}
}
