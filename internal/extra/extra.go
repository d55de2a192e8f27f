// Package extra parses the tag-length-value blocks embedded in central
// directory and local file headers: ZIP64 extended info, NTFS/Unix
// timestamps, Unix UID/GID, and Info-ZIP Unicode path/comment overrides.
//
// Grounded on internal/zip/zip.go's parseExtra (tag->payload map) and
// extended to the full tag set spec.md §4.2 names, including the two tags
// the teacher ignores (0x7875 Unix UID/GID, 0x6375 Unicode comment).
package extra

import (
	"hash/crc32"
	"time"

	"github.com/sansio/zipfsm/internal/binfmt"
	"github.com/sansio/zipfsm/internal/recfmt"
)

// Zip64Fields holds the subset of {uncompressed, compressed, header offset,
// disk start} present in a 0x0001 extra block, in the fixed order the format
// requires: fields only appear when their 32-bit counterpart was saturated.
type Zip64Fields struct {
	UncompressedSize *uint64
	CompressedSize   *uint64
	HeaderOffset     *uint64
	DiskStart        *uint32
}

// Catalogue is the parsed, order-independent view of one extra-field block.
type Catalogue struct {
	Zip64 *Zip64Fields

	// NTFS/Unix-time candidates, highest-precision last so callers can just
	// take the last non-zero value the way internal/zip/zip.go's
	// slices.Backward loop does.
	ModifiedCandidates []time.Time
	Created            *time.Time
	Accessed           *time.Time

	UID *uint32
	GID *uint32

	// UnicodeName/UnicodeComment are only populated when the embedded CRC32
	// matches the raw bytes passed to Parse.
	UnicodeName    string
	HasUnicodeName bool

	UnicodeComment    string
	HasUnicodeComment bool

	Unknown []binfmt.TLV
}

// Parse walks the extra-field block for one record, resolving ZIP64 fields
// against which 32-bit fields were saturated, and validating the Info-ZIP
// Unicode path/comment CRCs against the raw name/comment bytes.
func Parse(b []byte, needZip64 [4]bool, rawName, rawComment []byte) Catalogue {
	var cat Catalogue

	for _, tlv := range binfmt.ParseTLVs(b) {
		switch tlv.Tag {
		case recfmt.ExtraZip64:
			cat.Zip64 = parseZip64(tlv.Payload, needZip64)

		case recfmt.ExtraNTFS:
			parseNTFS(tlv.Payload, &cat)

		case recfmt.ExtraUnixTime:
			parseUnixTime(tlv.Payload, &cat)

		case recfmt.ExtraUnixUIDGID:
			parseUnixUIDGID(tlv.Payload, &cat)

		case recfmt.ExtraUnicodePath:
			if name, ok := parseUnicodeField(tlv.Payload, rawName); ok {
				cat.UnicodeName, cat.HasUnicodeName = name, true
			}

		case recfmt.ExtraUnicodeComment:
			if comment, ok := parseUnicodeField(tlv.Payload, rawComment); ok {
				cat.UnicodeComment, cat.HasUnicodeComment = comment, true
			}

		default:
			cat.Unknown = append(cat.Unknown, tlv)
		}
	}

	return cat
}

// parseZip64 reads fields in fixed order (uncompressed, compressed, header
// offset, disk start), consuming 8 bytes per field present, 4 for disk start
// when it's the last one, per APPNOTE 4.5.3. Only fields whose 32-bit
// counterpart was saturated (0xFFFFFFFF, or 0xFFFF for disk start) are
// present.
func parseZip64(b []byte, need [4]bool) *Zip64Fields {
	var f Zip64Fields
	take64 := func() (uint64, bool) {
		if len(b) < 8 {
			return 0, false
		}
		v := binfmt.U64(b)
		b = b[8:]
		return v, true
	}

	if need[0] {
		if v, ok := take64(); ok {
			f.UncompressedSize = &v
		}
	}
	if need[1] {
		if v, ok := take64(); ok {
			f.CompressedSize = &v
		}
	}
	if need[2] {
		if v, ok := take64(); ok {
			f.HeaderOffset = &v
		}
	}
	if need[3] {
		if len(b) >= 4 {
			v := binfmt.U32(b)
			f.DiskStart = &v
		}
	}
	return &f
}

// parseNTFS reads the 0x000a extra block: 4 reserved bytes, then sub-blocks
// of (tag uint16, size uint16, payload); tag 0x0001 carries mtime/atime/ctime
// as Windows 64-bit tick counts.
func parseNTFS(b []byte, cat *Catalogue) {
	if len(b) < 4 {
		return
	}
	for _, sub := range binfmt.ParseTLVs(b[4:]) {
		if sub.Tag != 1 || len(sub.Payload) < 24 {
			continue
		}
		mtime := ntfsTicksToTime(binfmt.U64(sub.Payload[0:]))
		atime := ntfsTicksToTime(binfmt.U64(sub.Payload[8:]))
		ctime := ntfsTicksToTime(binfmt.U64(sub.Payload[16:]))
		cat.ModifiedCandidates = append(cat.ModifiedCandidates, mtime)
		cat.Accessed = &atime
		cat.Created = &ctime
	}
}

// ntfsEpoch is 1601-01-01 00:00:00 UTC, the Windows FILETIME epoch.
var ntfsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

const ntfsTicksPerSecond = 1e7 // 100-ns ticks

// ntfsTicksToTime converts Windows 64-bit 100ns-tick timestamps to UTC time,
// using the documented formula (ticks since 1601-01-01 UTC). spec.md §9
// flags a legacy implementation with a suspect expression that multiplies
// instead of taking a remainder; this follows the corrected form used by
// internal/zip/times.go.
func ntfsTicksToTime(ticks uint64) time.Time {
	secs := int64(ticks / ntfsTicksPerSecond)
	nsecs := int64(ticks%ntfsTicksPerSecond) * (1e9 / ntfsTicksPerSecond)
	return time.Unix(ntfsEpoch.Unix()+secs, nsecs).UTC()
}

// parseUnixTime reads the 0x5455 extended-timestamp extra: a flag byte
// selects which of mtime/atime/ctime (in that order) follow as i32
// seconds-since-epoch.
func parseUnixTime(b []byte, cat *Catalogue) {
	if len(b) < 1 {
		return
	}
	flags, rest := b[0], b[1:]
	read := func() (time.Time, bool) {
		if len(rest) < 4 {
			return time.Time{}, false
		}
		t := time.Unix(int64(int32(binfmt.U32(rest))), 0).UTC()
		rest = rest[4:]
		return t, true
	}
	if flags&1 != 0 {
		if t, ok := read(); ok {
			// Prepended: 1-second Unix time ranks below any 100-ns NTFS
			// candidate, whichever block came first.
			cat.ModifiedCandidates = append([]time.Time{t}, cat.ModifiedCandidates...)
		}
	}
	if flags&2 != 0 {
		if t, ok := read(); ok {
			cat.Accessed = &t
		}
	}
	if flags&4 != 0 {
		if t, ok := read(); ok {
			cat.Created = &t
		}
	}
}

// parseUnixUIDGID reads the 0x7875 extra: version byte, then length-prefixed
// UID and GID (each 1-4 bytes wide in practice, stored little-endian).
func parseUnixUIDGID(b []byte, cat *Catalogue) {
	if len(b) < 1 || b[0] != 1 {
		return
	}
	b = b[1:]
	readLV := func() (uint32, bool) {
		if len(b) < 1 {
			return 0, false
		}
		n := int(b[0])
		b = b[1:]
		if len(b) < n || n > 4 {
			return 0, false
		}
		var v uint32
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint32(b[i])
		}
		b = b[n:]
		return v, true
	}
	if uid, ok := readLV(); ok {
		cat.UID = &uid
	}
	if gid, ok := readLV(); ok {
		cat.GID = &gid
	}
}

// parseUnicodeField validates an Info-ZIP Unicode path/comment block: 1
// version byte, 4-byte CRC32 of the original (non-unicode) field, then the
// UTF-8 payload. The override only applies when the CRC matches.
func parseUnicodeField(b []byte, raw []byte) (string, bool) {
	if len(b) < 5 {
		return "", false
	}
	storedCRC := binfmt.U32(b[1:5])
	if crc32.ChecksumIEEE(raw) != storedCRC {
		return "", false
	}
	return string(b[5:]), true
}
