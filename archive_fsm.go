package zipfsm

import (
	"encoding/binary"
	"io/fs"

	"github.com/sansio/zipfsm/internal/extra"
	"github.com/sansio/zipfsm/internal/recfmt"
	"github.com/sansio/zipfsm/internal/textdecode"
	"github.com/sansio/zipfsm/internal/zipdate"
)

type archiveState int

const (
	archiveWantEOCDWindow archiveState = iota
	archiveWantZip64Locator
	archiveWantEOCD64
	archiveWantCentralDirectory
	archiveDone
)

// ArchiveFSM locates and parses the central directory of a ZIP archive
// without performing any I/O itself. It is driven by repeatedly calling
// WantsRead/Space/Fill to supply bytes at the offset it asks for, then
// Process to consume them, following the same wants_read/space/fill/process
// contract original_source/rc-zip/tests/integration_tests.rs exercises
// against the Rust ArchiveFsm.
//
// The scan is grounded on internal/zip/zip.go's New2/getEOCD: trailing
// comment-length tie-break for the EOCD, the ZIP64 locator/EOCD64 pair for
// archives too large for 32-bit fields, and baseCorrection for archives
// with data prepended ahead of byte zero (self-extracting stubs).
//
// Unlike getEOCD's byte-at-a-time growing read (tuned to avoid cache
// pollution on a real filesystem), this FSM requests the full
// comment-bounded window in one read: chunking and caching are the
// driver's job in the sans-I/O model, not the parser's.
type ArchiveFSM struct {
	size  int64
	state archiveState

	wantOffset int64
	buf        []byte

	eocdOffset    int64
	eocd          []byte
	sixtyFour     bool
	eocd64Offset  int64
	thisDisk      uint32
	centralDisk   uint32
	recordsTotal  uint64
	centralSize   int64
	centralOffset int64

	baseCorrection int64

	archive *Archive
	err     error
}

// NewArchiveFSM begins the scan for an archive of the given total size.
func NewArchiveFSM(size int64) *ArchiveFSM {
	f := &ArchiveFSM{size: size, state: archiveWantEOCDWindow}
	f.startEOCDWindow()
	return f
}

// WantsRead reports the absolute offset the FSM needs bytes from next, or
// ok=false if the FSM is done and Process should not be called again.
func (f *ArchiveFSM) WantsRead() (offset int64, ok bool) {
	if f.state == archiveDone {
		return 0, false
	}
	return f.wantOffset, true
}

// Space returns the buffer the driver should fill starting at the offset
// WantsRead reported.
func (f *ArchiveFSM) Space() []byte { return f.buf }

// Fill records that n bytes of Space were written by the driver. It does
// not advance the state machine; call Process for that.
func (f *ArchiveFSM) Fill(n int) {
	if n < len(f.buf) {
		f.buf = f.buf[:n]
	}
}

// Process advances the state machine using whatever bytes Fill supplied.
// Once it returns StatusDone, Archive returns the parsed result.
func (f *ArchiveFSM) Process() (Status, error) {
	switch f.state {
	case archiveWantEOCDWindow:
		return f.processEOCDWindow()
	case archiveWantZip64Locator:
		return f.processZip64Locator()
	case archiveWantEOCD64:
		return f.processEOCD64()
	case archiveWantCentralDirectory:
		return f.processCentralDirectory()
	default:
		return StatusDone, f.err
	}
}

// Archive returns the parsed archive once Process has returned StatusDone.
func (f *ArchiveFSM) Archive() *Archive { return f.archive }

func (f *ArchiveFSM) startEOCDWindow() {
	if f.size < int64(recfmt.EOCDLen) {
		f.state = archiveDone
		f.err = newFormatError(DirectoryEndSignatureNotFound, "file too small to contain an EOCD record")
		return
	}
	window := int64(recfmt.EOCDScanWindow)
	if window > f.size {
		window = f.size
	}
	f.wantOffset = f.size - window
	f.buf = make([]byte, window)
}

func (f *ArchiveFSM) processEOCDWindow() (Status, error) {
	if f.err != nil {
		f.state = archiveDone
		return StatusDone, f.err
	}

	window := f.buf
	// Scan forward over increasing assumed comment lengths, same order as
	// getEOCD, so that the first match (shortest comment) wins when
	// multiple trailing byte sequences could parse as an EOCD record.
	found := -1
	maxCmt := len(window) - recfmt.EOCDLen
	for cmtLen := 0; cmtLen <= maxCmt; cmtLen++ {
		rec := window[len(window)-recfmt.EOCDLen-cmtLen:]
		if binary.LittleEndian.Uint32(rec) != recfmt.EOCDSignature {
			continue
		}
		commentLenField := int(binary.LittleEndian.Uint16(rec[20:]))
		if commentLenField != cmtLen {
			continue
		}
		found = len(window) - recfmt.EOCDLen - cmtLen
		break
	}
	if found < 0 {
		f.state = archiveDone
		return StatusDone, newFormatError(DirectoryEndSignatureNotFound, "no End Of Central Directory record found")
	}

	eocd := window[found:]
	f.eocdOffset = f.wantOffset + int64(found)
	f.eocd = eocd

	f.thisDisk = uint32(binary.LittleEndian.Uint16(eocd[4:]))
	f.centralDisk = uint32(binary.LittleEndian.Uint16(eocd[6:]))
	f.recordsTotal = uint64(binary.LittleEndian.Uint16(eocd[10:]))
	f.centralSize = int64(binary.LittleEndian.Uint32(eocd[12:]))
	f.centralOffset = int64(binary.LittleEndian.Uint32(eocd[16:]))

	f.sixtyFour = f.recordsTotal == recfmt.Uint16Max ||
		f.centralSize == recfmt.Uint32Max ||
		f.centralOffset == recfmt.Uint32Max

	if f.sixtyFour {
		if f.eocdOffset < int64(recfmt.EOCD64LocatorLen) {
			f.state = archiveDone
			return StatusDone, newFormatError(Directory64EndRecordInvalid, "not enough room for a ZIP64 locator before the EOCD")
		}
		f.wantOffset = f.eocdOffset - int64(recfmt.EOCD64LocatorLen)
		f.buf = make([]byte, recfmt.EOCD64LocatorLen)
		f.state = archiveWantZip64Locator
		return StatusContinue, nil
	}

	if f.thisDisk != 0 || f.centralDisk != 0 {
		f.state = archiveDone
		return StatusDone, newFormatError(SpannedArchiveNotSupported, "multi-disk archives are not supported")
	}

	return f.beginCentralDirectory()
}

func (f *ArchiveFSM) processZip64Locator() (Status, error) {
	locator := f.buf
	if binary.LittleEndian.Uint32(locator) != recfmt.EOCD64LocatorSignature {
		f.state = archiveDone
		return StatusDone, newFormatError(Directory64EndRecordInvalid, "ZIP64 locator signature mismatch")
	}
	disk := binary.LittleEndian.Uint32(locator[4:])
	f.eocd64Offset = int64(binary.LittleEndian.Uint64(locator[8:]))
	totalDisks := binary.LittleEndian.Uint32(locator[16:])
	if disk != 0 || totalDisks != 1 {
		f.state = archiveDone
		return StatusDone, newFormatError(SpannedArchiveNotSupported, "multi-disk ZIP64 archives are not supported")
	}
	if f.eocd64Offset < 0 || f.eocd64Offset > f.size-int64(recfmt.EOCD64Len) {
		f.state = archiveDone
		return StatusDone, newFormatError(Directory64EndRecordInvalid, "ZIP64 locator points past the end of the file")
	}

	f.wantOffset = f.eocd64Offset
	f.buf = make([]byte, recfmt.EOCD64Len)
	f.state = archiveWantEOCD64
	return StatusContinue, nil
}

func (f *ArchiveFSM) processEOCD64() (Status, error) {
	eocd64 := f.buf
	if binary.LittleEndian.Uint32(eocd64) != recfmt.EOCD64Signature {
		f.state = archiveDone
		return StatusDone, newFormatError(Directory64EndRecordInvalid, "EOCD64 signature mismatch")
	}

	f.thisDisk = binary.LittleEndian.Uint32(eocd64[16:])
	f.centralDisk = binary.LittleEndian.Uint32(eocd64[20:])
	f.recordsTotal = binary.LittleEndian.Uint64(eocd64[32:])
	f.centralSize = int64(binary.LittleEndian.Uint64(eocd64[40:]))
	f.centralOffset = int64(binary.LittleEndian.Uint64(eocd64[48:]))
	f.eocdOffset = f.eocd64Offset

	if f.thisDisk != 0 || f.centralDisk != 0 {
		f.state = archiveDone
		return StatusDone, newFormatError(SpannedArchiveNotSupported, "multi-disk archives are not supported")
	}

	return f.beginCentralDirectory()
}

func (f *ArchiveFSM) beginCentralDirectory() (Status, error) {
	if f.recordsTotal > uint64(f.size)/recfmt.MinCDRecordSize {
		f.state = archiveDone
		return StatusDone, newFormatError(ImpossibleNumberOfFiles, "claimed entry count cannot fit in the archive")
	}

	f.baseCorrection = f.eocdOffset - f.centralSize - f.centralOffset

	if f.centralOffset > f.eocdOffset {
		f.state = archiveDone
		return StatusDone, newFormatError(DirectoryOffsetPointsOutsideFile, "central directory offset points past the EOCD")
	}

	dirLen := f.eocdOffset - f.centralOffset
	if dirLen < 0 || f.baseCorrection+f.centralOffset < 0 {
		f.state = archiveDone
		return StatusDone, newFormatError(DirectoryOffsetPointsOutsideFile, "central directory offset points outside the file")
	}

	f.wantOffset = f.baseCorrection + f.centralOffset
	f.buf = make([]byte, dirLen)
	f.state = archiveWantCentralDirectory
	return StatusContinue, nil
}

func (f *ArchiveFSM) processCentralDirectory() (Status, error) {
	dir := f.buf
	var entries []Entry

	for len(dir) > 0 {
		if len(dir) < recfmt.CentralHeaderLen {
			break
		}
		if binary.LittleEndian.Uint32(dir) != recfmt.CentralHeaderSignature {
			break
		}

		osCreator := dir[5]
		flags := binary.LittleEndian.Uint16(dir[8:])
		method := binary.LittleEndian.Uint16(dir[10:])
		dostime := binary.LittleEndian.Uint16(dir[12:])
		dosdate := binary.LittleEndian.Uint16(dir[14:])
		crc32 := binary.LittleEndian.Uint32(dir[16:])
		packed := int64(binary.LittleEndian.Uint32(dir[20:]))
		unpacked := int64(binary.LittleEndian.Uint32(dir[24:]))
		namelen := int(binary.LittleEndian.Uint16(dir[28:]))
		extralen := int(binary.LittleEndian.Uint16(dir[30:]))
		commentlen := int(binary.LittleEndian.Uint16(dir[32:]))
		attrs := binary.LittleEndian.Uint32(dir[38:])
		loc := int64(binary.LittleEndian.Uint32(dir[42:]))

		if len(dir) < recfmt.CentralHeaderLen+namelen+extralen+commentlen {
			f.state = archiveDone
			return StatusDone, newFormatError(TruncatedRecord, "central directory record runs past the buffered region")
		}

		rawName := dir[recfmt.CentralHeaderLen : recfmt.CentralHeaderLen+namelen]
		rawExtra := dir[recfmt.CentralHeaderLen+namelen : recfmt.CentralHeaderLen+namelen+extralen]
		rawComment := dir[recfmt.CentralHeaderLen+namelen+extralen : recfmt.CentralHeaderLen+namelen+extralen+commentlen]
		dir = dir[recfmt.CentralHeaderLen+namelen+extralen+commentlen:]

		needZip64 := [4]bool{
			unpacked == recfmt.Uint32Max,
			packed == recfmt.Uint32Max,
			loc == recfmt.Uint32Max,
			false,
		}
		cat := extra.Parse(rawExtra, needZip64, rawName, rawComment)
		if cat.Zip64 != nil {
			if cat.Zip64.UncompressedSize != nil {
				unpacked = int64(*cat.Zip64.UncompressedSize)
			}
			if cat.Zip64.CompressedSize != nil {
				packed = int64(*cat.Zip64.CompressedSize)
			}
			if cat.Zip64.HeaderOffset != nil {
				loc = int64(*cat.Zip64.HeaderOffset)
			}
		}

		utf8Flag := flags&recfmt.GeneralPurposeBitUTF8 != 0
		name := textdecode.Decode(rawName, utf8Flag, cat.UnicodeName, cat.HasUnicodeName)
		comment := textdecode.Decode(rawComment, utf8Flag, cat.UnicodeComment, cat.HasUnicodeComment)

		isDir := len(name) > 0 && name[len(name)-1] == '/'
		if isDir {
			name = name[:len(name)-1]
		}

		mode := modeFromAttrs(osCreator, attrs, isDir)
		modified := zipdate.Resolve(dosdate, dostime, cat.ModifiedCandidates)

		e := Entry{
			Name:               name,
			Comment:            comment,
			IsDir:              isDir,
			Method:             method,
			CompressedSize:     uint64(packed),
			UncompressedSize:   uint64(unpacked),
			CRC32:              crc32,
			LocalHeaderOffset:  f.baseCorrection + loc,
			GeneralPurposeBits: flags,
			Mode:               mode,
			Modified:           modified,
			UID:                cat.UID,
			GID:                cat.GID,
		}
		if cat.Created != nil {
			e.Created = *cat.Created
		}
		if cat.Accessed != nil {
			e.Accessed = *cat.Accessed
		}

		entries = append(entries, e)
	}

	f.archive = &Archive{
		Size:           f.size,
		BaseCorrection: f.baseCorrection,
		Comment:        string(f.eocd[recfmt.EOCDLen:]),
		Entries:        entries,
	}
	f.state = archiveDone
	return StatusDone, nil
}

// Unix mode bits. The format doesn't define them, but these are the values
// tools have agreed on; mirrors internal/zip/zip.go's s_IF* constants.
const (
	sIFMT   = 0xf000
	sIFSOCK = 0xc000
	sIFLNK  = 0xa000
	sIFREG  = 0x8000
	sIFBLK  = 0x6000
	sIFDIR  = 0x4000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sISUID  = 0x800
	sISGID  = 0x400
	sISVTX  = 0x200

	dosModeDir = 0x10
	dosModeRO  = 0x01
)

func modeFromAttrs(osCreator byte, attrs uint32, isDir bool) fs.FileMode {
	switch osCreator {
	case 3, 19: // Unix, Mac OS X
		return unixModeToFileMode(attrs >> 16)
	case 0, 11, 14: // DOS, NTFS, VFAT
		return msdosModeToFileMode(attrs)
	default:
		if isDir {
			return fs.ModeDir | 0o755
		}
		return 0o644
	}
}

func msdosModeToFileMode(m uint32) (mode fs.FileMode) {
	if m&dosModeDir != 0 {
		mode = fs.ModeDir | 0o777
	} else {
		mode = 0o666
	}
	if m&dosModeRO != 0 {
		mode &^= 0o222
	}
	return mode
}

func unixModeToFileMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0o777)
	switch m & sIFMT {
	case sIFBLK:
		mode |= fs.ModeDevice
	case sIFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case sIFDIR:
		mode |= fs.ModeDir
	case sIFIFO:
		mode |= fs.ModeNamedPipe
	case sIFLNK:
		mode |= fs.ModeSymlink
	case sIFREG:
		// nothing to do
	case sIFSOCK:
		mode |= fs.ModeSocket
	}
	if m&sISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&sISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&sISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}
