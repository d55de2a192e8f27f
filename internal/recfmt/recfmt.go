// Package recfmt describes the fixed-size record layouts of the ZIP format:
// signatures, field widths, and the offsets the FSMs need to slice a
// fully-buffered record. Values and names follow the PKWARE APPNOTE.TXT
// (v6.3.x) and mirror the constant block martin-sucha/zipserve keeps
// alongside its FileHeader type.
package recfmt

const (
	LocalFileHeaderSignature = 0x04034b50
	CentralHeaderSignature   = 0x02014b50
	EOCDSignature            = 0x06054b50
	EOCD64Signature          = 0x06064b50
	EOCD64LocatorSignature   = 0x07064b50
	DataDescriptorSignature  = 0x08074b50

	LocalFileHeaderLen = 30 // + name + extra
	CentralHeaderLen   = 46 // + name + extra + comment
	EOCDLen            = 22 // + comment
	EOCD64LocatorLen   = 20
	EOCD64Len          = 56 // + extensible data sector

	DataDescriptorLen   = 12 // crc32, compressed size, size (no signature)
	DataDescriptor64Len = 20 // crc32, compressed size64, size64 (no signature)

	MaxCommentLen   = 0xffff
	EOCDScanWindow  = EOCDLen + MaxCommentLen // 65,557: max bytes a valid EOCD scan can require
	MinCDRecordSize = CentralHeaderLen        // smallest possible central-directory record

	Uint16Max = 0xffff
	Uint32Max = 0xffffffff
)

// Compression methods recognized by the format (others are simply stored as
// Method and rejected at decompression time with UnsupportedMethod).
const (
	MethodStore     uint16 = 0
	MethodDeflate   uint16 = 8
	MethodDeflate64 uint16 = 9
	MethodBzip2     uint16 = 12
	MethodLZMA      uint16 = 14
	MethodZstd      uint16 = 93
)

// GeneralPurposeBit3 marks that CRC-32/compressed/uncompressed sizes live in
// a trailing data descriptor rather than the local header.
const GeneralPurposeBit3 = 1 << 3

// GeneralPurposeBitUTF8 (bit 11) marks that Name/Comment are UTF-8 encoded.
const GeneralPurposeBitUTF8 = 1 << 11

// Extra-field tags recognized by the catalogue (C3).
const (
	ExtraZip64          uint16 = 0x0001
	ExtraNTFS           uint16 = 0x000a
	ExtraUnixTime       uint16 = 0x5455
	ExtraUnixUIDGID     uint16 = 0x7875
	ExtraUnicodePath    uint16 = 0x7075
	ExtraUnicodeComment uint16 = 0x6375
)
