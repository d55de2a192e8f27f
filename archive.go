// Package zipfsm is a sans-I/O ZIP archive reader: two cooperating
// pull-based state machines, ArchiveFSM and EntryFSM, that parse the
// central directory and decompress one entry's data respectively, without
// performing any I/O themselves. A driver (see ziosync and zioasync)
// supplies bytes at the offsets the FSMs request and calls Process to
// advance them.
package zipfsm

import (
	"io/fs"
	"time"
)

// Archive is the parsed result of driving an ArchiveFSM to completion: the
// central directory, decoded into a list of entries plus whatever
// ambiguity-resolving offset was needed to locate it.
type Archive struct {
	Size int64

	// BaseCorrection is added to every entry's local-header offset to
	// compensate for data prepended to the archive (a self-extractor stub,
	// for instance) that the central directory's own offsets don't know
	// about.
	BaseCorrection int64

	Comment string
	Entries []Entry
}

// Entry is one record from the central directory: everything needed to
// locate and decompress the entry's data, without having read any of the
// local header or file data yet.
type Entry struct {
	Name    string
	Comment string
	IsDir   bool

	Method             uint16
	CompressedSize     uint64
	UncompressedSize   uint64
	CRC32              uint32
	LocalHeaderOffset  int64
	GeneralPurposeBits uint16

	Mode     fs.FileMode
	Modified time.Time
	Created  time.Time // zero if not present
	Accessed time.Time // zero if not present

	UID *uint32
	GID *uint32

	// Entry carries no symlink target: when Mode&fs.ModeSymlink != 0 the
	// target is the entry's data, which the ArchiveFSM does not read.
}

// UTF8 reports whether Name/Comment are already UTF-8 per the
// general-purpose bit, independent of any Info-ZIP Unicode extra override
// already folded into Name/Comment by the time the Entry is built.
func (e Entry) UTF8() bool { return e.GeneralPurposeBits&(1<<11) != 0 }

// HasDataDescriptor reports whether CRC32/sizes were deferred to a trailing
// data descriptor rather than recorded in the local header.
func (e Entry) HasDataDescriptor() bool { return e.GeneralPurposeBits&(1<<3) != 0 }

// Status is the outcome of one Process call: either the FSM needs to run
// again (Continue) or has produced its final value (Done), mirroring
// rc-zip's FsmResult<T> (fsm::mod.rs) collapsed to fit Go's lack of a
// payload-carrying enum — callers read ArchiveFSM.Archive() once Status is
// Done; an EntryFSM's output is the bytes its Process calls wrote.
type Status int

const (
	StatusContinue Status = iota
	StatusDone
)

func (s Status) String() string {
	if s == StatusDone {
		return "done"
	}
	return "continue"
}
