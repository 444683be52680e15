package dsum

import (
	"fmt"
	"io"
)

// Progress is the verbosity bitmask for scan-time progress output.
type Progress uint8

const (
	ProgressPhases      Progress = 0x01 // one line per phase
	ProgressInsertMarks Progress = 0x02 // a mark every 15 inserted records
	ProgressDirectories Progress = 0x04 // one line per directory visited
	ProgressReasons     Progress = 0x08 // reuse reason code per regular file
	ProgressFingerprint Progress = 0x10 // one line per fingerprinted file
	ProgressWalkMarks   Progress = 0x20 // a mark every 15 walked entries
)

// DefaultProgress matches the scanner's historical default.
const DefaultProgress = ProgressPhases | ProgressInsertMarks | ProgressWalkMarks

// Has reports whether every bit of flag is set.
func (p Progress) Has(flag Progress) bool { return p&flag == flag }

// ScanStats are the per-run counters recorded in snapshot metadata.
type ScanStats struct {
	Objects            int64
	RegularFiles       int64
	Directories        int64
	Symlinks           int64
	Other              int64
	Fingerprinted      int64
	Reused             int64
	BytesFingerprinted int64
	Bytes1K            int64
	Reasons            map[Reason]int64
}

// ScanContext carries the mutable state of one scan run: the coordinate
// counter, progress settings, counters and collected scan errors.
// It is owned by a single scan and never shared.
type ScanContext struct {
	Progress Progress
	Out      io.Writer
	Logger   Logger
	Clock    Clock

	Stats  ScanStats
	Errors []*ScanIOError

	counter     int64
	walked      int64
	sinceMark   int64
	reasonCount int64
}

// NewScanContext creates a context writing progress to out.
// A nil out disables progress output regardless of the bitmask.
func NewScanContext(progress Progress, out io.Writer, logger Logger, clock Clock) *ScanContext {
	if out == nil {
		out = io.Discard
		progress = 0
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &ScanContext{
		Progress: progress,
		Out:      out,
		Logger:   logger,
		Clock:    clock,
		Stats:    ScanStats{Reasons: make(map[Reason]int64)},
	}
}

// tick advances the nested-set counter and returns its new value.
func (sc *ScanContext) tick() int64 {
	sc.counter++
	return sc.counter
}

// AddError records a non-fatal scan error and logs it.
func (sc *ScanContext) AddError(id int64, path, message string, err error) *ScanIOError {
	e := &ScanIOError{ID: id, Path: path, Message: message, Err: err}
	sc.Errors = append(sc.Errors, e)
	sc.Logger.Warn(message, "id", id, "path", path, "error", err)
	return e
}

// phase prints a timestamped phase line.
func (sc *ScanContext) phase(msg string, args ...any) {
	if !sc.Progress.Has(ProgressPhases) {
		return
	}
	ts := sc.Clock.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(sc.Out, "%s : %s\n", ts, fmt.Sprintf(msg, args...))
}

// walkedEntry emits walk progress marks.
func (sc *ScanContext) walkedEntry(isDir bool) {
	sc.walked++
	if !sc.Progress.Has(ProgressWalkMarks) {
		return
	}
	if sc.walked%15 == 0 {
		if isDir {
			fmt.Fprint(sc.Out, "/")
		} else {
			fmt.Fprint(sc.Out, "|")
		}
	}
	if sc.walked%1500 == 0 {
		fmt.Fprintf(sc.Out, " %015d\n", sc.walked)
	}
}

// directoryVisited prints one line per directory.
func (sc *ScanContext) directoryVisited(path string) {
	if !sc.Progress.Has(ProgressDirectories) {
		return
	}
	ts := sc.Clock.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(sc.Out, "%s : DIR: %s\n", ts, path)
}

// reasonDecided prints the reuse reason code for one regular file.
func (sc *ScanContext) reasonDecided(r Reason, path string) {
	sc.Stats.Reasons[r]++
	if r != ReasonReuse {
		sc.sinceMark++
	}
	if sc.Progress.Has(ProgressReasons) {
		sc.reasonCount++
		fmt.Fprintf(sc.Out, "%02x.", uint8(r))
		if sc.reasonCount%100 == 0 {
			fmt.Fprintln(sc.Out)
		}
	}
	if r != ReasonReuse && sc.Progress.Has(ProgressFingerprint) {
		fmt.Fprintf(sc.Out, "%05b: %15d: %s\n", uint8(r), sc.Stats.RegularFiles, path)
	}
}

// recordInserted emits insert progress marks: a hex digit counting the
// fingerprints computed since the last mark, or "." when all were reused.
func (sc *ScanContext) recordInserted(withPrior bool) {
	if !sc.Progress.Has(ProgressInsertMarks) {
		return
	}
	if sc.Stats.Objects%15 == 0 {
		if sc.sinceMark > 0 {
			fmt.Fprintf(sc.Out, "%1x", sc.sinceMark)
		} else {
			fmt.Fprint(sc.Out, ".")
		}
		sc.sinceMark = 0
	}
	if sc.Stats.Objects%1500 == 0 {
		if withPrior {
			fmt.Fprintf(sc.Out, " %015d %015d\n", sc.Stats.Objects, sc.Stats.Fingerprinted)
		} else {
			fmt.Fprintf(sc.Out, " %015d\n", sc.Stats.Objects)
		}
	}
}

// endMarks terminates any partial line of progress marks.
func (sc *ScanContext) endMarks(flag Progress) {
	if sc.Progress.Has(flag) {
		fmt.Fprintln(sc.Out)
	}
}
