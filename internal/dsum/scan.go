package dsum

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"
)

// ScanOptions configures one scan run.
type ScanOptions struct {
	Root           string // absolute, symlink-free scan root
	Output         string // final snapshot path
	Prior          string // prior snapshot for reuse decisions, "" for none
	Digester       Digester
	Reuse          ReuseCriteria
	Features       Features
	Progress       Progress
	ProgressOut    io.Writer
	Ignore         Matcher
	HostID         string
	ConventionMode bool
}

// ScanResult summarizes a committed snapshot.
type ScanResult struct {
	Path      string
	RunID     string
	Scheme    string
	Prior     string
	Stats     ScanStats
	ErrorsLen int
	Elapsed   time.Duration
}

// Scan walks opts.Root and writes one snapshot to opts.Output. Everything
// is written inside one transaction: on a fatal error nothing appears at
// opts.Output. Per-entry failures are recorded in the snapshot's error log.
func (s *Service) Scan(opts ScanOptions) (*ScanResult, error) {
	if opts.Digester == nil {
		return nil, NewConfigError("no checksum scheme selected")
	}
	if opts.Output == "" {
		return nil, NewConfigError("no output snapshot path")
	}

	sc := NewScanContext(opts.Progress, opts.ProgressOut, s.logger, s.clock)
	processStart := s.clock.Now()
	runID := s.idgen.New()

	policy, prior, err := s.loadPrior(opts)
	if err != nil {
		return nil, err
	}

	w, err := s.store.Create(opts.Output, opts.Features)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			w.Abort()
		}
	}()

	mw := &metaBatch{w: w}
	mw.putTime(MetaProcessStart, processStart)
	mw.put(MetaBlocksFlag, FormatBool(opts.Features.Blocks))
	mw.put(MetaDeviceFlag, FormatBool(opts.Features.Device))
	mw.put(MetaExtensionFlag, FormatBool(opts.Features.Extension))
	mw.put(MetaChecksum, opts.Digester.Scheme())
	mw.put(MetaEngine, Engine)
	mw.put(MetaEngineVersion, EngineVersion)
	mw.put(MetaRunID, runID)
	mw.put(MetaHostID, opts.HostID)
	mw.put(MetaDircsumMode, FormatBool(opts.ConventionMode))
	mw.put(MetaOutputFile, opts.Output)
	mw.put(MetaPriorFile, prior)
	mw.put(MetaPriorSize, FormatBool(opts.Reuse.Size))
	mw.put(MetaPriorMtime, FormatBool(opts.Reuse.Mtime))
	mw.put(MetaPriorCtime, FormatBool(opts.Reuse.Ctime))
	mw.putInt(MetaProgress, int64(opts.Progress))
	mw.put(MetaScanRoot, opts.Root)
	mw.put(MetaScanRootDir, filepath.Dir(opts.Root))
	mw.put(MetaScanRootName, filepath.Base(opts.Root))
	if mw.err != nil {
		return nil, fmt.Errorf("writing metadata: %w", mw.err)
	}

	sc.phase("Starting scan: %s", opts.Root)
	sc.phase("Collecting scan meta data")
	if err := s.dumpAccounts(w, mw); err != nil {
		return nil, err
	}

	sc.phase("Scan Starting")
	mw.putTime(MetaScanStart, s.clock.Now())
	tree, err := NewWalker(s.fsmgr, opts.Ignore).Walk(sc, opts.Root)
	if err != nil {
		return nil, err
	}
	mw.putTime(MetaScanFinish, s.clock.Now())
	sc.endMarks(ProgressWalkMarks)

	sc.phase("CSUM & DB Write Starting")
	mw.putTime(MetaFilesStart, s.clock.Now())
	for i := range tree.Records {
		rec := &tree.Records[i]
		s.fingerprint(sc, policy, opts.Digester, rec)
		if opts.Features.Extension {
			rec.Extension = NormalizeExtension(rec.Name)
		}
		if err := w.PutRecord(rec); err != nil {
			return nil, fmt.Errorf("writing record %d: %w", rec.ID, err)
		}
		sc.Stats.Objects++
		sc.recordInserted(policy.HasPrior())
	}
	for _, e := range sc.Errors {
		if err := w.PutError(e); err != nil {
			return nil, fmt.Errorf("writing scan error: %w", err)
		}
	}
	mw.putTime(MetaFilesFinish, s.clock.Now())
	sc.endMarks(ProgressInsertMarks)
	sc.endMarks(ProgressReasons)

	st := sc.Stats
	mw.putInt(MetaFingerprinted, st.Fingerprinted)
	mw.putInt(MetaBytesFingerprinted, st.BytesFingerprinted)
	mw.putInt(MetaBytes1K, st.Bytes1K)
	mw.putInt(MetaObjects, st.Objects)
	mw.putInt(MetaRegularFiles, st.RegularFiles)
	mw.putInt(MetaDirectories, st.Directories)
	mw.putInt(MetaSymlinks, st.Symlinks)
	mw.putInt(MetaOther, st.Other)
	mw.putInt(MetaReused, st.Reused)
	mw.putInt(MetaScanErrors, int64(len(sc.Errors)))
	processEnd := s.clock.Now()
	mw.putTime(MetaProcessEnd, processEnd)
	if mw.err != nil {
		return nil, fmt.Errorf("writing metadata: %w", mw.err)
	}

	if err := w.Commit(); err != nil {
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}
	committed = true
	sc.phase("Processing Complete")

	s.logger.Info("snapshot written",
		"path", opts.Output,
		"objects", st.Objects,
		"fingerprinted", st.Fingerprinted,
		"reused", st.Reused,
		"errors", len(sc.Errors))

	return &ScanResult{
		Path:      opts.Output,
		RunID:     runID,
		Scheme:    opts.Digester.Scheme(),
		Prior:     prior,
		Stats:     st,
		ErrorsLen: len(sc.Errors),
		Elapsed:   processEnd.Sub(processStart),
	}, nil
}

// loadPrior builds the fingerprint policy. It returns the prior snapshot
// actually used, which is empty when none was given or its scheme differs.
func (s *Service) loadPrior(opts ScanOptions) (*FingerprintPolicy, string, error) {
	if opts.Prior == "" {
		return NewFingerprintPolicy(nil, opts.Reuse), "", nil
	}

	r, err := s.store.Open(opts.Prior)
	if err != nil {
		return nil, "", fmt.Errorf("opening prior snapshot: %w", err)
	}
	defer r.Close()

	meta, err := r.Meta()
	if err != nil {
		return nil, "", fmt.Errorf("reading prior snapshot metadata: %w", err)
	}
	if scheme := meta[MetaChecksum]; scheme != opts.Digester.Scheme() {
		s.logger.Warn("prior snapshot checksum differs, reuse disabled",
			"prior", opts.Prior, "priorScheme", scheme, "scheme", opts.Digester.Scheme())
		return NewFingerprintPolicy(nil, opts.Reuse), "", nil
	}

	entries, err := r.RegularFiles()
	if err != nil {
		return nil, "", fmt.Errorf("reading prior snapshot: %w", err)
	}
	s.logger.Debug("prior snapshot loaded", "prior", opts.Prior, "files", len(entries))
	return NewFingerprintPolicy(NewPriorIndex(entries), opts.Reuse), opts.Prior, nil
}

// fingerprint fills rec.Fingerprint according to its type.
func (s *Service) fingerprint(sc *ScanContext, policy *FingerprintPolicy, d Digester, rec *Record) {
	switch rec.Type {
	case TypeRegular:
		sc.Stats.RegularFiles++
		reason, prior := policy.Decide(rec)
		sc.reasonDecided(reason, rec.Path)
		if reason == ReasonReuse {
			sc.Stats.Reused++
			rec.Fingerprint = prior
			return
		}
		sc.Stats.Fingerprinted++
		sc.Stats.BytesFingerprinted += rec.Size
		sc.Stats.Bytes1K += min(rec.Size, 1024)
		fp, err := d.Fingerprint(rec.Path)
		if err != nil {
			rec.Fingerprint = FingerprintError
			sc.AddError(rec.ID, rec.Path, "Failed to compute checksum", err)
			return
		}
		rec.Fingerprint = fp
	case TypeDirectory:
		sc.Stats.Directories++
		rec.Fingerprint = rec.RelPath
	case TypeSymlink:
		sc.Stats.Symlinks++
		target, err := s.fsmgr.Readlink(rec.Path)
		if err != nil {
			rec.Fingerprint = FingerprintError
			sc.AddError(rec.ID, rec.Path, "Failed to read link", err)
			return
		}
		rec.Fingerprint = target
	default:
		sc.Stats.Other++
		rec.Fingerprint = ""
	}
}

// dumpAccounts copies the platform user and group databases into the
// snapshot. Group membership includes primary groups.
func (s *Service) dumpAccounts(w SnapshotWriter, mw *metaBatch) error {
	if s.accounts == nil {
		return nil
	}

	mw.putTime(MetaUsersStart, s.clock.Now())
	users, err := s.accounts.Users()
	if err != nil {
		s.logger.Warn("reading user database", "error", err)
	}
	uidByName := make(map[string]int64, len(users))
	primary := make(map[int64][]int64)
	for _, u := range users {
		if err := w.PutUser(u); err != nil {
			return fmt.Errorf("writing user %s: %w", u.Name, err)
		}
		uidByName[u.Name] = u.UID
		primary[u.PrimaryGID] = append(primary[u.PrimaryGID], u.UID)
	}
	mw.putTime(MetaUsersFinish, s.clock.Now())

	mw.putTime(MetaGroupsStart, s.clock.Now())
	groups, err := s.accounts.Groups()
	if err != nil {
		s.logger.Warn("reading group database", "error", err)
	}
	for _, g := range groups {
		if err := w.PutGroup(g); err != nil {
			return fmt.Errorf("writing group %s: %w", g.Name, err)
		}
		members := append([]int64{}, primary[g.GID]...)
		for _, name := range g.Members {
			if uid, ok := uidByName[name]; ok {
				members = append(members, uid)
			}
		}
		seen := make(map[int64]bool, len(members))
		for _, uid := range members {
			if seen[uid] {
				continue
			}
			seen[uid] = true
			if err := w.PutMembership(g.GID, uid); err != nil {
				return fmt.Errorf("writing membership %d/%d: %w", g.GID, uid, err)
			}
		}
	}
	mw.putTime(MetaGroupsFinish, s.clock.Now())
	return mw.err
}

// metaBatch writes metadata and keeps the first error.
type metaBatch struct {
	w   SnapshotWriter
	err error
}

func (m *metaBatch) put(key, value string) {
	if m.err != nil {
		return
	}
	if err := m.w.PutMeta(key, value); err != nil {
		m.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (m *metaBatch) putInt(key string, v int64) { m.put(key, strconv.FormatInt(v, 10)) }

func (m *metaBatch) putTime(key string, t time.Time) { m.putInt(key, t.Unix()) }
