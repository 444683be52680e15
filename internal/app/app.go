package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dsum-go/internal/compare"
	"dsum-go/internal/config"
	"dsum-go/internal/database"
	"dsum-go/internal/digest"
	"dsum-go/internal/dsum"
	"dsum-go/internal/encryption"
	"dsum-go/internal/fs"
	"dsum-go/internal/predicate"
	"dsum-go/internal/vault"
)

// Options adjusts how a DSApp is wired.
type Options struct {
	Verbose bool       // log at debug level regardless of config
	Console io.Writer  // also receives log lines; nil for the log file only
	WorkDir string     // directory holding .dircsum; "" for the process working directory
	Clock   dsum.Clock // nil for the real clock
}

// DSApp is the application layer between the CLI and dsum.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and closes the log on Close.
type DSApp struct {
	cfg       *config.Config
	store     *database.SQLiteStore
	fsmgr     *fs.OSFilesystemManager
	vault     dsum.Vault
	encryptor dsum.Encryptor
	service   *dsum.Service
	logger    dsum.Logger
	clock     dsum.Clock
	op        *Operation
	logFile   *os.File
	workDir   string
}

// NewDSApp creates a fully wired DSApp from the given config.
// operation identifies the CLI command being run (e.g. "scan", "compare").
// The caller must call Close when done.
func NewDSApp(cfg *config.Config, operation, parameters string, opts Options) (*DSApp, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	clock := opts.Clock
	if clock == nil {
		clock = dsum.RealClock{}
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("determining working directory: %w", err)
		}
	}

	var v dsum.Vault
	if len(cfg.Vaults) > 0 {
		if v, err = vault.NewVaultFromConfig(cfg.Vaults[0]); err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	op := NewOperation(operation, parameters, clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, level, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store := database.NewSQLiteStore(logger)
	fsmgr := fs.NewOSFilesystemManager()
	accounts := fs.NewFileAccountSource(fs.PasswdPath, fs.GroupPath)
	svc := dsum.NewService(store, fsmgr, accounts, v, enc, logger, clock, dsum.UUIDGenerator{})

	logger.Debug("operation started", "operation", operation, "parameters", parameters)
	return &DSApp{
		cfg:       cfg,
		store:     store,
		fsmgr:     fsmgr,
		vault:     v,
		encryptor: enc,
		service:   svc,
		logger:    logger,
		clock:     clock,
		op:        op,
		logFile:   logFile,
		workDir:   workDir,
	}, nil
}

// ScanRequest holds the scan command's arguments after flag parsing.
type ScanRequest struct {
	Dir         string // directory to scan; "" selects convention mode when .dircsum exists
	Output      string // snapshot to write; chosen automatically in convention mode
	Prior       string // prior snapshot; defaults to the newest in convention mode
	Convention  bool   // force convention mode
	Checksum    string
	Reuse       dsum.ReuseCriteria
	Features    dsum.Features
	Progress    dsum.Progress
	ProgressOut io.Writer
}

// Scan resolves the scan root, output and prior snapshot, then writes one snapshot.
func (a *DSApp) Scan(req ScanRequest) (*dsum.ScanResult, error) {
	res, err := a.scan(req)
	return res, a.op.Fail(err)
}

func (a *DSApp) scan(req ScanRequest) (*dsum.ScanResult, error) {
	scheme, err := digest.ParseScheme(req.Checksum)
	if err != nil {
		return nil, err
	}

	catalog := dsum.NewCatalog(a.workDir)
	convention := req.Convention || (req.Dir == "" && catalog.Exists())
	root, output, prior := req.Dir, req.Output, req.Prior
	if convention {
		if req.Dir != "" {
			return nil, dsum.NewConfigError("a directory cannot be named in convention mode")
		}
		if req.Output != "" {
			return nil, dsum.NewConfigError("the output snapshot is chosen automatically in convention mode")
		}
		if err := catalog.Ensure(); err != nil {
			return nil, err
		}
		root = a.workDir
		output = catalog.NewPath(a.clock.Now())
		if prior == "" {
			if prior, err = catalog.Latest(); err != nil {
				return nil, err
			}
		}
	} else {
		if root == "" {
			return nil, dsum.NewConfigError("no directory to scan")
		}
		if output == "" {
			return nil, dsum.NewConfigError("no output snapshot given")
		}
	}

	root, err = a.fsmgr.ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	output, err = resolveOutput(output)
	if err != nil {
		return nil, err
	}

	ignore, err := fs.LoadIgnoreMatcher(root, a.cfg.Scan.Ignore)
	if err != nil {
		return nil, err
	}
	if convention {
		ignore.Exclude(dsum.ConventionDir)
	}
	if rel, err := filepath.Rel(root, output); err == nil && !strings.HasPrefix(rel, "..") {
		ignore.Exclude(rel)
		ignore.Exclude(rel + database.PartialSuffix)
	}

	hostID := a.cfg.HostID
	if hostID == "" {
		hostID, _ = os.Hostname()
	}

	a.logger.Info("scan starting", "root", root, "output", output, "prior", prior, "checksum", scheme)
	res, err := a.service.Scan(dsum.ScanOptions{
		Root:           root,
		Output:         output,
		Prior:          prior,
		Digester:       digest.NewProvider(scheme, a.fsmgr),
		Reuse:          req.Reuse,
		Features:       req.Features,
		Progress:       req.Progress,
		ProgressOut:    req.ProgressOut,
		Ignore:         ignore,
		HostID:         hostID,
		ConventionMode: convention,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("scan complete",
		"output", res.Path,
		"objects", res.Stats.Objects,
		"read", humanize.IBytes(uint64(res.Stats.BytesFingerprinted)),
		"elapsed", res.Elapsed)
	return res, nil
}

// resolveOutput makes a snapshot path absolute with its directory free of symlinks.
func resolveOutput(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving output path: %w", err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// CompareRequest holds the compare command's arguments after flag parsing.
type CompareRequest struct {
	Args        []string // zero, one or two snapshots
	Terms       []string // search terms in order
	Columns     string
	Titles      bool
	EncodeNames bool
	Prefix      bool
	PrintPrefix bool
	Dups        bool
	DiffDB      string // difference database to write, "" for none
	DiffObjects bool   // keep both snapshots' objects in the difference database
}

// CompareSummary reports what one comparison did.
type CompareSummary struct {
	Left       string
	Right      string
	HashUsable bool
	Considered int
	Selected   int
}

// Compare writes the comparison report for two snapshots to out. Prefix
// reports go to info. All option errors are returned before any snapshot
// is opened.
func (a *DSApp) Compare(req CompareRequest, out, info io.Writer) (*CompareSummary, error) {
	sum, err := a.compare(req, out, info)
	return sum, a.op.Fail(err)
}

func (a *DSApp) compare(req CompareRequest, out, info io.Writer) (*CompareSummary, error) {
	terms, err := predicate.Parse(req.Terms)
	if err != nil {
		return nil, err
	}
	eval, err := predicate.Compile(terms)
	if err != nil {
		return nil, err
	}
	cols, err := compare.ParseColumns(req.Columns)
	if err != nil {
		return nil, err
	}
	rw, err := compare.NewReportWriter(out, compare.ReportOptions{
		Columns:     cols,
		Titles:      req.Titles,
		EncodeNames: req.EncodeNames,
		Dups:        req.Dups,
	})
	if err != nil {
		return nil, err
	}
	if req.DiffObjects && req.DiffDB == "" {
		return nil, dsum.NewConfigError("object data in the difference database requires an output path")
	}
	if req.DiffDB != "" {
		if _, err := os.Stat(req.DiffDB); err == nil {
			return nil, dsum.NewConfigError("difference database already exists: %s", req.DiffDB)
		}
	}

	var leftPath, rightPath string
	switch len(req.Args) {
	case 2:
		leftPath, rightPath = req.Args[0], req.Args[1]
	case 0, 1:
		if leftPath, rightPath, err = dsum.NewCatalog(a.workDir).ComparePair(req.Args); err != nil {
			return nil, err
		}
	default:
		return nil, dsum.NewConfigError("at most two snapshots can be compared")
	}

	left, err := a.loadSnapshot(leftPath, req.Prefix)
	if err != nil {
		return nil, err
	}
	right, err := a.loadSnapshot(rightPath, req.Prefix)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("snapshots loaded",
		"left", leftPath, "leftFiles", left.Len(), "leftPrefix", left.Prefix,
		"right", rightPath, "rightFiles", right.Len(), "rightPrefix", right.Prefix)
	if req.Prefix && req.PrintPrefix && info != nil {
		fmt.Fprintf(info, "%s Prefix: %q\n", compare.Left, left.Prefix)
		fmt.Fprintf(info, "%s Prefix: %q\n", compare.Right, right.Prefix)
	}

	res, err := compare.Compare(left, right, compare.Options{
		Evaluator: eval,
		Dups:      req.Dups,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, row := range res.Rows {
		if err := rw.WriteRow(row); err != nil {
			return nil, fmt.Errorf("writing report: %w", err)
		}
	}

	if req.DiffDB != "" {
		if err := a.writeDiffDB(req.DiffDB, req.DiffObjects, res); err != nil {
			return nil, err
		}
	}

	a.logger.Info("compare complete",
		"left", leftPath, "right", rightPath,
		"considered", res.Considered, "selected", len(res.Rows))
	return &CompareSummary{
		Left:       leftPath,
		Right:      rightPath,
		HashUsable: res.HashUsable,
		Considered: res.Considered,
		Selected:   len(res.Rows),
	}, nil
}

func (a *DSApp) loadSnapshot(path string, prefix bool) (*compare.Snapshot, error) {
	r, err := a.store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer r.Close()
	return compare.Load(path, r, prefix)
}

func (a *DSApp) writeDiffDB(path string, withObjects bool, res *compare.Result) error {
	rows := make([]database.DiffRow, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = database.DiffRow{
			Side:    r.Origin.String(),
			H:       r.Column(predicate.ColHash),
			NL:      r.Column(predicate.ColLeftCount),
			NR:      r.Column(predicate.ColRightCount),
			CT:      r.Column(predicate.ColCtime),
			MT:      r.Column(predicate.ColMtime),
			SZ:      r.Column(predicate.ColSize),
			Hash:    r.Column(predicate.ColChecksum),
			RelPath: r.Path,
		}
	}
	meta := map[string]string{
		"leftFile":    res.Left.Path,
		"rightFile":   res.Right.Path,
		"leftCsum":    res.Left.Scheme,
		"rightCsum":   res.Right.Scheme,
		"leftPrefix":  res.Left.Prefix,
		"rightPrefix": res.Right.Prefix,
		"created":     a.clock.Now().UTC().Format(time.RFC3339),
	}
	opts := database.DiffOptions{
		LeftSnapshot:  res.Left.Path,
		RightSnapshot: res.Right.Path,
		WithObjects:   withObjects,
	}
	if err := database.WriteDifferenceDatabase(path, meta, rows, opts); err != nil {
		return fmt.Errorf("writing difference database: %w", err)
	}
	a.logger.Info("difference database written", "path", path, "rows", len(rows))
	return nil
}

// SnapshotInfo summarizes one snapshot of the convention directory.
type SnapshotInfo struct {
	Path      string
	Size      int64
	Scheme    string
	Objects   int64
	Files     int64
	Errors    int64
	ScanStart time.Time
}

// ListSnapshots describes the convention directory's snapshots, oldest first.
func (a *DSApp) ListSnapshots() ([]SnapshotInfo, error) {
	catalog := dsum.NewCatalog(a.workDir)
	if !catalog.Exists() {
		return nil, a.op.Fail(dsum.NewConfigError("missing %s directory", catalog.Dir()))
	}
	paths, err := catalog.List()
	if err != nil {
		return nil, a.op.Fail(err)
	}
	infos := make([]SnapshotInfo, 0, len(paths))
	for _, p := range paths {
		info, err := a.describe(p)
		if err != nil {
			a.logger.Warn("unreadable snapshot", "path", p, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (a *DSApp) describe(path string) (SnapshotInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	r, err := a.store.Open(path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	defer r.Close()
	meta, err := r.Meta()
	if err != nil {
		return SnapshotInfo{}, err
	}
	return SnapshotInfo{
		Path:      path,
		Size:      st.Size(),
		Scheme:    meta[dsum.MetaChecksum],
		Objects:   dsum.MetaInt(meta, dsum.MetaObjects),
		Files:     dsum.MetaInt(meta, dsum.MetaRegularFiles),
		Errors:    dsum.MetaInt(meta, dsum.MetaScanErrors),
		ScanStart: time.Unix(dsum.MetaInt(meta, dsum.MetaScanStart), 0),
	}, nil
}

// Schema returns the DDL a snapshot with the given features would use.
func (a *DSApp) Schema(f dsum.Features) (string, error) {
	return database.SchemaSQL(f)
}

// SetupKeys generates the archive encryption key pair.
func (a *DSApp) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return a.op.Fail(dsum.NewConfigError("encryption is disabled in the configuration"))
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return a.op.Fail(fmt.Errorf("setting up encryption keys: %w", err))
	}
	a.logger.Info("encryption keys created", "public", a.cfg.Encryption.PublicKeyPath)
	return nil
}

// PushSnapshot archives a snapshot; "" selects the newest in the convention directory.
func (a *DSApp) PushSnapshot(path string) (string, error) {
	if path == "" {
		latest, err := dsum.NewCatalog(a.workDir).Latest()
		if err != nil {
			return "", a.op.Fail(err)
		}
		if latest == "" {
			return "", a.op.Fail(dsum.NewConfigError("no snapshot given and none found in %s", dsum.ConventionDir))
		}
		path = latest
	}
	name, err := a.service.PushSnapshot(path)
	return name, a.op.Fail(err)
}

// PullSnapshot restores an archived snapshot. dest "" restores into the
// working directory under the archived name without its encryption suffix.
func (a *DSApp) PullSnapshot(name, dest string, passphrase func() (string, error)) (string, error) {
	if dest == "" {
		dest = filepath.Join(a.workDir, strings.TrimSuffix(name, dsum.EncryptedSuffix))
	}
	return dest, a.op.Fail(a.service.PullSnapshot(name, dest, passphrase))
}

// ListArchived returns the names held by the configured vault.
func (a *DSApp) ListArchived() ([]string, error) {
	names, err := a.service.ListArchived()
	return names, a.op.Fail(err)
}

// Close logs the operation outcome and closes the log file.
func (a *DSApp) Close() error {
	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"elapsed", a.op.Elapsed(a.clock.Now()).Round(time.Millisecond))
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
