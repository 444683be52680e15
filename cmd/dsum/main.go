package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dsum-go/internal/app"
	"dsum-go/internal/config"
	"dsum-go/internal/dsum"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	verbose bool
	stdin   = bufio.NewReader(os.Stdin)
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a DSApp. The caller must defer app.Close().
// A missing config file leaves every setting at its default.
func newApp(operation string, args []string) (*app.DSApp, *config.Config, error) {
	cfg, _, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	a, err := newAppFromConfig(cfg, operation, args)
	return a, cfg, err
}

func newAppFromConfig(cfg *config.Config, operation string, args []string) (*app.DSApp, error) {
	opts := app.Options{Verbose: verbose}
	if verbose {
		opts.Console = os.Stderr
	}
	a, err := app.NewDSApp(cfg, operation, strings.Join(args, " "), opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on stderr and reads without echo from a terminal,
// or a single line when stdin is redirected.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:          "dsum",
	Short:        "Directory tree inventory and comparison",
	SilenceUsage: true,
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [DIR]",
	Short: "Write a snapshot of a directory tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		flags := cmd.Flags()

		features := dsum.Features{
			Blocks:    cfg.Scan.Schema.Blocks,
			Device:    cfg.Scan.Schema.Device,
			Extension: cfg.Scan.Schema.Extension,
		}
		if flags.Changed("blocks") {
			features.Blocks, _ = flags.GetBool("blocks")
		}
		if flags.Changed("device") {
			features.Device, _ = flags.GetBool("device")
		}
		if flags.Changed("extension") {
			features.Extension, _ = flags.GetBool("extension")
		}

		a, err := newAppFromConfig(cfg, "scan", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if schema, _ := flags.GetBool("schema"); schema {
			ddl, err := a.Schema(features)
			if err != nil {
				return err
			}
			fmt.Println(ddl)
			return nil
		}

		req := app.ScanRequest{
			Checksum: cfg.Scan.Checksum,
			Reuse: dsum.ReuseCriteria{
				Size:  cfg.Scan.ReuseSize,
				Mtime: cfg.Scan.ReuseMtime,
				Ctime: cfg.Scan.ReuseCtime,
			},
			Features:    features,
			Progress:    dsum.Progress(cfg.Scan.Progress),
			ProgressOut: os.Stderr,
		}
		if len(args) > 0 {
			req.Dir = args[0]
		}
		req.Output, _ = flags.GetString("output")
		req.Prior, _ = flags.GetString("prior")
		req.Convention, _ = flags.GetBool("convention")
		if flags.Changed("checksum") {
			req.Checksum, _ = flags.GetString("checksum")
		}
		if flags.Changed("reuse-size") {
			req.Reuse.Size, _ = flags.GetBool("reuse-size")
		}
		if flags.Changed("reuse-mtime") {
			req.Reuse.Mtime, _ = flags.GetBool("reuse-mtime")
		}
		if flags.Changed("reuse-ctime") {
			req.Reuse.Ctime, _ = flags.GetBool("reuse-ctime")
		}
		if flags.Changed("progress") {
			p, _ := flags.GetInt("progress")
			req.Progress = dsum.Progress(p)
		}

		res, err := a.Scan(req)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Snapshot: %s\n", res.Path)
		fmt.Printf("Objects: %d (%d files, %d fingerprinted, %d reused, %s read)\n",
			res.Stats.Objects,
			res.Stats.RegularFiles,
			res.Stats.Fingerprinted,
			res.Stats.Reused,
			humanize.IBytes(uint64(res.Stats.BytesFingerprinted)),
		)
		if res.ErrorsLen > 0 {
			fmt.Printf("Errors: %d (see the serrors table)\n", res.ErrorsLen)
		}
		return nil
	},
}

// compare command
var compareCmd = &cobra.Command{
	Use:   "compare [LEFT [RIGHT]]",
	Short: "Report differences between two snapshots",
	Args:  cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, err := newApp("compare", args)
		if err != nil {
			return err
		}
		defer a.Close()

		flags := cmd.Flags()
		req := app.CompareRequest{
			Args:        args,
			Columns:     cfg.Compare.Columns,
			Titles:      cfg.Compare.Titles,
			EncodeNames: cfg.Compare.EncodeNames,
			Prefix:      cfg.Compare.Prefix,
			PrintPrefix: cfg.Compare.PrintPrefix,
		}
		req.Terms, _ = flags.GetStringArray("search")
		req.Dups, _ = flags.GetBool("dups")
		req.DiffDB, _ = flags.GetString("output")
		req.DiffObjects, _ = flags.GetBool("objects-in-diff")
		if flags.Changed("cols") {
			req.Columns, _ = flags.GetString("cols")
		}
		if flags.Changed("titles") {
			req.Titles, _ = flags.GetBool("titles")
		}
		if flags.Changed("encode-names") {
			req.EncodeNames, _ = flags.GetBool("encode-names")
		}
		if flags.Changed("prefix") {
			req.Prefix, _ = flags.GetBool("prefix")
		}
		if flags.Changed("print-prefix") {
			req.PrintPrefix, _ = flags.GetBool("print-prefix")
		}

		w := bufio.NewWriter(os.Stdout)
		defer w.Flush()
		if _, err := a.Compare(req, w, os.Stderr); err != nil {
			return fmt.Errorf("compare failed: %w", err)
		}
		return nil
	},
}

// snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots in the convention directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("snapshots", args)
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.ListSnapshots()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots found.")
			return nil
		}

		for _, s := range infos {
			fmt.Printf("%s  %s  %-6s  %8d objects  %8d files  %4d errors  %s\n",
				filepath.Base(s.Path),
				s.ScanStart.Format("2006-01-02 15:04:05"),
				s.Scheme,
				s.Objects,
				s.Files,
				s.Errors,
				humanize.IBytes(uint64(s.Size)),
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Log Level:  %s\n", cfg.LogLevel)
		fmt.Printf("Checksum:   %s\n", cfg.Scan.Checksum)
		fmt.Printf("Reuse:      size=%t mtime=%t ctime=%t\n", cfg.Scan.ReuseSize, cfg.Scan.ReuseMtime, cfg.Scan.ReuseCtime)
		fmt.Printf("Schema:     blocks=%t device=%t extension=%t\n", cfg.Scan.Schema.Blocks, cfg.Scan.Schema.Device, cfg.Scan.Schema.Extension)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s) %s\n", v.Name, v.Type, v.FSVaultRoot)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the archive encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, err := newApp("keys", args)
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		again, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != again {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupKeys(pass); err != nil {
			return err
		}
		fmt.Printf("Public key: %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy snapshots to and from the vault",
}

var archivePushCmd = &cobra.Command{
	Use:   "push [SNAPSHOT]",
	Short: "Archive a snapshot (default: the newest in .dircsum)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("push", args)
		if err != nil {
			return err
		}
		defer a.Close()

		var path string
		if len(args) > 0 {
			path = args[0]
		}
		name, err := a.PushSnapshot(path)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		fmt.Printf("Archived as %s\n", name)
		return nil
	},
}

var archivePullCmd = &cobra.Command{
	Use:   "pull NAME [DEST]",
	Short: "Restore an archived snapshot",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("pull", args)
		if err != nil {
			return err
		}
		defer a.Close()

		var dest string
		if len(args) > 1 {
			dest = args[1]
		}
		dest, err = a.PullSnapshot(args[0], dest, func() (string, error) {
			return readPassphrase("Passphrase: ")
		})
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		fmt.Printf("Restored %s\n", dest)
		return nil
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp("list", args)
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.ListArchived()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No archived snapshots.")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level and echo log lines to stderr")

	// scan flags
	scanCmd.Flags().StringP("output", "o", "", "Snapshot file to write")
	scanCmd.Flags().StringP("prior", "u", "", "Prior snapshot for checksum reuse")
	scanCmd.Flags().BoolP("convention", "U", false, "Use the .dircsum convention directory")
	scanCmd.Flags().StringP("checksum", "c", "sha256", "Checksum scheme: sha256, sha1, md5, 1k, name or nil")
	scanCmd.Flags().Bool("reuse-size", true, "Reuse prior checksums only when the size is unchanged")
	scanCmd.Flags().Bool("reuse-mtime", true, "Reuse prior checksums only when the modify time is unchanged")
	scanCmd.Flags().Bool("reuse-ctime", true, "Reuse prior checksums only when the change time is unchanged")
	scanCmd.Flags().IntP("progress", "p", int(dsum.DefaultProgress), "Progress bitmask")
	scanCmd.Flags().Bool("blocks", false, "Record block counts and block size")
	scanCmd.Flags().Bool("device", false, "Record device ids")
	scanCmd.Flags().Bool("extension", true, "Record normalized file extensions")
	scanCmd.Flags().Bool("schema", false, "Print the snapshot schema and exit")

	// compare flags
	compareCmd.Flags().StringArrayP("search", "s", nil, "Search term, in postfix order (repeatable)")
	compareCmd.Flags().String("cols", "", "Comma separated columns: NL,NR,H,CT,MT,SZ,HASH,NAME")
	compareCmd.Flags().Bool("titles", true, "Print a title line")
	compareCmd.Flags().Bool("encode-names", false, "Quote file names")
	compareCmd.Flags().Bool("prefix", true, "Strip the common path prefix from names")
	compareCmd.Flags().Bool("print-prefix", false, "Report the stripped prefixes on stderr")
	compareCmd.Flags().Bool("dups", false, "List files sharing each row's checksum")
	compareCmd.Flags().StringP("output", "o", "", "Write a difference database")
	compareCmd.Flags().Bool("objects-in-diff", false, "Keep both snapshots' objects in the difference database")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// archive subcommands
	archiveCmd.AddCommand(archivePushCmd)
	archiveCmd.AddCommand(archivePullCmd)
	archiveCmd.AddCommand(archiveListCmd)

	// root commands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(archiveCmd)
}
