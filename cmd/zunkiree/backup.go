package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"zunkiree/internal/config"
	"zunkiree/internal/querylog"
)

// A backup archive starts with manifest.json, followed by one flat entry per
// role listed in it. Restore rejects anything the manifest does not name.
const (
	manifestName   = "manifest.json"
	manifestFormat = 1

	roleConfig   = "config"
	roleQueryLog = "querylog"
	roleEnv      = "env"
)

type backupManifest struct {
	Format    int           `json:"format"`
	Version   string        `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	SiteID    string        `json:"site_id,omitempty"`
	Queries   int           `json:"queries"`
	Entries   []backupEntry `json:"entries"`
}

type backupEntry struct {
	Role string `json:"role"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (m *backupManifest) entry(role string) (backupEntry, bool) {
	for _, e := range m.Entries {
		if e.Role == role {
			return e, true
		}
	}
	return backupEntry{}, false
}

// backupPaths are the live locations of the files a backup covers.
type backupPaths struct {
	Config   string
	QueryLog string
	Env      string
}

func currentBackupPaths() backupPaths {
	cfgPath := config.ExpandPath(resolveConfigPath())
	return backupPaths{Config: cfgPath, QueryLog: resolveDBPath(cfgPath), Env: envFile}
}

func backupCmd() *cobra.Command {
	var (
		outputPath string
		noEnv      bool
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the config file, query log and .env",
		Long: `Writes a .tar.gz holding the config file, a consistent snapshot of the
query log and the .env file of the current directory, described by a
manifest. The query log is copied with SQLite's VACUUM INTO, so a chat
session may keep writing while the backup runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := currentBackupPaths()
			if noEnv {
				src.Env = ""
			}
			if outputPath == "" {
				dir := filepath.Join(config.DefaultConfigDir(), "backups")
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				outputPath = filepath.Join(dir, "zunkiree-backup-"+time.Now().Format("20060102-150405")+".tar.gz")
			}

			m, err := writeBackup(cmd.Context(), outputPath, src)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			fmt.Printf("Backup created: %s\n", outputPath)
			printManifest(m)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "archive path (default: ~/.zunkiree/backups/zunkiree-backup-<time>.tar.gz)")
	cmd.Flags().BoolVar(&noEnv, "no-env", false, "leave the .env file out")
	return cmd
}

func restoreCmd() *cobra.Command {
	var (
		inputPath string
		force     bool
		withEnv   bool
	)
	cmd := &cobra.Command{
		Use:   "restore [file.tar.gz]",
		Short: "Restore the config file and query log from a backup archive",
		Long: `Unpacks a backup into a staging directory and checks it first: the config
must load and validate, and the query log must open with the record count
the manifest promises. Live files are replaced only after every check
passes. The .env entry is restored only with --env.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" && len(args) > 0 {
				inputPath = args[0]
			}
			if inputPath == "" {
				return fmt.Errorf("specify a backup file: zunkiree restore <file.tar.gz>")
			}
			dst := currentBackupPaths()
			if !withEnv {
				dst.Env = ""
			}
			if !force {
				if existing := existingFiles(dst); len(existing) > 0 {
					fmt.Println("Restore would overwrite:")
					for _, f := range existing {
						fmt.Printf("  %s\n", f)
					}
					return fmt.Errorf("restore aborted (use --force to proceed)")
				}
			}

			m, restored, err := restoreBackup(cmd.Context(), inputPath, dst)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Printf("Restored from %s (created %s by zunkiree %s)\n",
				inputPath, m.CreatedAt.Local().Format(time.DateTime), m.Version)
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "backup file to restore from")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	cmd.Flags().BoolVar(&withEnv, "env", false, "also restore the archived .env into the current directory")
	return cmd
}

// resolveDBPath returns the query log path from the config at cfgPath, or
// the default location when the config cannot be read.
func resolveDBPath(cfgPath string) string {
	if cfg, _, err := config.LoadOrDefault(cfgPath); err == nil && cfg.QueryLog.DBPath != "" {
		return cfg.QueryLog.DBPath
	}
	return config.ExpandPath(config.Defaults().QueryLog.DBPath)
}

func writeBackup(ctx context.Context, archivePath string, src backupPaths) (*backupManifest, error) {
	staging, err := os.MkdirTemp("", "zunkiree-backup-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	m := &backupManifest{Format: manifestFormat, Version: version, CreatedAt: time.Now().UTC()}
	sources := map[string]string{}
	add := func(role, name, path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		m.Entries = append(m.Entries, backupEntry{Role: role, Name: name, Size: info.Size()})
		sources[name] = path
		return nil
	}

	if fileExists(src.Config) {
		if cfg, err := config.Load(src.Config); err == nil {
			m.SiteID = cfg.Widget.SiteID
		} else {
			logger.Warn("backing up a config that does not validate", "path", src.Config, "err", err)
		}
		if err := add(roleConfig, "config"+strings.ToLower(filepath.Ext(src.Config)), src.Config); err != nil {
			return nil, err
		}
	}
	if fileExists(src.QueryLog) {
		snap := filepath.Join(staging, "queries.db")
		n, err := snapshotQueryLog(ctx, src.QueryLog, snap)
		if err != nil {
			return nil, err
		}
		m.Queries = n
		if err := add(roleQueryLog, "queries.db", snap); err != nil {
			return nil, err
		}
	}
	if src.Env != "" && fileExists(src.Env) {
		if err := add(roleEnv, ".env", src.Env); err != nil {
			return nil, err
		}
	}
	if len(m.Entries) == 0 {
		return nil, fmt.Errorf("nothing to back up (config: %s, query log: %s)", src.Config, src.QueryLog)
	}

	if err := writeArchive(archivePath, m, sources); err != nil {
		os.Remove(archivePath)
		return nil, err
	}
	return m, nil
}

// snapshotQueryLog copies the live log to dest and counts the copy, so the
// manifest matches what was archived even while a session keeps writing.
func snapshotQueryLog(ctx context.Context, dbPath, dest string) (int, error) {
	store, err := querylog.Open(dbPath, logger)
	if err != nil {
		return 0, err
	}
	err = store.Snapshot(ctx, dest)
	store.Close()
	if err != nil {
		return 0, err
	}
	return countQueries(ctx, dest)
}

func writeArchive(path string, m *backupManifest, sources map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{Name: manifestName, Mode: 0o644, Size: int64(len(data)), ModTime: m.CreatedAt}); err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	for _, e := range m.Entries {
		if err := appendFile(tw, e, sources[e.Name]); err != nil {
			return fmt.Errorf("add %s: %w", e.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}

func appendFile(tw *tar.Writer, e backupEntry, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	mode := int64(0o644)
	if e.Role == roleEnv {
		mode = 0o600
	}
	if err := tw.WriteHeader(&tar.Header{Name: e.Name, Mode: mode, Size: e.Size, ModTime: time.Now()}); err != nil {
		return err
	}
	_, err = io.CopyN(tw, src, e.Size)
	return err
}

// readBackup unpacks archivePath into dir and returns its manifest.
func readBackup(archivePath, dir string) (*backupManifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	hdr, err := tr.Next()
	if err != nil || hdr.Name != manifestName {
		return nil, fmt.Errorf("not a zunkiree backup: %s must come first", manifestName)
	}
	var m backupManifest
	if err := json.NewDecoder(tr).Decode(&m); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.Format != manifestFormat {
		return nil, fmt.Errorf("unsupported backup format %d", m.Format)
	}

	want := map[string]bool{}
	for _, e := range m.Entries {
		if e.Name != filepath.Base(e.Name) || e.Name == "." || e.Name == ".." || e.Name == manifestName {
			return nil, fmt.Errorf("manifest entry %q is not a plain file name", e.Name)
		}
		want[e.Name] = true
	}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if !want[hdr.Name] {
			return nil, fmt.Errorf("archive entry %q is not in the manifest", hdr.Name)
		}
		delete(want, hdr.Name)
		out, err := os.OpenFile(filepath.Join(dir, hdr.Name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(out, tr)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for name := range want {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("archive is missing %s", strings.Join(missing, ", "))
	}
	return &m, nil
}

// restoreBackup verifies the archive in a staging directory, then installs
// each entry whose destination in dst is set.
func restoreBackup(ctx context.Context, archivePath string, dst backupPaths) (*backupManifest, []string, error) {
	staging, err := os.MkdirTemp("", "zunkiree-restore-")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(staging)

	m, err := readBackup(archivePath, staging)
	if err != nil {
		return nil, nil, err
	}

	if e, ok := m.entry(roleConfig); ok && dst.Config != "" {
		if configFormat(e.Name) != configFormat(dst.Config) {
			return nil, nil, fmt.Errorf("archive holds a %s config but %s is %s; pass --config with a matching extension",
				configFormat(e.Name), dst.Config, configFormat(dst.Config))
		}
		if _, err := config.Load(filepath.Join(staging, e.Name)); err != nil {
			return nil, nil, fmt.Errorf("archived config: %w", err)
		}
	}
	if e, ok := m.entry(roleQueryLog); ok && dst.QueryLog != "" {
		n, err := countQueries(ctx, filepath.Join(staging, e.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("archived query log: %w", err)
		}
		if n != m.Queries {
			return nil, nil, fmt.Errorf("archived query log holds %d records, manifest says %d", n, m.Queries)
		}
	}

	var restored []string
	for _, e := range m.Entries {
		var target string
		switch e.Role {
		case roleConfig:
			target = dst.Config
		case roleQueryLog:
			target = dst.QueryLog
		case roleEnv:
			target = dst.Env
		default:
			logger.Warn("skipping unknown backup entry", "role", e.Role, "name", e.Name)
			continue
		}
		if target == "" {
			logger.Info("backup entry not restored", "role", e.Role)
			continue
		}
		if e.Role == roleQueryLog {
			// Stale WAL pages would be replayed over the restored file.
			for _, suffix := range []string{"-wal", "-shm"} {
				if err := os.Remove(target + suffix); err != nil && !os.IsNotExist(err) {
					return nil, restored, err
				}
			}
		}
		if err := installFile(filepath.Join(staging, e.Name), target); err != nil {
			return nil, restored, fmt.Errorf("install %s: %w", target, err)
		}
		restored = append(restored, target)
	}
	return m, restored, nil
}

func countQueries(ctx context.Context, dbPath string) (int, error) {
	store, err := querylog.Open(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return store.Count(ctx)
}

// installFile copies src next to dst and renames it into place.
func installFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	tmp := dst + ".restore"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func configFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

func existingFiles(p backupPaths) []string {
	var out []string
	for _, f := range []string{p.Config, p.QueryLog, p.Env} {
		if f != "" && fileExists(f) {
			out = append(out, f)
		}
	}
	return out
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func printManifest(m *backupManifest) {
	if m.SiteID != "" {
		fmt.Printf("Site: %s\n", m.SiteID)
	}
	for _, e := range m.Entries {
		line := fmt.Sprintf("  - %-8s %s (%s)", e.Role, e.Name, humanize.Bytes(uint64(e.Size)))
		if e.Role == roleQueryLog {
			line += fmt.Sprintf(", %d queries", m.Queries)
		}
		fmt.Println(line)
	}
}
