package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/quietloop/sentineldb/pkg/config"
	"github.com/quietloop/sentineldb/pkg/dberr"
)

// RelationalDumper invokes the relational database's own dump/restore
// tooling. The database itself is an external collaborator; the default
// implementation below shells out to docker exec <container>
// pg_dump/pg_restore. Tests substitute a fake that writes/reads plain
// files so they never require a live postgres.
type RelationalDumper interface {
	// Dump writes a pg_dump -Fc archive of the database described by cfg to
	// dumpFile.
	Dump(ctx context.Context, cfg config.BackupConfig, dumpFile string) error
	// Restore loads dumpFile into the database described by cfg via
	// pg_restore.
	Restore(ctx context.Context, cfg config.BackupConfig, dumpFile string) error
}

// PgDumper is the default RelationalDumper: it shells out to
// `docker exec <container> pg_dump|pg_restore` using the connection
// fields of config.BackupConfig.
type PgDumper struct{}

func (PgDumper) Dump(ctx context.Context, cfg config.BackupConfig, dumpFile string) error {
	out, err := os.Create(dumpFile)
	if err != nil {
		return fmt.Errorf("backup: create dump file: %w: %w", err, dberr.ErrIo)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, "docker", "exec", cfg.Container,
		"pg_dump", "-Fc", "-h", cfg.Host, "-p", fmt.Sprint(cfg.Port), "-U", cfg.User, cfg.Name)
	cmd.Stdout = out
	cmd.Env = pgEnv(cfg)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("backup: pg_dump: %w: %w", err, dberr.ErrIo)
	}
	return nil
}

func (PgDumper) Restore(ctx context.Context, cfg config.BackupConfig, dumpFile string) error {
	in, err := os.Open(dumpFile)
	if err != nil {
		return fmt.Errorf("backup: open dump file: %w: %w", err, dberr.ErrIo)
	}
	defer in.Close()

	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", cfg.Container,
		"pg_restore", "--clean", "--if-exists", "-h", cfg.Host, "-p", fmt.Sprint(cfg.Port), "-U", cfg.User, "-d", cfg.Name)
	cmd.Stdin = in
	cmd.Env = pgEnv(cfg)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("backup: pg_restore: %w: %w", err, dberr.ErrIo)
	}
	return nil
}

func pgEnv(cfg config.BackupConfig) []string {
	env := os.Environ()
	if cfg.EnvPath != "" {
		env = append(env, "PATH="+cfg.EnvPath)
	}
	if cfg.Password != "" {
		env = append(env, "PGPASSWORD="+cfg.Password)
	}
	return env
}

// packArchive tars+gzips a directory whose only top-level entry is
// "data/" into destFile.
func packArchive(srcDir, destFile string) error {
	out, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("backup: create archive: %w: %w", err, dberr.ErrIo)
	}
	defer out.Close()

	gz, err := gzip.NewWriterLevel(out, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("backup: gzip writer: %w", err)
	}
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// unpackArchive extracts a tar+gzip archive created by packArchive into
// destDir, recreating its top-level "data/" directory.
func unpackArchive(srcFile, destDir string) error {
	in, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("backup: open archive: %w: %w", err, dberr.ErrIo)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("backup: gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("backup: read archive entry: %w: %w", err, dberr.ErrCorrupt)
		}
		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("backup: archive entry %q escapes destination: %w", hdr.Name, dberr.ErrCorrupt)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}
