// Package config binds the backup coordinator's environment and process
// inputs: a BackupConfig struct readable from env vars or flags via viper,
// and a database_url parser for the common postgres:// DSN shorthand.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

// BackupConfig is the set of environment and process inputs the backup
// coordinator needs to dump/restore the relational database alongside the
// KV backup engine.
type BackupConfig struct {
	BackupPath     string // directory holding states.db/ and database.db/
	Container      string // relational-DB container name
	Host           string
	Port           int
	User           string
	Password       string
	Name           string // database name
	NumOfBackups   int    // retention count
	EnvPath        string // PATH passed to docker/pg_dump/pg_restore subprocesses
	ReviewDataPath string // scratch location for restore staging
}

// LoadBackupConfig reads a BackupConfig from v, falling back to a fresh
// viper.Viper bound to the SENTINELDB_BACKUP_* environment namespace when v
// is nil. A "backup.database_url" key, if set, is parsed and overlaid on
// top of the individually-bound fields.
func LoadBackupConfig(v *viper.Viper) (BackupConfig, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("sentineldb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backup.num_of_backups", 5)
	v.SetDefault("backup.port", 5432)

	cfg := BackupConfig{
		BackupPath:     v.GetString("backup.path"),
		Container:      v.GetString("backup.container"),
		Host:           v.GetString("backup.host"),
		Port:           v.GetInt("backup.port"),
		User:           v.GetString("backup.user"),
		Password:       v.GetString("backup.password"),
		Name:           v.GetString("backup.name"),
		NumOfBackups:   v.GetInt("backup.num_of_backups"),
		EnvPath:        v.GetString("backup.env_path"),
		ReviewDataPath: v.GetString("backup.review_data_path"),
	}

	if raw := v.GetString("backup.database_url"); raw != "" {
		parsed, err := ParseDatabaseURL(raw)
		if err != nil {
			return BackupConfig{}, err
		}
		cfg.Host = parsed.Host
		cfg.Port = parsed.Port
		cfg.User = parsed.User
		cfg.Password = parsed.Password
		cfg.Name = parsed.Name
	}

	return cfg, nil
}

// ParseDatabaseURL accepts "postgres://user:pw@host:port/name" and returns
// the host/port/user/password/name fields of a BackupConfig. BackupPath,
// Container, NumOfBackups, EnvPath, and ReviewDataPath are left zero; the
// caller merges those in separately.
func ParseDatabaseURL(raw string) (BackupConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return BackupConfig{}, fmt.Errorf("config: parse database_url: %w: %w", err, dberr.ErrInvalidInput)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return BackupConfig{}, fmt.Errorf("config: database_url scheme %q must be postgres or postgresql: %w", u.Scheme, dberr.ErrInvalidInput)
	}

	cfg := BackupConfig{
		Host: u.Hostname(),
		Name: strings.TrimPrefix(u.Path, "/"),
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return BackupConfig{}, fmt.Errorf("config: database_url port %q: %w: %w", p, err, dberr.ErrInvalidInput)
		}
		cfg.Port = port
	}
	return cfg, nil
}
