package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quietloop/sentineldb/pkg/backup"
	"github.com/quietloop/sentineldb/pkg/config"
	"github.com/quietloop/sentineldb/pkg/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Backup, list, restore, and recover a sentineldb instance",
}

func init() {
	flags := backupCmd.PersistentFlags()
	flags.String("backup-path", "", "backup directory (states.db/ and database.db/ live here)")
	flags.String("container", "", "relational database container name")
	flags.String("host", "localhost", "relational database host")
	flags.Int("port", 5432, "relational database port")
	flags.String("user", "", "relational database user")
	flags.String("password", "", "relational database password")
	flags.String("name", "", "relational database name")
	flags.String("database-url", "", "postgres://user:pw@host:port/name shorthand, overrides the individual flags above")
	flags.Int("num-of-backups", 5, "retention count")
	flags.String("env-path", "", "PATH passed to docker/pg_dump/pg_restore subprocesses")
	flags.String("review-data-path", "", "scratch location for restore staging")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupRecoverCmd, backupPurgeCmd)
}

func loadBackupConfig(cmd *cobra.Command) (config.BackupConfig, error) {
	v := viper.New()
	v.BindPFlag("backup.path", cmd.Flags().Lookup("backup-path"))
	v.BindPFlag("backup.container", cmd.Flags().Lookup("container"))
	v.BindPFlag("backup.host", cmd.Flags().Lookup("host"))
	v.BindPFlag("backup.port", cmd.Flags().Lookup("port"))
	v.BindPFlag("backup.user", cmd.Flags().Lookup("user"))
	v.BindPFlag("backup.password", cmd.Flags().Lookup("password"))
	v.BindPFlag("backup.name", cmd.Flags().Lookup("name"))
	v.BindPFlag("backup.database_url", cmd.Flags().Lookup("database-url"))
	v.BindPFlag("backup.num_of_backups", cmd.Flags().Lookup("num-of-backups"))
	v.BindPFlag("backup.env_path", cmd.Flags().Lookup("env-path"))
	v.BindPFlag("backup.review_data_path", cmd.Flags().Lookup("review-data-path"))
	return config.LoadBackupConfig(v)
}

func openCoordinator(cmd *cobra.Command) (*backup.Coordinator, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	classifierDir, _ := cmd.Flags().GetString("classifier-dir")
	pretrainedDir, _ := cmd.Flags().GetString("pretrained-dir")

	cfg, err := loadBackupConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(dataDir, classifierDir, pretrainedDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	coord, err := backup.New(st, dataDir, classifierDir, pretrainedDir, cfg, nil)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open backup coordinator: %w", err)
	}
	return coord, nil
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new backup (KV snapshot + relational dump)",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := openCoordinator(cmd)
		if err != nil {
			return err
		}
		defer func() { coord.Store().Close() }()

		flush, _ := cmd.Flags().GetBool("flush")
		numToKeep, _ := cmd.Flags().GetInt("num-of-backups")
		info, err := coord.Create(context.Background(), flush, numToKeep)
		if err != nil {
			return err
		}
		fmt.Printf("backup %d created (kv=%d bytes, archive=%s)\n", info.ID, info.KVSize, info.ArchivePath)
		return nil
	},
}

func init() {
	backupCreateCmd.Flags().Bool("flush", false, "fsync the KV store before snapshotting")
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := openCoordinator(cmd)
		if err != nil {
			return err
		}
		defer func() { coord.Store().Close() }()

		list, err := coord.List()
		if err != nil {
			return err
		}
		for _, info := range list {
			archive := "missing"
			if info.HasArchive {
				archive = strconv.FormatInt(info.ArchiveSize, 10) + " bytes"
			}
			fmt.Printf("%d\t%s\tkv=%d bytes\tarchive=%s\n", info.ID, info.Timestamp.Format("2006-01-02T15:04:05Z07:00"), info.KVSize, archive)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [backup-id]",
	Short: "Restore the store from a backup (latest if no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := openCoordinator(cmd)
		if err != nil {
			return err
		}
		defer func() { coord.Store().Close() }()

		var id *uint64
		if len(args) == 1 {
			parsed, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid backup id %q: %w", args[0], err)
			}
			id = &parsed
		}
		if err := coord.Restore(context.Background(), id); err != nil {
			return err
		}
		fmt.Println("restore complete")
		return nil
	},
}

var backupRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Open the store, falling back to the newest backup that opens cleanly",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := openCoordinator(cmd)
		if err != nil {
			return err
		}
		defer func() { coord.Store().Close() }()

		if err := coord.Recover(context.Background()); err != nil {
			return err
		}
		fmt.Println("recover complete")
		return nil
	},
}

var backupPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge backups beyond the retention count",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := openCoordinator(cmd)
		if err != nil {
			return err
		}
		defer func() { coord.Store().Close() }()

		numToKeep, _ := cmd.Flags().GetInt("num-of-backups")
		if err := coord.PurgeOld(numToKeep); err != nil {
			return err
		}
		fmt.Println("purge complete")
		return nil
	},
}
