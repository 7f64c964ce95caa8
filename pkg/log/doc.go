/*
Package log provides structured logging for sentineldb using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("backup")                  │          │
	│  │  - WithColumnFamily("cluster")               │          │
	│  │  - WithModelID("3")                          │          │
	│  │  - WithBackupID("42")                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "backup",                   │          │
	│  │    "time": "2026-07-29T10:30:00Z",         │          │
	│  │    "message": "backup completed"            │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF backup completed component=backup │       │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Log Levels

  - Debug: Detailed debugging information (transaction retry counts, cursor
    boundaries)
  - Info: General informational messages (backup completed, migration step
    applied)
  - Warn: Potential issues (backup archive missing, retry budget exhausted)
  - Error: Operation failed (restore aborted, corrupt index header)
  - Fatal: Process cannot continue (data directory unwritable at startup)

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	backupLog := log.WithComponent("backup")
	backupLog.Info().Str("phase", "kv").Msg("backup started")

	log.WithModelID("semantic-v3").Info().Msg("model updated")
*/
package log
