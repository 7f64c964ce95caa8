// sentineldb-migrate runs the migration driver standalone against a
// data+backup directory pair. It logs through the standard library since
// a migration tool must be able to report failures before any structured
// logger is configured.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/quietloop/sentineldb/pkg/migration"
)

var (
	dataDir   = flag.String("data-dir", "/var/lib/sentineldb", "sentineldb data directory")
	backupDir = flag.String("backup-dir", "", "sentineldb backup directory (optional; VERSION must match data-dir if given)")
	dryRun    = flag.Bool("dry-run", false, "report the binary's compatible version range without migrating")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("sentineldb migration driver")
	log.Println("===========================")

	if _, err := os.Stat(*dataDir); os.IsNotExist(err) {
		log.Fatalf("data directory not found: %s", *dataDir)
	}

	log.Printf("data dir: %s", *dataDir)
	log.Printf("backup dir: %s", *backupDir)
	log.Printf("binary compatible range: %s", migration.CompatibleRange.String())

	if *dryRun {
		// A dry run only reports the compatible range logged above; it
		// does not read the VERSION files and does not migrate.
		log.Println("dry run: no changes will be made")
		log.Println("dry run complete; re-run without --dry-run to migrate")
		return
	}

	if err := migration.Run(*dataDir, *backupDir); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migration complete")
}
