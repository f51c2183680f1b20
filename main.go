package main

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/shelfmgr/libshelf/internal/bookview"
	"github.com/shelfmgr/libshelf/internal/command"
	"github.com/shelfmgr/libshelf/internal/command/httpapi"
	"github.com/shelfmgr/libshelf/internal/config"
	"github.com/shelfmgr/libshelf/internal/record"
	"github.com/shelfmgr/libshelf/internal/store"
)

var defaultSort = []record.SortRule{{Column: record.Title(), Order: record.Ascending}}

func main() {
	cfgPath := config.FindConfigFile()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if cfgPath != "" {
		log.Printf("loaded configuration from %q", cfgPath)
	}

	st, err := store.Open(cfg.StorePath, cfg.StoreConfig())
	if err != nil {
		log.Fatalf("cannot open store %q: %v", cfg.StorePath, err)
	}
	defer st.Close()
	log.Printf("store opened at %q", cfg.StorePath)

	if cfg.BackupDir != "" || cfg.BackupKeep > 0 {
		backupDir := cfg.BackupDir
		if backupDir == "" {
			backupDir = filepath.Join(filepath.Dir(cfg.StorePath), ".backups")
		}
		log.Printf("nightly store backup enabled (dir: %s, keep: %d)", backupDir, cfg.BackupKeep)
		go runNightlyBackup(st, backupDir, cfg.BackupKeep)
	}

	view := bookview.New(st, cfg.WindowSize, defaultSort)
	runner := command.NewRunner(st, view, nil)

	if cfg.ListenAddr != "" {
		srv := httpapi.New(runner)
		log.Printf("libshelf command surface starting on %s", cfg.ListenAddr)
		go func() {
			if err := http.ListenAndServe(cfg.ListenAddr, srv); err != nil {
				log.Fatalf("command surface error: %v", err)
			}
		}()
	}

	<-runner.Done()
	log.Printf("libshelf shutting down")
}

// runNightlyBackup sleeps until the next local midnight, then calls
// st.Backup every 24 hours. It is intended to run in a goroutine.
func runNightlyBackup(st *store.Store, backupDir string, keep int) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		time.Sleep(time.Until(next))

		path, err := st.Backup(context.Background(), backupDir, keep)
		if err != nil {
			log.Printf("nightly backup error: %v", err)
		} else {
			log.Printf("nightly backup created: %s", path)
		}
	}
}
