// lingomate - a terminal language-learning chat client.
//
// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/lingomate/lingomate/internal/cli"
	"github.com/lingomate/lingomate/internal/config"
	"github.com/lingomate/lingomate/internal/llm"
	"github.com/lingomate/lingomate/internal/orchestrator"
	"github.com/lingomate/lingomate/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		noStream    = flag.Bool("no-stream", false, "disable streaming responses")
		language    = flag.String("lang", "", "target language (overrides config)")
		modelFlag   = flag.String("model", "", "model id (overrides config)")
		dbPath      = flag.String("db", "", "conversation database path")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lingomate %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*noStream, *language, *modelFlag, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "lingomate: %v\n", err)
		os.Exit(1)
	}
}

// run wires every collaborator explicitly. There are no hidden singletons;
// lifecycle belongs here.
func run(noStream bool, language, modelOverride, dbPath string) error {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if language != "" {
		cfg.Defaults.TargetLanguage = language
	}
	if modelOverride != "" {
		cfg.Endpoint.Model = modelOverride
	}

	if dbPath == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		if err := config.EnsureConfigDir(); err != nil {
			return err
		}
		dbPath = filepath.Join(dir, "lingomate.db")
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	titler := storage.NewTitler(store)

	client := llm.NewClient(cfg.Endpoint.BaseURL, cfg.Endpoint.APIKey)

	orch := orchestrator.New(store, client, cfg.ConversationSettings(), !noStream)

	// Live config reload keeps the pending settings current; the active
	// conversation keeps the settings it was created with.
	if path, err := config.ConfigPath(); err == nil {
		watcher, err := config.Watch(path, func(fresh *config.Config) {
			orch.UpdateDefaults(fresh.ConversationSettings())
		})
		if err == nil {
			defer watcher.Close()
		}
	}

	session := cli.NewSession(orch, store, titler, client, cfg)
	return session.Run()
}
