// DotAgent - Ultra-lightweight personal AI agent
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 DotAgent contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dotsetgreg/repcue/pkg/broadcast"
	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/dotsetgreg/repcue/pkg/conversation"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/matcher"
	"github.com/dotsetgreg/repcue/pkg/preferences"
	"github.com/dotsetgreg/repcue/pkg/providers"
	"github.com/dotsetgreg/repcue/pkg/store"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "repcue"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Sync()
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".repcue", "config.json")
}

// engineRuntime is everything a command needs to run check-ins.
type engineRuntime struct {
	engine   *conversation.Engine
	registry *broadcast.Registry
	index    *catalog.Index
	matcher  *matcher.Matcher
	store    store.Store
	sqlite   *store.SQLiteStore
	catalog  string
	semantic bool
}

// buildRuntime wires catalog, matcher, extractor, templates and engine. With
// persist the pair states and catalog live in the SQLite store at
// cfg.StorePath(); otherwise states are kept in memory.
func buildRuntime(ctx context.Context, cfg *config.Config, persist bool) (*engineRuntime, error) {
	rt := &engineRuntime{}
	if persist {
		sq, err := store.NewSQLiteStore(cfg.StorePath())
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.sqlite, rt.store = sq, sq
	} else {
		rt.store = store.NewMemoryStore()
	}

	src, desc, err := catalogSource(ctx, cfg, rt.sqlite)
	if err != nil {
		_ = rt.store.Close()
		return nil, err
	}
	rt.catalog = desc
	rt.index = catalog.NewIndex(src, time.Duration(cfg.Catalog.RefreshSeconds)*time.Second)
	if err := rt.index.Refresh(ctx); err != nil {
		_ = rt.store.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var semantic matcher.SemanticMatcher
	if cfg.Engine.SemanticEnabled {
		if err := providers.ValidateProviderConfig(cfg); err != nil {
			logger.WarnCF("engine", "Semantic matching disabled", map[string]interface{}{"reason": err.Error()})
		} else {
			provider, err := providers.CreateProvider(cfg)
			if err != nil {
				_ = rt.store.Close()
				return nil, fmt.Errorf("create provider: %w", err)
			}
			semantic = matcher.NewLLMSemanticMatcher(provider, cfg.Engine.Model, cfg.Engine.MaxCandidates)
			rt.semantic = true
		}
	}

	rt.matcher = matcher.New(rt.index, semantic, matcher.Options{
		MaxCandidates:   cfg.Engine.MaxCandidates,
		SemanticTimeout: time.Duration(cfg.Engine.SemanticTimeoutMS) * time.Millisecond,
		SliceSize:       cfg.Engine.SemanticSliceSize,
		SemanticRate:    float64(cfg.Engine.SemanticRatePerSecond),
	})

	templates, err := conversation.LoadTemplates(cfg.TemplatesPath())
	if err != nil {
		_ = rt.store.Close()
		return nil, err
	}

	rt.registry = broadcast.NewRegistry(cfg.Broadcast.ListenerBuffer)
	rt.engine = conversation.NewEngine(
		conversation.NewMachine(preferences.NewExtractor(rt.matcher), templates),
		rt.store,
		conversation.Options{MailboxSize: cfg.Engine.MailboxSize, Publisher: rt.registry},
	)

	logger.InfoCF("engine", "Engine ready", map[string]interface{}{
		"catalog":   rt.catalog,
		"exercises": rt.index.Len(),
		"semantic":  rt.semantic,
		"persist":   persist,
	})
	return rt, nil
}

func (rt *engineRuntime) Close(ctx context.Context) error {
	err := rt.engine.Close(ctx)
	rt.registry.Close()
	return errors.Join(err, rt.store.Close())
}

// catalogSource picks where the index reads the catalog from. A catalog file
// wins over the built-in list. When a SQLite store is open and seeding is on,
// the chosen entries are written to the store and the store becomes the
// source, so every replica of the gateway reads the same table.
func catalogSource(ctx context.Context, cfg *config.Config, sq *store.SQLiteStore) (catalog.Source, string, error) {
	path := cfg.CatalogPath()
	entries, fromFile, err := loadCatalogEntries(path)
	if err != nil {
		return nil, "", err
	}

	if sq != nil {
		if cfg.Catalog.SeedStoreOnBoot {
			if err := sq.ReplaceCatalog(ctx, entries); err != nil {
				return nil, "", fmt.Errorf("seed catalog: %w", err)
			}
			return sq, "store", nil
		}
		if n, err := sq.CatalogSize(ctx); err == nil && n > 0 {
			return sq, "store", nil
		}
	}
	if fromFile {
		return catalog.FileSource{Path: path}, path, nil
	}
	return catalog.StaticSource(entries), "builtin", nil
}

// loadCatalogEntries reads path, falling back to the built-in catalog when the
// file does not exist.
func loadCatalogEntries(path string) ([]catalog.Entry, bool, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			entries, err := catalog.LoadFile(path)
			if err != nil {
				return nil, false, err
			}
			return entries, true, nil
		}
	}
	return catalog.DefaultEntries(), false, nil
}
