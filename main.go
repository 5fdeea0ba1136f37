// chatrelay - conversational memory and multi-provider routing for chat bots.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/chatrelay/internal/cache"
	"github.com/jeranaias/chatrelay/internal/chat"
	"github.com/jeranaias/chatrelay/internal/config"
	"github.com/jeranaias/chatrelay/internal/memory"
	"github.com/jeranaias/chatrelay/internal/model"
	"github.com/jeranaias/chatrelay/internal/provider"
	"github.com/jeranaias/chatrelay/internal/router"
	"github.com/jeranaias/chatrelay/internal/store"
	"github.com/jeranaias/chatrelay/internal/summarize"
	"github.com/jeranaias/chatrelay/internal/tokens"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cmd := "chat"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "chat":
		runChat(args)
	case "ask":
		runAsk(args)
	case "status":
		runStatus()
	case "config":
		runConfig(args)
	case "version", "--version", "-v":
		fmt.Printf("chatrelay %s (%s, built %s)\n", Version, GitCommit, BuildDate)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`chatrelay - conversational memory and multi-provider routing

Usage:
  chatrelay [chat]        Interactive chat session (default)
  chatrelay ask <text>    One-shot question
  chatrelay status        Provider availability and usage stats
  chatrelay config        Print the active configuration path
  chatrelay config init   Write a default config.toml
  chatrelay version       Print version information

Configuration lives in ~/.chatrelay/config.toml. Provider keys can also
be set via CHATRELAY_CLAUDE_KEY, CHATRELAY_GEMINI_KEY, CHATRELAY_GROQ_KEY
and CHATRELAY_OPENROUTER_KEY.
`)
}

// =============================================================================
// WIRING
// =============================================================================

// app holds the fully constructed service stack for one process.
type app struct {
	cfg     *config.Config
	service *chat.Service
	store   store.Store
}

// buildApp loads configuration and constructs the full stack: store,
// registry, cache, router, summarizer, assembler, service.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var st store.Store
	if cfg.Memory.DatabasePath != "" {
		sq, err := store.OpenSQLite(cfg.Memory.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st = sq
	} else {
		st = store.NewMemStore()
	}

	reg := provider.NewRegistry()
	provider.RegisterDefaults(reg, provider.Keys{
		Claude:     cfg.Providers.ClaudeKey,
		Gemini:     cfg.Providers.GeminiKey,
		Groq:       cfg.Providers.GroqKey,
		OpenRouter: cfg.Providers.OpenRouterKey,
	})

	rc := cache.New(cfg.Cache.MaxEntries)
	rt := router.New(reg, rc, router.Config{
		Primary:        cfg.Routing.PrimaryProvider,
		EnableFallback: cfg.Routing.EnableFallback,
		MonthlyBudget:  cfg.Routing.MonthlyBudget,
	})

	var est tokens.Estimator = tokens.Heuristic{}
	if cfg.Summarizer.PreciseTokens {
		tk, err := tokens.NewTiktoken()
		if err != nil {
			return nil, fmt.Errorf("load token encoding: %w", err)
		}
		est = tk
	}
	sum := summarize.New(rt, est,
		summarize.WithContextWindow(cfg.Summarizer.ContextWindow),
		summarize.WithTimeout(time.Duration(cfg.Summarizer.TimeoutSecs)*time.Second),
		summarize.WithMaxTokens(cfg.Summarizer.MaxTokens),
	)

	asm := memory.New(st, sum, cfg.Memory.MaxContextMessages, cfg.Memory.SummarizeThreshold)

	svc := chat.NewService(chat.Params{
		Assembler:    asm,
		Router:       rt,
		Registry:     reg,
		SystemPrompt: cfg.Generation.SystemPrompt,
		MaxTokens:    cfg.Generation.MaxTokens,
		Temperature:  cfg.Generation.Temperature,
	})

	return &app{cfg: cfg, service: svc, store: st}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing store: %v\n", err)
	}
}

// localSession is the session key for commands run from this terminal.
func localSession() model.SessionKey {
	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}
	return model.NewSessionKey(user, "cli")
}

// =============================================================================
// COMMANDS
// =============================================================================

func runChat(_ []string) {
	a, err := buildApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	key := localSession()
	ctx := context.Background()

	fmt.Printf("chatrelay %s - type /quit to exit, /clear to reset the session\n", Version)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/quit", "/exit":
			return
		case "/clear":
			a.service.ClearSession(key)
			fmt.Println("Session cleared.")
			continue
		case "/stats":
			printStats(a.service.GetStats())
			continue
		}

		text, err := a.service.Respond(ctx, key, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Println(text)
	}
}

func runAsk(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: chatrelay ask <text>")
		os.Exit(1)
	}
	a, err := buildApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	text, err := a.service.Respond(context.Background(), localSession(), strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(text)
}

func runStatus() {
	a, err := buildApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status := a.service.ProviderStatus(ctx)
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Providers:")
	for _, name := range names {
		if status[name] != nil {
			fmt.Printf("  %-12s unavailable (%v)\n", name, status[name])
			continue
		}
		fmt.Printf("  %-12s ok\n", name)
	}

	printStats(a.service.GetStats())
}

func printStats(st chat.Stats) {
	fmt.Println("Usage:")
	names := make([]string, 0, len(st.Providers))
	for name := range st.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap := st.Providers[name]
		fmt.Printf("  %-12s calls=%d errors=%d cost=$%.4f\n",
			name, snap.Calls, snap.Errors, snap.TotalCost)
	}
	fmt.Printf("  cache: hits=%d misses=%d entries=%d\n",
		st.Cache.Hits, st.Cache.Misses, st.Cache.EntryCount)
	fmt.Printf("  total cost: $%.4f\n", st.TotalCost)
}

func runConfig(args []string) {
	dir, err := config.ConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(args) > 0 && args[0] == "init" {
		path := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "Refusing to overwrite existing %s\n", path)
			os.Exit(1)
		}
		if err := config.SaveTOML(config.Default(), path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
		return
	}

	fmt.Println(dir)
}
