package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/celerix-dev/nestsync/internal/config"
	"github.com/celerix-dev/nestsync/internal/logging"
	"github.com/celerix-dev/nestsync/pkg/schema"
	"github.com/celerix-dev/nestsync/pkg/sdk"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	session, err := sdk.New(cfg)
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	ctx := context.Background()
	defer session.Close(ctx)

	command := strings.ToUpper(os.Args[1])
	args := os.Args[2:]

	switch command {
	case "GENERATE":
		code, err := session.GenerateCode(ctx)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(code)

	case "LOGIN":
		if len(args) < 1 {
			log.Fatal("Usage: nestsync LOGIN <code>")
		}
		rec, err := session.Login(ctx, args[0])
		if err != nil {
			log.Fatal(err)
		}
		printJSON(rec)

	case "SAVE":
		if len(args) < 2 {
			log.Fatal(`Usage: nestsync SAVE <code> '{"profile": {...}}'`)
		}
		var p schema.Partial
		if err := json.Unmarshal([]byte(args[1]), &p); err != nil {
			log.Fatalf("Invalid partial record: %v", err)
		}
		if err := session.Save(ctx, args[0], p); err != nil {
			log.Fatal(err)
		}
		fmt.Println("OK")

	case "EVENT":
		if len(args) < 2 {
			log.Fatal("Usage: nestsync EVENT <code> <type> [details]")
		}
		login(ctx, session, args[0])
		entry := schema.LogEntry{Type: schema.LogType(strings.ToLower(args[1]))}
		if len(args) > 2 {
			entry.Details = strings.Join(args[2:], " ")
		}
		e, err := session.AppendEvent(ctx, args[0], entry)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(e)

	case "GROWTH":
		if len(args) < 4 {
			log.Fatal("Usage: nestsync GROWTH <code> <YYYY-MM-DD> <weightKg> <ageInMonths>")
		}
		login(ctx, session, args[0])
		date, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			log.Fatalf("Invalid date: %v", err)
		}
		weight, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			log.Fatalf("Invalid weight: %v", err)
		}
		age, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			log.Fatalf("Invalid age: %v", err)
		}
		g, err := session.AddGrowthRecord(ctx, args[0], schema.GrowthRecord{Date: date, Weight: weight, AgeInMonths: age})
		if err != nil {
			log.Fatal(err)
		}
		printJSON(g)

	case "MESSAGES":
		msgs, err := session.ListRecentMessages(ctx)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(msgs)

	case "POST":
		if len(args) < 2 {
			log.Fatal("Usage: nestsync POST <author> <text>")
		}
		msg, err := session.PostMessage(ctx, schema.CommunityMessage{
			AuthorLabel: args[0],
			Text:        strings.Join(args[1:], " "),
			IsSelf:      true,
		})
		if err != nil {
			log.Fatal(err)
		}
		printJSON(msg)

	case "SYNC":
		n, err := session.SyncPending(ctx)
		fmt.Printf("Synced %d record(s)\n", n)
		if err != nil {
			log.Fatal(err)
		}

	case "PING":
		st := session.CheckConnection(ctx)
		if !st.Online {
			log.Fatalf("Record store unreachable: %v", st.Err)
		}
		fmt.Println("PONG")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

// login loads code into the cache so append helpers have a record to extend.
func login(ctx context.Context, s *sdk.Session, code string) {
	if _, err := s.Login(ctx, code); err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Println("nestsync CLI - local-first client for nestsync-stored")
	fmt.Println("\nUsage:")
	fmt.Println("  nestsync GENERATE")
	fmt.Println("  nestsync LOGIN <code>")
	fmt.Println("  nestsync SAVE <code> <partial-json>")
	fmt.Println("  nestsync EVENT <code> <feeding|diaper|sleep|mood|medicine> [details]")
	fmt.Println("  nestsync GROWTH <code> <YYYY-MM-DD> <weightKg> <ageInMonths>")
	fmt.Println("  nestsync MESSAGES")
	fmt.Println("  nestsync POST <author> <text>")
	fmt.Println("  nestsync SYNC")
	fmt.Println("  nestsync PING")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  NESTSYNC_STORE_URL    Base URL of nestsync-stored (empty: local-only)")
	fmt.Println("  NESTSYNC_CACHE_DIR    Local cache directory (default: ./cache)")
	fmt.Println("  NESTSYNC_CACHE_KEY    32-byte key to encrypt the cache at rest")
	fmt.Println("  NESTSYNC_DEBOUNCE     Quiet interval before a save is pushed (default: 1s, 0: immediate)")
	fmt.Println("  NESTSYNC_TLS_INSECURE Set to true to accept a self-signed store certificate")
}

func printJSON(v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(bytes))
}
