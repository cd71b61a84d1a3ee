// psctl is the terminal client for a paperscope server: it starts a
// research session and renders the live event stream.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fatih/color"

	"github.com/paperscope/paperscope/pkg/events"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	stageColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	okColor      = color.New(color.FgGreen, color.Bold)
	errColor     = color.New(color.FgRed, color.Bold)
	citeColor    = color.New(color.FgMagenta)
	qualityColor = color.New(color.FgBlue, color.Bold)
)

func main() {
	server := flag.String("server", envOr("PAPERSCOPE_SERVER", "http://127.0.0.1:8790"), "paperscope server base URL")
	quiet := flag.Bool("quiet", false, "suppress progress output, print only the final report")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: psctl [-server URL] [-quiet] <research question>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, query, *quiet); err != nil {
		errColor.Fprintln(os.Stderr, "psctl:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, server, query string, quiet bool) error {
	id, err := startSession(ctx, server, query)
	if err != nil {
		return err
	}
	if !quiet {
		headerColor.Printf("Session %s\n", id)
		dimColor.Printf("Query: %s\n\n", query)
	}

	wsURL := strings.Replace(server, "http", "ws", 1) + "/api/sessions/" + id + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer conn.CloseNow()
	// Long sessions stream for many minutes.
	conn.SetReadLimit(16 << 20)

	for {
		var e events.Event
		if err := wsjson.Read(ctx, conn, &e); err != nil {
			if ctx.Err() != nil {
				return stopSession(server, id)
			}
			return fmt.Errorf("reading event stream: %w", err)
		}
		done, err := render(e, quiet)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func startSession(ctx context.Context, server, query string) (string, error) {
	body, _ := json.Marshal(map[string]string{"query": query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding session response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("server refused session (%d): %s", resp.StatusCode, out.Error)
	}
	return out.ID, nil
}

func stopSession(server, id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/sessions/"+id+"/stop", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("stopping session: %w", err)
	}
	resp.Body.Close()
	fmt.Fprintln(os.Stderr)
	dimColor.Fprintln(os.Stderr, "Session stop requested.")
	return nil
}

// render prints one event. Returns done=true after a terminal event.
func render(e events.Event, quiet bool) (bool, error) {
	switch e.Type {
	case events.TypeStatus:
		if !quiet {
			stageColor.Printf("\n== %v\n", e.Data["message"])
		}
	case events.TypePlan:
		if plan, ok := e.Data["plan"].(map[string]any); ok && !quiet {
			subQs, _ := plan["sub_questions"].([]any)
			strategies, _ := plan["search_strategies"].([]any)
			dimColor.Printf("   plan: %d sub-questions, %d searches\n", len(subQs), len(strategies))
		}
	case events.TypeSearchStart:
		if !quiet {
			dimColor.Printf("   searching: %v\n", e.Data["query"])
		}
	case events.TypePapersFound:
		if !quiet {
			dimColor.Printf("   round %v found %v papers\n", e.Data["round"], e.Data["count"])
		}
	case events.TypeContent:
		if text, ok := e.Data["text"].(string); ok && !quiet {
			fmt.Print(text)
		}
	case events.TypeCitation:
		if !quiet {
			citeColor.Printf(" %v", e.Data["inTextRef"])
		}
	case events.TypeQualityGate:
		if !quiet {
			qualityColor.Printf("\n   quality gate: %v (%v)\n", e.Data["decision"], e.Data["reason"])
		}
	case events.TypeDataCheckpoint:
		if !quiet {
			stageColor.Printf("\n   checkpoint %v awaits a response (respond via the API)\n", e.ID)
		}
	case events.TypeComplete:
		return false, printReport(e, quiet)
	case events.TypeError:
		errColor.Printf("\nError (%v): %v\n", e.Data["kind"], e.Data["message"])
	case events.TypeSessionComplete:
		if !quiet {
			okColor.Println("\nDone.")
		}
		return true, nil
	case events.TypeSessionError:
		return true, fmt.Errorf("session failed: %v", e.Data["message"])
	}
	return false, nil
}

func printReport(e events.Event, quiet bool) error {
	report, ok := e.Data["report"].(map[string]any)
	if !ok {
		return nil
	}
	if quiet {
		fmt.Println(report["content"])
		return nil
	}
	summary, _ := e.Data["summary"].(map[string]any)
	fmt.Println()
	okColor.Println("== Report complete")
	if summary != nil {
		dimColor.Printf("   %v citations, %v iterations, %v words\n",
			summary["citations"], summary["iterationCount"], summary["wordCount"])
	}
	fmt.Println()
	fmt.Println(report["content"])
	return nil
}
