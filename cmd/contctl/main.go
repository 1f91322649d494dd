// Command contctl is the operator-facing CLI for the continuity
// orchestrator daemon: trigger a tick out of band, check adapter
// status, or issue a release/renewal command.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	defaultAddr := getenv("CONTINUITY_ADDR", "http://localhost:8099")
	defaultSecret := os.Getenv("CONTINUITY_SECRET")

	root := flag.NewFlagSet("contctl", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	addrFlag := root.String("addr", defaultAddr, "orchestrator base URL (env CONTINUITY_ADDR)")
	secretFlag := root.String("secret", defaultSecret, "release/renewal secret (env CONTINUITY_SECRET)")
	timeoutFlag := root.Duration("timeout", 15*time.Second, "HTTP request timeout")
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	client := &apiClient{
		baseURL: strings.TrimRight(*addrFlag, "/"),
		http:    &http.Client{Timeout: *timeoutFlag},
	}

	switch remaining[0] {
	case "status":
		return handleStatus(ctx, client)
	case "tick":
		return handleTick(ctx, client)
	case "release":
		return handleRelease(ctx, client, *secretFlag, remaining[1:])
	case "renew":
		return handleRenew(ctx, client, *secretFlag)
	case "health":
		return handleHealth(ctx, client)
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

func usageError(err error) error {
	printRootUsage()
	return err
}

func printRootUsage() {
	fmt.Println(`Continuity Orchestrator CLI (contctl)

Usage:
  contctl [global flags] <command> [flags]

Commands:
  status              show adapter configuration status
  tick                trigger an out-of-band tick
  release -stage NAME [-delay MINUTES] [-scope full|site_only]
                       arm a release command
  renew                send a renewal command
  health               check daemon liveness

Global flags:
  -addr string     orchestrator base URL (env CONTINUITY_ADDR)
  -secret string   release/renewal secret (env CONTINUITY_SECRET)
  -timeout duration  HTTP request timeout (default 15s)`)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func (c *apiClient) post(ctx context.Context, path string, body interface{}) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *apiClient) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func handleStatus(ctx context.Context, c *apiClient) error {
	raw, _, err := c.get(ctx, "/status")
	if err != nil {
		return err
	}
	return prettyPrint(raw)
}

func handleTick(ctx context.Context, c *apiClient) error {
	raw, _, err := c.post(ctx, "/tick", nil)
	if err != nil {
		return err
	}
	return prettyPrint(raw)
}

func handleHealth(ctx context.Context, c *apiClient) error {
	raw, _, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	return prettyPrint(raw)
}

func handleRelease(ctx context.Context, c *apiClient, secret string, args []string) error {
	fs := flag.NewFlagSet("release", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	stage := fs.String("stage", "", "target stage name")
	delay := fs.Int("delay", 0, "delay in minutes before the release executes")
	scope := fs.String("scope", "full", "release scope: full or site_only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stage == "" {
		return errors.New("release requires -stage")
	}
	raw, status, err := c.post(ctx, "/release", map[string]interface{}{
		"secret":        secret,
		"target_stage":  *stage,
		"delay_minutes": *delay,
		"scope":         *scope,
	})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("release rejected: %s", string(raw))
	}
	return prettyPrint(raw)
}

func handleRenew(ctx context.Context, c *apiClient, secret string) error {
	raw, status, err := c.post(ctx, "/renew", map[string]string{"secret": secret})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("renewal rejected: %s", string(raw))
	}
	return prettyPrint(raw)
}

func prettyPrint(raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
