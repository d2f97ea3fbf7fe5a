// automodelctl is a small operator CLI for the AutoModel gateway API.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("automodelctl %s\n", version)
	case "status":
		doStatus()
	case "model", "models":
		doModels()
	case "performance", "perf":
		doPerformance()
	case "usage":
		doUsage(args)
	case "preferences":
		doPreferences(args)
	case "process":
		doProcess(args)
	case "session", "sessions":
		doSession(args)
	case "key", "keys":
		doKey(args)
	case "events":
		doEvents()
	case "help", "--help", "-h":
		usageTo(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	usageTo(os.Stderr)
}

func usageTo(w io.Writer) {
	_, _ = fmt.Fprintf(w, `automodelctl - CLI for the AutoModel gateway API

Usage: automodelctl <command> [arguments]

Environment:
  AUTOMODEL_URL   Base URL (default: http://localhost:8080)

Commands:
  status                          Show server health and catalog size
  models                          List the live model catalog
  performance                     Show per-model ledger and cache counters
  usage [--limit N]               Show persisted usage log, newest first

  preferences <task> <p1,p2,...>  Override provider fallback order for a task
  process <task> <text>           Send a quick request through the gateway

  session create <user-id>        Open a conversation
  session get <id>                Show a conversation's state
  session delete <id>             Remove a conversation

  key put <provider> <user-id> <api-key>   Store a user credential
  key delete <provider> <user-id>          Remove a stored credential

  events                          Stream real-time SSE events
  version                         Show version
  help                            Show this help

Examples:
  automodelctl status
  automodelctl process summarization "long article text here"
  automodelctl preferences chat anthropic,openai,mistral
  automodelctl usage --limit 20
`)
}

// --- HTTP helpers ---

func baseURL() string {
	if u := os.Getenv("AUTOMODEL_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080"
}

func doRequest(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, baseURL()+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return http.DefaultClient.Do(req)
}

func doGet(path string) map[string]any {
	resp, err := doRequest("GET", path, nil)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	return readJSON(resp)
}

func doPost(path, bodyJSON string) map[string]any {
	resp, err := doRequest("POST", path, strings.NewReader(bodyJSON))
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	return readJSON(resp)
}

func doPut(path, bodyJSON string) map[string]any {
	resp, err := doRequest("PUT", path, strings.NewReader(bodyJSON))
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	return readJSON(resp)
}

func doDelete(path string) {
	resp, err := doRequest("DELETE", path, nil)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "HTTP %d: %s\n", resp.StatusCode, string(data))
		os.Exit(1)
	}
}

func readJSON(resp *http.Response) map[string]any {
	data, err := io.ReadAll(resp.Body)
	fatal(err)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "HTTP %d: %s\n", resp.StatusCode, string(data))
		os.Exit(1)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Println(string(data))
		os.Exit(0)
	}
	return result
}

func prettyJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func fatal(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func requireArgs(args []string, min int, usage string) {
	if len(args) < min {
		fmt.Fprintf(os.Stderr, "usage: automodelctl %s\n", usage)
		os.Exit(1)
	}
}

func parseLimit(args []string) int {
	for i, a := range args {
		if a == "--limit" && i+1 < len(args) {
			n, _ := strconv.Atoi(args[i+1])
			if n > 0 {
				return n
			}
		}
	}
	return 50
}

// --- Commands ---

func doStatus() {
	resp, err := doRequest("GET", "/healthz", nil)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	var h map[string]any
	_ = json.Unmarshal(data, &h)

	status := "unknown"
	if s, ok := h["status"].(string); ok {
		status = s
	}
	providers := 0
	if n, ok := h["providers"].(float64); ok {
		providers = int(n)
	}
	models := 0
	if n, ok := h["models"].(float64); ok {
		models = int(n)
	}

	fmt.Printf("Server:    %s\n", baseURL())
	fmt.Printf("Status:    %s\n", status)
	fmt.Printf("Providers: %d\n", providers)
	fmt.Printf("Models:    %d\n", models)
}

func doModels() {
	result := doGet("/v1/models")
	models, _ := result["models"].([]any)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROVIDER\tCONTEXT\tPROMPT/1K\tOUTPUT/1K\tPRIORITY\tVISION")
	for _, m := range models {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\t%v\n",
			mm["id"], mm["provider"], mm["max_context_tokens"],
			mm["cost_prompt_per_1k"], mm["cost_completion_per_1k"],
			mm["priority_score"], mm["supports_vision"])
	}
	_ = w.Flush()
}

func doPerformance() {
	fmt.Println(prettyJSON(doGet("/v1/performance")))
}

func doUsage(args []string) {
	limit := parseLimit(args)
	result := doGet(fmt.Sprintf("/v1/usage?limit=%d", limit))
	logs, _ := result["usage"].([]any)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tTASK\tMODEL\tTOKENS\tCOST\tLATENCY\tOK")
	for _, l := range logs {
		ll, ok := l.(map[string]any)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%vms\t%v\n",
			ll["timestamp"], ll["task_kind"], ll["model_id"],
			ll["tokens_used"], ll["cost_usd"], ll["latency_ms"], ll["success"])
	}
	_ = w.Flush()
}

func doPreferences(args []string) {
	requireArgs(args, 2, "preferences <task> <p1,p2,...>")
	var providers []string
	for _, p := range strings.Split(args[1], ",") {
		if p = strings.TrimSpace(p); p != "" {
			providers = append(providers, p)
		}
	}
	body, _ := json.Marshal(map[string]any{"providers": providers})
	fmt.Println(prettyJSON(doPut("/v1/preferences/"+args[0], string(body))))
}

func doProcess(args []string) {
	requireArgs(args, 2, "process <task> <text>")
	body, _ := json.Marshal(map[string]any{
		"task": args[0],
		"text": strings.Join(args[1:], " "),
	})
	fmt.Println(prettyJSON(doPost("/v1/process", string(body))))
}

func doSession(args []string) {
	requireArgs(args, 1, "session <create|get|delete> ...")
	switch args[0] {
	case "create":
		requireArgs(args, 2, "session create <user-id>")
		body, _ := json.Marshal(map[string]string{"user_id": args[1]})
		fmt.Println(prettyJSON(doPost("/v1/sessions", string(body))))
	case "get":
		requireArgs(args, 2, "session get <id>")
		fmt.Println(prettyJSON(doGet("/v1/sessions/" + args[1])))
	case "delete":
		requireArgs(args, 2, "session delete <id>")
		doDelete("/v1/sessions/" + args[1])
		fmt.Println("deleted")
	default:
		requireArgs(nil, 1, "session <create|get|delete> ...")
	}
}

func doKey(args []string) {
	requireArgs(args, 1, "key <put|delete> ...")
	switch args[0] {
	case "put":
		requireArgs(args, 4, "key put <provider> <user-id> <api-key>")
		body, _ := json.Marshal(map[string]string{"user_id": args[2], "api_key": args[3]})
		fmt.Println(prettyJSON(doPut("/v1/keys/"+args[1], string(body))))
	case "delete":
		requireArgs(args, 3, "key delete <provider> <user-id>")
		doDelete("/v1/keys/" + args[1] + "?user_id=" + args[2])
		fmt.Println("deleted")
	default:
		requireArgs(nil, 1, "key <put|delete> ...")
	}
}

func doEvents() {
	resp, err := doRequest("GET", "/v1/events", nil)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "HTTP %d: %s\n", resp.StatusCode, string(data))
		os.Exit(1)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			fmt.Println(line)
		}
	}
}
