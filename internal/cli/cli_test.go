package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

const events = `[
  {"userId":"u1","type":"purchase","timestamp":"2026-03-01T12:00:00Z",
   "data":{"productId":"p1","categories":["footwear"],"brand":"nike","values":["sustainable"],"price":80}},
  {"userId":"u1","type":"click_brand","timestamp":"2026-03-01T12:01:00Z","data":{"brand":"adidas"}},
  {"userId":"","type":"purchase","timestamp":"2026-03-01T12:02:00Z","data":{"productId":"p2"}}
]`

func newRoot() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{Use: "searchkit", SilenceUsage: true, SilenceErrors: true}
	opts.Bind(root)
	root.AddCommand(NewQueryCmd(opts), NewAssignCmd(opts), NewDecayCmd(opts),
		NewPrefsCmd(opts), NewSimilarCmd(opts), NewSchedulerCmd(opts), NewConsumeCmd(opts))
	return root
}

// run 以 badger 持久化配置执行一条命令，返回标准输出。
func run(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfg, "--log-level", "disabled"}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("searchkit %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func writeConfig(t *testing.T) (cfg, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfg = filepath.Join(dir, "searchkit.yaml")
	content := "store:\n  backend: badger\n  cache_size: 0\n  badger:\n    path: " + filepath.Join(dir, "data") + "\n" +
		"experiments:\n  recorder_buffer: 0\n"
	if err := os.WriteFile(cfg, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfg, dir
}

func TestCommands_Help(t *testing.T) {
	for _, name := range []string{"query", "assign", "decay", "prefs", "similar", "scheduler", "consume"} {
		t.Run(name, func(t *testing.T) {
			root := newRoot()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs([]string{name, "--help"})
			if err := root.Execute(); err != nil {
				t.Fatalf("help: %v", err)
			}
			if !strings.Contains(out.String(), name) {
				t.Errorf("help output missing %q:\n%s", name, out.String())
			}
		})
	}
}

func TestCommands_Args(t *testing.T) {
	tests := [][]string{
		{"query"},
		{"assign", "only-experiment"},
		{"decay", "immediate", "u1", "brands"},
		{"decay", "immediate", "u1", "colors", "0.5"},
		{"decay", "immediate", "u1", "brands", "half"},
		{"prefs", "get"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			root := newRoot()
			root.SetOut(io.Discard)
			root.SetErr(io.Discard)
			root.SetArgs(args)
			if err := root.Execute(); err == nil {
				t.Fatal("expected an argument error")
			}
		})
	}
}

func TestCommands_PersonalizationFlow(t *testing.T) {
	cfg, dir := writeConfig(t)

	eventsFile := filepath.Join(dir, "events.json")
	if err := os.WriteFile(eventsFile, []byte(events), 0o600); err != nil {
		t.Fatal(err)
	}
	if out := run(t, cfg, "prefs", "record", eventsFile); !strings.Contains(out, "Recorded 2/3 events") {
		t.Fatalf("record output = %q", out)
	}

	var profile struct {
		UserID string             `json:"userId"`
		Brands map[string]float64 `json:"brands"`
	}
	if err := json.Unmarshal([]byte(run(t, cfg, "prefs", "get", "u1")), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.UserID != "u1" || profile.Brands["nike"] <= 0 || profile.Brands["adidas"] <= 0 {
		t.Fatalf("profile = %+v", profile)
	}

	var result struct {
		Algorithm string `json:"algorithm"`
		Query     struct {
			Functions []struct {
				Name string `json:"name"`
			} `json:"functions"`
		} `json:"query"`
	}
	if err := json.Unmarshal([]byte(run(t, cfg, "query", "", "--user", "u1")), &result); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if result.Algorithm != "preference" || len(result.Query.Functions) == 0 {
		t.Fatalf("query result = %+v", result)
	}

	if err := json.Unmarshal([]byte(run(t, cfg, "query", "", "--user", "u1", "--no-personalization")), &result); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if result.Algorithm != "standard" {
		t.Fatalf("algorithm without personalization = %s", result.Algorithm)
	}

	if out := run(t, cfg, "decay", "immediate", "u1", "brands", "0.5"); !strings.Contains(out, "changed=true") {
		t.Fatalf("decay output = %q", out)
	}
	if out := run(t, cfg, "prefs", "delete", "u1"); !strings.Contains(out, "Deleted preferences for u1") {
		t.Fatalf("delete output = %q", out)
	}
	if out := run(t, cfg, "decay", "user", "u1"); !strings.Contains(out, "changed=false") {
		t.Fatalf("decay after delete = %q", out)
	}
}

func TestAssignCmd(t *testing.T) {
	cfg, _ := writeConfig(t)

	var a struct {
		ExperimentID string `json:"experimentId"`
		VariantID    string `json:"variantId"`
	}
	if err := json.Unmarshal([]byte(run(t, cfg, "assign", "search_relevance_test_1", "u1")), &a); err != nil {
		t.Fatalf("decode assignment: %v", err)
	}
	if a.ExperimentID != "search_relevance_test_1" || a.VariantID == "" {
		t.Fatalf("assignment = %+v", a)
	}
	if out := run(t, cfg, "assign", "missing", "u1"); !strings.Contains(out, "Not enrolled") {
		t.Fatalf("unknown experiment output = %q", out)
	}
}
