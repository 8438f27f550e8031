package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/gray-macro-core/internal/engine"
	"github.com/nerrad567/gray-macro-core/internal/macro"
)

const testSecret = "test-secret-for-development-only-0123456789"

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

const greetDoc = `
version: 1
name: Greeter
items:
  - type: loop
    settings: {count: 2}
  - type: if_variable
    settings: {name: mode, value: fast}
  - type: set_var
    settings: {name: greeting, value: hi}
  - type: end_if
  - type: end_loop
`

// ─── serve ──────────────────────────────────────────────────────────────────

// TestServe_InvalidConfig verifies serve fails with invalid config path.
func TestServe_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := serve(ctx, &options{configPath: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("serve() should fail with invalid config path")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("serve() error = %v, want not-exist", err)
	}
}

// TestServe_MissingDatabasePath verifies serve fails validation when the
// database path is blank.
func TestServe_MissingDatabasePath(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
site:
  id: test-site
database:
  path: ""
security:
  jwt:
    secret: "`+testSecret+`"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := serve(ctx, &options{configPath: configPath})
	if err == nil {
		t.Fatal("serve() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path is required") {
		t.Errorf("serve() error = %v", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYMACRO_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GRAYMACRO_CONFIG", "/etc/graymacro/config.yaml")
	if got := getConfigPath(); got != "/etc/graymacro/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

// ─── check ──────────────────────────────────────────────────────────────────

func TestCheckCommand(t *testing.T) {
	doc := writeFile(t, "greet.yaml", greetDoc)

	out, err := execute(t, "check", "--config", "/nonexistent/config.yaml", doc)
	if err != nil {
		t.Fatalf("check error = %v\n%s", err, out)
	}

	for _, want := range []string{
		"Greeter (5 items)",
		"   1  loop -> 5",
		"   2    if_variable -> 4",
		"   3      set_var",
		"   4    end_if -> 2",
		"   5  end_loop -> 1",
		"tree (4 nodes):",
		"root\n  loop #1 x2\n    if_variable #2\n      set_var #3\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "unpaired bracket",
			doc:     "name: Broken\nitems:\n  - type: loop\n    settings: {count: 2}\n  - type: wait\n",
			wantErr: macro.ErrUnpairedBracket,
		},
		{
			name:    "unmatched end",
			doc:     "name: Broken\nitems:\n  - type: wait\n  - type: end_if\n",
			wantErr: macro.ErrUnmatchedEnd,
		},
		{
			name:    "invalid document",
			doc:     "name: Broken\nitems:\n  - settings: {}\n",
			wantErr: macro.ErrInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := writeFile(t, "broken.yaml", tt.doc)
			_, err := execute(t, "check", "--config", "/nonexistent/config.yaml", doc)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("check error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckCommand_ReportsPosition(t *testing.T) {
	doc := writeFile(t, "broken.yaml", "name: Broken\nitems:\n  - type: wait\n  - type: break\n")
	_, err := execute(t, "check", "--config", "/nonexistent/config.yaml", doc)

	var be *macro.BuildError
	if !errors.As(err, &be) {
		t.Fatalf("check error = %v, want BuildError", err)
	}
	if be.Position != 2 {
		t.Errorf("Position = %d, want 2", be.Position)
	}
}

func TestCheckCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "check", "--config", "/nonexistent/config.yaml", "/nonexistent/doc.yaml")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("check error = %v, want not-exist", err)
	}
}

func TestPrintTree(t *testing.T) {
	tree := engine.TreeNode{Type: engine.RootType, Children: []engine.TreeNode{
		{Type: "loop", Position: 1, Count: 3, Children: []engine.TreeNode{{Type: "click", Position: 2}}},
		{Type: "wait", Position: 4},
	}}

	var buf bytes.Buffer
	printTree(&buf, tree, 0)

	want := "root\n  loop #1 x3\n    click #2\n  wait #4\n"
	if buf.String() != want {
		t.Errorf("printTree() =\n%s\nwant\n%s", buf.String(), want)
	}
}

// ─── run ────────────────────────────────────────────────────────────────────

func TestRunCommand(t *testing.T) {
	doc := writeFile(t, "greet.yaml", greetDoc)

	out, err := execute(t, "run", "--config", "/nonexistent/config.yaml", "--no-bridges", "--var", "mode=fast", doc)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	for _, want := range []string{
		"#1 loop iteration 2/2",
		"#3 set_var succeeded",
		"Greeter: succeeded",
		`greeting = "hi"`,
		`mode = "fast"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommand_Quiet(t *testing.T) {
	doc := writeFile(t, "greet.yaml", greetDoc)

	out, err := execute(t, "run", "-q", "--config", "/nonexistent/config.yaml", "--no-bridges", doc)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if strings.Contains(out, "iteration") {
		t.Errorf("quiet output has node events:\n%s", out)
	}
	if !strings.Contains(out, "Greeter: succeeded") {
		t.Errorf("output missing summary:\n%s", out)
	}
	if strings.Contains(out, "greeting") {
		t.Errorf("condition was false, greeting should be unset:\n%s", out)
	}
}

func TestRunCommand_FailedStep(t *testing.T) {
	doc := writeFile(t, "click.yaml", "name: Clicker\nitems:\n  - type: wait\n    settings: {duration_ms: 0}\n  - type: click\n    settings: {x: 1, y: 1}\n")

	out, err := execute(t, "run", "--config", "/nonexistent/config.yaml", "--no-bridges", doc)
	if err == nil {
		t.Fatalf("run should fail without an input bridge:\n%s", out)
	}
	if !strings.Contains(out, "Clicker: failed") || !strings.Contains(out, "at position 2") {
		t.Errorf("output =\n%s", out)
	}
}

func TestRunCommand_Disabled(t *testing.T) {
	doc := writeFile(t, "off.yaml", "name: Off\nenabled: false\nitems: []\n")
	_, err := execute(t, "run", "--config", "/nonexistent/config.yaml", "--no-bridges", doc)
	if !errors.Is(err, macro.ErrMacroDisabled) {
		t.Errorf("run error = %v, want ErrMacroDisabled", err)
	}
}

// ─── types / token ──────────────────────────────────────────────────────────

func TestTypesCommand(t *testing.T) {
	out, err := execute(t, "types", "--config", "/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("types error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 14 {
		t.Fatalf("got %d lines, want header + 13 types:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "TYPE") {
		t.Errorf("header = %q", lines[0])
	}
	if fields := strings.Fields(lines[1]); len(fields) < 4 || fields[0] != "loop" || fields[1] != "open" || fields[2] != "end_loop" || fields[3] != "count=2" {
		t.Errorf("loop row = %q", lines[1])
	}
	if fields := strings.Fields(lines[2]); fields[0] != "end_loop" || fields[1] != "close" || fields[2] != "-" {
		t.Errorf("end_loop row = %q", lines[2])
	}
}

func TestTokenCommand(t *testing.T) {
	configPath := writeFile(t, "config.yaml", `
security:
  jwt:
    secret: "`+testSecret+`"
`)

	out, err := execute(t, "token", "--config", configPath, "--subject", "ci", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	if err != nil {
		t.Fatalf("parsing token: %v", err)
	}
	if claims.Subject != "ci" || claims.Issuer != "graymacro" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenCommand_RequiresConfig(t *testing.T) {
	_, err := execute(t, "token", "--config", "/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("token should fail without a config file")
	}
}
