package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
	args     map[string][]string
	failOn   string
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	if f.args == nil {
		f.args = map[string][]string{}
	}
	f.args[name] = args
	if name == f.failOn {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(_ context.Context, a []string) error {
	return f.record("register", a)
}
func (f *fakeExec) Login(_ context.Context, a []string) error {
	f.loggedIn = true
	return f.record("login", a)
}
func (f *fakeExec) Logout(_ context.Context, a []string) error {
	f.loggedIn = false
	return f.record("logout", a)
}
func (f *fakeExec) Whoami(_ context.Context, a []string) error  { return f.record("whoami", a) }
func (f *fakeExec) Passwd(_ context.Context, a []string) error  { return f.record("passwd", a) }
func (f *fakeExec) Add(_ context.Context, a []string) error     { return f.record("add", a) }
func (f *fakeExec) List(_ context.Context, a []string) error    { return f.record("list", a) }
func (f *fakeExec) Show(_ context.Context, a []string) error    { return f.record("show", a) }
func (f *fakeExec) Delete(_ context.Context, a []string) error  { return f.record("delete", a) }
func (f *fakeExec) Summary(_ context.Context, a []string) error { return f.record("summary", a) }
func (f *fakeExec) Budget(_ context.Context, a []string) error  { return f.record("budget", a) }
func (f *fakeExec) Budgets(_ context.Context, a []string) error { return f.record("budgets", a) }
func (f *fakeExec) Categories(_ context.Context, a []string) error {
	return f.record("categories", a)
}

// capturePrint collects REPL output for the duration of t.
func capturePrint(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_Dispatch(t *testing.T) {
	out := capturePrint(t)
	input := strings.Join([]string{
		"help",
		"add",
		"login alice",
		"help",
		"",
		"categories expense",
		"add",
		"l 5",
		"show abc",
		"delete abc",
		"summary week",
		"budget",
		"budgets",
		"whoami",
		"passwd",
		"frobnicate",
		"logout",
		"exit",
		"list",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, rdr(input))

	assert.Equal(t, []string{
		"login", "categories", "add", "list", "show", "delete",
		"summary", "budget", "budgets", "whoami", "passwd", "logout",
	}, exec.calls)
	assert.Equal(t, []string{"alice"}, exec.args["login"])
	assert.Equal(t, []string{"5"}, exec.args["list"])
	assert.Equal(t, []string{"week"}, exec.args["summary"])

	assert.Contains(t, *out, "Please log in first")
	assert.Contains(t, *out, "Unknown command: frobnicate")
	assert.Contains(t, *out, "Bye!")
}

func TestRunREPL_ErrorsAreReported(t *testing.T) {
	out := capturePrint(t)

	exec := &fakeExec{loggedIn: true, failOn: "list"}
	runREPL(context.Background(), exec, func() string { return " (bob)" }, rdr("list\nwhoami"))

	assert.Equal(t, []string{"list", "whoami"}, exec.calls)
	assert.Contains(t, *out, "Error: boom")
	assert.Contains(t, *out, "fintrack (bob)> ")
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	capturePrint(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{loggedIn: true}
	runREPL(ctx, exec, func() string { return "" }, rdr("list\n"))
	assert.Empty(t, exec.calls)
}
