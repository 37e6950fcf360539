package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	calls []string
	args  [][]string
	err   error
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	return f.err
}

func (f *fakeExec) Submit(_ context.Context, args []string) error    { return f.record("submit", args) }
func (f *fakeExec) Get(_ context.Context, args []string) error       { return f.record("get", args) }
func (f *fakeExec) List(_ context.Context, args []string) error      { return f.record("list", args) }
func (f *fakeExec) Dashboard(_ context.Context, args []string) error { return f.record("dashboard", args) }
func (f *fakeExec) Reconcile(context.Context) error                  { return f.record("reconcile", nil) }
func (f *fakeExec) Respond(_ context.Context, args []string) error   { return f.record("respond", args) }
func (f *fakeExec) Health(context.Context) error                     { return f.record("health", nil) }

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

func TestRunREPL_DispatchesCommands(t *testing.T) {
	lines := capturePrint(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"",
		"submit cantab cant=/tmp/a.csv",
		"get u-1",
		"l status=Quarantine",
		"dashboard PARIS",
		"reconcile",
		"respond scan.zip Validated",
		"health",
		"foobar",
		"exit",
		"get never-reached",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "(alice online)" }, bufio.NewScanner(input))

	assert.Equal(t, []string{"submit", "get", "list", "dashboard", "reconcile", "respond", "health"}, exec.calls)
	assert.Equal(t, []string{"cantab", "cant=/tmp/a.csv"}, exec.args[0])
	assert.Equal(t, []string{"scan.zip", "Validated"}, exec.args[5])
	assert.Contains(t, *lines, "intake (alice online)> ")
	assert.Contains(t, *lines, "Unknown command: foobar")
	assert.Contains(t, *lines, "Bye!")
}

func TestRunREPL_PrintsHandlerErrorsAndStopsAtEOF(t *testing.T) {
	lines := capturePrint(t)

	exec := &fakeExec{err: errors.New("server unavailable")}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("reconcile\n")))

	assert.Equal(t, []string{"reconcile"}, exec.calls)
	assert.Contains(t, *lines, "error: server unavailable")
	assert.NotContains(t, *lines, "Bye!")
}
