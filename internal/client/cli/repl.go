package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	Submit(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Dashboard(ctx context.Context, args []string) error
	Reconcile(ctx context.Context) error
	Respond(ctx context.Context, args []string) error
	Health(ctx context.Context) error
}

// runREPL reads commands from scanner until EOF, "exit" or "quit". Handler
// errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("intake %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn("Available commands: submit, get, (l)ist, dashboard, reconcile, respond, health, exit")
		case "submit":
			err = a.Submit(ctx, args)
		case "get":
			err = a.Get(ctx, args)
		case "l", "list":
			err = a.List(ctx, args)
		case "dashboard":
			err = a.Dashboard(ctx, args)
		case "reconcile":
			err = a.Reconcile(ctx)
		case "respond":
			err = a.Respond(ctx, args)
		case "health":
			err = a.Health(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("error:", err)
		}
	}
}
