package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for REPL output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App implements
// it; tests use a recording stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	Whoami(ctx context.Context, args []string) error
	Passwd(ctx context.Context, args []string) error
	Categories(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Summary(ctx context.Context, args []string) error
	Budget(ctx context.Context, args []string) error
	Budgets(ctx context.Context, args []string) error
}

type command struct {
	run       func(execIface, context.Context, []string) error
	needsAuth bool
}

var commands = map[string]command{
	"register":   {run: execIface.Register},
	"login":      {run: execIface.Login},
	"logout":     {run: execIface.Logout, needsAuth: true},
	"whoami":     {run: execIface.Whoami, needsAuth: true},
	"passwd":     {run: execIface.Passwd, needsAuth: true},
	"categories": {run: execIface.Categories, needsAuth: true},
	"add":        {run: execIface.Add, needsAuth: true},
	"l":          {run: execIface.List, needsAuth: true},
	"list":       {run: execIface.List, needsAuth: true},
	"show":       {run: execIface.Show, needsAuth: true},
	"delete":     {run: execIface.Delete, needsAuth: true},
	"summary":    {run: execIface.Summary, needsAuth: true},
	"budget":     {run: execIface.Budget, needsAuth: true},
	"budgets":    {run: execIface.Budgets, needsAuth: true},
}

// runREPL reads commands from reader until EOF, "exit" or "quit". The first
// token selects the command and the rest are passed as arguments. Errors
// from handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("fintrack%s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, categories, add, (l)ist, show <id>, delete <id>, summary, budget, budgets, passwd, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		cmd, ok := commands[name]
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}
		if cmd.needsAuth && !a.isLoggedIn() {
			printlnFn("Please log in first")
			continue
		}
		if err := cmd.run(a, ctx, args); err != nil {
			printlnFn("Error:", err)
		}
	}
}
