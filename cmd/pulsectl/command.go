// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
)

var (
	// errUsage is returned after usage has been printed for bad arguments.
	errUsage = errors.New("invalid usage")

	// errHelp is returned after usage was printed on request.
	errHelp = errors.New("help requested")
)

// Command is one pulsectl subcommand.
type Command struct {
	Name        string
	Description string
	Usage       string
	Examples    []string
	Run         func(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error
}

// NewFlagSet creates a flag set that prints the command's usage on error.
func (c *Command) NewFlagSet(w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(c.Name, flag.ContinueOnError)
	fs.SetOutput(w)
	fs.Usage = func() {
		c.PrintUsage(w)
		fmt.Fprintln(w, "\nFLAGS:")
		fs.PrintDefaults()
	}
	return fs
}

// PrintUsage prints the command description, usage line and examples.
func (c *Command) PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "%s\n\n", c.Description)
	fmt.Fprintf(w, "USAGE:\n    %s\n", c.Usage)
	if len(c.Examples) > 0 {
		fmt.Fprintln(w, "\nEXAMPLES:")
		for _, example := range c.Examples {
			fmt.Fprintf(w, "    %s\n", example)
		}
	}
}

// CommandRegistry dispatches os.Args to registered commands.
type CommandRegistry struct {
	commands map[string]*Command
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*Command)}
}

// Register adds cmd, replacing any command with the same name.
func (r *CommandRegistry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
}

// Execute runs the command named by args[0].
func (r *CommandRegistry) Execute(ctx context.Context, env *Env, args []string) error {
	if len(args) < 1 {
		r.PrintHelp(env.Stderr)
		return fmt.Errorf("no command specified")
	}

	switch args[0] {
	case "help", "-h", "--help":
		r.PrintHelp(env.Stdout)
		return nil
	}

	cmd, ok := r.commands[args[0]]
	if !ok {
		r.PrintHelp(env.Stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
	err := cmd.Run(ctx, env, cmd.NewFlagSet(env.Stderr), args[1:])
	if errors.Is(err, errHelp) {
		return nil
	}
	return err
}

// PrintHelp lists every registered command.
func (r *CommandRegistry) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "pulsectl - command line client for the Quality Pulse API")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "    pulsectl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %-10s %s\n", name, r.commands[name].Description)
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Credentials come from PULSE_EMAIL and PULSE_PASSWORD or the -email and")
	fmt.Fprintln(w, "-password flags. Identity settings come from the FIREBASE_* variables.")
}
