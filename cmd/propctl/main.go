// Package main implements propctl, the operator CLI for the proposald HTTP API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// version information
var version = "dev"

// Exit codes reported for session state.
const (
	exitCompleted  = 0
	exitFailed     = 1
	exitInProgress = 3
)

// exitError carries a process exit code without an error message.
type exitError struct {
	code  int
	state orchestrator.State
}

func (e *exitError) Error() string {
	return fmt.Sprintf("session %s", e.state)
}

// exitFor maps a session state onto the CLI exit code.
func exitFor(s orchestrator.State) error {
	switch s {
	case orchestrator.StateCompleted:
		return nil
	case orchestrator.StateFailed:
		return &exitError{code: exitFailed, state: s}
	default:
		return &exitError{code: exitInProgress, state: s}
	}
}

// options are the persistent flags shared by every command.
type options struct {
	server  string
	output  string
	timeout time.Duration
}

func (o *options) client() *client {
	return newClient(o.server, o.timeout)
}

func (o *options) printer(cmd *cobra.Command) (*printer, error) {
	return newPrinter(cmd.OutOrStdout(), o.output)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitCompleted
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailed
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "propctl",
		Short: "CLI for proposald workflow operations",
		Long: `propctl is a command-line interface for the proposald HTTP server.
It starts proposal sessions from tender documents, answers clarification
questions and fetches the produced artifacts.

Commands that report a session exit with 0 when it completed, 1 when it
failed and 3 while it is still in progress or waiting for answers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&o.server, "server", envOr("PROPOSALD_SERVER", "http://localhost:9191"), "proposald server URL")
	root.PersistentFlags().StringVarP(&o.output, "output", "o", formatTable, "output format: table, json or yaml")
	root.PersistentFlags().DurationVar(&o.timeout, "timeout", 5*time.Minute, "request timeout")

	root.AddCommand(
		newStartCmd(o),
		newStatusCmd(o),
		newListCmd(o),
		newAdvanceCmd(o),
		newGapsCmd(o),
		newAnswerCmd(o),
		newCancelCmd(o),
		newArtifactsCmd(o),
		newProposalCmd(o),
		newProgressCmd(o),
		newSearchCmd(o),
		newLearnCmd(o),
		newArchiveCmd(o),
		newHealthCmd(o),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// readInput reads the document named by args, or stdin for none or "-".
// The returned name is the file's base name, empty for stdin.
func readInput(stdin io.Reader, args []string) (string, string, error) {
	var (
		content []byte
		name    string
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
		name = filepath.Base(args[0])
	}
	if strings.TrimSpace(string(content)) == "" {
		return "", "", errors.New("no content to submit")
	}
	return string(content), name, nil
}
