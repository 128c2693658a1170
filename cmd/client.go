/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/jobboard/apiserver/config"
	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/localstate"
	"github.com/jobboard/apiserver/types"
)

// clientEnv is the state shared by the command-line client commands: one
// holder persisted in the local SQLite state file.
type clientEnv struct {
	cfg      config.Config
	logger   *zap.Logger
	accessor *backend.Accessor
	state    *localstate.SQLiteStore
	holder   *auth.Holder
}

func openClient(ctx context.Context) (*clientEnv, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	state, err := localstate.OpenSQLite(ctx, cfg.Client.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open client state %s: %w", cfg.Client.StatePath, err)
	}

	accessor := backend.NewAccessor(cfg, logger.Named("backend"))
	holder := auth.NewHolder(accessor, state, auth.Options{
		Logger:          logger.Named("auth"),
		EmailRedirectTo: strings.TrimRight(cfg.Backend.SiteURL, "/") + "/auth/callback",
	})
	if err := holder.Start(ctx); err != nil {
		_ = state.Close()
		return nil, err
	}

	return &clientEnv{cfg: cfg, logger: logger, accessor: accessor, state: state, holder: holder}, nil
}

func (e *clientEnv) Close() {
	if err := e.accessor.Close(); err != nil {
		e.logger.Debug("close backend", zap.Error(err))
	}
	if err := e.state.Close(); err != nil {
		e.logger.Warn("close client state", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// withClient runs fn with an open client environment.
func withClient(fn func(cmd *cobra.Command, env *clientEnv, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(cmd, env, args)
	}
}

// reportError prints err the way a toast would show it and returns an error
// for cobra's exit status.
func reportError(cmd *cobra.Command, err error) error {
	out := cmd.ErrOrStderr()
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(out, auth.UserMessage(err))
		fields := make([]string, 0, len(verr.Fields))
		for f := range verr.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(out, "  %s: %s\n", f, verr.Fields[f])
		}
		return err
	}
	fmt.Fprintln(out, auth.UserMessage(err))
	return err
}

func printIdentity(w io.Writer, identity *types.Identity) {
	if identity == nil {
		fmt.Fprintln(w, "Not signed in.")
		return
	}
	fmt.Fprintf(w, "Signed in as %s (%s)\n", identity.Email, identity.Role)
}

var stdinLines *bufio.Reader

func readLine(cmd *cobra.Command) (string, error) {
	if stdinLines == nil {
		stdinLines = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := stdinLines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := readLine(cmd)
	return strings.TrimSpace(line), err
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(raw), err
	}
	return readLine(cmd)
}
