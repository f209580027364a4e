package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ldapgate/ldapgate/internal/app"
	"github.com/ldapgate/ldapgate/internal/auth"
	"github.com/ldapgate/ldapgate/internal/config"
)

var (
	configPath string
	passwordIn string
)

func main() {
	root := &cobra.Command{
		Use:           "ldapgate",
		Short:         "LDAP authentication and identity synchronization gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and ping every directory endpoint",
		RunE:  runCheck,
	}

	verify := &cobra.Command{
		Use:   "verify <username>",
		Short: "Verify a user's credentials against the directory pool",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	verify.Flags().StringVarP(&passwordIn, "password", "p", "", "password (read from stdin when omitted)")

	root.AddCommand(check, verify)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	return app.New(ctx, cfg, log, app.Options{})
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Check(ctx); err != nil {
		return err
	}

	fmt.Println("all directory endpoints reachable")
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	username := args[0]

	password := passwordIn
	if password == "" {
		fmt.Fprint(os.Stderr, "password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.Verifier.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, auth.ErrAbstain) {
			return fmt.Errorf("username and password must not be empty")
		}
		return err
	}
	if !ok {
		return fmt.Errorf("credentials rejected for %s", username)
	}

	fmt.Printf("credentials accepted for %s\n", username)
	return nil
}
