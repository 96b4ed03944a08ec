package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/internal/appconfig"
	"github.com/MrEthical07/authkit/password"
	"github.com/spf13/cobra"
)

// readPassword takes the flag value, or the first line of stdin when empty.
func readPassword(in io.Reader, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required (--password or stdin)")
	}
	return line, nil
}

func hasherFor(cfg *appconfig.Config) (*password.Argon2, error) {
	engineCfg := cfg.Engine()
	return password.NewArgon2(engineCfg.HasherConfig())
}

func newHashPasswordCmd(g *globalFlags) *cobra.Command {
	var plain string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the Argon2id PHC hash of a password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := appconfig.Load(g.configPath, g.dotenvPath)
			if err != nil {
				return err
			}
			pw, err := readPassword(cmd.InOrStdin(), plain)
			if err != nil {
				return err
			}
			hasher, err := hasherFor(cfg)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&plain, "password", "", "password to hash; read from stdin when empty")
	return cmd
}

func newCreateUserCmd(g *globalFlags) *cobra.Command {
	var username, plain string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Insert a user into the postgres store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			cfg, log, err := loadConfig(g)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			pw, err := readPassword(cmd.InOrStdin(), plain)
			if err != nil {
				return err
			}
			hasher, err := hasherFor(cfg)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return err
			}

			store, err := openPostgres(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			u, err := store.Users.Create(cmd.Context(), authkit.User{Username: username, PasswordHash: hash})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&plain, "password", "", "password; read from stdin when empty")
	return cmd
}
