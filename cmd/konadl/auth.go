package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"konadl/pkg/auth"
	"konadl/pkg/ui"
)

var passwordHash string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage board accounts",
	Long: `Manage the board accounts konadl logs in with.

An account is optional. When one is stored, listing requests carry its login
and password hash, which lets the board apply that account's blacklist and
visibility settings. Only the salted SHA-1 hash of the password is stored,
in the system keychain when available and in an encrypted file otherwise.

The KONADL_LOGIN together with KONADL_PASSWORD or KONADL_PASSWORD_HASH
environment variables provide an account without storing anything.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove a stored account",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)

	loginCmd.Flags().StringVar(&passwordHash, "password-hash", "", "store an already hashed password instead of prompting")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	reader := bufio.NewReader(cmd.InOrStdin())

	var username string
	if len(args) == 1 {
		username = strings.TrimSpace(args[0])
	} else {
		fmt.Fprint(cmd.OutOrStdout(), "Username: ")
		if username, err = readLine(reader); err != nil {
			return err
		}
	}
	if username == "" {
		return errors.New("username is required")
	}

	hash := strings.TrimSpace(passwordHash)
	if hash == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		password, err := readPassword(reader)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if password == "" {
			return errors.New("password is required")
		}
		hash = auth.HashPassword(password)
	}

	account := &auth.Account{
		Username:     username,
		PasswordHash: hash,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", username))
	ui.PrintInfo("Password hash", auth.SanitizeAccount(account).PasswordHash)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	username := strings.TrimSpace(args[0])
	if err := manager.Delete(username); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return fmt.Errorf("account not found: %s", username)
		}
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("Accounts", "none stored, browsing anonymously")
		return nil
	}

	var defaultName string
	if def, err := manager.RetrieveDefault(); err == nil {
		defaultName = def.Username
	}

	out := cmd.OutOrStdout()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		marker := ""
		if account.Username == defaultName {
			marker = " (default)"
		}
		fmt.Fprintf(out, "%d. %s%s\n", i+1, sanitized.Username, marker)
		fmt.Fprintf(out, "   Password hash: %s\n", sanitized.PasswordHash)
		if !sanitized.LastModified.IsZero() {
			fmt.Fprintf(out, "   Last modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo on a terminal and falls back to a plain
// line otherwise
func readPassword(fallback *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}
	return readLine(fallback)
}

