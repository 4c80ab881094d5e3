package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginNISN string

// stdin is shared so a piped NISN and password are read from one buffer.
var stdin = bufio.NewReader(os.Stdin)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with your NISN",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		nisn := strings.TrimSpace(loginNISN)
		if nisn == "" {
			fmt.Fprint(os.Stderr, "NISN: ")
			line, err := stdin.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read nisn: %w", err)
			}
			nisn = strings.TrimSpace(line)
		}
		if nisn == "" {
			return errors.New("nisn is required")
		}

		password, err := readPassword()
		if err != nil {
			return err
		}

		student, err := cli.tests.Login(cmd.Context(), nisn, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Printf("Signed in as %s (%s)\n", student.Name, student.NISN)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cli.session.Token() == "" {
			fmt.Println("Not signed in")
			return nil
		}
		if err := cli.tests.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Signed out")
		return nil
	},
}

// readPassword prompts without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().StringVar(&loginNISN, "nisn", "", "Student NISN (prompted when empty)")
}
