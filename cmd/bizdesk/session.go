package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	domainauth "github.com/target/bizdesk/internal/domain/auth"
)

func (a *app) loginCmd() *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Sign in and store the credential",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationView: "/login"},
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			lines := newLineReader(cmd, passwordStdin)
			password, err := lines.secret("Password: ")
			if err != nil {
				return err
			}
			id, err := a.stack.Session.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s%s\n", id.Email, rolesSuffix(id))
			return err
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin without prompting")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			a.stack.Session.Logout(cmd.Context(), "")
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return err
		}),
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Verify the stored credential and print the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.stack.Session.CheckAuth(cmd.Context(), false); err != nil {
				return err
			}
			state := a.stack.Session.State()
			if state.Identity == nil {
				return errNotSignedIn
			}
			return writeIdentity(cmd.OutOrStdout(), *state.Identity, output)
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}

func (a *app) csrfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csrf",
		Short: "Forgery token maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Fetch and store a fresh forgery token",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if _, err := a.stack.Client.RefreshForgeryToken(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Forgery token refreshed.")
			return err
		}),
	})
	return cmd
}

func writeIdentity(w io.Writer, id domainauth.Identity, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(id)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		rows := [][2]string{
			{"ID", id.ID},
			{"EMAIL", id.Email},
			{"NAME", id.Name},
			{"ROLES", joinRoles(id.Roles)},
		}
		for _, r := range rows {
			if _, err := fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1]); err != nil {
				return err
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func joinRoles(roles []domainauth.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func rolesSuffix(id domainauth.Identity) string {
	if len(id.Roles) == 0 {
		return ""
	}
	return " (" + joinRoles(id.Roles) + ")"
}

// lineReader reads answers from stdin, prompting on stderr unless quiet.
type lineReader struct {
	in     *bufio.Reader
	prompt io.Writer
	quiet  bool
}

func newLineReader(cmd *cobra.Command, quiet bool) *lineReader {
	return &lineReader{in: bufio.NewReader(cmd.InOrStdin()), prompt: cmd.ErrOrStderr(), quiet: quiet}
}

func (r *lineReader) secret(prompt string) (string, error) {
	if !r.quiet {
		if _, err := io.WriteString(r.prompt, prompt); err != nil {
			return "", err
		}
	}
	line, err := r.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no input provided")
	}
	return line, nil
}
