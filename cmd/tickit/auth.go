package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tickit-notes/tickit/internal/auth"
	"github.com/tickit-notes/tickit/internal/remote"
	"github.com/tickit-notes/tickit/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "auth",
	Short:   "Sign in with a Todoist API token",
	Long: `Sign in with a Todoist API token (Settings > Integrations > Developer).

The token is checked against Todoist, then stored in <data_dir>/session.json
readable only by you. A sync pass runs right after signing in, uploading any
notes you created offline.

When stdin is not a terminal the token is read from its first line.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpen(ctx, autoSync)
		defer a.Close()

		if a.session == nil {
			exitf("TICKIT_TOKEN is set; unset it to manage the stored session")
		}

		token, err := readToken()
		if err != nil {
			exitf("reading token: %v", err)
		}

		user, err := verifyToken(ctx, a, token)
		if err != nil {
			exitf("verifying token: %v", err)
		}

		session := &auth.Session{
			User:        auth.User{ID: user.ID, Name: user.Name, Email: user.Email},
			AccessToken: token,
		}
		if err := a.creds.SignIn(session); err != nil {
			exitf("saving session: %v", err)
		}
		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), displayUser(session.User))

		// The facade only triggers on writes; sign-in has to ask explicitly.
		a.scheduler.Trigger()
		a.settle(ctx)
		if last := a.scheduler.Last(); last.Err == nil && last.Result != nil {
			fmt.Printf("   Synced %d notes (%d uploaded)\n", last.Result.Pulled, last.Result.Created)
		}
	},
}

func readToken() (string, error) {
	if !ui.IsTerminal(os.Stdin) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	var token string
	err := huh.NewInput().
		Title("Todoist API token").
		Description("Settings > Integrations > Developer").
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("token is required")
			}
			return nil
		}).
		Value(&token).
		Run()
	return strings.TrimSpace(token), err
}

func verifyToken(ctx context.Context, a *app, token string) (*remote.User, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	client, err := remote.NewClient(remote.StaticToken(token), &remote.Config{
		BaseURL: a.cfg.API.BaseURL,
		Timeout: a.cfg.API.Timeout,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return client.FetchUser(ctx)
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "auth",
	Short:   "Forget the stored session",
	Long: `Forget the stored session. Local notes are kept; edits made while
signed out are uploaded after the next login.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context(), manualSync)
		defer a.Close()

		if a.session == nil {
			exitf("TICKIT_TOKEN is set; unset it to sign out")
		}
		if err := a.creds.SignOut(); err != nil {
			exitf("signing out: %v", err)
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "auth",
	Short:   "Show the signed-in account",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(cmd.Context(), manualSync)
		defer a.Close()

		if a.creds.Status() != auth.StatusAuthenticated {
			fmt.Printf("%s Not signed in\n", ui.RenderMuted("○"))
			return
		}
		s := a.creds.Session()
		if s == nil || s.User.ID == "" {
			fmt.Printf("%s Using token from environment\n", ui.RenderPass("●"))
			return
		}
		fmt.Printf("%s %s\n", ui.RenderPass("●"), displayUser(s.User))
		if s.Expires != nil {
			fmt.Printf("   Expires: %s\n", s.Expires.Local().Format("2006-01-02 15:04"))
		}
	},
}

func displayUser(u auth.User) string {
	switch {
	case u.Name != "" && u.Email != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Email != "":
		return u.Email
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
