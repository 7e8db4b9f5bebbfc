package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// newGmailTokenCmd walks through the OAuth consent flow and prints the
// refresh token the gmail transport needs.
func newGmailTokenCmd() *cobra.Command {
	var redirectURL string
	cmd := &cobra.Command{
		Use:   "gmail-token",
		Short: "Obtain a Gmail refresh token for sending reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := os.Getenv("GMAIL_CLIENT_ID")
			clientSecret := os.Getenv("GMAIL_CLIENT_SECRET")
			if clientID == "" || clientSecret == "" {
				return fmt.Errorf("GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET must be set")
			}

			config := &oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Scopes:       []string{gmail.GmailSendScope},
				Endpoint:     google.Endpoint,
				RedirectURL:  redirectURL,
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Go to the following link in your browser: %v\n", config.AuthCodeURL("state-token", oauth2.AccessTypeOffline))
			fmt.Fprintln(out, "\nAfter authorization, copy the 'code' parameter from the redirect URL.")
			fmt.Fprint(out, "\nEnter the authorization code: ")

			var authCode string
			if _, err := fmt.Fscan(cmd.InOrStdin(), &authCode); err != nil {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}

			tok, err := config.Exchange(cmd.Context(), authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token: %w", err)
			}

			fmt.Fprintln(out, "\nAdd the refresh token to your environment variables:")
			fmt.Fprintf(out, "export GMAIL_REFRESH_TOKEN=%q\n", tok.RefreshToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "http://localhost:8080/callback", "OAuth redirect URL registered for the client")
	return cmd
}
