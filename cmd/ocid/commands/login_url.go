package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

var loginURLCmd = &cobra.Command{
	Use:   "login-url",
	Short: "Print a PKCE authorization URL",
	Long: `Build the provider login URL for --redirect-uri with a fresh state and
code verifier. The verifier is printed so the code can be exchanged by hand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ep, err := cfg.Resolved()
		if err != nil {
			return err
		}
		rp, err := oidckit.NewRelyingParty(ep, cfg.ClientID, cfg.RedirectURI, nil)
		if err != nil {
			return err
		}
		state := uuid.NewString()
		verifier := oauth2.GenerateVerifier()
		var opts []oidckit.AuthURLOpt
		if origin, _ := cmd.Flags().GetString("origin-url"); origin != "" {
			opts = append(opts, oidckit.WithOriginURL(origin))
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, oidckit.AuthURL(state, verifier, rp, opts...))
		fmt.Fprintf(out, "state:         %s\n", state)
		fmt.Fprintf(out, "code_verifier: %s\n", verifier)
		return nil
	},
}

func init() {
	loginURLCmd.Flags().String("origin-url", "", "origin_url passed to the provider")
	rootCmd.AddCommand(loginURLCmd)
}
