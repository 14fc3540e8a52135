package commands

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"text/tabwriter"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"

	"github.com/PaulFidika/ocidkit/core"
	jwtkit "github.com/PaulFidika/ocidkit/jwt"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys published for the environment",
	Long: `Fetch the environment's key set and print one line per key with its
RFC 7638 thumbprint. Keys that cannot be used for ES256 are marked unusable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.RedirectURI = ""
		client, err := core.New(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		url := client.Endpoints().KeySetURL
		keys, err := client.Keys().Refresh(cmd.Context(), url)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KID\tKTY\tCRV\tALG\tTHUMBPRINT")
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", orDash(k.Kid), k.Kty, orDash(k.Crv), orDash(k.Alg), thumbprint(k))
		}
		return tw.Flush()
	},
}

func thumbprint(k jwtkit.JWK) string {
	pub, err := k.ECDSAPublicKey()
	if err != nil {
		return "unusable: " + err.Error()
	}
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return "unusable: " + err.Error()
	}
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "unusable: " + err.Error()
	}
	return base64.RawURLEncoding.EncodeToString(tp)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(keysCmd)
}
