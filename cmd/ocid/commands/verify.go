package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PaulFidika/ocidkit/core"
	jwtkit "github.com/PaulFidika/ocidkit/jwt"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [token]",
	Short: "Verify an ID token",
	Long: `Verify an ES256 ID token against the environment's key set, issuer and
audience. The token is read from stdin when no argument is given. The outcome
is printed as JSON and the command fails when the token is rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := tokenArg(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
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

		out := client.Verify(cmd.Context(), token)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(verifyView{
			Valid:   out.Valid,
			Stage:   out.Stage.String(),
			Header:  out.Header,
			Payload: out.Payload,
			Reason:  out.Reason,
		}); err != nil {
			return err
		}
		if !out.Valid {
			return fmt.Errorf("token rejected at %s: %s", out.Stage, out.Reason)
		}
		return nil
	},
}

type verifyView struct {
	Valid   bool          `json:"valid"`
	Stage   string        `json:"stage"`
	Header  jwtkit.Header `json:"header,omitzero"`
	Payload jwtkit.Claims `json:"payload,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

func tokenArg(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	b, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
	if err != nil {
		return "", err
	}
	t := strings.TrimSpace(string(b))
	if t == "" {
		return "", errors.New("no token given")
	}
	return t, nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
