package commands

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PaulFidika/ocidkit/core"
	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

var (
	v = newViper()

	rootCmd = &cobra.Command{
		Use:   "ocid",
		Short: "OCID login and ID token tooling",
		Long: `ocid verifies OpenCampus ID tokens, inspects the published key sets and
runs the PKCE login flow against the sandbox or live environment.

Every flag can also be set through an OCID_ prefixed environment variable,
e.g. OCID_ENV=live or OCID_JWKS_URL=https://...`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
)

// Execute runs the root command.
func Execute() error { return rootCmd.Execute() }

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("OCID")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("env", string(oidckit.EnvSandbox))
	v.SetDefault("keyless", "reject")
	v.SetDefault("leeway", time.Duration(0))
	return v
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	f := rootCmd.PersistentFlags()
	f.String("env", string(oidckit.EnvSandbox), "provider environment: sandbox or live")
	f.String("jwks-url", "", "override the key set URL")
	f.String("issuer", "", "override the expected iss claim")
	f.String("audience", "", "override the expected aud claim")
	f.String("client-id", "", "OAuth client id")
	f.String("redirect-uri", "", "registered callback URL")
	f.String("keyless", "reject", "tokens without kid: reject or single-key")
	f.Duration("leeway", 0, "clock skew tolerated on exp, nbf and iat")
	f.Bool("debug", false, "enable debug logging")
	_ = v.BindPFlags(f)
}

func loadConfig() (core.Config, error) {
	keyless := oidckit.KeylessReject
	if v.GetString("keyless") == "single-key" {
		keyless = oidckit.KeylessSingleKey
	}
	cfg := core.Config{
		Environment: oidckit.Environment(v.GetString("env")),
		ClientID:    v.GetString("client-id"),
		RedirectURI: v.GetString("redirect-uri"),
		Endpoints: oidckit.Endpoints{
			KeySetURL: v.GetString("jwks-url"),
			Issuer:    v.GetString("issuer"),
			Audience:  v.GetString("audience"),
		},
		Keyless: keyless,
		Leeway:  v.GetDuration("leeway"),
	}
	return cfg, cfg.Validate()
}
