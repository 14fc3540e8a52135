package commands

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	authgin "github.com/PaulFidika/ocidkit/adapters/gin"
	"github.com/PaulFidika/ocidkit/core"
	oidckit "github.com/PaulFidika/ocidkit/oidc"
	memorylimiter "github.com/PaulFidika/ocidkit/ratelimit/memory"
	postgresstore "github.com/PaulFidika/ocidkit/storage/postgres"
	redisstore "github.com/PaulFidika/ocidkit/storage/redis"
	"github.com/PaulFidika/ocidkit/storage/sealed"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local login endpoint",
	Long: `Serve /auth/login, /auth/callback, /auth/state and /auth/logout for the
configured client. Pending logins and tokens live in memory unless
--redis-url or --database-url is given; --seal-key encrypts stored tokens.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.RedirectURI == "" {
			return core.ErrLoginDisabled
		}
		cfg.WarmSchedule = oidckit.DefaultWarmSchedule

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, cleanup, err := storageOptions(ctx, cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		opts = append(opts, core.WithAuditLogger(core.LogrusAuditLogger{}))

		client, err := core.New(cfg, opts...)
		if err != nil {
			return err
		}
		defer client.Close()
		client.Start(ctx)

		sess, err := client.Session()
		if err != nil {
			return err
		}
		successURL, _ := cmd.Flags().GetString("success-url")
		limiter := memorylimiter.New(map[string]memorylimiter.Limit{
			authgin.RLCallback: {Limit: 20, Window: time.Minute},
		})

		if !v.GetBool("debug") {
			gin.SetMode(gin.ReleaseMode)
		}
		r := gin.New()
		r.Use(gin.Recovery())
		authgin.NewService(sess, limiter).WithSuccessRedirect(successURL).GinRegisterAPI(r)
		r.GET("/me", authgin.AuthRequired(sess), func(c *gin.Context) {
			u, _ := authgin.CurrentUser(c)
			c.JSON(http.StatusOK, u)
		})

		addr, _ := cmd.Flags().GetString("addr")
		srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logrus.WithField("addr", addr).Info("serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func storageOptions(ctx context.Context, cmd *cobra.Command) ([]core.Option, func(), error) {
	var (
		opts    []core.Option
		kv      oidckit.KeyValueStore
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if dsn, _ := cmd.Flags().GetString("database-url"); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if err := postgresstore.Migrate(ctx, pool); err != nil {
			cleanup()
			return nil, nil, err
		}
		kv = postgresstore.NewKV(pool)
		opts = append(opts, core.WithStateCache(postgresstore.NewStateCache(pool, 0)))
	} else if rurl, _ := cmd.Flags().GetString("redis-url"); rurl != "" {
		ropts, err := redis.ParseURL(rurl)
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewClient(ropts)
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, err
		}
		kv = redisstore.NewKV(rdb, "", 0)
		opts = append(opts, core.WithStateCache(redisstore.NewStateCache(rdb, "", 0)))
	}

	if hexKey, _ := cmd.Flags().GetString("seal-key"); hexKey != "" {
		if kv == nil {
			return nil, nil, errors.New("--seal-key needs --redis-url or --database-url")
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		s, err := sealed.NewKV(kv, key)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		kv = s
	}
	if kv != nil {
		opts = append(opts, core.WithKeyValueStore(kv))
	}
	return opts, cleanup, nil
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.String("success-url", "", "redirect here after a successful login")
	f.String("redis-url", "", "store logins in Redis")
	f.String("database-url", "", "store logins in Postgres")
	f.String("seal-key", "", "hex-encoded 32-byte key sealing stored tokens")
	rootCmd.AddCommand(serveCmd)
}
