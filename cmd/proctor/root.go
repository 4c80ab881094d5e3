package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/flagstore"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/testsapi"
)

// syncTimeout bounds the test list refresh that follows a submission.
const syncTimeout = 15 * time.Second

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg     *config.ClientConfig
	log     zerolog.Logger
	session *session.File
	tests   *testsapi.Client
	rdb     *redis.Client
}

var cli *app

var rootCmd = &cobra.Command{
	Use:   "proctor",
	Short: "Take proctored ExStem tests from the terminal",
	Long: `Take proctored ExStem tests from the terminal. Usage:

	proctor login --nisn 0051234567
	proctor tests
	proctor view <test-id> --answer essay.pdf
	proctor submit <test-id> essay.pdf
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		cli = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cli != nil && cli.rdb != nil {
			_ = cli.rdb.Close()
		}
	},
}

func newApp() (*app, error) {
	cfg := config.LoadClient()
	log := logger.SetupTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	sess, err := session.NewFile(cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	api := apiclient.New(apiclient.Config{
		BaseURL:    cfg.APIBaseURL,
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.Timeout,
		Session:    sess,
		Navigator: apiclient.NavigatorFunc(func(route string) {
			fmt.Fprintf(os.Stderr, "Session expired. Run `proctor login` (%s).\n", route)
		}),
		Log: log,
	})

	a := &app{
		cfg:     cfg,
		log:     log,
		session: sess,
		tests:   testsapi.New(api),
	}
	if cfg.FlagRedisURL != "" {
		opts, err := redis.ParseURL(cfg.FlagRedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse FLAG_REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opts)
	}
	return a, nil
}

// flags opens the compromise flag store. The Redis store is keyed by the
// signed-in student, so it needs a session.
func (a *app) flags() (flagstore.Store, error) {
	if a.rdb == nil {
		return flagstore.NewFile(a.cfg.FlagStorePath)
	}
	subject, err := tokenSubject(a.session.Token())
	if err != nil {
		return nil, err
	}
	return flagstore.NewRedis(a.rdb, "student:"+subject), nil
}

// tokenSubject reads the subject of the stored token. The signature is the
// server's concern; the client only needs the student id.
func tokenSubject(token string) (string, error) {
	if token == "" {
		return "", errors.New("not logged in, run `proctor login`")
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("session token has no subject")
	}
	return claims.Subject, nil
}

// available lists the student's tests, re-reports pending compromise flags
// and folds newer server-side resets into the local flag store.
func (a *app) available(ctx context.Context, flags flagstore.Store) (*model.TestBuckets, error) {
	buckets, err := a.tests.Available(ctx)
	if err != nil {
		return nil, err
	}
	if err := flagstore.Sync(ctx, flags, a.tests, buckets.All()); err != nil {
		a.log.Warn().Err(err).Msg("Failed to sync compromise flags")
	}
	return buckets, nil
}

// findTest looks up one test of the signed-in student.
func (a *app) findTest(ctx context.Context, flags flagstore.Store, arg string) (*model.Test, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid test id %q", arg)
	}
	buckets, err := a.available(ctx, flags)
	if err != nil {
		return nil, err
	}
	test, ok := buckets.Find(id)
	if !ok {
		return nil, fmt.Errorf("test %s is not assigned to you", id)
	}
	return test, nil
}

// refresher reloads the test list after a submission.
func (a *app) refresher(flags flagstore.Store) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if _, err := a.available(ctx, flags); err != nil {
			a.log.Warn().Err(err).Msg("Failed to refresh tests")
		}
	}
}
