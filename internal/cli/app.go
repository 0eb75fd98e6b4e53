package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gorm.io/driver/sqlite"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/internal/config"
	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

const awsCacheSize = 64

var errNotLoggedIn = errors.New("not logged in; run 'keyproxyctl login' first")

// KMSFactory builds a KMS client for probing an account's credentials.
type KMSFactory func(ctx context.Context, creds keyproxy.AWSCredentials) (keyproxy.KMSAPI, error)

// Option customises the command tree, mostly for tests.
type Option func(*app)

// WithKMSFactory replaces the AWS KMS client used by "kms status".
func WithKMSFactory(f KMSFactory) Option {
	return func(a *app) { a.newKMS = f }
}

// WithSSMClient replaces the AWS SSM client used to resolve ssm: references.
func WithSSMClient(c keyproxy.SSMAPI) Option {
	return func(a *app) { a.ssmClient = c }
}

// WithHTTPClient replaces the HTTP client used to reach the backend.
func WithHTTPClient(h keyproxy.HTTPDoer) Option {
	return func(a *app) { a.httpClient = h }
}

// app is the state shared by every command of one invocation. It is filled
// in by the root command's PersistentPreRunE.
type app struct {
	// flags
	configPath string
	server     string
	logLevel   string

	// injected
	newKMS     KMSFactory
	ssmClient  keyproxy.SSMAPI
	httpClient keyproxy.HTTPDoer

	cfg      *config.Config
	log      *slog.Logger
	store    keyproxy.TokenStore
	closer   io.Closer
	session  *keyproxy.Session
	client   *keyproxy.Client
	prompt   *prompter
	resolver *keyproxy.Resolver
}

func newApp(opts ...Option) *app {
	a := &app{
		newKMS: func(ctx context.Context, creds keyproxy.AWSCredentials) (keyproxy.KMSAPI, error) {
			return keyproxy.NewAWSKMSClient(ctx, creds)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *app) init(ctx context.Context, in io.Reader, errOut io.Writer) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, func(c *config.Config) {
		if a.server != "" {
			c.Server.BaseURL = a.server
		}
		if a.logLevel != "" {
			c.Logging.Level = a.logLevel
		}
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = setupLogger(errOut, cfg.Logging.Level, cfg.Logging.Format)

	if err := a.openStore(); err != nil {
		return err
	}
	a.session, err = keyproxy.OpenSession(ctx, a.store)
	if err != nil {
		return err
	}

	httpClient := a.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Server.Timeout}
	}
	a.client = keyproxy.NewClient(cfg.Server.BaseURL,
		keyproxy.WithHTTPClient(httpClient),
		keyproxy.WithTokenSource(a.session),
		keyproxy.WithLogger(a.log),
	)
	a.prompt = newPrompter(in, errOut)
	a.log.Debug("configuration loaded", "config", path, "server", cfg.Server.BaseURL, "session_store", cfg.Session.Store)
	return nil
}

func (a *app) openStore() error {
	s := a.cfg.Session
	switch s.Store {
	case config.StoreMemory:
		a.store = keyproxy.NewMemoryTokenStore()
	case config.StoreFile:
		a.store = keyproxy.NewFileTokenStore(s.Path)
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
			return fmt.Errorf("create session directory: %w", err)
		}
		st, err := keyproxy.NewGormTokenStore(sqlite.Open(s.Path), s.Table)
		if err != nil {
			return fmt.Errorf("open sqlite session store: %w", err)
		}
		a.store, a.closer = st, st
	case config.StorePostgres:
		st, err := keyproxy.NewPostgresTokenStore(s.DSN, s.Table)
		if err != nil {
			return fmt.Errorf("open postgres session store: %w", err)
		}
		a.store, a.closer = st, st
	default:
		return fmt.Errorf("unknown session store %q", s.Store)
	}
	return nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// gate applies the session gate to view and fails when it would send the
// user to the login screen.
func (a *app) gate(view keyproxy.View) error {
	if keyproxy.Resolve(a.session.IsAuthenticated(), view) == keyproxy.ViewAuth {
		return errNotLoggedIn
	}
	return nil
}

func (a *app) token() (string, error) {
	tok, ok := a.session.Token()
	if !ok {
		return "", errNotLoggedIn
	}
	return tok, nil
}

func (a *app) email(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.Account.Email != "" {
		return a.cfg.Account.Email, nil
	}
	return "", errors.New("email is required (--email or account.email)")
}

// resolve expands an ssm: reference. AWS is only contacted when v is one.
func (a *app) resolve(ctx context.Context, v string) (string, error) {
	if !keyproxy.IsSSMRef(v) {
		return v, nil
	}
	if a.resolver == nil {
		client := a.ssmClient
		if client == nil {
			var opts []func(*awsconfig.LoadOptions) error
			if a.cfg.AWS.Region != "" {
				opts = append(opts, awsconfig.WithRegion(a.cfg.AWS.Region))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				return "", fmt.Errorf("load aws config: %w", err)
			}
			client = ssm.NewFromConfig(awsCfg)
		}
		a.resolver = keyproxy.NewResolver(keyproxy.NewSSMProvider(client, awsCacheSize, a.cfg.AWS.CacheTTL))
	}
	return a.resolver.Resolve(ctx, v)
}

// resolveAWS expands ssm: references inside AWS credentials and fills in
// the configured region when none is stored.
func (a *app) resolveAWS(ctx context.Context, c keyproxy.AWSCredentials) (keyproxy.AWSCredentials, error) {
	var err error
	if c.AccessKeyID, err = a.resolve(ctx, c.AccessKeyID); err != nil {
		return c, err
	}
	if c.SecretAccessKey, err = a.resolve(ctx, c.SecretAccessKey); err != nil {
		return c, err
	}
	if c.Region == "" {
		c.Region = a.cfg.AWS.Region
	}
	return c, nil
}
