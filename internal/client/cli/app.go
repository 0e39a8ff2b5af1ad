package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/deskauth/internal/client/client"
	"github.com/dmitrijs2005/deskauth/internal/client/config"
	"github.com/dmitrijs2005/deskauth/internal/client/credentials"
	"github.com/dmitrijs2005/deskauth/internal/client/models"
	"github.com/dmitrijs2005/deskauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/deskauth/internal/client/services"
	"github.com/dmitrijs2005/deskauth/internal/common"
	"github.com/dmitrijs2005/deskauth/internal/cryptox"
	"github.com/dmitrijs2005/deskauth/internal/filex"
	"github.com/dmitrijs2005/deskauth/internal/logging"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	_ "modernc.org/sqlite"
)

const dbFileName = "deskauth.db"

type App struct {
	config      *config.Config
	authService services.AuthService
	store       *credentials.Store
	log         logging.Logger
	reader      *bufio.Reader
	out         io.Writer
	closeStore  func() error
}

// NewApp opens the configured store and wires the auth service on top of it.
// The returned App owns the store; Run closes it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(os.Stderr, c.LogLevel).With("component", common.AppName)

	identity, err := models.ParseIdentityField(c.AutoLoginIdentity)
	if err != nil {
		return nil, err
	}

	repo, closeStore, err := openRepository(ctx, c)
	if err != nil {
		log.Error(ctx, "error opening store", "backend", c.StoreBackend, "error", err)
		return nil, err
	}

	store := credentials.NewStore(repo)
	as := services.NewAuthService(services.Options{
		Dialer: client.NewWAMPDialer(c.ServerURL, c.Realm, c.DialTimeout, log),
		Store:  store,
		Agent:  cryptox.Agent{},
		Registrar: services.Registrar{
			AuthID:     c.RegistrarAuthID,
			PrivateKey: c.RegistrarPrivateKey,
		},
		Logger:        log,
		Prefix:        c.ProcedurePrefix,
		DeviceName:    c.DeviceName,
		IdentityField: identity,
	}, nil)

	return &App{
		config:      c,
		authService: as,
		store:       store,
		log:         log,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		closeStore:  closeStore,
	}, nil
}

// openRepository builds the metadata backend named by c.StoreBackend and a
// function releasing it.
func openRepository(ctx context.Context, c *config.Config) (metadata.Repository, func() error, error) {
	switch c.StoreBackend {
	case config.StoreSQLite:
		dir, err := filex.EnsureDir(c.DataDir)
		if err != nil {
			return nil, nil, err
		}
		db, err := client.InitDatabase(ctx, filepath.Join(dir, dbFileName))
		if err != nil {
			return nil, nil, fmt.Errorf("error initializing database: %w", err)
		}
		return metadata.NewSQLiteRepository(db), db.Close, nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", c.RedisAddr, err)
		}
		return metadata.NewRedisRepository(rdb, c.RedisNamespace), rdb.Close, nil

	case config.StoreMemory:
		return metadata.NewMemoryRepository(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
}

// Run resumes the previous session if possible and then serves the REPL on
// stdin until the user exits. Open channels and the store are closed on return.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	a.resume(ctx)

	printlnFn("deskauth CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

// resume restores the persisted profile and tries a device-key login for it.
func (a *App) resume(ctx context.Context) {
	if err := a.authService.Restore(ctx); err != nil {
		a.log.Warn(ctx, "restore failed", "error", err)
		return
	}
	if !a.authService.IsAuthenticated() {
		return
	}

	if a.authService.AutoLogin(ctx) {
		fmt.Fprintln(a.out, color.GreenString("Welcome back, %s", a.authService.CurrentUser().DisplayName()))
		return
	}
	fmt.Fprintln(a.out, color.YellowString("Saved session for %s could not be resumed, use 'login'",
		a.authService.CurrentUser().DisplayName()))
}

// Close releases remote channels and the local store.
func (a *App) Close(ctx context.Context) error {
	a.authService.Close(ctx)
	if a.closeStore == nil {
		return nil
	}
	err := a.closeStore()
	a.closeStore = nil
	if err != nil {
		a.log.Error(ctx, "error closing store", "error", err)
	}
	return err
}

func (a *App) isLoggedIn() bool {
	return a.authService.IsAuthenticated()
}

// getStatus renders the prompt status: the display name of the current user
// and the lifecycle state.
func (a *App) getStatus() string {
	state := a.authService.State()

	var s string
	switch state {
	case services.StateAuthenticated:
		s = color.GreenString("%s", state)
	case services.StateAnonymous:
		s = color.HiBlackString("%s", state)
	default:
		s = color.YellowString("%s", state)
	}

	if u := a.authService.CurrentUser(); u != nil {
		s = color.CyanString("%s", u.DisplayName()) + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}
