// Package app wires one authenticated sync session together: history
// backfill over REST, the realtime client and the state container it feeds.
package app

import (
	"context"
	"errors"
	"fmt"

	"kit-sync/internal/api"
	"kit-sync/internal/clock"
	"kit-sync/internal/config"
	"kit-sync/internal/logger"
	"kit-sync/internal/model"
	"kit-sync/internal/notify"
	"kit-sync/internal/realtime"
	"kit-sync/internal/socketio"
	"kit-sync/internal/state"
)

type History interface {
	Messages(ctx context.Context, scope model.Scope) ([]model.Message, error)
}

type Deps struct {
	History  History
	Dialer   realtime.Dialer
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *logger.Logger
}

// ErrAbandoned is returned by Run when the client gave up reconnecting.
var ErrAbandoned = errors.New("sync connection abandoned")

type App struct {
	cfg       config.Sync
	log       *logger.Logger
	history   History
	abandoned chan struct{}

	State  *state.Store
	Client *realtime.Client
}

// New builds an App from configuration using the resty history client and
// the socket.io transport.
func New(cfg config.Config, log *logger.Logger) (*App, error) {
	if err := config.ValidateClient(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	history, err := api.New(cfg.APIURL(), cfg.API.Timeout, cfg.Sync.Token, log.Component("api"))
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}
	dialer := realtime.NewSocketIODialer(socketio.ClientConfig{
		URL:               cfg.Sync.URL,
		Path:              cfg.Sync.Path,
		ReconnectAttempts: cfg.Sync.ReconnectAttempts,
		ReconnectDelay:    cfg.Sync.ReconnectDelay,
		ReconnectDelayMax: cfg.Sync.ReconnectDelayMax,
		HandshakeTimeout:  cfg.Sync.HandshakeTimeout,
	}, log.Component("socketio"))

	return NewWithDeps(cfg.Sync, Deps{
		History:  history,
		Dialer:   dialer,
		Notifier: newNotifier(cfg.Sync, log),
		Logger:   log,
	}), nil
}

// newNotifier shows desktop notifications when asked to and logs them
// otherwise.
func newNotifier(cfg config.Sync, log *logger.Logger) notify.Notifier {
	if cfg.DesktopNotify {
		return notify.NewDesktop("kit-sync")
	}
	return notify.NewLogNotifier(log.Component("notify"))
}

func NewWithDeps(cfg config.Sync, deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	a := &App{
		cfg:     cfg,
		log:     deps.Logger.Component("app"),
		history:   deps.History,
		abandoned: make(chan struct{}, 1),
		State:     state.New(),
	}
	a.Client = realtime.NewClient(realtime.Deps{
		Dialer:   deps.Dialer,
		Sink:     &rejoinSink{Store: a.State, app: a},
		Notifier: deps.Notifier,
		Clock:    deps.Clock,
		Logger:   deps.Logger.Component("realtime"),
	}, realtime.Options{
		MaxConnectionErrors: cfg.MaxConnectionErrors,
		TypingTimeout:       cfg.TypingTimeout,
		PingInterval:        cfg.PingInterval,
	})
	return a
}

// Backfill loads history for every configured kit and channel. Failures are
// collected; scopes that loaded stay loaded.
func (a *App) Backfill(ctx context.Context) error {
	if a.history == nil {
		return nil
	}
	scopes := make([]model.Scope, 0, len(a.cfg.Kits)+len(a.cfg.Channels))
	for _, id := range a.cfg.Kits {
		scopes = append(scopes, model.KitScope(id))
	}
	for _, id := range a.cfg.Channels {
		scopes = append(scopes, model.ChannelScope(id))
	}

	var errs []error
	for _, scope := range scopes {
		msgs, err := a.history.Messages(ctx, scope)
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				return err
			}
			errs = append(errs, fmt.Errorf("%s: %w", scope, err))
			continue
		}
		a.State.LoadHistory(scope, msgs)
		a.log.Debug().Str("scope", scope.String()).Int("count", len(msgs)).Msg("history loaded")
	}
	return errors.Join(errs...)
}

// Run backfills, connects and keeps the session alive until ctx ends. A
// rejected token aborts before connecting; other backfill errors are logged.
// Run returns ErrAbandoned once the client stops reconnecting on its own.
func (a *App) Run(ctx context.Context) error {
	if err := a.Backfill(ctx); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return err
		}
		a.log.Warn().Err(err).Msg("history backfill incomplete")
	}

	select {
	case <-a.abandoned:
	default:
	}

	a.Client.Connect(a.cfg.Token)
	a.Client.StartPing(a.cfg.PingInterval)
	defer a.Client.Disconnect()

	select {
	case <-ctx.Done():
		return nil
	case <-a.abandoned:
		a.log.Warn().Msg("connection abandoned, a new session is required")
		return ErrAbandoned
	}
}

func (a *App) rejoinChannels() {
	for _, id := range a.cfg.Channels {
		a.Client.JoinChannel(id)
	}
}

// rejoinSink forwards to the store and re-joins configured channels each
// time the connection comes up, since rooms do not survive a reconnect. A
// disconnect the client will not recover from wakes Run.
type rejoinSink struct {
	*state.Store
	app *App
}

func (s *rejoinSink) SetConnectionStatus(status model.ConnectionStatus) {
	s.Store.SetConnectionStatus(status)
	switch {
	case status == model.StatusConnected:
		s.app.rejoinChannels()
	case status == model.StatusDisconnected && s.app.Client.Status() == model.StatusDisconnected:
		select {
		case s.app.abandoned <- struct{}{}:
		default:
		}
	}
}
