// Package engine is the session and state authority for kiosks: it
// issues tokens, validates them on every action, computes machine
// state, and pushes state updates over the channel.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"kioskd/pkg/channel"
)

// Options configures an Engine.
type Options struct {
	// TokenTTL bounds the lifetime of issued session tokens.
	TokenTTL time.Duration

	// ORM persists tokens across restarts. Optional; without it the
	// engine runs purely in memory.
	ORM *gorm.DB

	// Receipts archives rendered receipts. Optional.
	Receipts *ReceiptArchive

	// Metrics collectors. Optional.
	Metrics *Metrics

	Logger zerolog.Logger
}

// Engine owns per-machine sessions. One instance serves every machine
// on the channel.
type Engine struct {
	listener channel.Listener
	configs  ConfigSource
	fbs      FBS
	tokens   *tokenStore
	receipts *ReceiptArchive
	metrics  *Metrics
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates an engine bound to the provided dependencies.
func New(listener channel.Listener, configs ConfigSource, fbs FBS, opts Options) (*Engine, error) {
	if listener == nil {
		return nil, errors.New("channel listener is required")
	}
	if configs == nil {
		return nil, errors.New("configuration source is required")
	}
	if fbs == nil {
		return nil, errors.New("fbs collaborator is required")
	}

	tokens, err := newTokenStore(opts.ORM, opts.TokenTTL)
	if err != nil {
		return nil, err
	}

	return &Engine{
		listener: listener,
		configs:  configs,
		fbs:      fbs,
		tokens:   tokens,
		receipts: opts.Receipts,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		sessions: make(map[string]*session),
	}, nil
}

// Tokens exposes the token store for metrics registration.
func (e *Engine) Tokens() *tokenStore { return e.tokens }

// SetMetrics attaches collectors after construction.
func (e *Engine) SetMetrics(m *Metrics) { e.metrics = m }

// Start registers the channel handlers. Handlers run until the
// listener is closed.
func (e *Engine) Start(ctx context.Context) error {
	if e == nil {
		return errors.New("nil engine")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	specs := []struct {
		kind    channel.Kind
		handler channel.EngineHandlerFunc
	}{
		{channel.KindRequestToken, e.handleRequestToken},
		{channel.KindClientReady, e.handleClientReady},
		{channel.KindAction, e.handleAction},
		{channel.KindResetAction, e.handleResetAction},
	}
	for _, spec := range specs {
		if err := e.listener.Handle(spec.kind, spec.handler); err != nil {
			return fmt.Errorf("register %s handler: %w", spec.kind, err)
		}
	}
	return nil
}

func (e *Engine) handleRequestToken(ctx context.Context, machineID string, data []byte) error {
	var msg channel.RequestToken
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.MachineID != "" && msg.MachineID != machineID {
		e.metrics.denied()
		e.logger.Warn().Str("machine", machineID).Str("claimed", msg.MachineID).
			Msg("token requested for a foreign machine")
		return nil
	}

	_, ok, err := e.configs.Configuration(ctx, machineID)
	if err != nil {
		return err
	}
	if !ok {
		// An unprovisioned machine stays pre-session; there is no
		// negative reply in the vocabulary and no handshake timeout.
		e.logger.Warn().Str("machine", machineID).Msg("token requested for unknown configuration")
		return nil
	}

	token, err := e.tokens.Issue(ctx, machineID)
	if err != nil {
		return err
	}
	e.metrics.tokenIssued()
	e.logger.Info().Str("machine", machineID).Time("expires", token.ExpiresAt).Msg("token issued")

	return e.listener.PublishTo(ctx, machineID, channel.KindTokenIssued, channel.TokenIssued{
		Token:  token.Value,
		Expiry: token.ExpiresAt.Unix(),
	})
}

func (e *Engine) handleClientReady(ctx context.Context, machineID string, data []byte) error {
	var msg channel.ClientReady
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if err := e.tokens.Validate(machineID, msg.Token); err != nil {
		e.rejected(machineID, "client-ready", err)
		return nil
	}

	if e.tokens.shouldRotate(machineID, msg.Token) {
		token, err := e.tokens.Rotate(ctx, machineID, msg.Token)
		if err != nil {
			return err
		}
		e.metrics.tokenIssued()
		e.logger.Info().Str("machine", machineID).Time("expires", token.ExpiresAt).Msg("token rotated")
		// The kiosk stores the fresh token and answers with another
		// client-ready, which then carries the session forward.
		return e.listener.PublishTo(ctx, machineID, channel.KindTokenIssued, channel.TokenIssued{
			Token:  token.Value,
			Expiry: token.ExpiresAt.Unix(),
		})
	}

	cfg, ok, err := e.configs.Configuration(ctx, machineID)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Warn().Str("machine", machineID).Msg("ready machine has no configuration")
		return nil
	}

	sess := e.session(machineID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := e.listener.PublishTo(ctx, machineID, channel.KindConfiguration, cfg); err != nil {
		return err
	}
	return e.pushState(ctx, sess)
}

func (e *Engine) handleAction(ctx context.Context, machineID string, data []byte) error {
	var msg channel.Action
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if err := e.tokens.Validate(machineID, msg.Token); err != nil {
		e.rejected(machineID, msg.Name, err)
		return nil
	}

	sess := e.session(machineID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := e.applyAction(ctx, sess, msg.Name, msg.Data); err != nil {
		// Terminal to the operation: the state stands, nothing is
		// pushed, and the kiosk keeps its current screen.
		e.logger.Error().Err(err).Str("machine", machineID).Str("action", msg.Name).
			Msg("action failed")
		return nil
	}
	e.metrics.actionProcessed(msg.Name)

	return e.pushState(ctx, sess)
}

func (e *Engine) handleResetAction(ctx context.Context, machineID string, data []byte) error {
	var msg channel.ResetAction
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if err := e.tokens.Validate(machineID, msg.Token); err != nil {
		e.rejected(machineID, "reset", err)
		return nil
	}

	sess := e.session(machineID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.reset()
	e.metrics.actionProcessed("reset")

	return e.pushState(ctx, sess)
}

// session returns the machine's session, creating it at the initial
// step on first contact.
func (e *Engine) session(machineID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok := e.sessions[machineID]; ok {
		return sess
	}
	sess := newSession(machineID)
	e.sessions[machineID] = sess
	return sess
}

func (e *Engine) pushState(ctx context.Context, sess *session) error {
	return e.listener.PublishTo(ctx, sess.machineID, channel.KindStateUpdate, sess.state)
}

func (e *Engine) rejected(machineID, operation string, err error) {
	e.metrics.denied()
	e.logger.Warn().Err(err).Str("machine", machineID).Str("operation", operation).
		Msg("rejected message")
}

// printReceipt archives a receipt for sessions that processed items on
// printer-equipped machines. Failures are logged and swallowed; a
// receipt never blocks the session from finishing.
func (e *Engine) printReceipt(ctx context.Context, sess *session) {
	if e.receipts == nil || len(sess.state.LoanItems) == 0 {
		return
	}
	cfg, ok, err := e.configs.Configuration(ctx, sess.machineID)
	if err != nil || !ok || !cfg.Capabilities.Printer {
		return
	}

	id, err := e.receipts.Archive(ctx, sess.machineID, sess.state)
	if err != nil {
		e.logger.Error().Err(err).Str("machine", sess.machineID).Msg("archive receipt")
		return
	}
	e.metrics.receiptArchived()
	e.logger.Info().Str("machine", sess.machineID).Str("receipt", id).Msg("receipt archived")
}
