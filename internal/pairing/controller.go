package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"capturepair/internal/logging"
	"capturepair/internal/services"
)

// SetupBackend is the slice of the device backend only the controller calls.
type SetupBackend interface {
	SetupDevice(ctx context.Context, deviceID string) error
	GeneratePairingFile(ctx context.Context, deviceID, destination string) (int64, error)
}

// Recorder persists finished sessions.
type Recorder interface {
	Record(ctx context.Context, session Session) error
}

// Notifier announces finished sessions.
type Notifier interface {
	SessionFinished(ctx context.Context, session Session) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logging.NewComponentLogger(logger, "controller")
	}
}

// WithRecorder persists every finished session.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithNotifier announces every finished session.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithObserver registers fn to receive every state change in order.
func WithObserver(fn func(Transition)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithRegistry lets sessions carry the device's display name.
func WithRegistry(r *Registry) Option {
	return func(c *Controller) {
		c.registry = r
	}
}

// WithPairingFileDefault supplies the destination used when an export names none.
func WithPairingFileDefault(fn func(deviceID string) string) Option {
	return func(c *Controller) {
		c.defaultDest = fn
	}
}

// Controller runs pairing sessions one at a time.
type Controller struct {
	drivers     *DriverGate
	devMode     *DevModeGate
	backend     SetupBackend
	registry    *Registry
	recorder    Recorder
	notifier    Notifier
	observers   []func(Transition)
	defaultDest func(string) string
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	current *Session
	last    *Session
	wg      sync.WaitGroup
}

// NewController wires the gates and the setup backend.
func NewController(drivers *DriverGate, devMode *DevModeGate, setup SetupBackend, opts ...Option) *Controller {
	c := &Controller{
		drivers: drivers,
		devMode: devMode,
		backend: setup,
		logger:  logging.NewComponentLogger(nil, "controller"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a setup session for deviceID and returns its terminal state.
// A session already in flight causes ErrSessionInProgress. The session runs
// detached from ctx: if ctx ends first Begin returns ctx.Err() and the session
// still finishes and is recorded.
func (c *Controller) Begin(ctx context.Context, deviceID string) (Session, error) {
	session, err := c.acquire(OperationSetup, deviceID)
	if err != nil {
		return Session{}, err
	}
	return c.launch(ctx, session, c.runSetup)
}

// ExportPairingFile writes the device's pairing record to destination, or to
// the default pairing file location when destination is empty. It requires
// installed drivers and shares the single session slot with Begin.
func (c *Controller) ExportPairingFile(ctx context.Context, deviceID, destination string) (Session, error) {
	if state := c.drivers.State(); !state.Installed() {
		return Session{}, fmt.Errorf("%w: drivers are %s", services.ErrInvalidState, state.Phase)
	}
	destination = strings.TrimSpace(destination)
	if destination == "" && c.defaultDest != nil {
		destination = c.defaultDest(strings.TrimSpace(deviceID))
	}
	if destination == "" {
		return Session{}, fmt.Errorf("%w: pairing file destination required", services.ErrConfiguration)
	}

	session, err := c.acquire(OperationPairingFile, deviceID)
	if err != nil {
		return Session{}, err
	}
	session.PairingFile = destination
	return c.launch(ctx, session, c.runExport)
}

// Current returns the in-flight session, if any.
func (c *Controller) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Session{}, false
	}
	return *c.current, true
}

// Last returns the most recently finished session, if any.
func (c *Controller) Last() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Session{}, false
	}
	return *c.last, true
}

// State returns the in-flight session state, or idle.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	return c.current.State
}

// Wait blocks until detached sessions have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) acquire(op Operation, deviceID string) (*Session, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id required", services.ErrInvalidDevice)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return nil, fmt.Errorf("%w: %s for device %s is %s",
			services.ErrSessionInProgress, c.current.Operation, c.current.DeviceID, c.current.State)
	}
	session := &Session{
		ID:        uuid.NewString(),
		Operation: op,
		DeviceID:  deviceID,
		State:     StateIdle,
		DevMode:   DevModeUnknown,
		StartedAt: c.now(),
	}
	if c.registry != nil {
		if device, ok := c.registry.Lookup(deviceID); ok {
			session.DeviceName = device.Name
		}
	}
	c.current = session
	c.wg.Add(1)
	return session, nil
}

func (c *Controller) launch(ctx context.Context, session *Session, run func(context.Context, *Session) Session) (Session, error) {
	runCtx := services.WithSessionID(context.WithoutCancel(ctx), session.ID)
	runCtx = services.WithDeviceID(runCtx, session.DeviceID)

	c.transition(session, StateDriverCheck)
	done := make(chan Session, 1)
	go func() {
		defer c.wg.Done()
		done <- run(runCtx, session)
	}()

	select {
	case outcome := <-done:
		return outcome, nil
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

func (c *Controller) runSetup(ctx context.Context, s *Session) Session {
	if !c.drivers.State().Installed() {
		return c.finish(ctx, s, StateAwaitingDriverInstall, nil)
	}

	c.transition(s, StateDevModeCheck)
	enabled, err := c.devMode.IsEnabled(ctx, s.DeviceID)
	if err != nil {
		return c.finish(ctx, s, StateFailed, err)
	}
	if !enabled {
		c.setDevMode(s, DevModeDisabled)
		if err := c.devMode.RequestReveal(ctx, s.DeviceID); err != nil {
			return c.finish(ctx, s, StateFailed, err)
		}
		c.setDevMode(s, DevModeRevealRequested)
		return c.finish(ctx, s, StateAwaitingDevModeEnable, nil)
	}
	c.setDevMode(s, DevModeEnabled)

	c.transition(s, StateSetup)
	if err := c.backend.SetupDevice(ctx, s.DeviceID); err != nil {
		return c.finish(ctx, s, StateFailed, setupFailure(err))
	}
	return c.finish(ctx, s, StateComplete, nil)
}

func (c *Controller) runExport(ctx context.Context, s *Session) Session {
	c.transition(s, StateExporting)
	written, err := c.backend.GeneratePairingFile(ctx, s.DeviceID, s.PairingFile)
	if err != nil {
		return c.finish(ctx, s, StateFailed, setupFailure(err))
	}
	c.mu.Lock()
	s.PairingBytes = written
	c.mu.Unlock()
	return c.finish(ctx, s, StateComplete, nil)
}

// setupFailure keeps communication errors distinct and carries any other
// backend failure text verbatim as the setup reason.
func setupFailure(err error) error {
	if errors.Is(err, services.ErrDeviceUnreachable) || errors.Is(err, services.ErrSetup) {
		return err
	}
	return &services.SetupError{Reason: err.Error(), Err: err}
}

func (c *Controller) setDevMode(s *Session, state DevModeState) {
	c.mu.Lock()
	s.DevMode = state
	c.mu.Unlock()
}

func (c *Controller) transition(s *Session, to SessionState) {
	c.mu.Lock()
	from := s.State
	s.State = to
	t := Transition{SessionID: s.ID, DeviceID: s.DeviceID, From: from, To: to, At: c.now()}
	c.mu.Unlock()

	c.logger.Debug("session transition",
		logging.String(logging.FieldSessionID, t.SessionID),
		logging.String(logging.FieldDeviceID, t.DeviceID),
		logging.String("from", string(from)),
		logging.String(logging.FieldSessionState, string(to)),
	)
	for _, fn := range c.observers {
		fn(t)
	}
}

// finish settles the session, reports it, and only then frees the slot.
func (c *Controller) finish(ctx context.Context, s *Session, state SessionState, cause error) Session {
	c.mu.Lock()
	if cause != nil {
		s.ErrorKind = services.Kind(cause)
		s.ErrorMessage = services.Reason(cause)
	}
	s.FinishedAt = c.now()
	c.mu.Unlock()
	c.transition(s, state)

	c.mu.Lock()
	outcome := *s
	c.mu.Unlock()

	c.logOutcome(ctx, outcome, cause)
	c.report(ctx, outcome)

	c.mu.Lock()
	c.last = &outcome
	c.current = nil
	c.mu.Unlock()
	return outcome
}

func (c *Controller) logOutcome(ctx context.Context, s Session, cause error) {
	logger := logging.WithContext(ctx, c.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldSessionState, string(s.State)),
		logging.String("operation", string(s.Operation)),
		logging.Duration("duration", s.Duration()),
	}
	switch s.State {
	case StateFailed:
		attrs = append(attrs,
			logging.Error(cause),
			logging.String("error_kind", s.ErrorKind),
			logging.String(logging.FieldErrorHint, failureHint(s)),
		)
		logging.WarnWithContext(logger, "session failed", "session_failed", attrs...)
	case StateAwaitingDriverInstall:
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "install the host drivers, then run setup again"))
		logger.Info("session waiting for driver install", logging.Args(append(attrs, logging.String(logging.FieldEventType, "session_awaiting_drivers"))...)...)
	case StateAwaitingDevModeEnable:
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "enable Developer Mode on the device, then run setup again"))
		logger.Info("session waiting for developer mode", logging.Args(append(attrs, logging.String(logging.FieldEventType, "session_awaiting_dev_mode"))...)...)
	default:
		if s.PairingFile != "" {
			attrs = append(attrs, logging.String("pairing_file", s.PairingFile), logging.Int64("bytes", s.PairingBytes))
		}
		logger.Info("session complete", logging.Args(append(attrs, logging.String(logging.FieldEventType, "session_complete"))...)...)
	}
}

func failureHint(s Session) string {
	switch s.ErrorKind {
	case "DeviceCommunicationError":
		return "reconnect and unlock the device, refresh devices, then retry"
	case "DevModeUnavailable":
		return "this device does not report developer mode; update iOS and retry"
	case "ExternalToolError":
		return "check that the device helper tools are installed and runnable"
	default:
		return "resolve the reported reason and retry"
	}
}

func (c *Controller) report(ctx context.Context, s Session) {
	logger := logging.WithContext(ctx, c.logger)
	if c.recorder != nil {
		if err := c.recorder.Record(ctx, s); err != nil {
			logging.WarnWithContext(logger, "failed to record session", "history_record_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "session missing from history"),
			)
		}
	}
	if c.notifier != nil {
		if err := c.notifier.SessionFinished(ctx, s); err != nil {
			logging.WarnWithContext(logger, "session notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "user was not notified of the outcome"),
			)
		}
	}
}
