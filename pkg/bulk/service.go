package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/bulkflow/pkg/stream"
)

// Default stream names.
const (
	DefaultCommandStream = "bulk-command"
	DefaultStatusStream  = "bulk-status"
	DefaultDoneStream    = "bulk-done"
)

// StatusStore is the key-value store holding the authoritative status of
// every command.
type StatusStore interface {
	// GetStatus returns the stored status of id, or UnknownStatus(id) when the
	// store holds nothing for it.
	GetStatus(ctx context.Context, id string) (*Status, error)

	// SetStatus persists a full status and returns its encoded form.
	// Deltas are rejected with ErrDeltaNotPersistable.
	SetStatus(ctx context.Context, st *Status) ([]byte, error)
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Store    StatusStore
	Admin    Admin
	Appender stream.Appender

	CommandStream string
	StatusStream  string

	Logger hclog.Logger
	Now    func() time.Time
}

// Service is the submitter-facing facade: it schedules commands, reads
// statuses and requests aborts.
type Service struct {
	store    StatusStore
	admin    Admin
	appender stream.Appender

	commandStream string
	statusStream  string

	logger hclog.Logger
	now    func() time.Time
}

// NewService returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if cfg.Admin == nil {
		return nil, fmt.Errorf("admin is required")
	}
	if cfg.Appender == nil {
		return nil, fmt.Errorf("appender is required")
	}
	if cfg.CommandStream == "" {
		cfg.CommandStream = DefaultCommandStream
	}
	if cfg.StatusStream == "" {
		cfg.StatusStream = DefaultStatusStream
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:         cfg.Store,
		admin:         cfg.Admin,
		appender:      cfg.Appender,
		commandStream: cfg.CommandStream,
		statusStream:  cfg.StatusStream,
		logger:        cfg.Logger.Named("bulk-service"),
		now:           cfg.Now,
	}, nil
}

// Submit schedules cmd and returns its id. A missing id is generated.
//
// The SCHEDULED status is stored before the command is appended so the
// scroller's first delta always finds a base status.
func (s *Service) Submit(ctx context.Context, cmd *Command) (string, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if err := cmd.Validate(); err != nil {
		return "", fmt.Errorf("invalid command: %w", err)
	}
	if _, err := s.admin.InputStreamFor(cmd.Action); err != nil {
		return "", err
	}

	current, err := s.store.GetStatus(ctx, cmd.ID)
	if err != nil {
		return "", fmt.Errorf("failed to read status of %s: %w", cmd.ID, err)
	}
	if !current.IsUnknown() {
		return "", fmt.Errorf("command %s already submitted (state %s)", cmd.ID, current.State)
	}

	payload, err := CommandCodec.Encode(cmd)
	if err != nil {
		return "", err
	}

	st := NewStatus(cmd.ID, StateScheduled)
	st.Action = cmd.Action
	st.Username = cmd.Username
	st.SubmitTime = Time(s.now())
	if _, err := s.store.SetStatus(ctx, st); err != nil {
		return "", fmt.Errorf("failed to store scheduled status of %s: %w", cmd.ID, err)
	}

	rec := stream.Record{Key: cmd.Action, Value: payload}
	if err := s.appender.Append(ctx, s.commandStream, rec); err != nil {
		return "", fmt.Errorf("failed to append command %s: %w", cmd.ID, err)
	}

	s.logger.Info("bulk command submitted",
		"command_id", cmd.ID,
		"action", cmd.Action,
		"username", cmd.Username,
	)
	return cmd.ID, nil
}

// Status returns the stored status of id.
func (s *Service) Status(ctx context.Context, id string) (*Status, error) {
	return s.store.GetStatus(ctx, id)
}

// Abort requests the abort of id by appending an ABORTED delta to the status
// stream, keyed by id. The status stage is the only writer of stored
// statuses: it finalizes the command when the delta reaches it, and the
// scroller observes ABORTED from then on. A command that completes first
// stays COMPLETED.
//
// The returned status is the one read before the request; commands already
// in a terminal state are returned unchanged and nothing is appended.
func (s *Service) Abort(ctx context.Context, id string) (*Status, error) {
	current, err := s.store.GetStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read status of %s: %w", id, err)
	}
	if current.IsUnknown() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	if current.State.IsTerminal() {
		return current, nil
	}

	delta := DeltaOf(id)
	delta.State = StateAborted
	delta.CompletedTime = Time(s.now())
	payload, err := StatusCodec.Encode(delta)
	if err != nil {
		return nil, err
	}
	if err := s.appender.Append(ctx, s.statusStream, stream.Record{Key: id, Value: payload}); err != nil {
		return nil, fmt.Errorf("failed to append abort of %s: %w", id, err)
	}

	s.logger.Info("bulk command abort requested", "command_id", id, "state", current.State)
	return current, nil
}

// Await polls the status of id until it reaches a terminal state or timeout
// elapses.
func (s *Service) Await(ctx context.Context, id string, timeout time.Duration) (*Status, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout

	var last *Status
	op := func() error {
		st, err := s.store.GetStatus(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if st.IsUnknown() {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrUnknownCommand, id))
		}
		last = st
		if !st.State.IsTerminal() {
			return errNotTerminal
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, errNotTerminal) {
			return last, fmt.Errorf("%w %s after %s (state %s)", ErrAwaitTimeout, id, timeout, last.State)
		}
		return last, err
	}
	return last, nil
}

var errNotTerminal = errors.New("not terminal")
