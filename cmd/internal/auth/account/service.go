package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"waypoint/cmd/identity"
	"waypoint/cmd/internal/auth/session"
	"waypoint/cmd/internal/metrics"
	"waypoint/cmd/security/password"
)

// Hasher is the credential hashing capability the service needs.
// password.Config satisfies it.
type Hasher interface {
	Validate(plain string) error
	Hash(plain string) (string, error)
	// Rehash hashes without the password policy. Only for plaintext the
	// caller has already verified, or for internal values.
	Rehash(plain string) (string, error)
	Verify(encodedHash, plain string) (bool, error)
	NeedsRehash(encodedHash string) (bool, error)
}

var _ Hasher = password.Config{}

// RegisterInput is a registration request after transport decoding.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput identifies the account by username or email.
type LoginInput struct {
	Identifier string
	Password   string
}

// UpdateInput changes the caller's own account. Nil fields are left untouched.
// Changing the password requires CurrentPassword.
type UpdateInput struct {
	Email           *string
	Password        *string
	CurrentPassword *string
}

// Result is returned by Register and Login.
type Result struct {
	Token     string
	ExpiresAt time.Time
	User      identity.User
}

// Service implements the credential lifecycle. It is safe for concurrent use.
type Service struct {
	log     *slog.Logger
	store   identity.Store
	hasher  Hasher
	codec   session.Codec
	metrics metrics.Recorder
	audit   Auditor
	now     func() time.Time

	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for storage timestamps and audit.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// NewService wires the service. It pre-computes a dummy hash for timing-resistant logins.
func NewService(log *slog.Logger, store identity.Store, hasher Hasher, codec session.Codec, opts ...Option) (*Service, error) {
	if store == nil || hasher == nil || codec == nil {
		return nil, errors.New("account: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		log:     log,
		store:   store,
		hasher:  hasher,
		codec:   codec,
		metrics: metrics.Noop{},
		audit:   noopAuditor{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummy, err := hasher.Rehash("dummy-password-for-timing-only")
	if err != nil {
		return nil, fmt.Errorf("account: dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register validates input, stores a hashed credential and issues a session token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	const op = "account.Register"

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	fe := fieldErrors{}
	validateUsername(fe, username)
	validateEmail(fe, email)
	if err := s.hasher.Validate(in.Password); err != nil {
		msg, ok := passwordPolicyMessage(err)
		if !ok {
			msg = "is invalid"
		}
		fe.add("password", msg)
	}
	if err := fe.err(); err != nil {
		s.metrics.RecordRegister(metrics.ResultInvalid)
		return Result{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.log.Error("auth.register.hash.fail", "err", err)
		s.metrics.RecordRegister(metrics.ResultError)
		return Result{}, internal(op, err)
	}

	now := s.now()
	user, err := s.store.CreateUser(ctx, identity.CreateUserInput{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			s.metrics.RecordRegister(metrics.ResultConflict)
			return Result{}, ConflictError{Field: identity.ConflictField(err)}
		}
		s.log.Error("auth.register.store.fail", "err", err)
		s.metrics.RecordRegister(metrics.ResultError)
		return Result{}, internal(op, err)
	}

	tok, exp, err := s.codec.Issue(user.ID)
	if err != nil {
		s.log.Error("auth.register.issue.fail", "err", err, "user_id", user.ID)
		s.metrics.RecordRegister(metrics.ResultError)
		return Result{}, internal(op, err)
	}

	s.metrics.RecordRegister(metrics.ResultOK)
	s.record(ctx, AuditEvent{Event: EventRegister, UserID: user.ID, Identifier: username, At: now})
	s.log.Info("auth.register.ok", "user_id", user.ID)

	return Result{Token: tok, ExpiresAt: exp, User: user}, nil
}

// Login verifies credentials and issues a session token.
// Unknown identifiers and wrong passwords both return ErrUnauthorized.
func (s *Service) Login(ctx context.Context, in LoginInput) (Result, error) {
	const op = "account.Login"

	ident := strings.TrimSpace(in.Identifier)
	fe := fieldErrors{}
	if ident == "" {
		fe.add("identifier", "is required")
	}
	if in.Password == "" {
		fe.add("password", "is required")
	}
	if err := fe.err(); err != nil {
		s.metrics.RecordLogin(metrics.ResultInvalid)
		return Result{}, err
	}

	ua, err := s.lookup(ctx, ident)
	if err != nil {
		if identity.IsNotFound(err) {
			// Spend the same hashing work as a real verify.
			_, _ = s.hasher.Verify(s.dummyHash, in.Password)
			return Result{}, s.loginDenied(ctx, "", ident, "not_found")
		}
		s.log.Error("auth.login.lookup.fail", "err", err)
		s.metrics.RecordLogin(metrics.ResultError)
		return Result{}, internal(op, err)
	}

	ok, err := s.hasher.Verify(ua.PasswordHash, in.Password)
	if err != nil {
		// A stored hash we cannot parse is a data integrity problem, not a wrong password.
		s.log.Error("auth.login.hash_invalid", "err", err, "user_id", ua.User.ID)
		s.metrics.RecordLogin(metrics.ResultError)
		return Result{}, internal(op, err)
	}
	if !ok {
		return Result{}, s.loginDenied(ctx, ua.User.ID, ident, "bad_password")
	}

	s.upgradeHash(ctx, ua, in.Password)

	tok, exp, err := s.codec.Issue(ua.User.ID)
	if err != nil {
		s.log.Error("auth.login.issue.fail", "err", err, "user_id", ua.User.ID)
		s.metrics.RecordLogin(metrics.ResultError)
		return Result{}, internal(op, err)
	}

	s.metrics.RecordLogin(metrics.ResultOK)
	s.record(ctx, AuditEvent{Event: EventLoginOK, UserID: ua.User.ID, Identifier: ident, At: s.now()})
	s.log.Info("auth.login.ok", "user_id", ua.User.ID)

	return Result{Token: tok, ExpiresAt: exp, User: ua.User}, nil
}

// Current returns the account bound to a verified session subject.
// A subject that no longer exists is treated as unauthorized.
func (s *Service) Current(ctx context.Context, subjectID string) (identity.User, error) {
	u, err := s.store.GetUserByID(ctx, subjectID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrUnauthorized
		}
		return identity.User{}, internal("account.Current", err)
	}
	return u, nil
}

// UpdateCurrent applies an email and/or password change for subjectID.
func (s *Service) UpdateCurrent(ctx context.Context, subjectID string, in UpdateInput) (identity.User, error) {
	const op = "account.UpdateCurrent"

	fe := fieldErrors{}
	var email string
	if in.Email != nil {
		email = strings.TrimSpace(*in.Email)
		validateEmail(fe, email)
	}
	if in.Password != nil {
		if in.CurrentPassword == nil || *in.CurrentPassword == "" {
			fe.add("current_password", "is required")
		}
		if err := s.hasher.Validate(*in.Password); err != nil {
			msg, ok := passwordPolicyMessage(err)
			if !ok {
				msg = "is invalid"
			}
			fe.add("password", msg)
		}
	}
	if in.Email == nil && in.Password == nil {
		fe.add("request", "nothing to update")
	}
	if err := fe.err(); err != nil {
		return identity.User{}, err
	}

	now := s.now()

	if in.Password != nil {
		ua, err := s.store.GetUserAuthByID(ctx, subjectID)
		if err != nil {
			if identity.IsNotFound(err) {
				return identity.User{}, ErrUnauthorized
			}
			return identity.User{}, internal(op, err)
		}
		ok, err := s.hasher.Verify(ua.PasswordHash, *in.CurrentPassword)
		if err != nil {
			s.log.Error("auth.password_change.hash_invalid", "err", err, "user_id", subjectID)
			return identity.User{}, internal(op, err)
		}
		if !ok {
			return identity.User{}, ErrUnauthorized
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return identity.User{}, internal(op, err)
		}
		if err := s.store.UpdatePasswordHash(ctx, subjectID, hash, now); err != nil {
			return identity.User{}, internal(op, err)
		}
		s.record(ctx, AuditEvent{Event: EventPasswordSet, UserID: subjectID, At: now})
		s.log.Info("auth.password_change.ok", "user_id", subjectID)
	}

	if in.Email != nil {
		if _, err := s.store.UpdateEmail(ctx, subjectID, email, now); err != nil {
			switch {
			case identity.IsConflict(err):
				return identity.User{}, ConflictError{Field: "email"}
			case identity.IsNotFound(err):
				return identity.User{}, ErrUnauthorized
			default:
				return identity.User{}, internal(op, err)
			}
		}
		s.record(ctx, AuditEvent{Event: EventEmailSet, UserID: subjectID, At: now})
	}

	return s.Current(ctx, subjectID)
}

// ---- helpers ----

func (s *Service) lookup(ctx context.Context, ident string) (identity.UserAuth, error) {
	if identity.IsEmailIdentifier(ident) {
		return s.store.GetUserAuthByEmail(ctx, ident)
	}
	return s.store.GetUserAuthByUsername(ctx, ident)
}

// upgradeHash re-hashes with the current scheme when the stored hash is outdated.
// Best-effort: failures are logged and never fail the login.
func (s *Service) upgradeHash(ctx context.Context, ua identity.UserAuth, plain string) {
	need, err := s.hasher.NeedsRehash(ua.PasswordHash)
	if err != nil || !need {
		return
	}

	from, _ := password.Inspect(ua.PasswordHash)

	next, err := s.hasher.Rehash(plain)
	if err != nil {
		s.log.Warn("auth.rehash.fail", "err", err, "user_id", ua.User.ID, "stage", "hash")
		s.metrics.RecordRehash(metrics.ResultError)
		return
	}

	now := s.now()
	if err := s.store.UpdatePasswordHash(ctx, ua.User.ID, next, now); err != nil {
		s.log.Warn("auth.rehash.fail", "err", err, "user_id", ua.User.ID, "stage", "store")
		s.metrics.RecordRehash(metrics.ResultError)
		return
	}

	s.metrics.RecordRehash(metrics.ResultOK)
	s.record(ctx, AuditEvent{
		Event:  EventRehash,
		UserID: ua.User.ID,
		Reason: fmt.Sprintf("%s_v%d", from.Algorithm, from.Version),
		At:     now,
	})
	s.log.Info("auth.rehash.ok", "user_id", ua.User.ID, "from_algorithm", from.Algorithm, "from_version", from.Version)
}

func (s *Service) loginDenied(ctx context.Context, userID, ident, reason string) error {
	s.metrics.RecordLogin(metrics.ResultDenied)
	s.record(ctx, AuditEvent{Event: EventLoginFailed, UserID: userID, Identifier: ident, Reason: reason, At: s.now()})
	s.log.Info("auth.login.fail", "reason", reason)
	return ErrUnauthorized
}

func (s *Service) record(ctx context.Context, ev AuditEvent) {
	ev.Client = ClientFromContext(ctx)
	s.audit.Record(ctx, ev)
}

func internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
