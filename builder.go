package merco

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SametHaymana/merco-api/credential"
	"github.com/SametHaymana/merco-api/internal/audit"
	"github.com/SametHaymana/merco-api/internal/rate"
	"github.com/SametHaymana/merco-api/notify"
	"github.com/SametHaymana/merco-api/password"
	"github.com/SametHaymana/merco-api/permission"
	"github.com/SametHaymana/merco-api/session"
	"github.com/SametHaymana/merco-api/storage"
	redisstore "github.com/SametHaymana/merco-api/storage/redis"
	"github.com/SametHaymana/merco-api/token"
)

// Builder defines a public type used by merco APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable.
// A Builder builds exactly one Engine.
type Builder struct {
	config Config

	store    storage.Storage
	sessions session.Store
	tokens   storage.TokenStore
	redis    redis.UniversalClient

	sender    notify.Sender
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStorage sets the entity store. When st also implements session.Store it
// backs sessions unless WithSessionStore or WithRedis overrides that.
func (b *Builder) WithStorage(st storage.Storage) *Builder {
	b.store = st
	return b
}

func (b *Builder) WithSessionStore(st session.Store) *Builder {
	b.sessions = st
	return b
}

// WithTokenStore overrides where single-use verification tokens live.
func (b *Builder) WithTokenStore(st storage.TokenStore) *Builder {
	b.tokens = st
	return b
}

// WithRedis moves sessions, single-use tokens and (with RateLimit.Backend
// "redis") admission windows to Redis, unless set explicitly.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithSender(s notify.Sender) *Builder {
	b.sender = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces the time source of every component. Tests use it.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("storage required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- STORES --------
	sessions := b.sessions
	if sessions == nil && b.redis != nil {
		sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.Retention)
	}
	if sessions == nil {
		st, ok := b.store.(session.Store)
		if !ok {
			return nil, errors.New("session store required: storage does not persist sessions and no redis client was given")
		}
		sessions = st
	}

	tokens := b.tokens
	if tokens == nil && b.redis != nil {
		tokens = redisstore.NewTokenStore(b.redis, "merco:tok:")
	}
	if tokens == nil {
		tokens = b.store
	}

	// -------- CRYPTO --------
	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(tokenConfig(cfg.JWT))
	if err != nil {
		return nil, err
	}
	issuer = issuer.WithClock(now)

	// -------- RATE LIMITS --------
	signInLimiter, err := b.limiter(cfg.RateLimit, "signin:", rate.Config{Max: cfg.RateLimit.SignInAttempts, Window: cfg.RateLimit.SignInWindow}, now)
	if err != nil {
		return nil, err
	}
	otpLimiter, err := b.limiter(cfg.RateLimit, "otp:", rate.Config{Max: cfg.RateLimit.OTPSends, Window: cfg.RateLimit.OTPWindow}, now)
	if err != nil {
		return nil, err
	}
	verifyLimiter, err := b.limiter(cfg.RateLimit, "verify:", rate.Config{Max: cfg.RateLimit.VerifyAttempts, Window: cfg.RateLimit.VerifyWindow}, now)
	if err != nil {
		return nil, err
	}
	requestLimiter, err := b.limiter(cfg.RateLimit, "req:", rate.Config{Max: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window}, now)
	if err != nil {
		return nil, err
	}

	sender := b.sender
	if sender == nil {
		sender = notify.LogSender{Logger: logger}
	}

	engine := &Engine{
		config:         cfg,
		users:          b.store,
		tokens:         tokens,
		keys:           b.store,
		roles:          b.store,
		hasher:         hasher,
		issuer:         issuer,
		sessions:       session.NewManager(sessions, issuer).WithClock(now),
		verifier:       credential.NewVerifier(b.store, tokens, b.store, hasher).WithClock(now),
		totp:           credential.NewTOTP(credential.TOTPConfig{Issuer: cfg.MFA.Issuer, Skew: cfg.MFA.Skew}),
		signInLimiter:  signInLimiter,
		otpLimiter:     otpLimiter,
		verifyLimiter:  verifyLimiter,
		requestLimiter: requestLimiter,
		sender:         sender,
		metrics:        NewMetrics(cfg.Metrics),
		logger:         logger,
		now:            now,
	}
	engine.evaluator = permission.NewEvaluator(engine.roleSource())
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled && b.auditSink != nil,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink,
		audit.WithLogger(logger),
		audit.WithClock(now),
		audit.WithDropHook(func(ev audit.Event) {
			logger.Debug("audit event dropped", slog.String("type", string(ev.Type)))
		}),
	)

	b.built = true
	return engine, nil
}

func (b *Builder) limiter(cfg RateLimitConfig, scope string, rc rate.Config, now func() time.Time) (rate.Limiter, error) {
	if cfg.Backend == "redis" {
		if b.redis == nil {
			return nil, errors.New("RateLimit Backend redis requires a redis client")
		}
		return rate.NewRedisWindow(b.redis, cfg.RedisPrefix+scope, rc)
	}
	w, err := rate.NewWindow(rc)
	if err != nil {
		return nil, err
	}
	return w.WithClock(now), nil
}

func tokenConfig(c JWTConfig) token.Config {
	tc := token.Config{
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
		SigningMethod: token.SigningMethod(strings.ToLower(c.SigningMethod)),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
	}
	if tc.SigningMethod == token.MethodEd25519 {
		tc.PrivateKey = []byte(c.PrivateKey)
		if c.PublicKey != "" {
			tc.PublicKey = []byte(c.PublicKey)
		}
	} else {
		tc.PrivateKey = []byte(c.Secret)
	}
	return tc
}
