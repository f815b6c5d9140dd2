// Package authtoken issues and verifies the signed tokens used by PeakPoint:
// one-hour session tokens and five-minute two-factor challenge tokens.
//
// Both kinds are HS256 JWTs signed with the same key. They are told apart by
// the "stage" claim, and Parse returns them as distinct Go types so a caller
// that wants a session cannot accidentally accept a challenge.
package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	StageTwoFactor = "2fa"

	DefaultSessionTTL   = time.Hour
	DefaultChallengeTTL = 5 * time.Minute
)

var (
	ErrMissingSecret = errors.New("authtoken: signing secret is required")
	ErrInvalidToken  = errors.New("authtoken: invalid token")
	ErrWrongStage    = errors.New("authtoken: wrong token stage")
)

type Identity struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
}

func (i Identity) IsZero() bool {
	return i.UserID == "" && i.Email == ""
}

// Payload is either *Session or *Challenge.
type Payload interface {
	Who() Identity
	isPayload()
}

type Session struct {
	Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s *Session) Who() Identity { return s.Identity }
func (*Session) isPayload()      {}

type Challenge struct {
	Identity
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c *Challenge) Who() Identity { return c.Identity }
func (*Challenge) isPayload()      {}

type claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Stage  string `json:"stage,omitempty"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret       string
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	Now          func() time.Time
}

// Codec is safe for concurrent use; it holds no mutable state.
type Codec struct {
	secret       []byte
	sessionTTL   time.Duration
	challengeTTL time.Duration
	now          func() time.Time
}

func NewCodec(opts Options) (*Codec, error) {
	if opts.Secret == "" {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		secret:       []byte(opts.Secret),
		sessionTTL:   opts.SessionTTL,
		challengeTTL: opts.ChallengeTTL,
		now:          opts.Now,
	}
	if c.sessionTTL <= 0 {
		c.sessionTTL = DefaultSessionTTL
	}
	if c.challengeTTL <= 0 {
		c.challengeTTL = DefaultChallengeTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Codec) ChallengeTTL() time.Duration {
	return c.challengeTTL
}

func (c *Codec) IssueSession(id Identity) (string, error) {
	now := c.now()
	return c.sign(claims{
		UserID: id.UserID,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.sessionTTL)),
		},
	})
}

func (c *Codec) IssueChallenge(id Identity) (string, error) {
	now := c.now()
	return c.sign(claims{
		UserID: id.UserID,
		Email:  id.Email,
		Stage:  StageTwoFactor,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.challengeTTL)),
		},
	})
}

func (c *Codec) sign(cl claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
}

// Parse checks signature and expiry and returns the tagged payload.
func (c *Codec) Parse(tokenString string) (Payload, error) {
	var cl claims
	token, err := jwt.ParseWithClaims(tokenString, &cl, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || cl.UserID == "" {
		return nil, ErrInvalidToken
	}

	id := Identity{UserID: cl.UserID, Email: cl.Email}
	switch cl.Stage {
	case "":
		return &Session{
			Identity:  id,
			IssuedAt:  numericTime(cl.IssuedAt),
			ExpiresAt: numericTime(cl.ExpiresAt),
		}, nil
	case StageTwoFactor:
		if cl.ID == "" {
			return nil, fmt.Errorf("%w: missing token id", ErrInvalidToken)
		}
		return &Challenge{
			Identity:  id,
			ID:        cl.ID,
			IssuedAt:  numericTime(cl.IssuedAt),
			ExpiresAt: numericTime(cl.ExpiresAt),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", ErrWrongStage, cl.Stage)
	}
}

func (c *Codec) VerifySession(tokenString string) (*Session, error) {
	payload, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	switch p := payload.(type) {
	case *Session:
		return p, nil
	default:
		return nil, ErrWrongStage
	}
}

func (c *Codec) VerifyChallenge(tokenString string) (*Challenge, error) {
	payload, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	switch p := payload.(type) {
	case *Challenge:
		return p, nil
	default:
		return nil, ErrWrongStage
	}
}

// Result is the outcome of Decode. Err is kept so callers choose explicitly
// whether to look at it or fall back to OrEmpty.
type Result struct {
	Identity Identity
	Err      error
}

func (r Result) OrEmpty() Identity {
	if r.Err != nil {
		return Identity{}
	}
	return r.Identity
}

// Decode is for logging and inspection only. Never use it for authorization.
func (c *Codec) Decode(tokenString string) Result {
	payload, err := c.Parse(tokenString)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Identity: payload.Who()}
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
