// Package token implements the signed identity assertion (access token): a
// short-lived, self-contained statement of user id and role. Assertions are
// never stored server-side; validity is signature plus field checks alone,
// which bounds the blast radius of a leaked token to its 15-minute lifetime.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/keys"
	"github.com/taskhive/taskhive-server/users"
)

const (
	// AccessTokenTTL is fixed; there is no pre-expiry revocation of
	// assertions, so the window stays deliberately short.
	AccessTokenTTL = 15 * time.Minute

	DefaultIssuer   = "taskhive"
	DefaultAudience = "taskhive-api"
)

// Claims is the closed claim set carried by an assertion.
type Claims struct {
	Subject   string
	Role      users.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and verifies signed assertions with a single RSA key pair.
type Codec struct {
	keyPair  *keys.KeyPair
	issuer   string
	audience string
	nowFunc  func() time.Time
}

type CodecOption func(*Codec)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func WithAudience(audience string) CodecOption {
	return func(c *Codec) {
		c.audience = audience
	}
}

func NewCodec(keyPair *keys.KeyPair, options ...CodecOption) (*Codec, error) {
	if keyPair == nil || keyPair.PrivateKey == nil {
		return nil, errors.New("[NewCodec] key pair is required")
	}

	c := &Codec{
		keyPair:  keyPair,
		issuer:   DefaultIssuer,
		audience: DefaultAudience,
		nowFunc:  time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Issue builds and signs an assertion for the subject. The role embedded here
// is trusted for the assertion's whole lifetime; a role change only takes
// effect at the next refresh, at most AccessTokenTTL later.
func (c *Codec) Issue(subject string, role users.Role) (string, error) {
	now := c.nowFunc()

	claims := jwt.MapClaims{
		"iss":  c.issuer,
		"sub":  subject,
		"aud":  c.audience,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(AccessTokenTTL).Unix(),
		"jti":  uuid.New().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[Codec.Issue] SignedString")
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry. Every failure
// collapses to ErrInvalidToken so callers cannot be used as an oracle; the
// underlying reason is logged at debug level only.
func (c *Codec) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.Parse(raw,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.keyPair.PublicKey, nil
		},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		log.Debug().Err(err).Msg("assertion verification failed")
		return nil, apperrors.ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		log.Debug().Msg("assertion carries non-map claims")
		return nil, apperrors.ErrInvalidToken
	}

	sub, _ := mapClaims["sub"].(string)
	role, _ := mapClaims["role"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	if sub == "" {
		log.Debug().Msg("assertion missing subject")
		return nil, apperrors.ErrInvalidToken
	}

	return &Claims{
		Subject:   sub,
		Role:      users.ParseRole(role),
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
