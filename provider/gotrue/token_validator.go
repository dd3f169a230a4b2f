package gotrue

import (
	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	access "github.com/zonetox/Beauty-sub001"
)

// SessionClaims are the access-token claims this subsystem reads. Everything
// else the backend packs into the token is ignored.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenValidator verifies an access token and extracts the identity.
type TokenValidator interface {
	Validate(tokenString string) (*access.Identity, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*access.Identity, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*access.Identity, error) {
	if f == nil {
		return nil, errUnverifiableToken()
	}
	return f(tokenString)
}

func newDefaultValidator(cfg Config) (TokenValidator, error) {
	if cfg.JWKSURL != "" {
		return NewJWKSValidator(cfg.JWKSURL)
	}
	if cfg.JWTSecret != "" {
		return NewSecretValidator([]byte(cfg.JWTSecret)), nil
	}
	return nil, goerrors.New("gotrue: a jwt secret or jwks url is required", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest)
}

// NewSecretValidator verifies HS256 tokens with a shared secret.
func NewSecretValidator(secret []byte) TokenValidator {
	return TokenValidatorFunc(func(tokenString string) (*access.Identity, error) {
		claims := &SessionClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errUnverifiableToken()
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return nil, errUnverifiableToken()
		}
		return identityFromClaims(claims)
	})
}

// NewJWKSValidator verifies tokens against a remote key set, for backends
// signing with asymmetric keys.
func NewJWKSValidator(jwksURL string) (TokenValidator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "gotrue: failed to load jwks")
	}

	return TokenValidatorFunc(func(tokenString string) (*access.Identity, error) {
		claims := &SessionClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, jwks.Keyfunc)
		if err != nil || !token.Valid {
			return nil, errUnverifiableToken()
		}
		return identityFromClaims(claims)
	}), nil
}

func identityFromClaims(claims *SessionClaims) (*access.Identity, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, goerrors.New("gotrue: token subject is not a user id", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return &access.Identity{
		ID:    id,
		Email: claims.Email,
	}, nil
}

func errUnverifiableToken() error {
	return goerrors.New("gotrue: unverifiable access token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
}
