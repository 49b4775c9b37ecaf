package tokens

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the typed payload of an access token. The user
// identifier travels in the registered Subject claim.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the typed payload of a refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

func AccessClaimsFromToken(tokenStr string, accessSecret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return accessSecret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, errorOr(err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// AccessClaimsAllowExpired parses an access token accepting an elapsed
// expiry, everything else must still verify. The refresh endpoint keys
// its identity off the old access token, which may have just expired.
func AccessClaimsAllowExpired(tokenStr string, accessSecret []byte) (*AccessClaims, error) {
	claims, err := AccessClaimsFromToken(tokenStr, accessSecret)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, err
	}

	var expired AccessClaims
	_, parseErr := jwt.ParseWithClaims(tokenStr, &expired, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return accessSecret, nil
	}, jwt.WithoutClaimsValidation())
	if parseErr != nil || expired.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &expired, nil
}

func RefreshClaimsFromToken(tokenStr string, refreshSecret []byte) (*RefreshClaims, error) {
	var claims RefreshClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return refreshSecret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, errorOr(err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func errorOr(err error) error {
	if err != nil {
		return err
	}
	return ErrInvalidToken
}
