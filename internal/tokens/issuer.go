package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Issuer mints access/refresh token pairs. It is stateless; both tokens
// are always minted together and share nothing beyond the subject.
type Issuer struct {
	Secret        []byte
	RefreshSecret []byte
}

type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

func NewIssuer(secret, refreshSecret []byte) *Issuer {
	// REFRESH_TOKEN_SECRET is optional and falls back to the access secret.
	if len(refreshSecret) == 0 {
		refreshSecret = secret
	}
	return &Issuer{Secret: secret, RefreshSecret: refreshSecret}
}

func (i *Issuer) Issue(userID, role string) (*Pair, error) {
	now := time.Now()

	accessExp := now.Add(AccessTokenTTL)
	accessClaims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(i.Secret)
	if err != nil {
		return nil, err
	}

	refreshExp := now.Add(RefreshTokenTTL)
	refreshClaims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        uuid.NewString(),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(i.RefreshSecret)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshExp:   refreshExp,
	}, nil
}
