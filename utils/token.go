package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const tokenIssuer = "payroll-backend"

var errInvalidActorToken = errors.New("invalid actor token")

// ActorClaims identify the employee acting on payroll records. The subject
// is the employee id.
type ActorClaims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

func (c *ActorClaims) EmployeeId() string {
	return c.Subject
}

func jwtSecret() []byte {
	if secret := os.Getenv("API_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte("Payroll-Secret")
}

// TOKEN_HOUR_LIFESPAN, 12 hours when unset or invalid.
func tokenLifespan() time.Duration {
	hours, err := strconv.Atoi(strings.TrimSpace(os.Getenv("TOKEN_HOUR_LIFESPAN")))
	if err != nil || hours <= 0 {
		hours = 12
	}
	return time.Duration(hours) * time.Hour
}

func JwtGenerate(employeeId string, role string) (string, error) {
	if strings.TrimSpace(employeeId) == "" {
		return "", fmt.Errorf("%w: employee id is required", errInvalidActorToken)
	}
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &ActorClaims{
		Role: role,
		StandardClaims: jwt.StandardClaims{
			Subject:   employeeId,
			Issuer:    tokenIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(tokenLifespan()).Unix(),
		},
	})
	return t.SignedString(jwtSecret())
}

// JwtValidate parses an HS256 token and returns its claims. Tokens from
// another issuer or without a subject are rejected.
func JwtValidate(token string) (*ActorClaims, error) {
	claims := &ActorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || !claims.VerifyIssuer(tokenIssuer, true) || claims.Subject == "" {
		return nil, errInvalidActorToken
	}
	return claims, nil
}
