package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"ecomchain/crypto"
)

const defaultClockSkew = 2 * time.Minute

// Authenticator resolves the calling account from an HMAC-signed bearer
// token. The subject claim carries the caller's bech32 address.
type Authenticator struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
}

// NewAuthenticator returns nil when no secret is configured; mutating methods
// are then refused.
func NewAuthenticator(secret, issuer string) *Authenticator {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil
	}
	return &Authenticator{secret: []byte(trimmed), issuer: strings.TrimSpace(issuer), clockSkew: defaultClockSkew}
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Caller authenticates r and returns the caller address.
func (a *Authenticator) Caller(r *http.Request) ([20]byte, *RPCError) {
	if a == nil {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	token := extractBearer(header)
	if token == "" {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "token subject required"}
	}
	caller, err := crypto.ParseAddress(subject)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "token subject is not an account address", Data: err.Error()}
	}
	return caller, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.clockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

// IssueToken signs a caller token for addr. Operators use it to mint client
// credentials; a zero ttl yields a token without expiry.
func IssueToken(secret, issuer string, addr [20]byte, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("rpc: signing secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": crypto.FormatAddress(addr),
		"iat": now.Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}
