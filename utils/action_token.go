package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// Actions a token can authorize.
const (
	ActionAcceptReservation  = "reservation.accept"
	ActionDeclineReservation = "reservation.decline"
	ActionRespondProposal    = "reservation.respond"
	ActionCancelBooking      = "booking.cancel"
	ActionCompleteBooking    = "booking.complete"
	ActionNoExperience       = "booking.no_experience"
)

var (
	ErrEmptySecret   = errors.New("action token secret is required")
	ErrInvalidToken  = errors.New("invalid action token")
	ErrTokenExpired  = errors.New("action token expired")
	ErrTokenMismatch = errors.New("action token does not match request")
)

// ActionClaims is the signed payload. Exp is epoch milliseconds.
type ActionClaims struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Exp    int64  `json:"exp"`
}

type tokenEnvelope struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

func signData(secret []byte, data string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignActionToken returns base64url(json{data, signature}).
func SignActionToken(secret, id, action string, exp time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	data, err := json.Marshal(ActionClaims{ID: id, Action: action, Exp: exp.UnixMilli()})
	if err != nil {
		return "", err
	}
	env, err := json.Marshal(tokenEnvelope{Data: string(data), Signature: signData([]byte(secret), string(data))})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(env), nil
}

// VerifyActionToken checks signature, expiry, and that the token was issued for wantID and wantAction.
func VerifyActionToken(secret, token, wantID, wantAction string, now time.Time) (ActionClaims, error) {
	if secret == "" {
		return ActionClaims{}, ErrEmptySecret
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ActionClaims{}, ErrInvalidToken
	}
	var env tokenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Data == "" {
		return ActionClaims{}, ErrInvalidToken
	}
	got, err := hex.DecodeString(env.Signature)
	if err != nil {
		return ActionClaims{}, ErrInvalidToken
	}
	want, _ := hex.DecodeString(signData([]byte(secret), env.Data))
	if !hmac.Equal(got, want) {
		return ActionClaims{}, ErrInvalidToken
	}
	var claims ActionClaims
	if err := json.Unmarshal([]byte(env.Data), &claims); err != nil {
		return ActionClaims{}, ErrInvalidToken
	}
	if now.UnixMilli() > claims.Exp {
		return ActionClaims{}, ErrTokenExpired
	}
	if claims.ID != wantID || claims.Action != wantAction {
		return ActionClaims{}, ErrTokenMismatch
	}
	return claims, nil
}

// ActionSigner binds a secret and a default lifetime.
type ActionSigner struct {
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewActionSigner(secret string, ttl time.Duration) (*ActionSigner, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &ActionSigner{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (s *ActionSigner) Sign(id, action string) (string, error) {
	return SignActionToken(s.secret, id, action, s.now().Add(s.ttl))
}

func (s *ActionSigner) Verify(token, id, action string) (ActionClaims, error) {
	return VerifyActionToken(s.secret, token, id, action, s.now())
}
