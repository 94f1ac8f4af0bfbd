package signaling

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TicketTTL 重连票据有效期
	TicketTTL = 10 * time.Minute

	tokenIssuer = "rollduel-signaling"
)

var ErrInvalidTicket = errors.New("票据无效")

// Claims 票据内容：对端 ID 和房间
type Claims struct {
	PeerID string `json:"peer_id"`
	RoomID string `json:"room_id"`
	jwt.RegisteredClaims
}

// TicketIssuer 签发和校验 HS256 票据
type TicketIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTicketIssuer 使用共享密钥创建签发器
func NewTicketIssuer(secret string) *TicketIssuer {
	return &TicketIssuer{key: []byte(secret), ttl: TicketTTL, now: time.Now}
}

// Issue 为房间内的对端签发票据
func (t *TicketIssuer) Issue(peerID, roomID string) (string, error) {
	now := t.now()
	claims := Claims{
		PeerID: peerID,
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   peerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Verify 校验票据，返回对端 ID 和房间
func (t *TicketIssuer) Verify(tokenString string) (string, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.key, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.PeerID != "" {
		return claims.PeerID, claims.RoomID, nil
	}
	return "", "", ErrInvalidTicket
}
