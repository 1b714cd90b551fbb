package pass

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// ErrInvalidPass is returned when a token was not sealed with this generator's secret.
var ErrInvalidPass = errors.New("invalid ticket pass")

// Pass is what a door scanner needs to admit one booking.
type Pass struct {
	TicketID      int64     `json:"ticket_id"`
	GigID         int64     `json:"gig_id"`
	CustomerEmail string    `json:"customer_email"`
	PriceType     string    `json:"price_type"`
	IssuedAt      time.Time `json:"issued_at"`
}

type Generator struct {
	aead cipher.AEAD
	size int
}

func NewGenerator(secret string) (*Generator, error) {
	if secret == "" {
		return nil, errors.New("ticket pass secret is empty")
	}
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Generator{aead: aead, size: 256}, nil
}

// Issue seals p into a URL-safe token and renders that token as a QR PNG.
func (g *Generator) Issue(p Pass) (string, []byte, error) {
	if p.IssuedAt.IsZero() {
		p.IssuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}

	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", nil, err
	}
	sealed := g.aead.Seal(nonce, nonce, data, nil)
	token := base64.RawURLEncoding.EncodeToString(sealed)

	png, err := qrcode.Encode(token, qrcode.Medium, g.size)
	if err != nil {
		return "", nil, fmt.Errorf("rendering pass for ticket %d: %w", p.TicketID, err)
	}
	return token, png, nil
}

func (g *Generator) Open(token string) (Pass, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(sealed) < g.aead.NonceSize() {
		return Pass{}, ErrInvalidPass
	}
	nonce, ciphertext := sealed[:g.aead.NonceSize()], sealed[g.aead.NonceSize():]
	data, err := g.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Pass{}, ErrInvalidPass
	}

	var p Pass
	if err := json.Unmarshal(data, &p); err != nil {
		return Pass{}, fmt.Errorf("%w: %v", ErrInvalidPass, err)
	}
	return p, nil
}
