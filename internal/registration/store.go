package registration

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticket-runners/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore is the only writer of registration_tokens. Rows are never
// deleted; expired or used tokens stay behind for audit.
type TokenStore struct {
	Bun      *bun.DB
	TokenTTL time.Duration
}

// generateToken returns an unguessable uppercase hex credential.
func generateToken() (string, error) {
	byt := make([]byte, 24)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// Mint creates a fresh token binding a ticket to the phone expected to
// register.
func (s *TokenStore) Mint(ctx context.Context, ticketID, phone string) (*models.RegistrationToken, error) {
	raw, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate registration token: %w", err)
	}

	now := time.Now()
	token := models.RegistrationToken{
		ID:        uuid.NewString(),
		Token:     raw,
		TicketID:  ticketID,
		Phone:     phone,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TokenTTL),
		Used:      false,
	}

	if _, err := s.Bun.NewInsert().Model(&token).Exec(ctx); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *TokenStore) GetByToken(ctx context.Context, raw string) (*models.RegistrationToken, error) {
	var token models.RegistrationToken
	err := s.Bun.NewSelect().
		Model(&token).
		Where("token = ?", raw).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registration token: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ActiveByPhone returns all unused, unexpired tokens minted for a phone.
func (s *TokenStore) ActiveByPhone(ctx context.Context, phone string) ([]models.RegistrationToken, error) {
	var tokens []models.RegistrationToken
	err := s.Bun.NewSelect().
		Model(&tokens).
		Where("phone = ?", phone).
		Where("used = ?", false).
		Where("expires_at > ?", time.Now()).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// MarkUsed consumes a token. Consuming an already-used token is a no-op so
// reconciliation stays idempotent.
func (s *TokenStore) MarkUsed(ctx context.Context, id string) error {
	_, err := s.Bun.NewUpdate().
		Model((*models.RegistrationToken)(nil)).
		Set("used = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
