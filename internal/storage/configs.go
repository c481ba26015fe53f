package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/user/extractor-service/internal/domain"
)

// GetSourceConfig loads and validates the configuration document for one
// source. Configs are read once per extraction run and never cached, they
// may change between requests.
func (s *PostgresStore) GetSourceConfig(ctx context.Context, newspaperID int64) (*domain.SourceConfig, error) {
	var doc []byte
	err := s.db.QueryRow(ctx,
		`SELECT doc FROM source_configs WHERE (doc->>'newspaperID')::bigint = $1`,
		newspaperID,
	).Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("no configuration for newspaper %d", newspaperID)
	}
	if err != nil {
		return nil, fmt.Errorf("load source config %d: %w", newspaperID, err)
	}
	return domain.ParseSourceConfig(doc)
}

// GetAuthState loads the authentication row for one source, or nil when the
// source has none configured.
func (s *PostgresStore) GetAuthState(ctx context.Context, newspaperID int64) (*domain.AuthState, error) {
	var (
		doc       []byte
		cookies   *string
		expiresAt *time.Time
		autoSign  bool
	)
	err := s.db.QueryRow(ctx,
		`SELECT config, cookies, session_expires_at, use_auto_signin
		 FROM source_auth WHERE newspaper_id = $1`,
		newspaperID,
	).Scan(&doc, &cookies, &expiresAt, &autoSign)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load auth state %d: %w", newspaperID, err)
	}

	st := &domain.AuthState{
		NewspaperID:      newspaperID,
		SessionExpiresAt: expiresAt,
		UseAutoSignin:    autoSign,
	}
	if cookies != nil {
		st.Cookies = *cookies
	}
	if len(doc) > 0 {
		cfg, decodeErr := decodeAuthConfig(doc)
		if decodeErr != nil {
			return nil, decodeErr
		}
		st.Config = cfg
	}
	return st, nil
}

// GetCredentials returns the login field values for one source, keyed by the
// credential keys referenced in its auth steps.
func (s *PostgresStore) GetCredentials(ctx context.Context, newspaperID int64) (map[string]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT credential_key, credential_value FROM source_credentials
		 WHERE newspaper_id = $1 AND valid_user`,
		newspaperID,
	)
	if err != nil {
		return nil, fmt.Errorf("load credentials %d: %w", newspaperID, err)
	}
	defer rows.Close()

	creds := make(map[string]string)
	for rows.Next() {
		var key, value string
		if scanErr := rows.Scan(&key, &value); scanErr != nil {
			return nil, scanErr
		}
		creds[key] = value
	}
	return creds, rows.Err()
}
