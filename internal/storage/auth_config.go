package storage

import (
	"encoding/json"
	"fmt"

	"github.com/user/extractor-service/internal/domain"
)

func decodeAuthConfig(doc []byte) (*domain.AuthConfig, error) {
	var cfg domain.AuthConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, fmt.Errorf("decode auth config: %w", err)
	}
	return &cfg, nil
}
