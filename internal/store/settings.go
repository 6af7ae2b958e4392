package store

import (
	"database/sql"
	"errors"
	"time"
)

// Setting keys.
const (
	KeyAPIKey            = "llm_api_key"
	KeyAdminPasswordHash = "admin_password_hash"
)

// SetSetting upserts a key-value pair in the settings table.
func (s *Store) SetSetting(key, value string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
		key, value, now, value, now,
	)
	return err
}

// GetSetting returns the value for a setting key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// DeleteSetting removes a setting. Missing keys are not an error.
func (s *Store) DeleteSetting(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// APIKey returns the stored LLM API key, or "" if none was saved.
func (s *Store) APIKey() (string, error) {
	return s.GetSetting(KeyAPIKey)
}

// SetAPIKey saves the LLM API key. An empty key clears it.
func (s *Store) SetAPIKey(key string) error {
	if key == "" {
		return s.DeleteSetting(KeyAPIKey)
	}
	return s.SetSetting(KeyAPIKey, key)
}

// AdminPasswordHash returns the bcrypt hash guarding settings changes.
func (s *Store) AdminPasswordHash() (string, error) {
	return s.GetSetting(KeyAdminPasswordHash)
}

// SetAdminPasswordHash stores the bcrypt hash guarding settings changes.
func (s *Store) SetAdminPasswordHash(hash string) error {
	return s.SetSetting(KeyAdminPasswordHash, hash)
}
