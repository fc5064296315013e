package store

import (
	"fmt"
	"strings"
)

// ListProfiles returns every tracked profile with its curated and liked
// post counters.
func (s *Store) ListProfiles() ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT p.id, p.handle, p.is_enabled,
			(SELECT COUNT(*) FROM posts WHERE profile_handle = p.handle AND is_curated = 1),
			(SELECT COUNT(*) FROM posts WHERE profile_handle = p.handle AND is_curated = 1 AND has_liked = 1)
		FROM profiles p
		ORDER BY p.handle`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		var enabled int
		if err := rows.Scan(&p.ID, &p.Handle, &enabled, &p.TotalCurated, &p.LikedCurated); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.Enabled = enabled != 0
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// EnabledProfileHandles returns the handles of enabled profiles in
// stable order. This is the profile list every run starts from.
func (s *Store) EnabledProfileHandles() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT handle FROM profiles WHERE is_enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("enabled profiles: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

// AddProfile inserts a profile (or re-enables an existing one).
func (s *Store) AddProfile(handle string) error {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return fmt.Errorf("empty handle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO profiles (handle, is_enabled) VALUES (?, 1)", handle,
	); err != nil {
		return fmt.Errorf("add profile: %w", err)
	}
	_, err := s.db.Exec("UPDATE profiles SET is_enabled = 1 WHERE handle = ?", handle)
	return err
}

// DeleteProfile removes a tracked profile. Its curated posts remain.
func (s *Store) DeleteProfile(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM profiles WHERE handle = ?", handle)
	return err
}

// SetProfileEnabled toggles a profile's enabled flag.
func (s *Store) SetProfileEnabled(handle string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flag := 0
	if enabled {
		flag = 1
	}
	_, err := s.db.Exec("UPDATE profiles SET is_enabled = ? WHERE handle = ?", flag, handle)
	return err
}

// SyncProfiles replaces the enabled set: every profile is disabled, the
// given handles are inserted if missing, then enabled. Profiles absent
// from the list stay tracked but disabled.
func (s *Store) SyncProfiles(handles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE profiles SET is_enabled = 0"); err != nil {
		return fmt.Errorf("disable profiles: %w", err)
	}
	for _, h := range handles {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO profiles (handle) VALUES (?)", h); err != nil {
			return fmt.Errorf("insert profile %s: %w", h, err)
		}
		if _, err := tx.Exec("UPDATE profiles SET is_enabled = 1 WHERE handle = ?", h); err != nil {
			return fmt.Errorf("enable profile %s: %w", h, err)
		}
	}
	return tx.Commit()
}
