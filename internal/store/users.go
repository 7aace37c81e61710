package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"oto-insights-go/internal/types"
)

// GetUser loads a profile. Unknown users get an empty profile rather than an
// error, since owners exist before they ever edit a profile.
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	u := types.User{ID: id}
	var created, updated string
	err := s.db.QueryRowContext(ctx, `SELECT name, age, nationality, first_language, second_languages, interests,
		preferred_topics, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.Name, &u.Age, &u.Nationality, &u.FirstLanguage, &u.SecondLanguages, &u.Interests,
			&u.PreferredTopics, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return &u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = parseTime(created), parseTime(updated)
	return &u, nil
}

// UpdateProfile writes every profile field, creating the user if needed.
func (s *Store) UpdateProfile(ctx context.Context, id string, p types.ProfileUpdate) error {
	now := formatTime(s.now())
	_, err := s.exec(ctx, `INSERT INTO users (id, name, age, nationality, first_language, second_languages, interests,
		preferred_topics, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, age = excluded.age, nationality = excluded.nationality,
			first_language = excluded.first_language, second_languages = excluded.second_languages,
			interests = excluded.interests, preferred_topics = excluded.preferred_topics, updated_at = excluded.updated_at`,
		id, p.Name, p.Age, p.Nationality, p.FirstLanguage, p.SecondLanguages, p.Interests, p.PreferredTopics, now, now)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}
