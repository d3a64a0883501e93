// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY between goroutines.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateGroup inserts a group and its members in one transaction.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	prefs, err := encodePreferences(group.Preferences)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE code = ?", group.Code).Scan(&exists)
	if err == nil {
		return storage.ErrCodeTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check join code: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, code, name, status, preferences, leader_token_hash, leader_member_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Code, group.Name, string(group.Status), prefs, group.LeaderTokenHash, group.LeaderMemberID, group.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	if err := insertMembers(ctx, tx, group); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID, including its members in join order.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return s.getGroup(ctx, "id", groupID)
}

// GetGroupByCode retrieves a group by its join code.
func (s *SQLiteStore) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	return s.getGroup(ctx, "code", code)
}

func (s *SQLiteStore) getGroup(ctx context.Context, column, value string) (*models.Group, error) {
	group := &models.Group{}
	var (
		status    string
		prefs     sql.NullString
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, status, preferences, leader_token_hash, leader_member_id, created_at FROM groups WHERE "+column+" = ?",
		value,
	).Scan(&group.ID, &group.Code, &group.Name, &status, &prefs, &group.LeaderTokenHash, &group.LeaderMemberID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", value, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.Status = models.Status(status)
	group.CreatedAt = time.Unix(0, createdAt).UTC()

	if prefs.Valid && prefs.String != "" {
		var p models.Preferences
		if err := json.Unmarshal([]byte(prefs.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
		group.Preferences = &p
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_host, done_swiping, joined_at FROM group_members
		 WHERE group_id = ? ORDER BY position`,
		group.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m        models.Member
			joinedAt int64
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.IsHost, &m.DoneSwiping, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.JoinedAt = time.Unix(0, joinedAt).UTC()
		group.Members = append(group.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return group, nil
}

// UpdateGroup rewrites the group row and its member list.
func (s *SQLiteStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	return s.writeGroup(ctx, group, false)
}

// StartRound rewrites the group and deletes its swipes in one transaction.
func (s *SQLiteStore) StartRound(ctx context.Context, group *models.Group) error {
	return s.writeGroup(ctx, group, true)
}

func (s *SQLiteStore) writeGroup(ctx context.Context, group *models.Group, clearSwipes bool) error {
	prefs, err := encodePreferences(group.Preferences)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE groups SET name = ?, status = ?, preferences = ?, leader_token_hash = ?, leader_member_id = ? WHERE id = ?`,
		group.Name, string(group.Status), prefs, group.LeaderTokenHash, group.LeaderMemberID, group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("group %s: %w", group.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", group.ID); err != nil {
		return fmt.Errorf("failed to delete old members: %w", err)
	}
	if err := insertMembers(ctx, tx, group); err != nil {
		return err
	}
	if clearSwipes {
		if _, err := tx.ExecContext(ctx, "DELETE FROM swipes WHERE group_id = ?", group.ID); err != nil {
			return fmt.Errorf("failed to clear swipes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PutSwipe upserts the swipe keyed by (group, member, restaurant).
func (s *SQLiteStore) PutSwipe(ctx context.Context, groupID string, swipe models.Swipe) error {
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO swipes (group_id, member_id, restaurant_id, liked, super_liked, swiped_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (group_id, member_id, restaurant_id)
		 DO UPDATE SET liked = excluded.liked, super_liked = excluded.super_liked, swiped_at = excluded.swiped_at`,
		groupID, swipe.MemberID, swipe.RestaurantID, swipe.Liked, swipe.SuperLiked, swipe.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to put swipe: %w", err)
	}
	return nil
}

// ListSwipes returns a group's swipes ordered by time.
func (s *SQLiteStore) ListSwipes(ctx context.Context, groupID string) ([]models.Swipe, error) {
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, restaurant_id, liked, super_liked, swiped_at FROM swipes
		 WHERE group_id = ? ORDER BY swiped_at, member_id, restaurant_id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list swipes: %w", err)
	}
	defer rows.Close()

	swipes := []models.Swipe{}
	for rows.Next() {
		var (
			sw       models.Swipe
			swipedAt int64
		)
		if err := rows.Scan(&sw.MemberID, &sw.RestaurantID, &sw.Liked, &sw.SuperLiked, &swipedAt); err != nil {
			return nil, fmt.Errorf("failed to scan swipe: %w", err)
		}
		sw.Timestamp = time.Unix(0, swipedAt).UTC()
		swipes = append(swipes, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swipes: %w", err)
	}
	return swipes, nil
}

func (s *SQLiteStore) ensureGroup(ctx context.Context, groupID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check group existence: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, group *models.Group) error {
	for i, m := range group.Members {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, id, name, is_host, done_swiping, joined_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			group.ID, m.ID, m.Name, m.IsHost, m.DoneSwiping, m.JoinedAt.UnixNano(), i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return nil
}

func encodePreferences(p *models.Preferences) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode preferences: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
