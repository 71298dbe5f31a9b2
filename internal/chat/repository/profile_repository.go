package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"realtime_chat_service/internal/chat/domain"
	errprocess "realtime_chat_service/pkg/err"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProfileRepository definition profile store read and written by id
type ProfileRepository interface {
	Migrate(ctx context.Context) error
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error)
	List(ctx context.Context, query domain.ProfileQuery) ([]domain.Profile, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, username, avatarURL *string) (*domain.Profile, error)
}

type profileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository create a ProfileRepository
func NewProfileRepository(db *pgxpool.Pool) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = "id, username, avatar_url, last_seen"

func (r *profileRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS profiles (
        id         VARCHAR(64) PRIMARY KEY,
        username   VARCHAR(64) NOT NULL,
        avatar_url TEXT,
        last_seen  TIMESTAMPTZ
      );
      CREATE INDEX IF NOT EXISTS idx_profiles_username ON profiles (username);
    `)
	return err
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	row := r.db.QueryRow(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errprocess.NotFound("profile %s not found", id)
		}
		return nil, errprocess.Transient("find profile", err)
	}
	return p, nil
}

func (r *profileRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	result := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, errprocess.Transient("find profiles", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errprocess.Transient("scan profile", err)
		}
		result[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, errprocess.Transient("find profiles", err)
	}
	return result, nil
}

func (r *profileRepository) List(ctx context.Context, query domain.ProfileQuery) ([]domain.Profile, error) {
	queryStr := "SELECT " + profileColumns + " FROM profiles WHERE 1=1"
	params := []interface{}{}
	paramCount := 1

	if len(query.ExcludeIDs) > 0 {
		queryStr += fmt.Sprintf(" AND NOT (id = ANY($%d))", paramCount)
		params = append(params, query.ExcludeIDs)
		paramCount++
	}
	if s := strings.TrimSpace(query.Search); s != "" {
		queryStr += fmt.Sprintf(" AND username ILIKE $%d", paramCount)
		params = append(params, "%"+escapeLike(s)+"%")
		paramCount++
	}
	queryStr += " ORDER BY username, id"
	if query.Limit > 0 {
		queryStr += fmt.Sprintf(" LIMIT $%d", paramCount)
		params = append(params, query.Limit)
	}

	rows, err := r.db.Query(ctx, queryStr, params...)
	if err != nil {
		return nil, errprocess.Transient("list profiles", err)
	}
	defer rows.Close()

	profiles := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errprocess.Transient("scan profile", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errprocess.Transient("list profiles", err)
	}
	return profiles, nil
}

func (r *profileRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, "UPDATE profiles SET last_seen = $1 WHERE id = $2", at, id)
	if err != nil {
		return errprocess.Transient("update last_seen", err)
	}
	if tag.RowsAffected() == 0 {
		return errprocess.NotFound("profile %s not found", id)
	}
	return nil
}

func (r *profileRepository) UpdateProfile(ctx context.Context, id string, username, avatarURL *string) (*domain.Profile, error) {
	row := r.db.QueryRow(ctx, `
      UPDATE profiles
      SET username = COALESCE($1, username), avatar_url = COALESCE($2, avatar_url)
      WHERE id = $3
      RETURNING `+profileColumns,
		username, avatarURL, id,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errprocess.NotFound("profile %s not found", id)
		}
		return nil, errprocess.Transient("update profile", err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.LastSeen); err != nil {
		return nil, err
	}
	return &p, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
