package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/db/models"
)

// UsersPerPage is the page size of [BunUserRepository.Search].
const UsersPerPage = 6

// RecentLimit is how many users [BunUserRepository.Stats] reports as recent.
const RecentLimit = 5

// UserPage is one page of a user search.
type UserPage struct {
	Users       []goGate.UserRecord
	TotalUsers  int
	TotalPages  int
	CurrentPage int
}

// UserStats aggregates the users table for the admin dashboard.
type UserStats struct {
	TotalUsers  int
	RoleStats   map[string]int
	RecentUsers []goGate.UserRecord
}

// BunUserRepository implements [goGate.UserStore] and the listing queries
// used by the HTTP handlers on top of Bun.
type BunUserRepository struct {
	db  *bun.DB
	now func() time.Time
}

var _ goGate.UserStore = (*BunUserRepository)(nil)

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db, now: time.Now}
}

// CreateUser inserts a new user. A duplicate email yields
// [goGate.ErrAccountExists].
func (r *BunUserRepository) CreateUser(ctx context.Context, input goGate.CreateUserInput) (goGate.UserRecord, error) {
	now := r.now().UTC()
	user := &models.User{
		ID:           input.UserID,
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Role:         input.Role.String(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return goGate.UserRecord{}, goGate.ErrAccountExists
		}
		return goGate.UserRecord{}, fmt.Errorf("create user: %w", err)
	}
	return user.Record()
}

// GetUserByID retrieves a user by ID
func (r *BunUserRepository) GetUserByID(ctx context.Context, userID string) (goGate.UserRecord, error) {
	return r.getOne(ctx, "id = ?", userID)
}

// GetUserByEmail retrieves a user by (lower-cased) email
func (r *BunUserRepository) GetUserByEmail(ctx context.Context, email string) (goGate.UserRecord, error) {
	return r.getOne(ctx, "email = ?", email)
}

func (r *BunUserRepository) getOne(ctx context.Context, where string, arg any) (goGate.UserRecord, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where(where, arg).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goGate.UserRecord{}, goGate.ErrUserNotFound
		}
		return goGate.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return user.Record()
}

// UpdatePasswordHash stores a new password hash for userID
func (r *BunUserRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", r.now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	return requireAffected(res)
}

// UpdateRole changes the role of userID and returns the updated row
func (r *BunUserRepository) UpdateRole(ctx context.Context, userID string, role goGate.Role) (goGate.UserRecord, error) {
	if !role.Valid() {
		return goGate.UserRecord{}, goGate.ErrRoleInvalid
	}
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("role = ?", role.String()).
		Set("updated_at = ?", r.now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return goGate.UserRecord{}, fmt.Errorf("update role: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return goGate.UserRecord{}, err
	}
	return r.GetUserByID(ctx, userID)
}

// MarkEmailVerified sets the email_verified flag of userID
func (r *BunUserRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("email_verified = ?", true).
		Set("updated_at = ?", r.now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return requireAffected(res)
}

// List retrieves all users, newest first
func (r *BunUserRepository) List(ctx context.Context) ([]goGate.UserRecord, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return toRecords(users)
}

// Search returns page (1-based) of the users whose name or email contains
// query, case-insensitively. An empty query matches every user. Pages
// below 1 are treated as 1.
func (r *BunUserRepository) Search(ctx context.Context, query string, page int) (UserPage, error) {
	if page < 1 {
		page = 1
	}

	filter := func(q *bun.SelectQuery) *bun.SelectQuery {
		query = strings.TrimSpace(query)
		if query == "" {
			return q
		}
		pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern).
				WhereOr(`LOWER(email) LIKE ? ESCAPE '\'`, pattern)
		})
	}

	var users []models.User
	total, err := filter(r.db.NewSelect().Model(&users)).
		Order("created_at ASC", "id ASC").
		Limit(UsersPerPage).
		Offset((page - 1) * UsersPerPage).
		ScanAndCount(ctx)
	if err != nil {
		return UserPage{}, fmt.Errorf("search users: %w", err)
	}

	records, err := toRecords(users)
	if err != nil {
		return UserPage{}, err
	}
	return UserPage{
		Users:       records,
		TotalUsers:  total,
		TotalPages:  (total + UsersPerPage - 1) / UsersPerPage,
		CurrentPage: page,
	}, nil
}

// Stats counts users overall and per role and returns the newest
// [RecentLimit] users.
func (r *BunUserRepository) Stats(ctx context.Context) (UserStats, error) {
	total, err := r.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	if err != nil {
		return UserStats{}, fmt.Errorf("count users: %w", err)
	}

	var counts []models.RoleCount
	err = r.db.NewSelect().
		Model((*models.User)(nil)).
		Column("role").
		ColumnExpr("COUNT(*) AS count").
		Group("role").
		Scan(ctx, &counts)
	if err != nil {
		return UserStats{}, fmt.Errorf("count users by role: %w", err)
	}

	recent, err := r.Recent(ctx, RecentLimit)
	if err != nil {
		return UserStats{}, err
	}

	stats := UserStats{
		TotalUsers:  total,
		RoleStats:   make(map[string]int, len(counts)),
		RecentUsers: recent,
	}
	for _, c := range counts {
		stats.RoleStats[c.Role] = c.Count
	}
	return stats, nil
}

// Recent returns the newest limit users.
func (r *BunUserRepository) Recent(ctx context.Context, limit int) ([]goGate.UserRecord, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Order("created_at DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent users: %w", err)
	}
	return toRecords(users)
}

// Ping checks database connectivity
func (r *BunUserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func toRecords(users []models.User) ([]goGate.UserRecord, error) {
	out := make([]goGate.UserRecord, 0, len(users))
	for i := range users {
		rec, err := users[i].Record()
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", users[i].ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return goGate.ErrUserNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// isUniqueViolation recognizes unique-constraint failures from PostgreSQL
// (SQLSTATE 23505) and SQLite.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
