package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed reads of users, groups, memberships and documents.
type Repository struct {
	db       Querier
	logger   *slog.Logger
	validate *validator.Validate
}

// NewRepository constructs a repository.
func NewRepository(db Querier, logger *slog.Logger) *Repository {
	return &Repository{db: db, logger: logger, validate: validator.New()}
}

const getUserSQL = `SELECT id, role, is_active, company_id, department_id FROM users WHERE id = $1`

// GetUser loads the role and status of a user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.db.QueryRow(ctx, getUserSQL, id).Scan(&user.ID, &user.Role, &user.IsActive, &user.CompanyID, &user.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("access: get user: %w", err)
	}
	return user, nil
}

const activeGroupsSQL = `SELECT g.id, g.name, g.is_active, g.is_system_group, g.permissions, g.restrictions,
       g.download_limit_daily, g.upload_limit_daily
FROM user_groups ug
JOIN groups g ON g.id = ug.group_id
WHERE ug.user_id = $1 AND g.is_active
ORDER BY g.is_system_group DESC, g.id`

// groupRow mirrors a groups row before its JSON payloads are decoded.
type groupRow struct {
	ID            int64
	Name          string
	IsActive      bool
	IsSystemGroup bool
	Permissions   []byte
	Restrictions  []byte
	DownloadDaily *int `validate:"omitnil,min=0"`
	UploadDaily   *int `validate:"omitnil,min=0"`
}

// ActiveGroupsForUser returns the user's active groups, system groups first.
func (r *Repository) ActiveGroupsForUser(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := r.db.Query(ctx, activeGroupsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("access: list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var row groupRow
		if err := rows.Scan(&row.ID, &row.Name, &row.IsActive, &row.IsSystemGroup, &row.Permissions, &row.Restrictions, &row.DownloadDaily, &row.UploadDaily); err != nil {
			return nil, fmt.Errorf("access: scan group: %w", err)
		}
		groups = append(groups, r.toGroup(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("access: list groups: %w", err)
	}
	return groups, nil
}

// toGroup decodes the payloads of a group row. A payload that cannot be read contributes
// nothing; the rest of the group still counts. Unreadable restrictions never widen access.
func (r *Repository) toGroup(row groupRow) Group {
	group := Group{
		ID:            row.ID,
		Name:          row.Name,
		IsActive:      row.IsActive,
		IsSystemGroup: row.IsSystemGroup,
	}

	perms, err := DecodePermissions(row.Permissions)
	if err != nil {
		r.warn("group permissions ignored", row.ID, err)
		perms = PermissionSet{}
	}
	group.Permissions = perms

	restrictions, err := DecodeRestrictions(row.Restrictions)
	if err != nil {
		r.warn("group restrictions unreadable, no resources granted", row.ID, err)
		group.RestrictionsUnreadable = true
		restrictions = RestrictionSet{}
	}
	group.Restrictions = restrictions

	if err := r.validate.Struct(row); err != nil {
		r.warn("group limits ignored", row.ID, err)
		return group
	}
	group.Limits = Limits{DownloadDaily: row.DownloadDaily, UploadDaily: row.UploadDaily}
	return group
}

const groupMembersSQL = `SELECT user_id FROM user_groups WHERE group_id = $1 ORDER BY user_id`

// GroupMemberIDs returns every user assigned to the group.
func (r *Repository) GroupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, groupMembersSQL, groupID)
	if err != nil {
		return nil, fmt.Errorf("access: list group members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("access: list group members: %w", err)
	}
	return ids, nil
}

const resourceLocationSQL = `SELECT company_id, department_id, document_type_id, status FROM documents WHERE id = $1`

// GetResourceLocation loads where a document sits on the restriction axes.
func (r *Repository) GetResourceLocation(ctx context.Context, documentID int64) (ResourceLocation, error) {
	var loc ResourceLocation
	var status string
	err := r.db.QueryRow(ctx, resourceLocationSQL, documentID).Scan(&loc.CompanyID, &loc.DepartmentID, &loc.DocumentTypeID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ResourceLocation{}, ErrNotFound
		}
		return ResourceLocation{}, fmt.Errorf("access: get document: %w", err)
	}
	loc.Status = DocumentStatus(status)
	return loc, nil
}

func (r *Repository) warn(msg string, groupID int64, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg, slog.Int64("group_id", groupID), slog.Any("error", err))
}
