package access

import (
	"slices"

	"github.com/odyssey-dms/odyssey-dms/internal/shared"
)

// RoleAdmin is the user role that bypasses group resolution.
const RoleAdmin = "admin"

// User is the subset of the user record the engine reads.
type User struct {
	ID           int64
	Role         string
	IsActive     bool
	CompanyID    *int64
	DepartmentID *int64
}

// IsAdmin reports whether the user carries the administrator role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Group is an active group row as returned by the group store.
type Group struct {
	ID            int64
	Name          string
	IsActive      bool
	IsSystemGroup bool
	Permissions   PermissionSet
	Restrictions  RestrictionSet
	Limits        Limits

	// RestrictionsUnreadable marks a group whose restriction payload could not be decoded.
	// Such a group contributes no resource on any axis.
	RestrictionsUnreadable bool
}

// PermissionSet maps permission keys to grants.
type PermissionSet map[string]bool

// Allows reports whether key is granted. Missing keys are denied.
func (p PermissionSet) Allows(key string) bool {
	return p[key]
}

func (p PermissionSet) clone() PermissionSet {
	if p == nil {
		return nil
	}
	out := make(PermissionSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func denyAll() PermissionSet {
	perms := make(PermissionSet, len(shared.DocumentScopes()))
	for _, key := range shared.DocumentScopes() {
		perms[key] = false
	}
	return perms
}

func grantAll() PermissionSet {
	perms := make(PermissionSet, len(shared.DocumentScopes()))
	for _, key := range shared.DocumentScopes() {
		perms[key] = true
	}
	return perms
}

// Axis names a dimension along which visible resources are allow-listed.
type Axis string

// Restriction axes.
const (
	AxisCompany      Axis = "company"
	AxisDepartment   Axis = "department"
	AxisDocumentType Axis = "document_type"
)

// Axes lists the restriction axes in a stable order.
func Axes() []Axis {
	return []Axis{AxisCompany, AxisDepartment, AxisDocumentType}
}

// Valid reports whether a is a known axis.
func (a Axis) Valid() bool {
	switch a {
	case AxisCompany, AxisDepartment, AxisDocumentType:
		return true
	}
	return false
}

// RestrictionSet holds the allowed resource ids per axis.
type RestrictionSet struct {
	Companies     []int64 `json:"companies,omitempty"`
	Departments   []int64 `json:"departments,omitempty"`
	DocumentTypes []int64 `json:"document_types,omitempty"`
}

// IDs returns the allow-list for the axis.
func (r RestrictionSet) IDs(axis Axis) []int64 {
	switch axis {
	case AxisCompany:
		return r.Companies
	case AxisDepartment:
		return r.Departments
	case AxisDocumentType:
		return r.DocumentTypes
	}
	return nil
}

// Empty reports whether no axis carries an allow-list.
func (r RestrictionSet) Empty() bool {
	return len(r.Companies) == 0 && len(r.Departments) == 0 && len(r.DocumentTypes) == 0
}

func (r RestrictionSet) clone() RestrictionSet {
	return RestrictionSet{
		Companies:     slices.Clone(r.Companies),
		Departments:   slices.Clone(r.Departments),
		DocumentTypes: slices.Clone(r.DocumentTypes),
	}
}

// Limits carries the daily transfer ceilings. Nil means unlimited.
type Limits struct {
	DownloadDaily *int `json:"download_daily,omitempty"`
	UploadDaily   *int `json:"upload_daily,omitempty"`
}

// For returns the ceiling that applies to the quota kind.
func (l Limits) For(kind QuotaKind) *int {
	switch kind {
	case QuotaDownload:
		return l.DownloadDaily
	case QuotaUpload:
		return l.UploadDaily
	}
	return nil
}

func (l Limits) clone() Limits {
	return Limits{DownloadDaily: cloneInt(l.DownloadDaily), UploadDaily: cloneInt(l.UploadDaily)}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// EffectivePermissions is the resolved snapshot for one user.
type EffectivePermissions struct {
	Permissions  PermissionSet  `json:"permissions"`
	Restrictions RestrictionSet `json:"restrictions"`
	Limits       Limits         `json:"limits"`
	IsAdmin      bool           `json:"is_admin"`
	HasGroups    bool           `json:"has_groups"`

	// UnlistedAxes are the axes on which at least one group carries no allow-list.
	UnlistedAxes []Axis `json:"unlisted_axes,omitempty"`
}

// Unlisted reports whether some group left the axis without an allow-list.
func (e EffectivePermissions) Unlisted(axis Axis) bool {
	return slices.Contains(e.UnlistedAxes, axis)
}

// Clone returns a deep copy, so callers never share maps or slices with the cache.
func (e EffectivePermissions) Clone() EffectivePermissions {
	return EffectivePermissions{
		Permissions:  e.Permissions.clone(),
		Restrictions: e.Restrictions.clone(),
		Limits:       e.Limits.clone(),
		IsAdmin:      e.IsAdmin,
		HasGroups:    e.HasGroups,
		UnlistedAxes: slices.Clone(e.UnlistedAxes),
	}
}

// DefaultDenied is returned for unknown or inactive users and whenever resolution fails.
func DefaultDenied() EffectivePermissions {
	return EffectivePermissions{Permissions: denyAll()}
}

// AdminAll is returned for every administrator.
func AdminAll() EffectivePermissions {
	return EffectivePermissions{Permissions: grantAll(), IsAdmin: true}
}

// DocumentStatus is the lifecycle state of a stored document.
type DocumentStatus string

// Document statuses.
const (
	DocumentActive   DocumentStatus = "active"
	DocumentArchived DocumentStatus = "archived"
	DocumentDeleted  DocumentStatus = "deleted"
)

// Terminal reports whether the document reached a state only deleters may see.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentDeleted
}

// ResourceLocation places a document on the restriction axes. Nil ids are unassigned.
type ResourceLocation struct {
	CompanyID      *int64
	DepartmentID   *int64
	DocumentTypeID *int64
	Status         DocumentStatus
}

// ID returns the location's id on the axis.
func (l ResourceLocation) ID(axis Axis) *int64 {
	switch axis {
	case AxisCompany:
		return l.CompanyID
	case AxisDepartment:
		return l.DepartmentID
	case AxisDocumentType:
		return l.DocumentTypeID
	}
	return nil
}
