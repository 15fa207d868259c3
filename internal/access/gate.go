package access

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/odyssey-dms/odyssey-dms/internal/shared"
)

// GateOptions configures a Gate.
type GateOptions struct {
	Policy  EmptyPolicy
	Quota   *Quota
	Logger  *slog.Logger
	Metrics *Metrics
}

// Gate answers access questions for the rest of the application. Every decision goes
// through Resolver, so callers never look at roles themselves. Decisions never fail: any
// internal fault is a denial.
type Gate struct {
	resolver  *Resolver
	documents DocumentStore
	policy    EmptyPolicy
	quota     *Quota
	logger    *slog.Logger
	metrics   *Metrics
}

// NewGate builds a Gate.
func NewGate(resolver *Resolver, documents DocumentStore, opts GateOptions) *Gate {
	policy := opts.Policy
	if policy == "" {
		policy = EmptyUnrestricted
	}
	return &Gate{
		resolver:  resolver,
		documents: documents,
		policy:    policy,
		quota:     opts.Quota,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Policy returns the empty restriction policy shared by decisions and predicates.
func (g *Gate) Policy() EmptyPolicy {
	return g.policy
}

// Effective returns the user's resolved snapshot.
func (g *Gate) Effective(ctx context.Context, userID int64) EffectivePermissions {
	return g.resolver.Resolve(ctx, userID)
}

// HasPermission reports whether the user holds the permission. Unknown keys are denied.
func (g *Gate) HasPermission(ctx context.Context, userID int64, key string) bool {
	key = normalizeKey(key)
	if !shared.IsDocumentScope(key) {
		return false
	}
	return g.resolver.Resolve(ctx, userID).Permissions.Allows(key)
}

// HasAll reports whether the user holds every permission. An empty list is satisfied.
func (g *Gate) HasAll(ctx context.Context, userID int64, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	snapshot := g.resolver.Resolve(ctx, userID)
	for _, key := range keys {
		key = normalizeKey(key)
		if !shared.IsDocumentScope(key) || !snapshot.Permissions.Allows(key) {
			return false
		}
	}
	return true
}

// HasAny reports whether the user holds at least one of the permissions.
func (g *Gate) HasAny(ctx context.Context, userID int64, keys ...string) bool {
	if len(keys) == 0 {
		return false
	}
	snapshot := g.resolver.Resolve(ctx, userID)
	for _, key := range keys {
		key = normalizeKey(key)
		if shared.IsDocumentScope(key) && snapshot.Permissions.Allows(key) {
			return true
		}
	}
	return false
}

// CanAccessResource reports whether the user may see the resource id on the axis.
func (g *Gate) CanAccessResource(ctx context.Context, userID int64, axis Axis, resourceID int64) bool {
	if !axis.Valid() {
		return false
	}
	return g.allows(g.resolver.Resolve(ctx, userID), axis, &resourceID)
}

// CanAccessDocument reports whether the user may see the document. Deleted documents also
// require the delete permission.
func (g *Gate) CanAccessDocument(ctx context.Context, userID int64, documentID int64) bool {
	snapshot := g.resolver.Resolve(ctx, userID)
	if !snapshot.IsAdmin && !snapshot.HasGroups {
		return false
	}
	loc, err := g.documents.GetResourceLocation(ctx, documentID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && g.logger != nil {
			g.logger.Error("access load document", slog.Int64("document_id", documentID), slog.Any("error", err))
		}
		return false
	}
	if loc.Status.Terminal() && !snapshot.Permissions.Allows(shared.PermDocumentsDelete) {
		return false
	}
	for _, axis := range Axes() {
		if !g.allows(snapshot, axis, loc.ID(axis)) {
			return false
		}
	}
	return true
}

// allows decides one axis. Under EmptyUnrestricted an axis some group leaves unlisted is
// open. Otherwise the id must be in the union of allow-lists; a nil id is an unassigned
// column and fails, mirroring how SQL treats NULL in an IN list.
func (g *Gate) allows(snapshot EffectivePermissions, axis Axis, id *int64) bool {
	if snapshot.IsAdmin {
		return true
	}
	if !snapshot.HasGroups {
		return false
	}
	if g.policy == EmptyUnrestricted && snapshot.Unlisted(axis) {
		return true
	}
	return id != nil && slices.Contains(snapshot.Restrictions.IDs(axis), *id)
}

// BuildFilter returns the predicate restricting a documents query aliased as alias.
func (g *Gate) BuildFilter(ctx context.Context, userID int64, alias string) Predicate {
	return g.BuildFilterFor(ctx, userID, alias, DocumentColumns)
}

// BuildFilterFor returns the predicate for a table with the given column layout.
func (g *Gate) BuildFilterFor(ctx context.Context, userID int64, alias string, cols Columns) Predicate {
	return buildPredicate(g.resolver.Resolve(ctx, userID), g.policy, alias, cols)
}

// ConsumeQuota records one transfer of the given kind when the user holds the matching
// permission and is within the daily limit. Counter failures deny.
func (g *Gate) ConsumeQuota(ctx context.Context, userID int64, kind QuotaKind) bool {
	perm := kind.Permission()
	if perm == "" {
		return false
	}
	snapshot := g.resolver.Resolve(ctx, userID)
	if !snapshot.Permissions.Allows(perm) {
		return false
	}
	limit := snapshot.Limits.For(kind)
	if snapshot.IsAdmin || limit == nil {
		return true
	}
	if g.quota == nil {
		if g.logger != nil {
			g.logger.Error("access quota not configured", slog.Int64("user_id", userID), slog.String("kind", string(kind)))
		}
		return false
	}
	usage, err := g.quota.Consume(ctx, userID, kind, limit)
	if err != nil {
		if g.logger != nil {
			g.logger.Error("access quota", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return false
	}
	if !usage.Allowed {
		g.metrics.quotaRefused(kind)
	}
	return usage.Allowed
}

// RemainingQuota returns how many transfers of the kind the user has left today. The
// boolean is false when no limit applies.
func (g *Gate) RemainingQuota(ctx context.Context, userID int64, kind QuotaKind) (int, bool) {
	snapshot := g.resolver.Resolve(ctx, userID)
	limit := snapshot.Limits.For(kind)
	if snapshot.IsAdmin || limit == nil {
		return 0, false
	}
	if g.quota == nil {
		return 0, true
	}
	used, err := g.quota.Used(ctx, userID, kind)
	if err != nil {
		if g.logger != nil {
			g.logger.Error("access quota", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return 0, true
	}
	return max(*limit-used, 0), true
}
