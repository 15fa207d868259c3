package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// resolveTimeout bounds one shared computation, which outlives the callers waiting on it.
const resolveTimeout = 10 * time.Second

// Resolver computes and caches the effective permissions of users.
type Resolver struct {
	users   UserStore
	groups  GroupStore
	cache   *Cache
	logger  *slog.Logger
	metrics *Metrics

	flights singleflight.Group
}

// NewResolver wires a resolver. A nil cache gets a process-local default.
func NewResolver(users UserStore, groups GroupStore, cache *Cache, logger *slog.Logger, metrics *Metrics) *Resolver {
	if cache == nil {
		cache = NewCache(nil, CacheConfig{}, logger, metrics)
	}
	return &Resolver{users: users, groups: groups, cache: cache, logger: logger, metrics: metrics}
}

// Resolve returns the effective permissions of the user. It never fails: unknown or
// inactive users, store failures and cancelled contexts all yield DefaultDenied.
func (r *Resolver) Resolve(ctx context.Context, userID int64) EffectivePermissions {
	if userID <= 0 {
		return DefaultDenied()
	}
	if err := ctx.Err(); err != nil {
		r.logError("resolve cancelled", userID, err)
		return DefaultDenied()
	}
	if snapshot, ok := r.cache.Get(ctx, userID); ok {
		return snapshot
	}

	// Results computed before an invalidation are returned to their callers but never cached.
	tok := r.cache.token(ctx, userID)
	key := strconv.FormatUint(tok.local, 10) + ":" + strconv.FormatInt(userID, 10)
	ch := r.flights.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return r.compute(flightCtx, userID, tok)
	})
	select {
	case <-ctx.Done():
		r.logError("resolve cancelled", userID, ctx.Err())
		return DefaultDenied()
	case res := <-ch:
		if res.Err != nil {
			return DefaultDenied()
		}
		return res.Val.(EffectivePermissions).Clone()
	}
}

func (r *Resolver) compute(ctx context.Context, userID int64, tok writeToken) (EffectivePermissions, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.metrics.resolved(outcomeDenied)
			return DefaultDenied(), nil
		}
		r.metrics.resolved(outcomeError)
		r.logError("load user", userID, err)
		return EffectivePermissions{}, err
	}
	if !user.IsActive {
		r.metrics.resolved(outcomeDenied)
		return DefaultDenied(), nil
	}

	var snapshot EffectivePermissions
	if user.IsAdmin() {
		r.metrics.resolved(outcomeAdmin)
		snapshot = AdminAll()
	} else {
		groups, err := r.groups.ActiveGroupsForUser(ctx, userID)
		if err != nil {
			r.metrics.resolved(outcomeError)
			r.logError("load groups", userID, err)
			return EffectivePermissions{}, err
		}
		snapshot = Aggregate(groups)
		snapshot.HasGroups = len(groups) > 0
		if !snapshot.HasGroups {
			snapshot.Permissions = denyAll()
			r.metrics.resolved(outcomeNoGroups)
		} else {
			r.metrics.resolved(outcomeGroups)
		}
	}

	r.cache.store(ctx, userID, snapshot, tok)
	return snapshot, nil
}

// Invalidate drops the cached snapshot of one user. The local entry is always dropped; the
// error reports a failure to reach the shared tier.
func (r *Resolver) Invalidate(ctx context.Context, userID int64) error {
	if err := r.cache.Delete(ctx, userID); err != nil {
		r.logError("invalidate", userID, err)
		return err
	}
	return nil
}

// InvalidateAll drops every cached snapshot.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	if err := r.cache.Clear(ctx); err != nil {
		if r.logger != nil {
			r.logger.Error("access invalidate all", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// InvalidateGroup drops the snapshots of every member of the group. Call it before the
// group's membership rows are removed. A group without members drops every snapshot, since
// its former members can no longer be looked up.
func (r *Resolver) InvalidateGroup(ctx context.Context, groupID int64) error {
	members, err := r.groups.GroupMemberIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("access: invalidate group %d: %w", groupID, err)
	}
	if len(members) == 0 {
		return r.InvalidateAll(ctx)
	}
	var errs []error
	for _, userID := range members {
		if err := r.Invalidate(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) logError(msg string, userID int64, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Error("access "+msg, slog.Int64("user_id", userID), slog.Any("error", err))
}
