package access

import (
	"slices"

	"github.com/odyssey-dms/odyssey-dms/internal/shared"
)

// Aggregate combines the grants of the given active groups. A permission is granted when any
// group grants it, allow-lists are unioned per axis and daily limits take the smallest value
// any group specifies. An axis some readable group leaves empty is reported in UnlistedAxes.
// Unknown permission keys and negative limits are ignored.
func Aggregate(groups []Group) EffectivePermissions {
	perms := denyAll()
	var companies, departments, documentTypes []int64
	var limits Limits
	unlisted := make(map[Axis]bool, len(Axes()))

	for _, group := range groups {
		for key, granted := range group.Permissions {
			if !granted {
				continue
			}
			key = normalizeKey(key)
			if !shared.IsDocumentScope(key) {
				continue
			}
			perms[key] = true
		}
		limits.DownloadDaily = minLimit(limits.DownloadDaily, group.Limits.DownloadDaily)
		limits.UploadDaily = minLimit(limits.UploadDaily, group.Limits.UploadDaily)
		if group.RestrictionsUnreadable {
			continue
		}
		for _, axis := range Axes() {
			if len(group.Restrictions.IDs(axis)) == 0 {
				unlisted[axis] = true
			}
		}
		companies = append(companies, group.Restrictions.Companies...)
		departments = append(departments, group.Restrictions.Departments...)
		documentTypes = append(documentTypes, group.Restrictions.DocumentTypes...)
	}

	var unlistedAxes []Axis
	for _, axis := range Axes() {
		if unlisted[axis] {
			unlistedAxes = append(unlistedAxes, axis)
		}
	}

	return EffectivePermissions{
		Permissions: perms,
		Restrictions: RestrictionSet{
			Companies:     uniqueIDs(companies),
			Departments:   uniqueIDs(departments),
			DocumentTypes: uniqueIDs(documentTypes),
		},
		Limits:       limits,
		HasGroups:    len(groups) > 0,
		UnlistedAxes: unlistedAxes,
	}
}

func minLimit(current, candidate *int) *int {
	if candidate == nil || *candidate < 0 {
		return current
	}
	if current == nil || *candidate < *current {
		v := *candidate
		return &v
	}
	return current
}

// uniqueIDs sorts and de-duplicates ids. Empty input yields nil so snapshots compare equal
// after a round trip through the shared cache.
func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
