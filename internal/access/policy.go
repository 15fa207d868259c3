package access

import "fmt"

// EmptyPolicy decides what an empty allow-list on an axis means for a user who belongs to
// at least one group. The same value drives Gate decisions and query predicates.
type EmptyPolicy string

const (
	// EmptyUnrestricted treats an empty allow-list as access to every resource on the axis.
	// One group without a list on an axis opens that axis for the user.
	EmptyUnrestricted EmptyPolicy = "unrestricted"
	// EmptyDenied treats an empty allow-list as access to nothing on the axis.
	EmptyDenied EmptyPolicy = "deny"
)

// ParseEmptyPolicy maps a configuration value to a policy. The empty string selects
// EmptyUnrestricted.
func ParseEmptyPolicy(value string) (EmptyPolicy, error) {
	switch EmptyPolicy(value) {
	case "", EmptyUnrestricted:
		return EmptyUnrestricted, nil
	case EmptyDenied:
		return EmptyDenied, nil
	}
	return "", fmt.Errorf("access: unknown empty restriction policy %q", value)
}
