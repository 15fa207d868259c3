package access

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Columns names the column that carries each axis in a table. An empty name means the
// table does not carry the axis.
type Columns struct {
	Company      string
	Department   string
	DocumentType string
}

// For returns the column for the axis.
func (c Columns) For(axis Axis) string {
	switch axis {
	case AxisCompany:
		return c.Company
	case AxisDepartment:
		return c.Department
	case AxisDocumentType:
		return c.DocumentType
	}
	return ""
}

// Column layouts of the tables listing queries filter.
var (
	DocumentColumns     = Columns{Company: "company_id", Department: "department_id", DocumentType: "document_type_id"}
	FolderColumns       = Columns{Company: "company_id", Department: "department_id"}
	CompanyColumns      = Columns{Company: "id"}
	DepartmentColumns   = Columns{Company: "company_id", Department: "id"}
	DocumentTypeColumns = Columns{DocumentType: "id"}
)

const (
	whereAlways = "1=1"
	whereNever  = "1=0"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Predicate is a parameterised WHERE fragment using ? placeholders.
type Predicate struct {
	Where string
	Args  []any

	never   bool
	clauses []clause
}

type clause struct {
	column string
	ids    []int64
}

func alwaysPredicate() Predicate {
	return Predicate{Where: whereAlways}
}

func neverPredicate() Predicate {
	return Predicate{Where: whereNever, never: true}
}

// Unrestricted reports whether the predicate lets every row through.
func (p Predicate) Unrestricted() bool {
	return !p.never && len(p.clauses) == 0
}

// Dollar renders the fragment with PostgreSQL placeholders numbered from offset+1, for
// queries that already bind offset arguments.
func (p Predicate) Dollar(offset int) string {
	var b strings.Builder
	n := offset
	for _, r := range p.Where {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Matches evaluates the predicate against a row keyed by unqualified column name. A column
// missing from the row is NULL and never matches an allow-list.
func (p Predicate) Matches(row map[string]int64) bool {
	if p.never {
		return false
	}
	for _, c := range p.clauses {
		value, ok := row[c.column]
		if !ok || !slices.Contains(c.ids, value) {
			return false
		}
	}
	return true
}

func buildPredicate(snapshot EffectivePermissions, policy EmptyPolicy, alias string, cols Columns) Predicate {
	if snapshot.IsAdmin {
		return alwaysPredicate()
	}
	if !snapshot.HasGroups {
		return neverPredicate()
	}
	if alias != "" && !identifierPattern.MatchString(alias) {
		return neverPredicate()
	}

	var p Predicate
	var parts []string
	for _, axis := range Axes() {
		column := cols.For(axis)
		if column == "" {
			continue
		}
		if !identifierPattern.MatchString(column) {
			return neverPredicate()
		}
		if policy == EmptyUnrestricted && snapshot.Unlisted(axis) {
			continue
		}
		ids := snapshot.Restrictions.IDs(axis)
		if len(ids) == 0 {
			return neverPredicate()
		}
		qualified := column
		if alias != "" {
			qualified = alias + "." + column
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
		parts = append(parts, qualified+" IN ("+placeholders+")")
		for _, id := range ids {
			p.Args = append(p.Args, id)
		}
		p.clauses = append(p.clauses, clause{column: column, ids: slices.Clone(ids)})
	}
	if len(parts) == 0 {
		return alwaysPredicate()
	}
	p.Where = strings.Join(parts, " AND ")
	return p
}
