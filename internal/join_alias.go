package internal

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// JoinKind is the SQL join used to attach a backend table.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
)

func (k JoinKind) keyword() string {
	if k == JoinLeft {
		return "LEFT JOIN"
	}
	return "INNER JOIN"
}

// maxIdentifierLength is the Postgres NAMEDATALEN limit minus one.
const maxIdentifierLength = 63

// JoinAlias is one join of a backend table for one attribute.
type JoinAlias struct {
	Name        string
	Table       *BackendTable
	Kind        JoinKind
	Attribute   string
	AttributeID int64
}

// joinAliasName is <table>_<kind>_<attribute>; names beyond the identifier
// limit are truncated and suffixed with a hash of the full name.
func joinAliasName(table string, kind JoinKind, attribute string) string {
	name := table + "_" + string(kind) + "_" + attribute
	if len(name) <= maxIdentifierLength {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	suffix := fmt.Sprintf("_%08x", h.Sum32())
	return name[:maxIdentifierLength-len(suffix)] + suffix
}

type joinKey struct {
	table     string
	kind      JoinKind
	attribute string
}

// JoinAliasSet records the joins of a single query build.
type JoinAliasSet struct {
	keys    *OrderedSet[joinKey]
	aliases map[joinKey]*JoinAlias
}

func NewJoinAliasSet() *JoinAliasSet {
	return &JoinAliasSet{
		keys:    NewOrderedSet[joinKey](),
		aliases: make(map[joinKey]*JoinAlias),
	}
}

// Add returns the alias for (table, kind, attribute), creating it when absent.
// The boolean reports whether a new join was added.
func (s *JoinAliasSet) Add(table *BackendTable, kind JoinKind, attribute string, attributeID int64) (*JoinAlias, bool) {
	key := joinKey{table: table.Name, kind: kind, attribute: attribute}
	if !s.keys.Add(key) {
		return s.aliases[key], false
	}
	alias := &JoinAlias{
		Name:        joinAliasName(table.Name, kind, attribute),
		Table:       table,
		Kind:        kind,
		Attribute:   attribute,
		AttributeID: attributeID,
	}
	s.aliases[key] = alias
	return alias, true
}

func (s *JoinAliasSet) Find(table string, kind JoinKind, attribute string) (*JoinAlias, bool) {
	alias, ok := s.aliases[joinKey{table: table, kind: kind, attribute: attribute}]
	return alias, ok
}

// Aliases returns the joins in the order they were added.
func (s *JoinAliasSet) Aliases() []*JoinAlias {
	keys := s.keys.ToSlice()
	out := make([]*JoinAlias, len(keys))
	for i, key := range keys {
		out[i] = s.aliases[key]
	}
	return out
}

func (s *JoinAliasSet) Len() int {
	return s.keys.Size()
}

// joinClause renders the join of alias against the entity table.
func joinClause(alias *JoinAlias, entityTable, primaryKey, discriminator string) string {
	var b strings.Builder
	b.WriteString(alias.Kind.keyword())
	b.WriteString(" ")
	b.WriteString(sanitizeIdentifier(alias.Table.Name))
	b.WriteString(" AS ")
	b.WriteString(quoteIdent(alias.Name))
	fmt.Fprintf(&b, " ON %s = %s AND %s = %s AND %s = %d",
		qualifiedColumn(entityTable, primaryKey),
		qualifiedColumn(alias.Name, colEntityID),
		qualifiedColumn(alias.Name, colEntityType),
		quoteLiteral(discriminator),
		qualifiedColumn(alias.Name, colAttributeID),
		alias.AttributeID,
	)
	return b.String()
}
