package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dashprobe/dashprobe/internal/model"
	"github.com/dashprobe/dashprobe/internal/query"
)

// defaultParentKey is used when the parent table reports no primary key.
const defaultParentKey = "id"

// RelationshipResult records the three steps of ProbeRelationship
// independently. A failed join next to a successful lookup points at
// relationship metadata, a failed lookup next to a join without a parent
// points at missing data.
type RelationshipResult struct {
	Parent     string `json:"parent"`
	Child      string `json:"child"`
	ForeignKey string `json:"foreign_key"`
	ParentKey  string `json:"parent_key,omitempty"`

	SampleFound bool   `json:"sample_found"`
	SampleKey   string `json:"sample_key,omitempty"`

	LookupSucceeded    bool `json:"lookup_succeeded"`
	JoinSucceeded      bool `json:"join_succeeded"`
	JoinResolvedParent bool `json:"join_resolved_parent"`

	Error       string `json:"error,omitempty"`
	LookupError string `json:"lookup_error,omitempty"`
	JoinError   string `json:"join_error,omitempty"`
	Kind        Kind   `json:"kind,omitempty"`
}

// Mismatch classifies the outcome. It returns KindNone when the sampled
// child row resolves to its parent through both the lookup and the join.
func (r RelationshipResult) Mismatch() Kind {
	switch {
	case r.Error != "":
		if r.Kind == KindNone {
			return KindQueryFailed
		}
		return r.Kind
	case r.LookupSucceeded && r.JoinSucceeded && r.JoinResolvedParent:
		return KindNone
	case r.LookupSucceeded != r.JoinSucceeded:
		if !r.LookupSucceeded && !r.JoinResolvedParent {
			return KindDataMissing
		}
		return KindRelationshipMismatch
	case r.LookupSucceeded && !r.JoinResolvedParent:
		return KindRelationshipMismatch
	default:
		if r.Kind == KindNone {
			return KindQueryFailed
		}
		return r.Kind
	}
}

// OK reports whether the relationship resolved cleanly.
func (r RelationshipResult) OK() bool { return r.Mismatch() == KindNone }

// ProbeRelationship samples one child row with a non-null foreignKey,
// looks up the parent row by its primary key, and separately runs the
// child-to-parent join the dashboard's nested select relies on. The join
// is only attempted when the backend declares the foreign key; a missing
// declaration is what makes nested selects fail on Supabase.
func (p *Prober) ProbeRelationship(ctx context.Context, parent, child, foreignKey string) (res RelationshipResult) {
	res.Parent = parent
	res.Child = child
	res.ForeignKey = foreignKey
	defer p.recoverTo("relationship", child, &res.Error, &res.Kind)

	if err := query.ValidateIdentifiers(parent, child, foreignKey); err != nil {
		res.Error = err.Error()
		res.Kind = KindSchemaMismatch
		return res
	}

	db := p.conn.DB()

	// Sample
	q, err := query.BuildSampleKey(p.conn, child, foreignKey)
	if err != nil {
		res.Error = err.Error()
		res.Kind = KindSchemaMismatch
		return res
	}
	var key any
	if err := db.QueryRowxContext(ctx, q).Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			res.Error = fmt.Sprintf("%s has no rows with a non-null %s", child, foreignKey)
			res.Kind = KindDataMissing
		} else {
			res.Error = err.Error()
			res.Kind = Classify(err)
		}
		return res
	}
	res.SampleFound = true
	res.SampleKey = formatValue(key)

	// Manual lookup by primary key
	res.ParentKey = defaultParentKey
	if pk, err := p.conn.PrimaryKey(ctx, parent); err == nil && len(pk) > 0 {
		res.ParentKey = pk[0]
	}
	if err := p.lookup(ctx, parent, res.ParentKey, key); err != nil {
		res.LookupError = err.Error()
		res.Kind = Classify(err)
	} else {
		res.LookupSucceeded = true
	}

	// Nested join
	resolved, err := p.join(ctx, parent, child, foreignKey, res.ParentKey, key)
	if err != nil {
		res.JoinError = err.Error()
		if res.Kind == KindNone {
			res.Kind = Classify(err)
		}
	} else {
		res.JoinSucceeded = true
		res.JoinResolvedParent = resolved
	}

	p.logger.Debug("relationship probed",
		"parent", parent,
		"child", child,
		"foreign_key", foreignKey,
		"key", res.SampleKey,
		"lookup", res.LookupSucceeded,
		"join", res.JoinSucceeded,
		"resolved", res.JoinResolvedParent,
	)
	return res
}

func (p *Prober) lookup(ctx context.Context, parent, parentKey string, key any) error {
	q, err := query.BuildLookup(p.conn, parent, parentKey)
	if err != nil {
		return err
	}
	var found any
	if err := p.conn.DB().QueryRowxContext(ctx, q, key).Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s.%s = %s", ErrNoRows, parent, parentKey, formatValue(key))
		}
		return err
	}
	return nil
}

// join reports whether the sampled child row resolves to a parent row
// through the declared foreign key.
func (p *Prober) join(ctx context.Context, parent, child, foreignKey, parentKey string, key any) (bool, error) {
	fks, err := p.conn.ForeignKeys(ctx, child)
	if err != nil {
		return false, err
	}
	fk, ok := findForeignKey(fks, foreignKey, parent)
	if !ok {
		return false, fmt.Errorf("%w between %q and %q using %q", ErrNoRelationship, child, parent, foreignKey)
	}

	target := fk.ReferencedColumn
	if target == "" {
		target = parentKey
	}
	q, err := query.BuildJoin(p.conn, query.JoinSpec{
		Child:      child,
		ForeignKey: foreignKey,
		Parent:     parent,
		ParentKey:  target,
	})
	if err != nil {
		return false, err
	}

	var childVal, parentVal any
	if err := p.conn.DB().QueryRowxContext(ctx, q, key).Scan(&childVal, &parentVal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return parentVal != nil, nil
}

func findForeignKey(fks []model.ForeignKey, column, parent string) (model.ForeignKey, bool) {
	for _, fk := range fks {
		if strings.EqualFold(fk.ColumnName, column) && strings.EqualFold(fk.ReferencedTable, parent) {
			return fk, true
		}
	}
	return model.ForeignKey{}, false
}
