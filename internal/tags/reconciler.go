// Package tags maps source-native raw tags onto catalog tags.
package tags

import (
	"context"
	"fmt"
	"strings"

	"tankobon/internal/catalog"
	"tankobon/internal/services"
	"tankobon/internal/source"
)

// Catalog is the subset of the catalog the reconciler reads and writes.
type Catalog interface {
	TagByAlias(ctx context.Context, alias string) (*catalog.Tag, error)
	CreateTag(ctx context.Context, tag catalog.Tag) (*catalog.Tag, error)
}

// Definition is a caller-supplied description for an alias the catalog does
// not know yet. GroupID is consulted only when the raw tag's kind implies no
// group.
type Definition struct {
	GroupID *int
	Name    string
}

// Missing describes an alias absent from the catalog together with the group
// its kind implies, if any.
type Missing struct {
	Alias   string
	GroupID *int
}

// UnresolvedError lists every alias that could not be reconciled, in first
// appearance order.
type UnresolvedError struct {
	Aliases []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: unresolved tags: %s", services.ErrReconciliation, strings.Join(e.Aliases, ", "))
}

// Is lets errors.Is match the reconciliation marker.
func (e *UnresolvedError) Is(target error) bool {
	return target == services.ErrReconciliation
}

// Reconciler turns raw tags into catalog tags.
type Reconciler struct {
	catalog Catalog
}

// NewReconciler constructs a reconciler over c.
func NewReconciler(c Catalog) *Reconciler {
	return &Reconciler{catalog: c}
}

type pendingTag struct {
	raw     source.RawTag
	groupID int
	name    string
}

// Reconcile returns one catalog tag per unique alias in raw, in first
// appearance order. Unknown aliases are created from defs. If any alias is
// unknown and lacks a usable definition, an *UnresolvedError naming all of
// them is returned and nothing is written.
//
// Creation is not transactional: if the k-th CreateTag fails, the tags
// created before it stay in the catalog. CreateTag is get-or-create keyed by
// alias, so a retry with the same definitions picks them up unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, raw []source.RawTag, defs map[string]Definition) ([]catalog.Tag, error) {
	unique := Dedupe(raw)
	found := make(map[string]*catalog.Tag, len(unique))
	var (
		toCreate   []pendingTag
		unresolved []string
	)
	for _, tag := range unique {
		existing, err := r.catalog.TagByAlias(ctx, tag.Alias())
		if err != nil {
			return nil, services.Wrap(services.ErrCatalogRead, "ReconcilingTags", "lookup tag", tag.Alias(), err)
		}
		if existing != nil {
			found[tag.Alias()] = existing
			continue
		}
		pending, ok := define(tag, defs)
		if !ok {
			unresolved = append(unresolved, tag.Alias())
			continue
		}
		toCreate = append(toCreate, pending)
	}
	if len(unresolved) > 0 {
		return nil, &UnresolvedError{Aliases: unresolved}
	}

	for _, p := range toCreate {
		created, err := r.catalog.CreateTag(ctx, catalog.Tag{Name: p.name, GroupID: p.groupID, Alias: p.raw.Alias()})
		if err != nil {
			return nil, services.Wrap(services.ErrCatalogWrite, "ReconcilingTags", "create tag", p.raw.Alias(), err)
		}
		found[p.raw.Alias()] = created
	}

	out := make([]catalog.Tag, 0, len(unique))
	for _, tag := range unique {
		out = append(out, *found[tag.Alias()])
	}
	return out, nil
}

// Missing lists the aliases in raw that the catalog does not know.
func (r *Reconciler) Missing(ctx context.Context, raw []source.RawTag) ([]Missing, error) {
	var out []Missing
	for _, tag := range Dedupe(raw) {
		existing, err := r.catalog.TagByAlias(ctx, tag.Alias())
		if err != nil {
			return nil, services.Wrap(services.ErrCatalogRead, "ReconcilingTags", "lookup tag", tag.Alias(), err)
		}
		if existing != nil {
			continue
		}
		m := Missing{Alias: tag.Alias()}
		if group, ok := tag.DefaultGroupID(); ok {
			m.GroupID = &group
		}
		out = append(out, m)
	}
	return out, nil
}

// Dedupe drops repeated aliases, keeping the first occurrence.
func Dedupe(raw []source.RawTag) []source.RawTag {
	seen := make(map[string]struct{}, len(raw))
	out := make([]source.RawTag, 0, len(raw))
	for _, tag := range raw {
		if tag.Alias() == "" {
			continue
		}
		if _, ok := seen[tag.Alias()]; ok {
			continue
		}
		seen[tag.Alias()] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func define(tag source.RawTag, defs map[string]Definition) (pendingTag, bool) {
	def, ok := defs[tag.Alias()]
	if !ok {
		return pendingTag{}, false
	}
	group, hasGroup := tag.DefaultGroupID()
	if !hasGroup && def.GroupID != nil {
		group, hasGroup = *def.GroupID, true
	}
	name := source.NormalizeText(def.Name)
	if !hasGroup || name == "" {
		return pendingTag{}, false
	}
	return pendingTag{raw: tag, groupID: group, name: name}, true
}
