package resolver

import (
	"context"
	"errors"
	"log"
	"strings"

	"pricewatch/pkg/models"
)

// ErrCyclicChain marks a category chain where a node lists itself (or
// an earlier node) as its own ancestor. Such chains are rejected, not
// persisted.
var ErrCyclicChain = errors.New("cyclic category chain")

// Reconciler resolves a product's category chain (root first, leaf
// last) into persisted ids with correct parent linkage. Sources are
// messy: some return siblings instead of ancestors, some declare
// parents by bare name, some prepend a generic "all products" root.
type Reconciler struct {
	res         *Resolver
	rootAliases map[string]struct{}
}

// NewReconciler wires a reconciler over an already-warmed resolver.
// rootAliases are chain roots that mean "all products"; they are
// filtered out and never persisted.
func NewReconciler(res *Resolver, rootAliases []string) *Reconciler {
	aliases := make(map[string]struct{}, len(rootAliases))
	for _, a := range rootAliases {
		aliases[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return &Reconciler{res: res, rootAliases: aliases}
}

func (rc *Reconciler) isRootAlias(name string) bool {
	_, ok := rc.rootAliases[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Resolve walks the chain from root to leaf and returns the resolved
// category ids in chain order (filtered aliases excluded).
//
// Parent policy: the source's explicit parent reference wins when
// present; otherwise the previous item in the list is assumed to be
// the parent. A declared parent that cannot be found is logged and the
// walk falls back to the previous resolved node rather than aborting.
func (rc *Reconciler) Resolve(ctx context.Context, chain []models.CategoryRef) ([]int64, error) {
	nodes, err := rc.clean(chain)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(nodes))

	var prevName string
	var prevID int64

	for _, node := range nodes {
		name, declared := node.Name, node.Parent

		parentID := prevID
		switch {
		case declared == "" || declared == prevName:
			// trust the chain order
		default:
			entries := rc.res.store.CategoriesNamed(declared)
			switch len(entries) {
			case 0:
				log.Printf("[resolver] source %d: declared parent %q of %q not found, falling back to %q",
					rc.res.SourceID, declared, name, prevName)
			case 1:
				if prevName != "" {
					log.Printf("[resolver] source %d: category %q declares parent %q while chain implies %q; trusting the source",
						rc.res.SourceID, name, declared, prevName)
				}
				parentID = entries[0].ID
			default:
				log.Printf("[resolver] source %d: declared parent %q of %q is ambiguous (%d candidates); using the first",
					rc.res.SourceID, declared, name, len(entries))
				parentID = entries[0].ID
			}
		}

		id, err := rc.res.Category(ctx, name, parentID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		prevName, prevID = name, id
	}

	return ids, nil
}

// clean validates and normalizes a chain before anything touches the
// gateway: a cyclic chain must be rejected whole, with no rows
// persisted for its earlier nodes. Root aliases are dropped here, both
// as nodes and as declared parents.
func (rc *Reconciler) clean(chain []models.CategoryRef) ([]models.CategoryRef, error) {
	seen := make(map[string]struct{}, len(chain))
	nodes := make([]models.CategoryRef, 0, len(chain))

	for _, ref := range chain {
		name := strings.TrimSpace(ref.Name)
		if name == "" {
			continue
		}
		if rc.isRootAlias(name) {
			// generic "all products" node: skip without becoming a parent
			continue
		}

		declared := strings.TrimSpace(ref.Parent)
		if declared == name {
			return nil, ErrCyclicChain
		}
		if _, dup := seen[name]; dup {
			return nil, ErrCyclicChain
		}
		seen[name] = struct{}{}

		if rc.isRootAlias(declared) {
			declared = ""
		}
		nodes = append(nodes, models.CategoryRef{Name: name, Parent: declared})
	}
	return nodes, nil
}
