package lineage

import (
	"context"
	"sort"

	"github.com/chaintrace/asset-indexer/internal/store"
)

// Relative is one asset reached through the closure index, with its distance
// from the queried asset and the asset-id chain connecting them
type Relative struct {
	AssetID string `json:"asset_id"`
	Depth   int    `json:"depth"`
	Path    string `json:"path"`
}

// Index answers genealogy questions from the materialized transitive closure.
// All methods are read-only.
type Index struct {
	store store.Store
}

// NewIndex creates a new lineage index reader
func NewIndex(st store.Store) *Index {
	return &Index{store: st}
}

// Ancestors returns every ancestor of the asset, nearest first
func (x *Index) Ancestors(ctx context.Context, assetID string) ([]Relative, error) {
	edges, err := x.store.GetAncestorEdges(ctx, assetID)
	if err != nil {
		return nil, err
	}

	relatives := make([]Relative, 0, len(edges))
	for _, e := range edges {
		relatives = append(relatives, Relative{AssetID: e.AncestorID, Depth: e.Depth, Path: e.Path})
	}
	return relatives, nil
}

// Descendants returns every descendant of the asset, nearest first
func (x *Index) Descendants(ctx context.Context, assetID string) ([]Relative, error) {
	edges, err := x.store.GetDescendantEdges(ctx, assetID)
	if err != nil {
		return nil, err
	}

	relatives := make([]Relative, 0, len(edges))
	for _, e := range edges {
		relatives = append(relatives, Relative{AssetID: e.DescendantID, Depth: e.Depth, Path: e.Path})
	}
	return relatives, nil
}

// Siblings returns assets that share an ancestor with the queried asset at
// the same distance, excluding the asset itself and anything on its own
// ancestor or descendant chains. Results are sorted for stable output.
func (x *Index) Siblings(ctx context.Context, assetID string) ([]string, error) {
	ancestorEdges, err := x.store.GetAncestorEdges(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if len(ancestorEdges) == 0 {
		return []string{}, nil
	}

	// Distance from each ancestor down to the queried asset
	depthByAncestor := make(map[string]int, len(ancestorEdges))
	ancestorIDs := make([]string, 0, len(ancestorEdges))
	for _, e := range ancestorEdges {
		depthByAncestor[e.AncestorID] = e.Depth
		ancestorIDs = append(ancestorIDs, e.AncestorID)
	}

	descendantEdges, err := x.store.GetDescendantEdges(ctx, assetID)
	if err != nil {
		return nil, err
	}
	ownChain := make(map[string]bool, len(ancestorEdges)+len(descendantEdges)+1)
	ownChain[assetID] = true
	for _, e := range ancestorEdges {
		ownChain[e.AncestorID] = true
	}
	for _, e := range descendantEdges {
		ownChain[e.DescendantID] = true
	}

	candidates, err := x.store.GetEdgesByAncestors(ctx, ancestorIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	siblings := make([]string, 0)
	for _, e := range candidates {
		if ownChain[e.DescendantID] || seen[e.DescendantID] {
			continue
		}
		if e.Depth != depthByAncestor[e.AncestorID] {
			continue
		}
		seen[e.DescendantID] = true
		siblings = append(siblings, e.DescendantID)
	}

	sort.Strings(siblings)
	return siblings, nil
}
