package diagram

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// site is a generator point tagged with its cell ID
type site struct {
	r2.Point
	id int
}

// Compare implements the kdtree.Comparable interface
func (p site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(site)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p site) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two sites
func (p site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// sites is a collection of site that satisfies kdtree.Interface
type sites []site

func (p sites) Index(i int) kdtree.Comparable         { return p[i] }
func (p sites) Len() int                              { return len(p) }
func (p sites) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p sites) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(sitePlane{sites: p, Dim: d}, kdtree.MedianOfRandoms(sitePlane{sites: p, Dim: d}, 100))
}

// sitePlane implements sort.Interface and kdtree.SortSlicer for sites
type sitePlane struct {
	sites
	kdtree.Dim
}

func (p sitePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.sites[i].X < p.sites[j].X
	case 1:
		return p.sites[i].Y < p.sites[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p sitePlane) Slice(start, end int) kdtree.SortSlicer {
	return sitePlane{sites: p.sites[start:end], Dim: p.Dim}
}

func (p sitePlane) Swap(i, j int) {
	p.sites[i], p.sites[j] = p.sites[j], p.sites[i]
}

// nearestIndex answers nearest-generator queries over a fixed generator set
type nearestIndex struct {
	tree *kdtree.Tree
}

func newNearestIndex(points []r2.Point) *nearestIndex {
	list := make(sites, len(points))
	for i, p := range points {
		list[i] = site{Point: p, id: i}
	}
	return &nearestIndex{tree: kdtree.New(list, false)}
}

// nearest returns the ID of the generator closest to p. Safe for concurrent use.
func (n *nearestIndex) nearest(p r2.Point) int {
	got, _ := n.tree.Nearest(site{Point: p})
	return got.(site).id
}
