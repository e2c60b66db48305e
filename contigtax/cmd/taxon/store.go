// Copyright © 2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package taxon

import (
	"fmt"
)

// RootTaxId is the TaxId of the root node, also used for unclassified contigs.
const RootTaxId uint32 = 1

// RankedTaxId is one entry of a lineage.
type RankedTaxId struct {
	Rank  Rank
	TaxId uint32
}

// Taxon is a node materialized from a Store, with its lineage.
type Taxon struct {
	TaxId    uint32
	Rank     Rank
	RankName string // rank string in nodes.dmp
	Name     string

	// from root to the taxon itself
	Lineage []RankedTaxId
}

// Parent returns the TaxId of the parent node, the root returns itself.
func (t *Taxon) Parent() uint32 {
	if len(t.Lineage) < 2 {
		return t.TaxId
	}
	return t.Lineage[len(t.Lineage)-2].TaxId
}

// RankTaxId returns the TaxId at the given rank in the lineage.
// The finer one wins if a rank appears more than once, which does not
// happen in ICTV taxonomy.
func (t *Taxon) RankTaxId(rank Rank) (uint32, bool) {
	if !rank.Canonical() {
		return 0, false
	}
	for i := len(t.Lineage) - 1; i >= 0; i-- {
		if t.Lineage[i].Rank == rank {
			return t.Lineage[i].TaxId, true
		}
	}
	return 0, false
}

func (t *Taxon) String() string {
	return fmt.Sprintf("%s (%d, %s)", t.Name, t.TaxId, t.RankName)
}

type node struct {
	taxid    uint32
	parent   int32 // index of the parent node
	depth    int32 // 0 for the root
	rank     Rank
	rankName string
	name     string
}

// Store is a read-only taxonomy. Nodes live in a slice and are
// indexed by TaxId, parents are referred to by slice positions.
type Store struct {
	nodes   []node
	index   map[uint32]int32
	merged  map[uint32]uint32
	deleted map[uint32]struct{}
	root    int32
}

// Len returns the number of nodes.
func (s *Store) Len() int { return len(s.nodes) }

// NumMerged returns the number of merged TaxIds.
func (s *Store) NumMerged() int { return len(s.merged) }

// NumDeleted returns the number of deleted TaxIds.
func (s *Store) NumDeleted() int { return len(s.deleted) }

// Root returns the TaxId of the root node.
func (s *Store) Root() uint32 { return s.nodes[s.root].taxid }

func (s *Store) find(taxid uint32) (int32, error) {
	if i, ok := s.index[taxid]; ok {
		return i, nil
	}
	if to, ok := s.merged[taxid]; ok {
		if i, ok := s.index[to]; ok {
			return i, nil
		}
	}
	if _, ok := s.deleted[taxid]; ok {
		return -1, &UnknownTaxonError{TaxId: taxid, Deleted: true}
	}
	return -1, &UnknownTaxonError{TaxId: taxid}
}

// Has tells whether a TaxId (or a merged one) exists.
func (s *Store) Has(taxid uint32) bool {
	_, err := s.find(taxid)
	return err == nil
}

// Lookup returns the Taxon of a TaxId. Merged TaxIds are resolved to
// their new ones.
func (s *Store) Lookup(taxid uint32) (*Taxon, error) {
	i, err := s.find(taxid)
	if err != nil {
		return nil, err
	}
	return s.taxon(i), nil
}

// Lineage returns ranked TaxIds from the root to the given taxon.
func (s *Store) Lineage(taxid uint32) ([]RankedTaxId, error) {
	i, err := s.find(taxid)
	if err != nil {
		return nil, err
	}
	return s.lineage(i), nil
}

// Name returns the scientific name of a TaxId, empty for unknown ones.
func (s *Store) Name(taxid uint32) string {
	i, err := s.find(taxid)
	if err != nil {
		return ""
	}
	return s.nodes[i].name
}

func (s *Store) lineage(i int32) []RankedTaxId {
	nd := &s.nodes[i]
	lineage := make([]RankedTaxId, nd.depth+1)
	for k := int(nd.depth); k >= 0; k-- {
		lineage[k] = RankedTaxId{Rank: s.nodes[i].rank, TaxId: s.nodes[i].taxid}
		i = s.nodes[i].parent
	}
	return lineage
}

func (s *Store) taxon(i int32) *Taxon {
	nd := &s.nodes[i]
	return &Taxon{
		TaxId:    nd.taxid,
		Rank:     nd.rank,
		RankName: nd.rankName,
		Name:     nd.name,
		Lineage:  s.lineage(i),
	}
}

// ------------------------------------------------------------------------

// Builder collects nodes, names, merged and deleted TaxIds for a Store.
type Builder struct {
	order   []uint32
	parents map[uint32]uint32
	ranks   map[uint32]string
	names   map[uint32]string
	merged  map[uint32]uint32
	deleted map[uint32]struct{}
}

// NewBuilder returns a Builder.
func NewBuilder() *Builder {
	return &Builder{
		order:   make([]uint32, 0, 1024),
		parents: make(map[uint32]uint32, 1024),
		ranks:   make(map[uint32]string, 1024),
		names:   make(map[uint32]string, 1024),
		merged:  make(map[uint32]uint32),
		deleted: make(map[uint32]struct{}),
	}
}

// Add adds or replaces a node. The root node is its own parent.
func (b *Builder) Add(taxid, parent uint32, rank string) {
	if _, ok := b.parents[taxid]; !ok {
		b.order = append(b.order, taxid)
	}
	b.parents[taxid] = parent
	b.ranks[taxid] = rank
}

// SetName sets the scientific name of a TaxId.
func (b *Builder) SetName(taxid uint32, name string) {
	b.names[taxid] = name
}

// AddMerged records that TaxId from was merged into to.
func (b *Builder) AddMerged(from, to uint32) {
	b.merged[from] = to
}

// AddDeleted records a deleted TaxId.
func (b *Builder) AddDeleted(taxid uint32) {
	b.deleted[taxid] = struct{}{}
}

// Build checks the tree and freezes it into a Store.
func (b *Builder) Build() (*Store, error) {
	n := len(b.order)
	s := &Store{
		nodes:   make([]node, n),
		index:   make(map[uint32]int32, n),
		merged:  make(map[uint32]uint32, len(b.merged)),
		deleted: make(map[uint32]struct{}, len(b.deleted)),
		root:    -1,
	}

	for i, taxid := range b.order {
		s.index[taxid] = int32(i)
	}

	for i, taxid := range b.order {
		parent := b.parents[taxid]
		j, ok := s.index[parent]
		if !ok {
			return nil, fmt.Errorf("contigtax: parent (%d) of TaxId %d not found", parent, taxid)
		}
		if parent == taxid {
			if s.root >= 0 {
				return nil, fmt.Errorf("contigtax: multiple root nodes: %d, %d", s.nodes[s.root].taxid, taxid)
			}
			s.root = int32(i)
		}
		rank := b.ranks[taxid]
		s.nodes[i] = node{
			taxid:    taxid,
			parent:   j,
			depth:    -1,
			rank:     ParseRank(rank),
			rankName: rank,
			name:     b.names[taxid],
		}
	}
	if s.root < 0 {
		return nil, ErrNoRoot
	}
	s.nodes[s.root].depth = 0

	// depths of all nodes, walking up until a node with known depth
	stack := make([]int32, 0, 64)
	var j int32
	var d int32
	for i := range s.nodes {
		stack = stack[:0]
		j = int32(i)
		for s.nodes[j].depth < 0 {
			if len(stack) >= n {
				return nil, fmt.Errorf("contigtax: cycle detected in taxonomy at TaxId %d", s.nodes[i].taxid)
			}
			stack = append(stack, j)
			j = s.nodes[j].parent
		}
		d = s.nodes[j].depth
		for k := len(stack) - 1; k >= 0; k-- {
			d++
			s.nodes[stack[k]].depth = d
		}
	}

	for from, to := range b.merged {
		if _, ok := s.index[from]; ok {
			continue
		}
		if _, ok := s.index[to]; !ok {
			continue
		}
		s.merged[from] = to
	}
	for taxid := range b.deleted {
		if _, ok := s.index[taxid]; !ok {
			s.deleted[taxid] = struct{}{}
		}
	}

	return s, nil
}
