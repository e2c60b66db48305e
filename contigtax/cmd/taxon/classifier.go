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
	"math"
	"sync"
)

// DefaultFraction is the default fraction of the total weight a taxon
// needs to exceed in a majority vote.
const DefaultFraction = 0.5

// DefaultMinSpeciesIdentity is the default minimal average identity
// for keeping a species-level assignment.
const DefaultMinSpeciesIdentity = 0.8

// Classifier assigns contigs to taxa with a shared read-only Store.
type Classifier struct {
	store *Store

	// a taxon must be supported by > Fraction of the total weight
	Fraction float64

	// species assignments with lower average identity are moved
	// to the parent node
	MinSpeciesIdentity float64
}

// NewClassifier creates a Classifier with default parameters.
func NewClassifier(store *Store) *Classifier {
	return &Classifier{
		store:              store,
		Fraction:           DefaultFraction,
		MinSpeciesIdentity: DefaultMinSpeciesIdentity,
	}
}

// Store returns the taxonomy used by the Classifier.
func (c *Classifier) Store() *Store { return c.store }

func sumWeights(weights []float64) (float64, error) {
	var total float64
	for _, w := range weights {
		if !(w > 0) || math.IsInf(w, 1) {
			return 0, ErrInvalidWeight
		}
		total += w
	}
	return total, nil
}

// MajorityVote returns the most specific taxon supported by more than
// Fraction of the total weight. Starting from the root, it moves down to
// the heaviest child as long as the child qualifies. Children with equal
// weights are ordered by names and then TaxIds.
// A single taxon is returned as it is.
func (c *Classifier) MajorityVote(taxa []*Taxon, weights []float64) (*Taxon, error) {
	if len(taxa) == 0 {
		return nil, ErrEmptyVote
	}
	if len(taxa) != len(weights) {
		return nil, ErrLengthMismatch
	}
	total, err := sumWeights(weights)
	if err != nil {
		return nil, err
	}
	if len(taxa) == 1 {
		return taxa[0], nil
	}
	if !(c.Fraction > 0 && c.Fraction < 1) {
		return nil, ErrInvalidFraction
	}
	threshold := c.Fraction * total

	root := c.store.Root()
	current := root

	// taxa passing through the current node
	active := make([]int, 0, len(taxa))
	for i, t := range taxa {
		if len(t.Lineage) == 0 || t.Lineage[0].TaxId != root {
			return nil, fmt.Errorf("contigtax: lineage of TaxId %d does not start from the root", t.TaxId)
		}
		active = append(active, i)
	}

	tally := make(map[uint32]float64, 8)
	var lineage []RankedTaxId
	var best, taxid uint32
	var bestW, w float64
	var n int
	for depth := 1; ; depth++ {
		for taxid = range tally {
			delete(tally, taxid)
		}
		for _, i := range active {
			lineage = taxa[i].Lineage
			if depth < len(lineage) {
				tally[lineage[depth].TaxId] += weights[i]
			}
		}
		if len(tally) == 0 {
			break
		}

		best, bestW = 0, -1
		for taxid, w = range tally {
			if w > bestW || (w == bestW && c.before(taxid, best)) {
				best, bestW = taxid, w
			}
		}
		if !(bestW > threshold) {
			break
		}
		current = best

		n = 0
		for _, i := range active {
			lineage = taxa[i].Lineage
			if depth < len(lineage) && lineage[depth].TaxId == best {
				active[n] = i
				n++
			}
		}
		active = active[:n]
	}

	return c.store.Lookup(current)
}

// before orders candidates with equal weights.
func (c *Classifier) before(a, b uint32) bool {
	na, nb := c.store.Name(a), c.store.Name(b)
	if na != nb {
		return na < nb
	}
	return a < b
}

// Adjust moves a species-level taxon to its parent if the average
// identity is lower than MinSpeciesIdentity.
func (c *Classifier) Adjust(t *Taxon, identities []float64) (*Taxon, error) {
	if len(identities) == 0 {
		return nil, ErrEmptyIdentities
	}
	if t.Rank != Species {
		return t, nil
	}
	var sum float64
	for _, v := range identities {
		sum += v
	}
	if sum/float64(len(identities)) >= c.MinSpeciesIdentity {
		return t, nil
	}
	if len(t.Lineage) < 2 {
		return t, nil
	}
	return c.store.Lookup(t.Parent())
}

// RankSupport is the taxon at a rank and the fraction of weight supporting it.
type RankSupport struct {
	Rank    Rank
	TaxId   uint32
	Name    string
	Support float64
}

// Support computes the supports of all ranked taxa in the lineage of
// final, from the coarsest rank to the finest one. The root and nodes
// without a canonical rank are skipped.
func (c *Classifier) Support(final *Taxon, taxa []*Taxon, weights []float64) ([]RankSupport, error) {
	if len(taxa) != len(weights) {
		return nil, ErrLengthMismatch
	}
	total, err := sumWeights(weights)
	if err != nil {
		return nil, err
	}

	root := c.store.Root()
	supports := make([]RankSupport, 0, NumRanks)
	var seen [NumRanks]int
	for i := range seen {
		seen[i] = -1
	}

	var support float64
	var taxid uint32
	var ok bool
	for _, rt := range final.Lineage {
		if !rt.Rank.Canonical() || rt.TaxId == root || rt.TaxId == RootTaxId {
			continue
		}

		support = 0
		for i, t := range taxa {
			if taxid, ok = t.RankTaxId(rt.Rank); ok && taxid == rt.TaxId {
				support += weights[i] / total
			}
		}

		rs := RankSupport{
			Rank:    rt.Rank,
			TaxId:   rt.TaxId,
			Name:    c.store.Name(rt.TaxId),
			Support: support,
		}
		if j := seen[rt.Rank]; j >= 0 {
			supports[j] = rs
			continue
		}
		seen[rt.Rank] = len(supports)
		supports = append(supports, rs)
	}
	return supports, nil
}

// Assignment is the classification of a contig.
type Assignment struct {
	Contig string

	Voted *Taxon // result of the majority vote
	Taxon *Taxon // final taxon after the rank adjustment

	// from the coarsest rank to the finest one
	Supports []RankSupport
}

// Classified tells whether any rank is assigned.
func (a *Assignment) Classified() bool {
	return len(a.Supports) > 0
}

// Get returns the support at a rank.
func (a *Assignment) Get(rank Rank) (RankSupport, bool) {
	for _, rs := range a.Supports {
		if rs.Rank == rank {
			return rs, true
		}
	}
	return RankSupport{}, false
}

// Finest returns the most specific ranked taxon.
func (a *Assignment) Finest() (RankSupport, bool) {
	if len(a.Supports) == 0 {
		return RankSupport{}, false
	}
	return a.Supports[len(a.Supports)-1], true
}

// Classify runs the majority vote, rank adjustment and support
// computation on the evidence of a contig. Empty evidence gives an
// unclassified assignment.
func (c *Classifier) Classify(e *Evidence) (*Assignment, error) {
	if e == nil {
		return &Assignment{}, nil
	}
	if e.Len() == 0 {
		return &Assignment{Contig: e.Contig}, nil
	}

	voted, err := c.MajorityVote(e.taxa, e.weights)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Contig, err)
	}

	final, err := c.Adjust(voted, e.identities)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Contig, err)
	}

	supports, err := c.Support(final, e.taxa, e.weights)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Contig, err)
	}

	return &Assignment{
		Contig:   e.Contig,
		Voted:    voted,
		Taxon:    final,
		Supports: supports,
	}, nil
}

// ClassifyAll classifies contigs with a pool of goroutines. Results have
// the same order as the input. progress, if not nil, is called once per
// finished contig.
func (c *Classifier) ClassifyAll(evidences []*Evidence, threads int, progress func()) ([]*Assignment, error) {
	if threads < 1 {
		threads = 1
	}
	results := make([]*Assignment, len(evidences))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	tokens := make(chan int, threads)

	for i, e := range evidences {
		mu.Lock()
		stop := firstErr != nil
		mu.Unlock()
		if stop {
			break
		}

		tokens <- 1
		wg.Add(1)

		go func(i int, e *Evidence) {
			defer func() {
				wg.Done()
				<-tokens
			}()

			a, err := c.Classify(e)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			results[i] = a

			if progress != nil {
				mu.Lock()
				progress()
				mu.Unlock()
			}
		}(i, e)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
