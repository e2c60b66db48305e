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
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
)

func lookupAll(t *testing.T, s *Store, taxids ...uint32) []*Taxon {
	taxa := make([]*Taxon, len(taxids))
	for i, taxid := range taxids {
		taxa[i] = mustLookup(t, s, taxid)
	}
	return taxa
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMajorityVote(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)

	cases := []struct {
		taxids   []uint32
		weights  []float64
		expected uint32
	}{
		// one taxon
		{[]uint32{72}, []float64{3}, 72},
		// identical taxa
		{[]uint32{70, 70, 70}, []float64{1, 2, 3}, 70},
		// 10/15 for Enterovirus alphacoxsackie
		{[]uint32{70, 72}, []float64{10, 5}, 70},
		// 5/10 is not a majority, stop at the family
		{[]uint32{70, 72}, []float64{5, 5}, 50},
		// 2/3 for the family, 1/3 for each genus
		{[]uint32{70, 72, 82}, []float64{1, 1, 1}, 50},
		// two species of the same genus, passing the node of no rank
		{[]uint32{70, 71, 72}, []float64{2, 2, 1}, 60},
		// different families
		{[]uint32{70, 82}, []float64{1, 1}, 40},
		// the heavier family wins
		{[]uint32{70, 82, 82}, []float64{1, 1, 1}, 82},
		// different realms
		{[]uint32{70, 90}, []float64{1, 1}, 1},
		// an internal node among the taxa
		{[]uint32{60, 70, 71}, []float64{4, 1, 1}, 60},
	}

	for i, cs := range cases {
		taxa := lookupAll(t, s, cs.taxids...)
		result, err := c.MajorityVote(taxa, cs.weights)
		if err != nil {
			t.Errorf("case %d: %s", i, err)
			continue
		}
		if result.TaxId != cs.expected {
			t.Errorf("case %d: expected %d, returned %d", i, cs.expected, result.TaxId)
		}
	}
}

func TestMajorityVoteSingleTaxon(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)

	taxa := lookupAll(t, s, 51)
	result, err := c.MajorityVote(taxa, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	if result != taxa[0] {
		t.Errorf("the only taxon should be returned unchanged")
	}
}

func TestMajorityVoteTieBreak(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)
	c.Fraction = 0.3

	// both species have 1/3 > 0.3 of the weight, the name decides
	for _, taxids := range [][]uint32{{70, 71, 72}, {71, 70, 72}, {72, 71, 70}} {
		taxa := lookupAll(t, s, taxids...)
		result, err := c.MajorityVote(taxa, []float64{1, 1, 1})
		if err != nil {
			t.Fatal(err)
		}
		if result.TaxId != 70 {
			t.Errorf("%v: expected 70, returned %d", taxids, result.TaxId)
		}
	}
}

func TestMajorityVoteErrors(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)
	taxa := lookupAll(t, s, 70, 72)

	if _, err := c.MajorityVote(nil, nil); !errors.Is(err, ErrEmptyVote) {
		t.Errorf("expected ErrEmptyVote, returned %v", err)
	}
	if _, err := c.MajorityVote(taxa, []float64{1}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, returned %v", err)
	}
	for _, w := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := c.MajorityVote(taxa, []float64{1, w}); !errors.Is(err, ErrInvalidWeight) {
			t.Errorf("weight %v: expected ErrInvalidWeight, returned %v", w, err)
		}
	}

	c.Fraction = 1
	if _, err := c.MajorityVote(taxa, []float64{1, 1}); !errors.Is(err, ErrInvalidFraction) {
		t.Errorf("expected ErrInvalidFraction, returned %v", err)
	}
}

func TestAdjust(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)

	cases := []struct {
		taxid      uint32
		identities []float64
		expected   uint32
	}{
		{70, []float64{0.75}, 60},
		{70, []float64{0.85}, 70},
		{70, []float64{0.8}, 70},
		{70, []float64{0.9, 0.6}, 60},
		{72, []float64{0.5}, 61},
		// the parent of a species is not always a genus
		{90, []float64{0.5}, 12},
		// only species are moved
		{60, []float64{0.1}, 60},
		{50, []float64{0.1}, 50},
	}
	for _, cs := range cases {
		result, err := c.Adjust(mustLookup(t, s, cs.taxid), cs.identities)
		if err != nil {
			t.Errorf("%d: %s", cs.taxid, err)
			continue
		}
		if result.TaxId != cs.expected {
			t.Errorf("%d %v: expected %d, returned %d", cs.taxid, cs.identities, cs.expected, result.TaxId)
		}
	}

	if _, err := c.Adjust(mustLookup(t, s, 70), nil); !errors.Is(err, ErrEmptyIdentities) {
		t.Errorf("expected ErrEmptyIdentities, returned %v", err)
	}

	c.MinSpeciesIdentity = 0.7
	result, _ := c.Adjust(mustLookup(t, s, 70), []float64{0.75})
	if result.TaxId != 70 {
		t.Errorf("species should be kept with a lower threshold")
	}
}

func TestSupport(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)

	taxa := lookupAll(t, s, 70, 72)
	weights := []float64{10, 5}

	supports, err := c.Support(mustLookup(t, s, 70), taxa, weights)
	if err != nil {
		t.Fatal(err)
	}

	expected := []struct {
		rank    Rank
		taxid   uint32
		support float64
	}{
		{Realm, 10, 1},
		{Kingdom, 11, 1},
		{Phylum, 20, 1},
		{Class, 30, 1},
		{Order, 40, 1},
		{Family, 50, 1},
		{Genus, 60, 10.0 / 15},
		{Species, 70, 10.0 / 15},
	}
	if len(supports) != len(expected) {
		t.Fatalf("expected %d ranks, returned %d: %v", len(expected), len(supports), supports)
	}
	for i, e := range expected {
		rs := supports[i]
		if rs.Rank != e.rank || rs.TaxId != e.taxid || !almostEqual(rs.Support, e.support) {
			t.Errorf("rank %d: expected %s %d %f, returned %s %d %f",
				i, e.rank, e.taxid, e.support, rs.Rank, rs.TaxId, rs.Support)
		}
	}
	if supports[5].Name != "Picornaviridae" {
		t.Errorf("unexpected name: %s", supports[5].Name)
	}

	// the root has no ranks to report
	supports, err = c.Support(mustLookup(t, s, 1), taxa, weights)
	if err != nil {
		t.Fatal(err)
	}
	if len(supports) != 0 {
		t.Errorf("no supports expected for the root, returned %v", supports)
	}
}

func TestSupportNonIncreasing(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)

	sets := [][]uint32{
		{70, 71, 72, 82},
		{70, 70, 71},
		{72, 82, 82, 70},
		{60, 70, 71, 61},
	}
	for _, taxids := range sets {
		taxa := lookupAll(t, s, taxids...)
		weights := make([]float64, len(taxa))
		for i := range weights {
			weights[i] = float64(i + 1)
		}

		for _, final := range taxa {
			supports, err := c.Support(final, taxa, weights)
			if err != nil {
				t.Fatal(err)
			}
			for i := 1; i < len(supports); i++ {
				if supports[i].Support > supports[i-1].Support+1e-12 {
					t.Errorf("%v, %d: support increases from %s to %s",
						taxids, final.TaxId, supports[i-1].Rank, supports[i].Rank)
				}
			}
			if len(supports) > 0 && supports[0].Rank == Realm && !almostEqual(supports[0].Support, 1) {
				t.Errorf("%v: all taxa share the realm, support should be 1", taxids)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)

	// a single ORF at species rank with low identity
	e, err := NewEvidence("contig1", lookupAll(t, s, 70), []float64{20}, []float64{0.75})
	if err != nil {
		t.Fatal(err)
	}
	a, err := c.Classify(e)
	if err != nil {
		t.Fatal(err)
	}
	if a.Voted.TaxId != 70 {
		t.Errorf("voted taxon should be the taxon of the only ORF")
	}
	if _, ok := a.Get(Species); ok {
		t.Errorf("species should be removed for identity 0.75")
	}
	rs, ok := a.Finest()
	if !ok || rs.Rank != Genus || rs.TaxId != 60 || !almostEqual(rs.Support, 1) {
		t.Errorf("finest rank should be the genus with support 1, returned %v", rs)
	}

	// high identity
	e, _ = NewEvidence("contig1", lookupAll(t, s, 70), []float64{20}, []float64{0.85})
	a, err = c.Classify(e)
	if err != nil {
		t.Fatal(err)
	}
	rs, ok = a.Get(Species)
	if !ok || rs.TaxId != 70 || !almostEqual(rs.Support, 1) {
		t.Errorf("species with support 1 expected, returned %v", rs)
	}

	// two ORFs
	e, _ = NewEvidence("X", lookupAll(t, s, 70, 72), []float64{10, 5}, []float64{0.9, 0.9})
	a, err = c.Classify(e)
	if err != nil {
		t.Fatal(err)
	}
	rs, _ = a.Get(Genus)
	if rs.Name != "Enterovirus" || fmt.Sprintf("%.4f", rs.Support) != "0.6667" {
		t.Errorf("unexpected genus: %v", rs)
	}
	rs, _ = a.Get(Family)
	if rs.Name != "Picornaviridae" || fmt.Sprintf("%.4f", rs.Support) != "1.0000" {
		t.Errorf("unexpected family: %v", rs)
	}

	// the same evidence gives the same result
	b, err := c.Classify(e)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("classification is not idempotent")
	}

	// no evidence
	a, err = c.Classify(nil)
	if err != nil || a.Classified() {
		t.Errorf("nil evidence should be unclassified")
	}

	// majority falls back to the root
	e, _ = NewEvidence("Y", lookupAll(t, s, 70, 90), []float64{1, 1}, []float64{1, 1})
	a, err = c.Classify(e)
	if err != nil {
		t.Fatal(err)
	}
	if a.Classified() || a.Taxon.TaxId != 1 {
		t.Errorf("contig should be unclassified")
	}
}

func TestClassifyAll(t *testing.T) {
	s := newTestStore(t)
	c := NewClassifier(s)

	pool := []uint32{70, 71, 72, 82, 90, 60, 61}
	evidences := make([]*Evidence, 0, 100)
	for i := 0; i < 100; i++ {
		n := i%5 + 1
		taxids := make([]uint32, n)
		weights := make([]float64, n)
		identities := make([]float64, n)
		for j := 0; j < n; j++ {
			taxids[j] = pool[(i+j*3)%len(pool)]
			weights[j] = float64((i*7+j)%13 + 1)
			identities[j] = 0.5 + float64((i+j)%5)/10
		}
		e, err := NewEvidence(fmt.Sprintf("contig%d", i), lookupAll(t, s, taxids...), weights, identities)
		if err != nil {
			t.Fatal(err)
		}
		evidences = append(evidences, e)
	}

	var n int
	results, err := c.ClassifyAll(evidences, 4, func() { n++ })
	if err != nil {
		t.Fatal(err)
	}
	if n != len(evidences) {
		t.Errorf("progress: expected %d calls, returned %d", len(evidences), n)
	}
	for i, e := range evidences {
		a, err := c.Classify(e)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a, results[i]) {
			t.Errorf("%s: parallel result differs", e.Contig)
		}
	}

	// errors are returned
	bad := &Evidence{Contig: "bad", taxa: lookupAll(t, s, 70, 72), weights: []float64{1, -1}, identities: []float64{1, 1}}
	if _, err = c.ClassifyAll(append(evidences, bad), 4, nil); !errors.Is(err, ErrInvalidWeight) {
		t.Errorf("expected ErrInvalidWeight, returned %v", err)
	}
}
