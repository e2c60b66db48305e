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
)

// DefaultZeroEValueWeight is the weight of alignments with an E-value of 0.
const DefaultZeroEValueWeight = 1000

// EValueWeight converts an E-value to a weight, -ln(evalue).
// zeroWeight is used when evalue is 0.
func EValueWeight(evalue float64, zeroWeight float64) (float64, error) {
	if math.IsNaN(evalue) || evalue < 0 {
		return 0, fmt.Errorf("contigtax: invalid E-value: %v", evalue)
	}
	if evalue == 0 {
		return zeroWeight, nil
	}
	return -math.Log(evalue), nil
}

// Evidence holds the taxa, weights and alignment identities of ORFs on
// a contig. It is created by EvidenceBuilder and never modified.
type Evidence struct {
	Contig string

	taxa       []*Taxon
	weights    []float64
	identities []float64
}

// NewEvidence creates Evidence from parallel slices, which are copied.
func NewEvidence(contig string, taxa []*Taxon, weights []float64, identities []float64) (*Evidence, error) {
	if len(taxa) != len(weights) || len(taxa) != len(identities) {
		return nil, ErrLengthMismatch
	}
	e := &Evidence{
		Contig:     contig,
		taxa:       make([]*Taxon, len(taxa)),
		weights:    make([]float64, len(weights)),
		identities: make([]float64, len(identities)),
	}
	copy(e.taxa, taxa)
	copy(e.weights, weights)
	copy(e.identities, identities)
	return e, nil
}

// Len returns the number of ORFs.
func (e *Evidence) Len() int { return len(e.taxa) }

// Taxon returns the taxon of the i-th ORF.
func (e *Evidence) Taxon(i int) *Taxon { return e.taxa[i] }

// Weight returns the weight of the i-th ORF.
func (e *Evidence) Weight(i int) float64 { return e.weights[i] }

// Identity returns the alignment identity of the i-th ORF.
func (e *Evidence) Identity(i int) float64 { return e.identities[i] }

type evidenceBuffer struct {
	taxa       []*Taxon
	weights    []float64
	identities []float64
}

// EvidenceBuilder groups ORF records by contig, keeping the order in
// which contigs and ORFs are added.
type EvidenceBuilder struct {
	order   []string
	buffers map[string]*evidenceBuffer
	n       int
}

// NewEvidenceBuilder returns an EvidenceBuilder.
func NewEvidenceBuilder() *EvidenceBuilder {
	return &EvidenceBuilder{
		order:   make([]string, 0, 1024),
		buffers: make(map[string]*evidenceBuffer, 1024),
	}
}

// Add appends an ORF record to a contig.
func (b *EvidenceBuilder) Add(contig string, t *Taxon, weight float64, identity float64) {
	buf, ok := b.buffers[contig]
	if !ok {
		buf = &evidenceBuffer{
			taxa:       make([]*Taxon, 0, 8),
			weights:    make([]float64, 0, 8),
			identities: make([]float64, 0, 8),
		}
		b.buffers[contig] = buf
		b.order = append(b.order, contig)
	}
	buf.taxa = append(buf.taxa, t)
	buf.weights = append(buf.weights, weight)
	buf.identities = append(buf.identities, identity)
	b.n++
}

// NumContigs returns the number of contigs added.
func (b *EvidenceBuilder) NumContigs() int { return len(b.order) }

// NumRecords returns the number of ORF records added.
func (b *EvidenceBuilder) NumRecords() int { return b.n }

// Freeze returns Evidence of all contigs in the order of appearance and
// resets the builder.
func (b *EvidenceBuilder) Freeze() []*Evidence {
	evidences := make([]*Evidence, 0, len(b.order))
	for _, contig := range b.order {
		buf := b.buffers[contig]
		evidences = append(evidences, &Evidence{
			Contig:     contig,
			taxa:       buf.taxa,
			weights:    buf.weights,
			identities: buf.identities,
		})
	}

	b.order = make([]string, 0, 1024)
	b.buffers = make(map[string]*evidenceBuffer, 1024)
	b.n = 0

	return evidences
}
