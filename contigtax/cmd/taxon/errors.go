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
)

// ErrEmptyVote means no taxa are given for a majority vote.
var ErrEmptyVote = errors.New("contigtax: no taxa to vote")

// ErrLengthMismatch means taxa, weights or identities have different sizes.
var ErrLengthMismatch = errors.New("contigtax: sizes of taxa, weights and identities unequal")

// ErrInvalidWeight means a weight is not a positive finite number.
var ErrInvalidWeight = errors.New("contigtax: weight should be positive")

// ErrEmptyIdentities means no identities are given for the rank adjustment.
var ErrEmptyIdentities = errors.New("contigtax: no alignment identities")

// ErrInvalidFraction means the majority fraction is out of range (0, 1).
var ErrInvalidFraction = errors.New("contigtax: majority fraction should be in range of (0, 1)")

// ErrNoRoot means no node in the taxonomy is its own parent.
var ErrNoRoot = errors.New("contigtax: root node not found in taxonomy")

// UnknownTaxonError is returned when a TaxId is absent from the Store.
type UnknownTaxonError struct {
	TaxId   uint32
	Deleted bool
}

func (e *UnknownTaxonError) Error() string {
	if e.Deleted {
		return fmt.Sprintf("contigtax: deleted TaxId: %d", e.TaxId)
	}
	return fmt.Sprintf("contigtax: unknown TaxId: %d", e.TaxId)
}
