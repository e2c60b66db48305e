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

import "strings"

// Rank is one of the 15 ICTV ranks, ordered from the coarsest to the finest.
// All other rank strings map to NoRank.
type Rank uint8

const (
	Realm Rank = iota
	Subrealm
	Kingdom
	Subkingdom
	Phylum
	Subphylum
	Class
	Subclass
	Order
	Suborder
	Family
	Subfamily
	Genus
	Subgenus
	Species

	NoRank Rank = 255
)

// NumRanks is the number of canonical ranks.
const NumRanks = int(Species) + 1

var rankNames = [NumRanks]string{
	"realm",
	"subrealm",
	"kingdom",
	"subkingdom",
	"phylum",
	"subphylum",
	"class",
	"subclass",
	"order",
	"suborder",
	"family",
	"subfamily",
	"genus",
	"subgenus",
	"species",
}

var rankIndex map[string]Rank

func init() {
	rankIndex = make(map[string]Rank, NumRanks)
	for i, name := range rankNames {
		rankIndex[name] = Rank(i)
	}
}

// Ranks returns the canonical ranks from realm to species.
func Ranks() []Rank {
	ranks := make([]Rank, NumRanks)
	for i := range ranks {
		ranks[i] = Rank(i)
	}
	return ranks
}

// ParseRank maps a rank string (case-insensitive) to a Rank.
func ParseRank(s string) Rank {
	if r, ok := rankIndex[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return NoRank
}

// Canonical tells whether r is one of the 15 ranks.
func (r Rank) Canonical() bool {
	return int(r) < NumRanks
}

func (r Rank) String() string {
	if r.Canonical() {
		return rankNames[r]
	}
	return "no rank"
}
