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
package cmd

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/shenwei356/contigtax/contigtax/cmd/taxon"
	"gopkg.in/yaml.v2"
)

// ClassifyInfo summarizes a run of classify.
type ClassifyInfo struct {
	Version string `yaml:"version"`

	Taxdump      string `yaml:"taxdump"`
	QueryHeaders string `yaml:"query-headers"`
	OrfTaxonomy  string `yaml:"orf-taxonomy"`
	OrfAlignment string `yaml:"orf-alignment"`
	Contigs      string `yaml:"contigs"`
	Output       string `yaml:"output"`

	MajorityFraction   float64 `yaml:"majority-fraction"`
	MinSpeciesIdentity float64 `yaml:"min-species-identity"`
	ZeroEValueWeight   float64 `yaml:"zero-evalue-weight"`

	Stats ClassifyStats `yaml:"stats"`
}

// ClassifyStats contains numbers of records and contigs.
type ClassifyStats struct {
	Headers int `yaml:"headers"`

	OrfRecords       int `yaml:"orf-records"`
	OrfsUnassigned   int `yaml:"orfs-unassigned"`
	OrfsWithTaxa     int `yaml:"orfs-with-taxa"`
	OrfsNoAlignment  int `yaml:"orfs-without-alignment"`
	OrfsLowWeight    int `yaml:"orfs-low-weight"`
	OrfsUsed         int `yaml:"orfs-used"`
	AlignmentIgnored int `yaml:"alignments-ignored"`

	ContigsWithOrfs int `yaml:"contigs-with-orfs"`
	Contigs         int `yaml:"contigs"`
	Classified      int `yaml:"classified"`
	Unclassified    int `yaml:"unclassified"`

	Ranks []RankCount `yaml:"ranks"`
}

// RankCount is the number of contigs assigned at a rank.
type RankCount struct {
	Rank    string `yaml:"rank"`
	Contigs int    `yaml:"contigs"`
}

func rankCounts(counts *ClassificationCounts) []RankCount {
	ranks := make([]RankCount, 0, taxon.NumRanks)
	for _, rank := range taxon.Ranks() {
		ranks = append(ranks, RankCount{Rank: rank.String(), Contigs: counts.Ranks[rank]})
	}
	return ranks
}

// ClassifyInfoFromFile reads a summary file.
func ClassifyInfoFromFile(file string) (ClassifyInfo, error) {
	info := ClassifyInfo{}

	r, err := os.Open(file)
	if err != nil {
		return info, fmt.Errorf("fail to read classify info file: %s", file)
	}
	defer r.Close()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return info, fmt.Errorf("fail to read classify info file: %s", file)
	}

	err = yaml.Unmarshal(data, &info)
	if err != nil {
		return info, fmt.Errorf("fail to unmarshal classify info: %s", err)
	}
	return info, nil
}

// WriteTo writes the summary to a file.
func (i ClassifyInfo) WriteTo(file string) error {
	data, err := yaml.Marshal(i)
	if err != nil {
		return fmt.Errorf("fail to marshal classify info")
	}

	w, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("fail to write classify info file: %s", file)
	}
	_, err = w.Write(data)
	if err != nil {
		w.Close()
		return fmt.Errorf("fail to write classify info file: %s", file)
	}
	return w.Close()
}
