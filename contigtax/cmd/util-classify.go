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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/breader"
	"github.com/shenwei356/contigtax/contigtax/cmd/taxon"
)

// readQueryHeaders reads sequence headers, one per line. The line number
// (0-based) is the index of the sequence used in ORF IDs.
func readQueryHeaders(file string, threads int, chunkSize int) ([]string, error) {
	fn := func(line string) (interface{}, bool, error) {
		if line == "" { // end of file
			return nil, false, nil
		}
		return strings.Trim(line, "\x00\r\n"), true, nil
	}

	reader, err := breader.NewBufferedReader(file, threads, chunkSize, fn)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}

	headers := make([]string, 0, 1024)
	var data interface{}
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			reader.Cancel()
			return nil, errors.Wrap(chunk.Err, file)
		}
		for _, data = range chunk.Data {
			headers = append(headers, data.(string))
		}
	}
	return headers, nil
}

// OrfTaxa holds taxa of ORFs in order of appearance.
type OrfTaxa struct {
	Orfs []string
	Taxa map[string]*taxon.Taxon

	Records    int // data lines
	Unassigned int // lines with a TaxId of 0
}

type orfTaxIdRecord struct {
	orf   string
	taxid uint32
}

// readOrfTaxa reads the ORF taxonomy table with four columns:
// ORF ID, TaxId, rank, taxon name. TaxIds of 0 mean no assignment.
// The last record of a duplicated ORF wins.
func readOrfTaxa(file string, store *taxon.Store, threads int, chunkSize int) (*OrfTaxa, error) {
	numFields := 4
	pool := &sync.Pool{New: func() interface{} {
		tmp := make([]string, numFields)
		return &tmp
	}}

	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}

		items := pool.Get().(*[]string)
		defer pool.Put(items)

		stringSplitNByByte(line, '\t', numFields, items)
		if len(*items) < 2 {
			return nil, false, fmt.Errorf("invalid ORF taxonomy format: %s", line)
		}

		taxid, err := strconv.ParseUint((*items)[1], 10, 32)
		if err != nil {
			return nil, false, fmt.Errorf("invalid TaxId: %s", (*items)[1])
		}
		return orfTaxIdRecord{orf: (*items)[0], taxid: uint32(taxid)}, true, nil
	}

	reader, err := breader.NewBufferedReader(file, threads, chunkSize, fn)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}

	hits := &OrfTaxa{
		Orfs: make([]string, 0, 1024),
		Taxa: make(map[string]*taxon.Taxon, 1024),
	}

	var data interface{}
	var rec orfTaxIdRecord
	var t *taxon.Taxon
	var ok bool
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			reader.Cancel()
			return nil, errors.Wrap(chunk.Err, file)
		}

		for _, data = range chunk.Data {
			rec = data.(orfTaxIdRecord)
			hits.Records++

			if rec.taxid == 0 {
				hits.Unassigned++
				continue
			}

			t, err = store.Lookup(rec.taxid)
			if err != nil {
				reader.Cancel()
				return nil, errors.Wrapf(err, "%s: ORF %s", file, rec.orf)
			}

			if _, ok = hits.Taxa[rec.orf]; !ok {
				hits.Orfs = append(hits.Orfs, rec.orf)
			}
			hits.Taxa[rec.orf] = t
		}
	}

	return hits, nil
}

// OrfAlignment is the best alignment of an ORF.
type OrfAlignment struct {
	Identity float64
	EValue   float64
	Weight   float64
}

type orfAlignmentRecord struct {
	orf      string
	identity float64
	evalue   float64
}

// readOrfAlignments reads the ORF alignment table with five columns:
// ORF ID, target ID, fraction of identical residues, bit score, E-value.
// Only ORFs in hits are kept, and the last record of an ORF wins.
func readOrfAlignments(file string, hits *OrfTaxa, zeroWeight float64, threads int, chunkSize int) (map[string]*OrfAlignment, int, error) {
	numFields := 5
	pool := &sync.Pool{New: func() interface{} {
		tmp := make([]string, numFields)
		return &tmp
	}}

	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}

		items := pool.Get().(*[]string)
		defer pool.Put(items)

		stringSplitNByByte(line, '\t', numFields, items)
		if len(*items) < numFields {
			return nil, false, fmt.Errorf("invalid ORF alignment format: %s", line)
		}

		identity, err := strconv.ParseFloat((*items)[2], 64)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse identity: %s", (*items)[2])
		}
		if identity < 0 || identity > 1 {
			return nil, false, fmt.Errorf("identity should be in range of [0, 1]: %s", (*items)[2])
		}

		evalue, err := strconv.ParseFloat(strings.TrimSpace((*items)[4]), 64)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse E-value: %s", (*items)[4])
		}

		return orfAlignmentRecord{orf: (*items)[0], identity: identity, evalue: evalue}, true, nil
	}

	reader, err := breader.NewBufferedReader(file, threads, chunkSize, fn)
	if err != nil {
		return nil, 0, errors.Wrap(err, file)
	}

	alignments := make(map[string]*OrfAlignment, len(hits.Taxa))
	var ignored int

	var data interface{}
	var rec orfAlignmentRecord
	var ok bool
	var weight float64
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			reader.Cancel()
			return nil, 0, errors.Wrap(chunk.Err, file)
		}

		for _, data = range chunk.Data {
			rec = data.(orfAlignmentRecord)

			if _, ok = hits.Taxa[rec.orf]; !ok {
				ignored++
				continue
			}
			weight, err = taxon.EValueWeight(rec.evalue, zeroWeight)
			if err != nil {
				reader.Cancel()
				return nil, 0, errors.Wrapf(err, "%s: ORF %s", file, rec.orf)
			}

			alignments[rec.orf] = &OrfAlignment{
				Identity: rec.identity,
				EValue:   rec.evalue,
				Weight:   weight,
			}
		}
	}

	return alignments, ignored, nil
}

// contigIndex returns the sequence index in an ORF ID: <index>_<number>.
func contigIndex(orf string) (int, error) {
	prefix := orf
	if i := strings.IndexByte(orf, '_'); i >= 0 {
		prefix = orf[:i]
	}
	idx, err := strconv.Atoi(prefix)
	if err != nil {
		return -1, fmt.Errorf("invalid ORF ID: %s", orf)
	}
	return idx, nil
}

// EvidenceStats counts ORFs dropped when building evidence.
type EvidenceStats struct {
	Orfs        int // ORFs with taxa
	NoAlignment int // ORFs without alignments
	LowWeight   int // ORFs with E-values >= 1
	Used        int
}

// buildEvidences groups ORFs by contigs.
func buildEvidences(headers []string, hits *OrfTaxa, alignments map[string]*OrfAlignment) ([]*taxon.Evidence, *EvidenceStats, error) {
	builder := taxon.NewEvidenceBuilder()
	stats := &EvidenceStats{Orfs: len(hits.Orfs)}

	var aln *OrfAlignment
	var ok bool
	var idx int
	var err error
	for _, orf := range hits.Orfs {
		if aln, ok = alignments[orf]; !ok {
			stats.NoAlignment++
			continue
		}
		if aln.Weight <= 0 {
			stats.LowWeight++
			continue
		}

		idx, err = contigIndex(orf)
		if err != nil {
			return nil, nil, err
		}
		if idx < 0 || idx >= len(headers) {
			return nil, nil, fmt.Errorf("sequence index of ORF %s out of range: [0, %d)", orf, len(headers))
		}

		builder.Add(headers[idx], hits.Taxa[orf], aln.Weight, aln.Identity)
		stats.Used++
	}

	return builder.Freeze(), stats, nil
}

// ------------------------------------------------------------------------

const na = "NA"

var rankColumns = [taxon.NumRanks]string{
	"Realm (-viria)",
	"Subrealm (-vira)",
	"Kingdom (-virae)",
	"Subkingdom (-virites)",
	"Phylum (-viricota)",
	"Subphylum (-viricotina)",
	"Class (-viricetes)",
	"Subclass (-viricetidae)",
	"Order (-virales)",
	"Suborder (-virineae)",
	"Family (-viridae)",
	"Subfamily (-virinae)",
	"Genus (-virus)",
	"Subgenus (-virus)",
	"Species (binomial)",
}

var scoreColumns = [taxon.NumRanks]string{
	"Realm_score",
	"Subrealm_score",
	"Kingdom_score",
	"Subkingdom_score",
	"Phylum_score",
	"Subphylum_score",
	"Class_score",
	"Subclass_score",
	"Order_score",
	"Suborder_score",
	"Family_score",
	"Subfamily_score",
	"Genus_score",
	"Subgenus_score",
	"Species_score",
}

func classificationHeader() []string {
	header := make([]string, 0, 1+2*taxon.NumRanks)
	header = append(header, "SequenceID")
	for i := range rankColumns {
		header = append(header, rankColumns[i], scoreColumns[i])
	}
	return header
}

// classificationRow formats a row. A nil assignment gives NA in all cells.
func classificationRow(contig string, a *taxon.Assignment, row []string) []string {
	row = append(row[:0], contig)

	var rs taxon.RankSupport
	var ok bool
	for _, rank := range taxon.Ranks() {
		if a == nil {
			row = append(row, na, na)
			continue
		}
		if rs, ok = a.Get(rank); !ok {
			row = append(row, na, na)
			continue
		}
		row = append(row, rs.Name, strconv.FormatFloat(rs.Support, 'f', 4, 64))
	}
	return row
}

// ClassificationCounts summarizes written rows.
type ClassificationCounts struct {
	Contigs      int
	Classified   int
	Unclassified int
	Ranks        [taxon.NumRanks]int
}

// writeClassification writes one row for each sequence in the FASTA files,
// in the same order.
func writeClassification(w io.Writer, fastaFiles []string, assignments map[string]*taxon.Assignment) (*ClassificationCounts, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(classificationHeader()); err != nil {
		return nil, err
	}

	counts := &ClassificationCounts{}
	row := make([]string, 0, 1+2*taxon.NumRanks)

	var fastxReader *fastx.Reader
	var record *fastx.Record
	var contig string
	var a *taxon.Assignment
	var rs taxon.RankSupport
	var err error
	for _, file := range fastaFiles {
		fastxReader, err = fastx.NewDefaultReader(file)
		if err != nil {
			return nil, errors.Wrap(err, file)
		}

		for {
			record, err = fastxReader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				return nil, errors.Wrap(err, file)
			}

			contig = string(record.Name)
			a = assignments[contig]

			counts.Contigs++
			if a != nil && a.Classified() {
				counts.Classified++
				for _, rs = range a.Supports {
					counts.Ranks[rs.Rank]++
				}
			} else {
				counts.Unclassified++
			}

			row = classificationRow(contig, a, row)
			if err = writer.Write(row); err != nil {
				return nil, err
			}
		}
	}

	writer.Flush()
	return counts, writer.Error()
}
