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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenwei356/contigtax/contigtax/cmd/taxon"
)

// writeTestFile writes lines to a file in dir and returns the path.
func writeTestFile(t *testing.T, dir, name string, lines ...string) string {
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write %s: %s", file, err)
	}
	return file
}

// writeTestTaxdump writes a small taxonomy in the format of NCBI taxdump.
func writeTestTaxdump(t *testing.T, dir string) {
	nodes := []struct {
		taxid, parent, rank, name string
	}{
		{"1", "1", "no rank", "root"},
		{"10", "1", "realm", "Riboviria"},
		{"40", "10", "order", "Picornavirales"},
		{"50", "40", "family", "Picornaviridae"},
		{"60", "50", "genus", "Enterovirus"},
		{"70", "60", "species", "Enterovirus alphacoxsackie"},
		{"71", "60", "species", "Enterovirus betacoxsackie"},
		{"80", "40", "family", "Dicistroviridae"},
	}

	nodeLines := make([]string, 0, len(nodes))
	nameLines := make([]string, 0, len(nodes))
	for _, n := range nodes {
		nodeLines = append(nodeLines, n.taxid+"\t|\t"+n.parent+"\t|\t"+n.rank+"\t|\t\t|\t0\t|\t0\t|\t1\t|\t0\t|\t1\t|\t0\t|\t0\t|\t0\t|\t\t|")
		nameLines = append(nameLines, n.taxid+"\t|\t"+n.name+"\t|\t\t|\tscientific name\t|")
	}
	writeTestFile(t, dir, "nodes.dmp", nodeLines...)
	writeTestFile(t, dir, "names.dmp", nameLines...)
	writeTestFile(t, dir, "merged.dmp", "700\t|\t70\t|")
	writeTestFile(t, dir, "delnodes.dmp", "999\t|")
}

type testClassifyData struct {
	cfg *classifyConfig
	dir string
}

// contig_1: three ORFs, two of species 70 and one of species 71. The second
// alignment of 0_1 replaces the first one and lowers the average identity.
// contig_2: one ORF of merged TaxId 700 with a low identity.
// contig_3: one unassigned ORF, and one ORF without alignments.
// contig_4: one ORF with a high E-value, and one ORF of family 80.
// contig_5: absent in query headers.
func newTestClassifyData(t *testing.T) *testClassifyData {
	dir := t.TempDir()
	taxdumpDir := filepath.Join(dir, "taxdump")
	if err := os.Mkdir(taxdumpDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeTestTaxdump(t, taxdumpDir)

	cfg := &classifyConfig{
		taxdump: taxdumpDir,
		queryHeaders: writeTestFile(t, dir, "query_h",
			"contig_1", "contig_2", "contig_3", "contig_4"),
		orfTaxonomy: writeTestFile(t, dir, "orfs_taxonomy.tsv",
			"0_1\t70\tspecies\tEnterovirus alphacoxsackie",
			"0_2\t70\tspecies\tEnterovirus alphacoxsackie",
			"0_3\t71\tspecies\tEnterovirus betacoxsackie",
			"1_1\t700\tspecies\tEnterovirus alphacoxsackie",
			"2_1\t0\tno rank\tunclassified",
			"2_2\t50\tfamily\tPicornaviridae",
			"3_1\t70\tspecies\tEnterovirus alphacoxsackie",
			"3_2\t80\tfamily\tDicistroviridae",
		),
		orfAlignment: writeTestFile(t, dir, "orfs_taxonomy_aln.tsv",
			"0_1\tUniRef90_A\t0.900\t200\t1e-10",
			"0_1\tUniRef90_B\t0.400\t100\t1e-3",
			"0_2\tUniRef90_C\t0.900\t200\t1e-10",
			"0_3\tUniRef90_D\t0.900\t200\t1e-10",
			"1_1\tUniRef90_E\t0.500\t300\t0",
			"3_1\tUniRef90_F\t0.950\t20\t2",
			"3_2\tUniRef90_G\t0.700\t80\t1e-5",
			"9_9\tUniRef90_H\t0.990\t500\t1e-50",
		),
		fastaFiles: []string{writeTestFile(t, dir, "contigs.fasta",
			">contig_1", "ACGT",
			">contig_2", "ACGT",
			">contig_3", "ACGT",
			">contig_4", "ACGT",
			">contig_5", "ACGT",
		)},
		outFile:  filepath.Join(dir, "out.csv"),
		infoFile: filepath.Join(dir, "run.yml"),

		fraction:    taxon.DefaultFraction,
		minIdentity: taxon.DefaultMinSpeciesIdentity,
		zeroWeight:  taxon.DefaultZeroEValueWeight,
		chunkSize:   2,
	}
	return &testClassifyData{cfg: cfg, dir: dir}
}

func readTestCSV(t *testing.T, file string) [][]string {
	fh, err := os.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()

	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		t.Fatalf("failed to read %s: %s", file, err)
	}
	return records
}

func testRecordCell(record []string, rank taxon.Rank) (string, string) {
	return record[1+2*int(rank)], record[2+2*int(rank)]
}

func TestRunClassify(t *testing.T) {
	data := newTestClassifyData(t)
	opt := &Options{NumCPUs: 2}

	info, err := runClassify(opt, data.cfg)
	if err != nil {
		t.Fatalf("failed to classify: %s", err)
	}

	records := readTestCSV(t, data.cfg.outFile)
	if len(records) != 6 {
		t.Fatalf("expected 6 rows, returned %d", len(records))
	}
	if len(records[0]) != 31 || records[0][0] != "SequenceID" || records[0][1] != "Realm (-viria)" ||
		records[0][30] != "Species_score" {
		t.Errorf("unexpected header row: %v", records[0])
	}
	for i, contig := range []string{"contig_1", "contig_2", "contig_3", "contig_4", "contig_5"} {
		if records[i+1][0] != contig {
			t.Errorf("row %d: expected %s, returned %s", i+1, contig, records[i+1][0])
		}
	}

	cases := []struct {
		row          int
		rank         taxon.Rank
		name, score string
	}{
		{1, taxon.Realm, "Riboviria", "1.0000"},
		{1, taxon.Order, "Picornavirales", "1.0000"},
		{1, taxon.Genus, "Enterovirus", "1.0000"},
		{1, taxon.Species, na, na},
		{1, taxon.Kingdom, na, na},
		{2, taxon.Family, "Picornaviridae", "1.0000"},
		{2, taxon.Genus, "Enterovirus", "1.0000"},
		{2, taxon.Species, na, na},
		{4, taxon.Family, "Dicistroviridae", "1.0000"},
		{4, taxon.Genus, na, na},
	}
	for _, c := range cases {
		name, score := testRecordCell(records[c.row], c.rank)
		if name != c.name || score != c.score {
			t.Errorf("%s, %s: expected (%s, %s), returned (%s, %s)",
				records[c.row][0], c.rank, c.name, c.score, name, score)
		}
	}

	for _, row := range []int{3, 5} {
		for _, cell := range records[row][1:] {
			if cell != na {
				t.Errorf("%s: all cells should be NA: %v", records[row][0], records[row])
				break
			}
		}
	}

	s := info.Stats
	if s.Headers != 4 || s.OrfRecords != 8 || s.OrfsUnassigned != 1 || s.OrfsWithTaxa != 7 {
		t.Errorf("unexpected numbers of ORF taxa: %+v", s)
	}
	if s.OrfsNoAlignment != 1 || s.OrfsLowWeight != 1 || s.OrfsUsed != 5 || s.AlignmentIgnored != 1 {
		t.Errorf("unexpected numbers of ORF alignments: %+v", s)
	}
	if s.ContigsWithOrfs != 3 || s.Contigs != 5 || s.Classified != 3 || s.Unclassified != 2 {
		t.Errorf("unexpected numbers of contigs: %+v", s)
	}
	if len(s.Ranks) != taxon.NumRanks || s.Ranks[taxon.Family].Contigs != 3 ||
		s.Ranks[taxon.Genus].Contigs != 2 || s.Ranks[taxon.Species].Contigs != 0 {
		t.Errorf("unexpected numbers of ranks: %+v", s.Ranks)
	}

	if err = info.WriteTo(data.cfg.infoFile); err != nil {
		t.Fatal(err)
	}
	info2, err := ClassifyInfoFromFile(data.cfg.infoFile)
	if err != nil {
		t.Fatal(err)
	}
	if info2.Stats.Classified != 3 || info2.MajorityFraction != taxon.DefaultFraction ||
		info2.Stats.Ranks[taxon.Genus].Rank != "genus" || info2.Version != VERSION {
		t.Errorf("unexpected classify info from file: %+v", info2)
	}

	// identical results with a single thread
	data.cfg.outFile = filepath.Join(data.dir, "out1.csv")
	if _, err = runClassify(&Options{NumCPUs: 1}, data.cfg); err != nil {
		t.Fatal(err)
	}
	records1 := readTestCSV(t, data.cfg.outFile)
	for i := range records {
		if strings.Join(records[i], ",") != strings.Join(records1[i], ",") {
			t.Errorf("row %d differs between runs: %v, %v", i, records[i], records1[i])
		}
	}
}

func TestRunClassifyLowerSpeciesIdentity(t *testing.T) {
	data := newTestClassifyData(t)
	data.cfg.minIdentity = 0.4

	if _, err := runClassify(&Options{NumCPUs: 2}, data.cfg); err != nil {
		t.Fatal(err)
	}
	records := readTestCSV(t, data.cfg.outFile)
	name, score := testRecordCell(records[2], taxon.Species)
	if name != "Enterovirus alphacoxsackie" || score != "1.0000" {
		t.Errorf("species of contig_2 should be kept, returned (%s, %s)", name, score)
	}

	// 0_1: 6.9078, 0_2: 23.0259, 0_3 (another species): 23.0259
	name, score = testRecordCell(records[1], taxon.Species)
	if name != "Enterovirus alphacoxsackie" || score != "0.5652" {
		t.Errorf("species of contig_1 should be kept, returned (%s, %s)", name, score)
	}
}

func TestRunClassifyErrors(t *testing.T) {
	// ORF index out of range
	data := newTestClassifyData(t)
	data.cfg.queryHeaders = writeTestFile(t, data.dir, "query_h_short", "contig_1")
	if _, err := runClassify(&Options{NumCPUs: 1}, data.cfg); err == nil {
		t.Errorf("error expected for ORFs of sequences absent in query headers")
	}

	// unknown TaxId
	data = newTestClassifyData(t)
	data.cfg.orfTaxonomy = writeTestFile(t, data.dir, "orfs_taxonomy_unknown.tsv",
		"0_1\t12345\tspecies\tunknown")
	if _, err := runClassify(&Options{NumCPUs: 1}, data.cfg); err == nil {
		t.Errorf("error expected for unknown TaxIds")
	}

	// deleted TaxId
	data.cfg.orfTaxonomy = writeTestFile(t, data.dir, "orfs_taxonomy_deleted.tsv",
		"0_1\t999\tspecies\tdeleted")
	if _, err := runClassify(&Options{NumCPUs: 1}, data.cfg); err == nil {
		t.Errorf("error expected for deleted TaxIds")
	}

	// identity out of range
	data = newTestClassifyData(t)
	data.cfg.orfAlignment = writeTestFile(t, data.dir, "orfs_taxonomy_aln_bad.tsv",
		"0_1\tUniRef90_A\t90.0\t200\t1e-10")
	if _, err := runClassify(&Options{NumCPUs: 1}, data.cfg); err == nil {
		t.Errorf("error expected for identities > 1")
	}

	// missing taxdump
	data = newTestClassifyData(t)
	data.cfg.taxdump = filepath.Join(data.dir, "not-existed")
	if _, err := runClassify(&Options{NumCPUs: 1}, data.cfg); err == nil {
		t.Errorf("error expected for missing taxdump files")
	}
}

func TestSummarizeClassification(t *testing.T) {
	data := newTestClassifyData(t)
	if _, err := runClassify(&Options{NumCPUs: 2}, data.cfg); err != nil {
		t.Fatal(err)
	}

	summary, err := summarizeClassification([]string{data.cfg.outFile, data.cfg.outFile})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Contigs != 10 || summary.Classified != 6 {
		t.Errorf("unexpected numbers: %d contigs, %d classified", summary.Contigs, summary.Classified)
	}
	if n := len(summary.Ranks[taxon.Family].Scores); n != 6 {
		t.Errorf("family: expected 6 scores, returned %d", n)
	}
	if n := len(summary.Ranks[taxon.Subfamily].Scores); n != 0 {
		t.Errorf("subfamily: expected 0 scores, returned %d", n)
	}

	top := summary.topTaxa(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 taxa, returned %d", len(top))
	}
	if top[0].Name != "Enterovirus" || top[0].Rank != taxon.Genus || top[0].Count != 4 ||
		top[1].Name != "Dicistroviridae" || top[1].Rank != taxon.Family || top[1].Count != 2 {
		t.Errorf("unexpected top taxa: %+v, %+v", top[0], top[1])
	}

	var buf strings.Builder
	if err = summary.write(&buf, true, 3); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "genus\t4\t40.00\t1.0000\t0.0000\t1.0000\n") ||
		!strings.Contains(buf.String(), "species\t0\t0.00\t0.0000\t0.0000\t0.0000\n") {
		t.Errorf("unexpected tabular output:\n%s", buf.String())
	}

	bad := writeTestFile(t, data.dir, "bad.csv", "SequenceID,Realm (-viria)", "contig_1,Riboviria")
	if _, err = summarizeClassification([]string{bad}); err == nil {
		t.Errorf("error expected for files with wrong number of columns")
	}
}
