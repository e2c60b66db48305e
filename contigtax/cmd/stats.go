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

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/contigtax/contigtax/cmd/taxon"
	"github.com/shenwei356/util/stats"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
	prettytable "github.com/tatsushid/go-prettytable"
	"github.com/twotwotwo/sorts"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize classification results",
	Long: `Summarize classification results

For each rank, it reports the number of assigned contigs, and the mean,
standard deviation and median of scores. The most frequent taxa at the
finest assigned ranks can also be listed with -n/--top.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagString(cmd, "out-file")
		tabular := getFlagBool(cmd, "tabular")
		top := getFlagNonNegativeInt(cmd, "top")

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if opt.Verbose || opt.Log2File {
			if len(files) == 1 && isStdin(files[0]) {
				log.Info("no files given, reading from stdin")
			} else {
				log.Infof("%d input file(s) given", len(files))
			}
		}

		summary, err := summarizeClassification(files)
		checkError(err)

		outfh, err := xopen.Wopen(outFile)
		checkError(err)
		defer outfh.Close()

		checkError(summary.write(outfh, tabular, top))
	},
}

// rankSummary collects scores of contigs assigned at a rank.
type rankSummary struct {
	Rank   taxon.Rank
	Scores []float64

	quantiler *stats.Quantiler
}

type taxonCount struct {
	Rank  taxon.Rank
	Name  string
	Count int
}

type taxonCounts []*taxonCount

func (s taxonCounts) Len() int { return len(s) }
func (s taxonCounts) Less(i, j int) bool {
	if s[i].Count == s[j].Count {
		return s[i].Name < s[j].Name
	}
	return s[i].Count > s[j].Count
}
func (s taxonCounts) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

type classificationSummary struct {
	Contigs    int
	Classified int
	Ranks      [taxon.NumRanks]*rankSummary

	// taxa at the finest assigned ranks
	finest map[string]*taxonCount
}

func newClassificationSummary() *classificationSummary {
	s := &classificationSummary{finest: make(map[string]*taxonCount, 1024)}
	for _, rank := range taxon.Ranks() {
		s.Ranks[rank] = &rankSummary{
			Rank:      rank,
			Scores:    make([]float64, 0, 1024),
			quantiler: stats.NewQuantiler(),
		}
	}
	return s
}

// summarizeClassification reads classification files in CSV format.
func summarizeClassification(files []string) (*classificationSummary, error) {
	summary := newClassificationSummary()
	for _, file := range files {
		if err := summary.addFile(file); err != nil {
			return nil, errors.Wrap(err, file)
		}
	}
	return summary, nil
}

func (s *classificationSummary) addFile(file string) error {
	infh, err := inStream(file)
	if err != nil {
		return err
	}
	defer infh.Close()

	reader := csv.NewReader(infh)
	reader.FieldsPerRecord = 1 + 2*taxon.NumRanks
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if header[0] != "SequenceID" {
		return fmt.Errorf("invalid header row, the first column should be SequenceID")
	}

	var record []string
	var name, key string
	var score float64
	var finest int
	var rank taxon.Rank
	var rs *rankSummary
	var tc *taxonCount
	var ok bool
	for {
		record, err = reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		s.Contigs++

		finest = -1
		for i, r := range taxon.Ranks() {
			name = record[1+2*i]
			if name == na {
				continue
			}
			score, err = strconv.ParseFloat(record[2+2*i], 64)
			if err != nil {
				return fmt.Errorf("%s: invalid %s score: %s", record[0], r, record[2+2*i])
			}
			rs = s.Ranks[r]
			rs.Scores = append(rs.Scores, score)
			rs.quantiler.Add(score)
			finest = i
		}
		if finest < 0 {
			continue
		}
		s.Classified++

		rank = taxon.Rank(finest)
		name = record[1+2*finest]
		key = rank.String() + "\t" + name
		if tc, ok = s.finest[key]; !ok {
			tc = &taxonCount{Rank: rank, Name: name}
			s.finest[key] = tc
		}
		tc.Count++
	}
	return nil
}

// topTaxa returns the n most frequent taxa at the finest assigned ranks.
// n <= 0 returns all.
func (s *classificationSummary) topTaxa(n int) []*taxonCount {
	list := make([]*taxonCount, 0, len(s.finest))
	for _, tc := range s.finest {
		list = append(list, tc)
	}
	sorts.Quicksort(taxonCounts(list))
	if n > 0 && n < len(list) {
		list = list[:n]
	}
	return list
}

func (s *classificationSummary) write(w io.Writer, tabular bool, top int) error {
	if tabular {
		fmt.Fprintf(w, "rank\tcontigs\tpercentage\tmean_score\tstdev_score\tmedian_score\n")
	} else {
		fmt.Fprintf(w, "contigs: %s, classified: %s\n\n",
			humanize.Comma(int64(s.Contigs)), humanize.Comma(int64(s.Classified)))
	}

	var tbl *prettytable.Table
	var err error
	if !tabular {
		tbl, err = prettytable.NewTable([]prettytable.Column{
			{Header: "rank"},
			{Header: "contigs", AlignRight: true},
			{Header: "percentage", AlignRight: true},
			{Header: "mean", AlignRight: true},
			{Header: "stdev", AlignRight: true},
			{Header: "median", AlignRight: true},
		}...)
		if err != nil {
			return err
		}
		tbl.Separator = "  "
	}

	var mean, stdev, median, pct float64
	for _, rs := range s.Ranks {
		n := len(rs.Scores)
		mean, stdev, median, pct = 0, 0, 0, 0
		if n > 0 {
			mean, stdev = MeanStdev(rs.Scores)
			median = rs.quantiler.Percentile(50)
		}
		if s.Contigs > 0 {
			pct = float64(n) / float64(s.Contigs) * 100
		}

		if tabular {
			fmt.Fprintf(w, "%s\t%d\t%.2f\t%.4f\t%.4f\t%.4f\n", rs.Rank, n, pct, mean, stdev, median)
			continue
		}
		tbl.AddRow(
			rs.Rank.String(),
			humanize.Comma(int64(n)),
			fmt.Sprintf("%.2f%%", pct),
			fmt.Sprintf("%.4f", mean),
			fmt.Sprintf("%.4f", stdev),
			fmt.Sprintf("%.4f", median),
		)
	}
	if !tabular {
		w.Write(tbl.Bytes())
	}

	if top <= 0 {
		return nil
	}

	taxa := s.topTaxa(top)
	if tabular {
		fmt.Fprintf(w, "\nrank\tname\tcontigs\n")
		for _, tc := range taxa {
			fmt.Fprintf(w, "%s\t%s\t%d\n", tc.Rank, tc.Name, tc.Count)
		}
		return nil
	}

	tbl, err = prettytable.NewTable([]prettytable.Column{
		{Header: "rank"},
		{Header: "name"},
		{Header: "contigs", AlignRight: true},
	}...)
	if err != nil {
		return err
	}
	tbl.Separator = "  "
	for _, tc := range taxa {
		tbl.AddRow(tc.Rank.String(), tc.Name, humanize.Comma(int64(tc.Count)))
	}
	fmt.Fprintln(w)
	_, err = w.Write(tbl.Bytes())
	return err
}

func init() {
	RootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file ("-" for stdout).`))

	statsCmd.Flags().BoolP("tabular", "T", false,
		formatFlagUsage(`Output in machine-friendly tabular format.`))

	statsCmd.Flags().IntP("top", "n", 0,
		formatFlagUsage(`List the N most frequent taxa at the finest assigned ranks. 0 for none.`))

	statsCmd.SetUsageTemplate(usageTemplate("[classification.csv ...]"))
}
