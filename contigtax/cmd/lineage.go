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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shenwei356/contigtax/contigtax/cmd/taxon"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Query lineages of TaxIds",
	Long: `Query lineages of TaxIds

TaxIds are read from positional arguments, or from stdin (one per line)
if no arguments given. Merged TaxIds are replaced with new ones.

Output columns (tab-delimited):
  query, taxid, rank, name, lineage, lineage TaxIds

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		taxdumpDir := getFlagString(cmd, "taxdump")
		if taxdumpDir == "" {
			checkError(fmt.Errorf("flag -X/--taxdump needed"))
		}
		outFile := getFlagString(cmd, "out-file")
		rankedOnly := getFlagBool(cmd, "ranked-only")
		delimiter := getFlagString(cmd, "delimiter")
		noHeader := getFlagBool(cmd, "no-header-row")

		store := loadTaxonomy(opt, taxdumpDir)

		var queries []string
		if len(args) > 0 {
			queries = args
		} else {
			if !detectStdin() {
				checkError(fmt.Errorf("no TaxIds given"))
			}
			infh, err := xopen.Ropen("-")
			checkError(err)
			queries, err = readLines(infh)
			infh.Close()
			checkError(err)
		}

		outfh, err := xopen.Wopen(outFile)
		checkError(err)
		defer outfh.Close()

		if !noHeader {
			fmt.Fprintln(outfh, "query\ttaxid\trank\tname\tlineage\tlineage_taxids")
		}
		lf := &lineageFormatter{store: store, rankedOnly: rankedOnly, delimiter: delimiter}
		var unknown int
		for _, query := range queries {
			if !lf.write(outfh, query) {
				unknown++
			}
		}
		if unknown > 0 {
			log.Warningf("%d TaxIds not found in the taxonomy", unknown)
		}
	},
}

func readLines(r io.Reader) ([]string, error) {
	lines := make([]string, 0, 64)
	scanner := bufio.NewScanner(r)
	var line string
	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

type lineageFormatter struct {
	store      *taxon.Store
	rankedOnly bool
	delimiter  string

	names  []string
	taxids []string
}

// write outputs a row for a query and tells whether the TaxId is found.
// Unknown TaxIds give empty fields.
func (lf *lineageFormatter) write(w io.Writer, query string) bool {
	id, err := strconv.ParseUint(query, 10, 32)
	if err != nil {
		log.Warningf("invalid TaxId: %s", query)
		fmt.Fprintf(w, "%s\t\t\t\t\t\n", query)
		return false
	}

	t, err := lf.store.Lookup(uint32(id))
	if err != nil {
		log.Warning(err)
		fmt.Fprintf(w, "%s\t\t\t\t\t\n", query)
		return false
	}

	lf.names = lf.names[:0]
	lf.taxids = lf.taxids[:0]
	for _, rt := range t.Lineage {
		if rt.TaxId == lf.store.Root() {
			continue
		}
		if lf.rankedOnly && !rt.Rank.Canonical() {
			continue
		}
		lf.names = append(lf.names, lf.store.Name(rt.TaxId))
		lf.taxids = append(lf.taxids, strconv.FormatUint(uint64(rt.TaxId), 10))
	}

	fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", query, t.TaxId, t.RankName, t.Name,
		strings.Join(lf.names, lf.delimiter), strings.Join(lf.taxids, lf.delimiter))
	return true
}

func init() {
	RootCmd.AddCommand(lineageCmd)

	lineageCmd.Flags().StringP("taxdump", "X", "",
		formatFlagUsage(`Directory of taxonomy dump files: names.dmp, nodes.dmp, optional with merged.dmp and delnodes.dmp.`))

	lineageCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file ("-" for stdout).`))

	lineageCmd.Flags().BoolP("ranked-only", "r", false,
		formatFlagUsage(`Only output nodes of ICTV ranks in lineages.`))

	lineageCmd.Flags().StringP("delimiter", "d", ";",
		formatFlagUsage(`Delimiter of lineage nodes.`))

	lineageCmd.Flags().BoolP("no-header-row", "H", false,
		formatFlagUsage(`Do not output header row.`))

	lineageCmd.SetUsageTemplate(usageTemplate("-X <taxdump dir> [taxid ...]"))
}
