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
	"os"
	"path/filepath"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/contigtax/contigtax/cmd/taxon"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign contigs to taxa from taxonomic hits of their ORFs",
	Long: `Assign contigs to taxa from taxonomic hits of their ORFs

Input files:
  1. Sequence headers of the query (-H/--query-headers), one per line.
     The line number (0-based) is the sequence index in ORF IDs.
  2. ORF taxonomy table (-t/--orf-taxonomy), tab-delimited with 4 columns:
       ORF ID (<sequence index>_<ORF number>), TaxId, rank, taxon name.
     ORFs with a TaxId of 0 are not assigned and ignored.
  3. ORF alignment table (-a/--orf-alignment), tab-delimited with 5 columns:
       ORF ID, target ID, fraction of identical residues, bit score, E-value.
     For an ORF with multiple records, the last one is used.
  4. Contig sequences in FASTA format (positional arguments), only used
     for the sequence IDs and their order in the output.
  5. Taxonomy dump files (-X/--taxdump): nodes.dmp, names.dmp, optional
     with merged.dmp and delnodes.dmp.

Methods:
  1. The weight of an ORF is -ln(E-value), or -z/--zero-evalue-weight
     for an E-value of 0. ORFs with E-values >= 1 are ignored.
  2. A contig with a single ORF is assigned to the taxon of the ORF.
     Otherwise, it's assigned to the most specific taxon supported by
     more than -f/--majority-fraction of the total weight of its ORFs.
  3. Species-level assignments with an average identity lower than
     -I/--min-species-identity are moved to the parent node.
  4. The score of each rank is the proportion of the weight of ORFs
     agreeing with the assignment at that rank.

Output format:
  CSV with 31 columns: SequenceID, and a pair of taxon name and score
  for 15 ranks from realm to species. Missing values are "NA".

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		timeStart := time.Now()
		defer func() {
			if opt.Verbose || opt.Log2File {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		cfg := &classifyConfig{
			taxdump:      getFlagString(cmd, "taxdump"),
			queryHeaders: getFlagString(cmd, "query-headers"),
			orfTaxonomy:  getFlagString(cmd, "orf-taxonomy"),
			orfAlignment: getFlagString(cmd, "orf-alignment"),
			outFile:      getFlagString(cmd, "out-file"),
			infoFile:     getFlagString(cmd, "info-file"),

			fraction:    getFlagPositiveFloat64(cmd, "majority-fraction"),
			minIdentity: getFlagNonNegativeFloat64(cmd, "min-species-identity"),
			zeroWeight:  getFlagPositiveFloat64(cmd, "zero-evalue-weight"),
			chunkSize:   getFlagPositiveInt(cmd, "line-chunk-size"),
		}

		if cfg.taxdump == "" {
			checkError(fmt.Errorf("flag -X/--taxdump needed"))
		}
		if cfg.queryHeaders == "" {
			checkError(fmt.Errorf("flag -H/--query-headers needed"))
		}
		if cfg.orfTaxonomy == "" {
			checkError(fmt.Errorf("flag -t/--orf-taxonomy needed"))
		}
		if cfg.orfAlignment == "" {
			checkError(fmt.Errorf("flag -a/--orf-alignment needed"))
		}
		if cfg.fraction >= 1 {
			checkError(fmt.Errorf("value of -f/--majority-fraction should be in range of (0, 1)"))
		}
		if cfg.minIdentity > 1 {
			checkError(fmt.Errorf("value of -I/--min-species-identity should be in range of [0, 1]"))
		}

		if opt.Verbose || opt.Log2File {
			log.Infof("contigtax v%s", VERSION)
			log.Info()
			log.Info("checking input files ...")
		}
		cfg.fastaFiles = getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if opt.Verbose || opt.Log2File {
			if len(cfg.fastaFiles) == 1 && isStdin(cfg.fastaFiles[0]) {
				log.Info("no files given, reading from stdin")
			} else {
				log.Infof("  %d input file(s) given", len(cfg.fastaFiles))
			}
		}

		outFileClean := filepath.Clean(cfg.outFile)
		for _, file := range append([]string{cfg.queryHeaders, cfg.orfTaxonomy, cfg.orfAlignment}, cfg.fastaFiles...) {
			if !isStdin(file) && filepath.Clean(file) == outFileClean {
				checkError(fmt.Errorf("out file should not be one of the input file"))
			}
		}

		if opt.Verbose || opt.Log2File {
			log.Info()
			log.Infof("-------------------- [main parameters] --------------------")
			log.Infof("taxonomy data: %s", cfg.taxdump)
			log.Infof("query headers: %s", cfg.queryHeaders)
			log.Infof("ORF taxonomy : %s", cfg.orfTaxonomy)
			log.Infof("ORF alignment: %s", cfg.orfAlignment)
			log.Info()
			log.Infof("majority fraction: %f", cfg.fraction)
			log.Infof("minimal average identity for species: %f", cfg.minIdentity)
			log.Infof("weight of alignments with an E-value of 0: %f", cfg.zeroWeight)
			log.Infof("-------------------- [main parameters] --------------------")
			log.Info()
		}

		info, err := runClassify(opt, cfg)
		checkError(err)

		if cfg.infoFile != "" {
			checkError(info.WriteTo(cfg.infoFile))
			if opt.Verbose || opt.Log2File {
				log.Infof("summary saved to %s", cfg.infoFile)
			}
		}
	},
}

type classifyConfig struct {
	taxdump      string
	queryHeaders string
	orfTaxonomy  string
	orfAlignment string
	fastaFiles   []string
	outFile      string
	infoFile     string

	fraction    float64
	minIdentity float64
	zeroWeight  float64
	chunkSize   int
}

func runClassify(opt *Options, cfg *classifyConfig) (*ClassifyInfo, error) {
	verbose := opt.Verbose || opt.Log2File

	info := &ClassifyInfo{
		Version:            VERSION,
		Taxdump:            cfg.taxdump,
		QueryHeaders:       cfg.queryHeaders,
		OrfTaxonomy:        cfg.orfTaxonomy,
		OrfAlignment:       cfg.orfAlignment,
		Output:             cfg.outFile,
		MajorityFraction:   cfg.fraction,
		MinSpeciesIdentity: cfg.minIdentity,
		ZeroEValueWeight:   cfg.zeroWeight,
	}
	if len(cfg.fastaFiles) == 1 {
		info.Contigs = cfg.fastaFiles[0]
	} else {
		info.Contigs = fmt.Sprintf("%d files", len(cfg.fastaFiles))
	}
	stats := &info.Stats

	// ---------------------------------------------------------------

	store, err := newTaxonomyStore(cfg.taxdump)
	if err != nil {
		return nil, err
	}
	if verbose {
		log.Infof("stage 1/5: %s taxonomy nodes loaded, %d merged and %d deleted TaxIds",
			humanize.Comma(int64(store.Len())), store.NumMerged(), store.NumDeleted())
	}

	classifier := taxon.NewClassifier(store)
	classifier.Fraction = cfg.fraction
	classifier.MinSpeciesIdentity = cfg.minIdentity

	// ---------------------------------------------------------------

	headers, err := readQueryHeaders(cfg.queryHeaders, opt.NumCPUs, cfg.chunkSize)
	if err != nil {
		return nil, err
	}
	stats.Headers = len(headers)
	if verbose {
		log.Infof("stage 2/5: %s sequence headers loaded", humanize.Comma(int64(len(headers))))
	}

	// ---------------------------------------------------------------

	hits, err := readOrfTaxa(cfg.orfTaxonomy, store, opt.NumCPUs, cfg.chunkSize)
	if err != nil {
		return nil, err
	}
	stats.OrfRecords = hits.Records
	stats.OrfsUnassigned = hits.Unassigned
	stats.OrfsWithTaxa = len(hits.Orfs)

	alignments, ignored, err := readOrfAlignments(cfg.orfAlignment, hits, cfg.zeroWeight, opt.NumCPUs, cfg.chunkSize)
	if err != nil {
		return nil, err
	}
	stats.AlignmentIgnored = ignored
	if verbose {
		log.Infof("stage 3/5: %s ORFs with taxa (%s unassigned), %s of them with alignments",
			humanize.Comma(int64(len(hits.Orfs))), humanize.Comma(int64(hits.Unassigned)),
			humanize.Comma(int64(len(alignments))))
	}

	// ---------------------------------------------------------------

	evidences, estats, err := buildEvidences(headers, hits, alignments)
	if err != nil {
		return nil, errors.Wrap(err, cfg.orfTaxonomy)
	}
	stats.OrfsNoAlignment = estats.NoAlignment
	stats.OrfsLowWeight = estats.LowWeight
	stats.OrfsUsed = estats.Used
	stats.ContigsWithOrfs = len(evidences)
	if estats.NoAlignment > 0 {
		log.Warningf("%d ORFs with taxa have no alignments and are ignored", estats.NoAlignment)
	}
	if estats.LowWeight > 0 {
		log.Warningf("%d ORFs with E-values >= 1 are ignored", estats.LowWeight)
	}
	if verbose {
		log.Infof("stage 4/5: classifying %s contigs with %s ORFs",
			humanize.Comma(int64(len(evidences))), humanize.Comma(int64(estats.Used)))
	}

	var progress func()
	var pbs *mpb.Progress
	var bar *mpb.Bar
	if opt.Verbose && len(evidences) > 0 {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(len(evidences)),
			mpb.PrependDecorators(
				decor.Name("classified contigs: ", decor.WC{W: len("classified contigs: "), C: decor.DidentRight}),
				decor.Name("", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WC{W: 5})),
		)
		progress = func() { bar.Increment() }
	}

	results, err := classifier.ClassifyAll(evidences, opt.NumCPUs, progress)
	if pbs != nil {
		if err != nil {
			bar.Abort(false)
		}
		pbs.Wait()
	}
	if err != nil {
		return nil, err
	}

	assignments := make(map[string]*taxon.Assignment, len(results))
	for _, a := range results {
		assignments[a.Contig] = a
	}

	// ---------------------------------------------------------------

	outfh, err := outStream(cfg.outFile, opt.CompressionLevel)
	if err != nil {
		return nil, err
	}

	counts, err := writeClassification(outfh, cfg.fastaFiles, assignments)
	if err != nil {
		outfh.Close()
		return nil, err
	}
	if err = outfh.Close(); err != nil {
		return nil, errors.Wrap(err, cfg.outFile)
	}

	stats.Contigs = counts.Contigs
	stats.Classified = counts.Classified
	stats.Unclassified = counts.Unclassified
	stats.Ranks = rankCounts(counts)

	if verbose {
		log.Infof("stage 5/5: %s contigs written, %s classified, %s unclassified",
			humanize.Comma(int64(counts.Contigs)), humanize.Comma(int64(counts.Classified)),
			humanize.Comma(int64(counts.Unclassified)))
	}
	if missing := len(assignments) - counts.Classified; missing > 0 && counts.Contigs > 0 {
		log.Debugf("%d contigs with ORFs are absent or unclassified in the FASTA files", missing)
	}

	return info, nil
}

func init() {
	RootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringP("taxdump", "X", "",
		formatFlagUsage(`Directory of taxonomy dump files: names.dmp, nodes.dmp, optional with merged.dmp and delnodes.dmp.`))

	classifyCmd.Flags().StringP("query-headers", "H", "",
		formatFlagUsage(`File of query sequence headers, one per line, e.g., query_h of MMseqs2.`))

	classifyCmd.Flags().StringP("orf-taxonomy", "t", "",
		formatFlagUsage(`Tab-delimited ORF taxonomy table: ORF ID, TaxId, rank, taxon name.`))

	classifyCmd.Flags().StringP("orf-alignment", "a", "",
		formatFlagUsage(`Tab-delimited ORF alignment table: ORF ID, target ID, identity, bit score, E-value.`))

	classifyCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file ("-" for stdout), with a ".gz" suffix for gzipped output.`))

	classifyCmd.Flags().StringP("info-file", "", "",
		formatFlagUsage(`Save a summary of the run in YAML format.`))

	classifyCmd.Flags().Float64P("majority-fraction", "f", taxon.DefaultFraction,
		formatFlagUsage(`A taxon should be supported by more than this fraction of the total weight. Range: (0, 1).`))

	classifyCmd.Flags().Float64P("min-species-identity", "I", taxon.DefaultMinSpeciesIdentity,
		formatFlagUsage(`Minimal average identity of ORFs for a species-level assignment, otherwise the parent node is used.`))

	classifyCmd.Flags().Float64P("zero-evalue-weight", "z", taxon.DefaultZeroEValueWeight,
		formatFlagUsage(`Weight of alignments with an E-value of 0.`))

	classifyCmd.Flags().IntP("line-chunk-size", "", 5000,
		formatFlagUsage(`Number of lines to process for each thread.`))

	classifyCmd.SetUsageTemplate(usageTemplate("-X <taxdump dir> -H <query headers> -t <ORF taxonomy> -a <ORF alignment> [-o <out.csv>] <contigs.fasta>"))
}
