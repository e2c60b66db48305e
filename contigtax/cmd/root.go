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
	"runtime"

	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "contigtax",
	Short: "Consensus taxonomic classification of contigs from ORF hits",
	Long: fmt.Sprintf(`
    Program: contigtax (Consensus taxonomic classification of contigs)
    Version: v%s

contigtax assigns contigs to taxa of the ICTV ranks (realm to species) by
a weighted majority vote over taxonomic hits of their open reading frames.

`, VERSION),
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

func init() {
	defaultThreads := runtime.NumCPU()
	if defaultThreads > 4 {
		defaultThreads = 4
	}

	RootCmd.PersistentFlags().IntP("threads", "j", defaultThreads, formatFlagUsage("Number of CPUs to use."))
	RootCmd.PersistentFlags().BoolP("quiet", "q", false, formatFlagUsage("Do not print any verbose information."))
	RootCmd.PersistentFlags().StringP("log", "", "", formatFlagUsage("Log file."))
	RootCmd.PersistentFlags().StringP("infile-list", "i", "", formatFlagUsage("File of input files list (one file per line). If given, they are appended to files from CLI arguments."))

	RootCmd.CompletionOptions.DisableDefaultCmd = true
	RootCmd.SetUsageTemplate(usageTemplate(""))
}
