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
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/shenwei356/bio/taxdump"
	"github.com/shenwei356/contigtax/contigtax/cmd/taxon"
	"github.com/shenwei356/util/pathutil"
)

func loadTaxonomy(opt *Options, path string) *taxon.Store {
	if opt.Verbose || opt.Log2File {
		log.Infof("loading Taxonomy from: %s", path)
	}

	store, err := newTaxonomyStore(path)
	checkError(err)

	if opt.Verbose || opt.Log2File {
		log.Infof("  %d nodes loaded, %d merged and %d deleted TaxIds",
			store.Len(), store.NumMerged(), store.NumDeleted())
	}
	return store
}

// newTaxonomyStore reads nodes.dmp and names.dmp, and optional merged.dmp
// and delnodes.dmp, in a directory.
func newTaxonomyStore(path string) (*taxon.Store, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	t, err := taxdump.NewTaxonomyWithRankFromNCBI(filepath.Join(path, "nodes.dmp"))
	if err != nil {
		return nil, fmt.Errorf("err on loading Taxonomy nodes: %s", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)

	wg.Add(3)

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "names.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			errs[0] = fmt.Errorf("err on checking file names.dmp: %s", err)
			return
		}
		if !existed {
			errs[0] = fmt.Errorf("names.dmp not found in %s", path)
			return
		}
		if err = t.LoadNamesFromNCBI(file); err != nil {
			errs[0] = fmt.Errorf("err on loading Taxonomy names: %s", err)
		}
	}()

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "delnodes.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			errs[1] = fmt.Errorf("err on checking file delnodes.dmp: %s", err)
			return
		}
		if existed {
			if err = t.LoadDeletedNodesFromNCBI(file); err != nil {
				errs[1] = fmt.Errorf("err on loading Taxonomy deleted nodes: %s", err)
			}
		}
	}()

	go func() {
		defer wg.Done()
		file := filepath.Join(path, "merged.dmp")
		existed, err := pathutil.Exists(file)
		if err != nil {
			errs[2] = fmt.Errorf("err on checking file merged.dmp: %s", err)
			return
		}
		if existed {
			if err = t.LoadMergedNodesFromNCBI(file); err != nil {
				errs[2] = fmt.Errorf("err on loading Taxonomy merged nodes: %s", err)
			}
		}
	}()

	wg.Wait()

	for _, err = range errs {
		if err != nil {
			return nil, err
		}
	}

	b := taxon.NewBuilder()
	for child, parent := range t.Nodes {
		b.Add(child, parent, t.Rank(child))
	}
	if _, ok := t.Nodes[taxon.RootTaxId]; !ok {
		b.Add(taxon.RootTaxId, taxon.RootTaxId, "no rank")
	}
	for taxid, name := range t.Names {
		b.SetName(taxid, name)
	}
	for from, to := range t.MergeNodes {
		b.AddMerged(from, to)
	}
	for taxid := range t.DelNodes {
		b.AddDeleted(taxid)
	}

	store, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return store, nil
}
