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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gzip "github.com/klauspost/pgzip"
)

// BufferSize is size of buffer
var BufferSize = 65536

// outFile is a buffered output, gzipped if the file name ends with ".gz".
type outFile struct {
	*bufio.Writer
	gw io.WriteCloser
	fh *os.File
}

// Close flushes data and closes the underlying files.
func (o *outFile) Close() error {
	if err := o.Flush(); err != nil {
		return err
	}
	if o.gw != nil {
		if err := o.gw.Close(); err != nil {
			return err
		}
	}
	if o.fh == os.Stdout {
		return nil
	}
	return o.fh.Close()
}

func outStream(file string, level int) (*outFile, error) {
	var w *os.File
	if isStdout(file) {
		w = os.Stdout
	} else {
		dir := filepath.Dir(file)
		fi, err := os.Stat(dir)
		if err == nil && !fi.IsDir() {
			return nil, fmt.Errorf("can not write file into a non-directory path: %s", dir)
		}
		if os.IsNotExist(err) {
			os.MkdirAll(dir, 0755)
		}

		w, err = os.Create(file)
		if err != nil {
			return nil, fmt.Errorf("fail to write %s: %s", file, err)
		}
	}

	if strings.HasSuffix(strings.ToLower(file), ".gz") {
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("fail to write %s: %s", file, err)
		}
		return &outFile{Writer: bufio.NewWriterSize(gw, BufferSize), gw: gw, fh: w}, nil
	}
	return &outFile{Writer: bufio.NewWriterSize(w, BufferSize), fh: w}, nil
}

// inFile is a buffered input, decompressed if it is gzipped.
type inFile struct {
	*bufio.Reader
	gr io.ReadCloser
	fh *os.File
}

// Close closes the underlying files.
func (i *inFile) Close() error {
	if i.gr != nil {
		i.gr.Close()
	}
	if i.fh == os.Stdin {
		return nil
	}
	return i.fh.Close()
}

func inStream(file string) (*inFile, error) {
	var err error
	var r *os.File
	if isStdin(file) {
		if !detectStdin() {
			return nil, errors.New("stdin not detected")
		}
		r = os.Stdin
	} else {
		r, err = os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("fail to read %s: %s", file, err)
		}
	}

	br := bufio.NewReaderSize(r, BufferSize)

	gzipped, err := isGzip(br)
	if err != nil {
		return nil, fmt.Errorf("fail to check is file (%s) gzipped: %s", file, err)
	}
	if gzipped {
		gr, err := gzip.NewReaderN(br, 65536, 8)
		if err != nil {
			return nil, fmt.Errorf("fail to create gzip reader for %s: %s", file, err)
		}
		return &inFile{Reader: bufio.NewReaderSize(gr, BufferSize), gr: gr, fh: r}, nil
	}
	return &inFile{Reader: br, fh: r}, nil
}

func isGzip(b *bufio.Reader) (bool, error) {
	return checkBytes(b, []byte{0x1f, 0x8b})
}

func checkBytes(b *bufio.Reader, buf []byte) (bool, error) {
	m, err := b.Peek(len(buf))
	if err != nil {
		return false, fmt.Errorf("no content")
	}
	for i := range buf {
		if m[i] != buf[i] {
			return false, nil
		}
	}
	return true, nil
}

func detectStdin() bool {
	// http://stackoverflow.com/a/26567513
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
