/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/


package record

import (
	"bufio"
	"os"
)

type Writer struct {
	file     *os.File
	buf      *bufio.Writer
	filename string
	written  int64
}

func NewWriter(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		logger.Error("Error while creating file: %s", filename)
		return nil, err
	}
	return &Writer{
		file:     file,
		buf:      bufio.NewWriter(file),
		filename: filename,
	}, nil
}

func (w *Writer) Write(buf []byte) (int, error) {
	n, err := w.buf.Write(buf)
	w.written += int64(n)
	return n, err
}

func (w *Writer) Filename() string {
	return w.filename
}

func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
