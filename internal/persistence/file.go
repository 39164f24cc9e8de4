// Package persistence writes archival records to date-partitioned,
// gzip-compressed JSON files.
package persistence

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path"
	"time"
)

// DataFile is the file where we save sweep records.
type DataFile struct {
	// Path is the full path of the file on disk.
	Path string

	writer io.WriteCloser
	fp     *os.File
}

// New creates a DataFile for saving records in datadir. The path is
// partitioned by date and keyed by datatype, name and runID so files
// from separate runs never collide.
func New(datadir, datatype, name, runID string) (*DataFile, error) {
	timestamp := time.Now()
	dir := path.Join(datadir, datatype, timestamp.Format("2006/01/02"))
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}
	filepath := path.Join(dir, datatype+"-"+name+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+runID+".json.gz")
	fp, err := os.OpenFile(filepath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	writer, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	return &DataFile{
		Path:   filepath,
		writer: writer,
		fp:     fp,
	}, nil
}

// Write writes a JSON representation of record to this file.
func (df *DataFile) Write(record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = df.writer.Write(data)
	return err
}

// Close closes the gzip writer and the file.
func (df *DataFile) Close() error {
	err := df.writer.Close()
	if err != nil {
		df.fp.Close()
		return err
	}
	return df.fp.Close()
}

// WriteDataFile writes record to a new data file in datadir and returns
// its path.
func WriteDataFile(datadir, datatype, name, runID string, record interface{}) (string, error) {
	df, err := New(datadir, datatype, name, runID)
	if err != nil {
		return "", err
	}
	if err := df.Write(record); err != nil {
		df.Close()
		return "", err
	}
	return df.Path, df.Close()
}
