// Package dataset reads and writes time-sorted visibility tables.
//
// A dataset is a directory (conventionally "<name>.ms") holding one Parquet
// table of rows plus optional auxiliary files that are carried along
// unchanged when the dataset is split.
package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// TableFile is the name of the row table inside a dataset directory
const TableFile = "table.parquet"

// Extension is the conventional suffix of a dataset directory
const Extension = ".ms"

// ColumnCount is the number of columns of Row
const ColumnCount = 7

const parallelism = 4

// Row is one visibility sample
type Row struct {
	Time     float64 `parquet:"name=time, type=DOUBLE"`
	Antenna1 int32   `parquet:"name=antenna1, type=INT32"`
	Antenna2 int32   `parquet:"name=antenna2, type=INT32"`
	Real     float64 `parquet:"name=real, type=DOUBLE"`
	Imag     float64 `parquet:"name=imag, type=DOUBLE"`
	Weight   float64 `parquet:"name=weight, type=DOUBLE"`
	Flag     bool    `parquet:"name=flag, type=BOOLEAN"`
}

// Table is an in-memory dataset table
type Table struct {
	Rows []Row
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Columns returns the number of columns
func (t *Table) Columns() int {
	return ColumnCount
}

// Times returns the time column
func (t *Table) Times() []float64 {
	times := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		times[i] = r.Time
	}
	return times
}

// SortByTime sorts rows by time, keeping the relative order of equal times
func (t *Table) SortByTime() {
	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].Time < t.Rows[j].Time })
}

// Slice returns the rows in [start, end) as a new table sharing no memory
func (t *Table) Slice(start, end int) *Table {
	rows := make([]Row, end-start)
	copy(rows, t.Rows[start:end])
	return &Table{Rows: rows}
}

// Concat appends the rows of every table in order
func Concat(tables ...*Table) *Table {
	var n int
	for _, t := range tables {
		n += t.Len()
	}
	out := &Table{Rows: make([]Row, 0, n)}
	for _, t := range tables {
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}

// Read loads the table of a dataset directory
func Read(dir string) (*Table, error) {
	fr, err := local.NewLocalFileReader(filepath.Join(dir, TableFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open table in %s: %w", dir, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), parallelism)
	if err != nil {
		return nil, fmt.Errorf("failed to read table schema in %s: %w", dir, err)
	}
	defer pr.ReadStop()

	rows := make([]Row, int(pr.GetNumRows()))
	if len(rows) > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("failed to read rows in %s: %w", dir, err)
		}
	}
	return &Table{Rows: rows}, nil
}

// Write materializes a dataset directory holding t
func Write(dir string, t *Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dataset %s: %w", dir, err)
	}
	fw, err := local.NewLocalFileWriter(filepath.Join(dir, TableFile))
	if err != nil {
		return fmt.Errorf("failed to create table in %s: %w", dir, err)
	}

	pw, err := writer.NewParquetWriter(fw, new(Row), parallelism)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to create table writer in %s: %w", dir, err)
	}
	pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED

	for i := range t.Rows {
		if err := pw.Write(t.Rows[i]); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("failed to write row %d in %s: %w", i, dir, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to finalize table in %s: %w", dir, err)
	}
	return fw.Close()
}

// CopyAuxiliary copies every file of src except the row table into dst
func CopyAuxiliary(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == TableFile || !d.Type().IsRegular() {
			return nil
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// SearchTime returns the first index whose time is >= t (left insertion point)
func SearchTime(times []float64, t float64) int {
	return sort.SearchFloat64s(times, t)
}
