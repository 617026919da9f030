package domain

// DatasetRef points at the constituent archives of a source dataset
type DatasetRef struct {
	Container string   `json:"container" yaml:"container"`
	Keys      []string `json:"keys" yaml:"keys"`
}

// Names returns the base names of the constituent datasets
func (d DatasetRef) Names() []string {
	names := make([]string, 0, len(d.Keys))
	for _, k := range d.Keys {
		names = append(names, BaseName(k))
	}
	return names
}

// Partition is a contiguous row range of a time-sorted dataset, stored independently.
type Partition struct {
	Index    int    `json:"index"`
	StartRow int    `json:"startRow"`
	EndRow   int    `json:"endRow"`
	Key      string `json:"key,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Rows returns the number of rows in the partition
func (p Partition) Rows() int {
	return p.EndRow - p.StartRow
}
