// File: internal/scan/csv.go
package scan

import (
	"encoding/csv"
	"io"
)

// URLsFromCSV extracts candidate URLs from the first column of a CSV stream.
// A leading "url" header row and blank cells are skipped; validation of the
// extracted values is left to ScanBatch.
func URLsFromCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var urls []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 || record[0] == "" || record[0] == "url" {
			continue
		}
		urls = append(urls, record[0])
	}
	return urls, nil
}
