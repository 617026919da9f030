// extract partitions radio-astronomy datasets and runs extraction pipelines
// over them on serverless workers.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
