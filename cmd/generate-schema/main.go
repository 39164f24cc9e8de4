package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"

	"github.com/perflab/linksweep/pkg/results"

	"cloud.google.com/go/bigquery"
)

var sweepSchema string

func init() {
	flag.StringVar(&sweepSchema, "linksweep", "/var/spool/datatypes/linksweep.json", "filename to write linksweep schema")
}

func main() {
	flag.Parse()
	// Generate and save the sweep record schema for autoloading.
	sweepResult := results.SweepResult{}
	sch, err := bigquery.InferSchema(sweepResult)
	rtx.Must(err, "failed to generate linksweep schema")
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal linksweep schema")
	err = os.WriteFile(sweepSchema, b, 0o644)
	rtx.Must(err, "failed to write linksweep schema")
}
