package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/stolostron/release-tools/pkg/vulnerability"
)

type options struct {
	input         string
	criticalOnly  bool
	includeMedium bool
	showCVEs      bool
	jsonOutput    bool

	severities []string
}

func (o *options) Validate() error {
	if o.input == "" {
		return fmt.Errorf("--input is required")
	}
	return nil
}

func (o *options) complete() {
	if o.criticalOnly {
		o.severities = []string{"critical"}
	} else {
		o.severities = []string{"critical", "high"}
	}
	if o.includeMedium {
		o.severities = append(o.severities, "medium")
	}
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.input, "input", "", "Path to the vulnerability CSV file.")
	fs.BoolVar(&o.criticalOnly, "critical", false, "Report only critical vulnerabilities.")
	fs.BoolVar(&o.includeMedium, "include-medium", false, "Include medium severity vulnerabilities.")
	fs.BoolVar(&o.showCVEs, "show-cves", false, "List the first CVEs of each component in the summary.")
	fs.BoolVar(&o.jsonOutput, "json", false, "Emit the roll-up as JSON instead of a text table.")

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
	}
	o.complete()

	file, err := os.Open(o.input)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open the vulnerability CSV.")
	}
	defer file.Close()

	records, err := vulnerability.ReadCSV(file)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to read the vulnerability CSV.")
	}
	summaries := vulnerability.Summarize(records, o.severities)

	if o.jsonOutput {
		if err := vulnerability.WriteJSON(os.Stdout, summaries); err != nil {
			logrus.WithError(err).Fatal("Failed to write the JSON report.")
		}
		return
	}
	if err := vulnerability.WriteText(os.Stdout, summaries, o.severities, o.showCVEs); err != nil {
		logrus.WithError(err).Fatal("Failed to write the report.")
	}
}
