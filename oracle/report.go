package oracle

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/multierr"
)

type Result struct {
	Scenario    string
	Description string
	Duration    time.Duration
	Err         error
}

func (r Result) Passed() bool {
	return r.Err == nil
}

type Report struct {
	Results []Result
}

func (r *Report) add(result Result) {
	r.Results = append(r.Results, result)
}

func (r *Report) Passed() int {
	n := 0
	for _, result := range r.Results {
		if result.Passed() {
			n++
		}
	}

	return n
}

func (r *Report) Failed() int {
	return len(r.Results) - r.Passed()
}

// Err combines the errors of every failed scenario, nil if they all passed.
func (r *Report) Err() error {
	var err error

	for _, result := range r.Results {
		if result.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", result.Scenario, result.Err))
		}
	}

	return err
}

// Render writes the report as a table followed by a summary line.
func (r *Report) Render(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Scenario", "Result", "Duration", "Detail"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, result := range r.Results {
		status := "PASS"
		detail := result.Description

		if !result.Passed() {
			status = "FAIL"
			detail = result.Err.Error()
		}

		tw.Append([]string{
			result.Scenario,
			status,
			result.Duration.Round(time.Millisecond).String(),
			detail,
		})
	}

	tw.Render()

	fmt.Fprintf(w, "%d passed, %d failed\n", r.Passed(), r.Failed())
}
