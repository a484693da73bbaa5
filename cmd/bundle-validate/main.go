// Command bundle-validate checks a bundle manifest against the sensor device.
//
// It verifies that the device implements every lifecycle method and that
// the published methods declared in the manifest match the device's
// signatures. The exit status is 0 when they agree and 1 otherwise.
//
// Usage:
//
//	bundle-validate [flags] <bundle.xml>
//
// Flags:
//
//	-params   Also check that the parameters section decodes
//	-quiet    Print only problems
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kswx/keyence-go/pkg/bundle"
	"github.com/kswx/keyence-go/pkg/session"
)

func main() {
	params := flag.Bool("params", false, "Also check that the parameters section decodes")
	quiet := flag.Bool("quiet", false, "Print only problems")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bundle-validate [flags] <bundle.xml>\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ok, err := run(os.Stdout, flag.Arg(0), *params, *quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

// run validates the manifest at path and reports to w.
func run(w io.Writer, path string, checkParams, quiet bool) (bool, error) {
	m, err := bundle.Load(path)
	if err != nil {
		return false, err
	}

	report := bundle.Validate(m, bundle.DeviceSurface())
	if !quiet {
		printReport(w, m, report)
	}
	ok := report.OK()
	for _, p := range report.Problems() {
		fmt.Fprintf(w, "FAIL %s\n", p)
	}

	if checkParams {
		tree, err := m.ParamTree()
		if err == nil {
			var unused []string
			_, unused, err = session.DecodeParams(tree)
			for _, key := range unused {
				fmt.Fprintf(w, "WARN parameter %q is not used by the device\n", key)
			}
		}
		if err != nil {
			fmt.Fprintf(w, "FAIL parameters: %v\n", err)
			ok = false
		} else if !quiet {
			fmt.Fprintln(w, "OK   parameters decode")
		}
	}

	if ok && !quiet {
		fmt.Fprintln(w, "Manifest matches the device")
	}
	return ok, nil
}

func printReport(w io.Writer, m *bundle.Manifest, r bundle.Report) {
	name := m.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "Bundle: %s\n", name)

	if len(r.MissingLifecycle) == 0 {
		fmt.Fprintf(w, "OK   all %d lifecycle methods implemented\n", len(bundle.LifecycleMethods))
	}
	if r.ManifestCount == r.SurfaceCount {
		fmt.Fprintf(w, "OK   method count %d\n", r.ManifestCount)
	}
	for _, res := range r.Methods {
		if res.Outcome == bundle.OutcomeMatch {
			fmt.Fprintf(w, "OK   %s: %s\n", res.Name, res.Detail)
		}
	}
}
