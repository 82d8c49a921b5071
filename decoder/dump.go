package decoder

import (
	"fmt"
	"io"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/feat"
)

// Dump writes the rule-by-rule trace of d, one line per applied rule:
// step, source span, rule, coverage, incremental score, cumulative score
// and the local feature values. The output depends only on d.
func Dump(w io.Writer, d *Derivation) error {
	var chain []*Derivation
	for n := d; n != nil && !n.IsRoot(); n = n.Parent {
		chain = append(chain, n)
	}
	if _, err := fmt.Fprintf(w, "# %s\n", strings.Join(d.Source, " ")); err != nil {
		return err
	}
	for step := len(chain) - 1; step >= 0; step-- {
		n := chain[step]
		inc := n.PartialScore - n.Parent.PartialScore
		_, err := fmt.Fprintf(w, "%d\t[%d,%d)\t%s => %s\t%s\t%.4f\t%.4f\t%s\n",
			len(chain)-step, n.Rule.SourcePosition, n.Rule.End(),
			strings.Join(n.Rule.Rule.Source, " "), strings.Join(n.Rule.Rule.Target, " "),
			n.Coverage, inc, n.PartialScore, formatFeatures(feat.Combine(n.LocalFeatures)))
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "= %s\t%.4f\n", strings.Join(d.Target, " "), d.PartialScore)
	return err
}

func formatFeatures(fs []feat.FeatureValue) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = fmt.Sprintf("%s=%g", f.Name, f.Value)
	}
	return strings.Join(parts, " ")
}
