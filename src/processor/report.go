package processor

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

const reportWidth = 78

// WriteReport prints a logit summary for model name followed by the test-set confusion matrix.
func WriteReport(w io.Writer, name string, res *LogitResult, cm ConfusionMatrix) error {
	rule := strings.Repeat("=", reportWidth)
	thin := strings.Repeat("-", reportWidth)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, rule)
	fmt.Fprintf(tw, "Logit Regression Results: %s\n", name)
	fmt.Fprintln(tw, rule)
	target := res.Target
	if target == "" {
		target = "y"
	}
	fmt.Fprintf(tw, "Dep. Variable:\t%s\tNo. Observations:\t%d\n", target, res.NObs)
	fmt.Fprintf(tw, "Method:\tMLE\tDf Residuals:\t%d\n", res.DfResid)
	fmt.Fprintf(tw, "Converged:\t%t\tDf Model:\t%d\n", res.Converged, res.DfModel)
	fmt.Fprintf(tw, "Iterations:\t%d\tPseudo R-squ.:\t%.4f\n", res.Iterations, res.PseudoR2)
	fmt.Fprintf(tw, "Log-Likelihood:\t%.2f\tLL-Null:\t%.2f\n", res.LogLik, res.LLNull)
	fmt.Fprintf(tw, "AIC:\t%.2f\tLLR p-value:\t%.4g\n", res.AIC, res.LLRPValue)
	fmt.Fprintf(tw, "BIC:\t%.2f\t\t\n", res.BIC)
	fmt.Fprintln(tw, thin)

	fmt.Fprintln(tw, "\tcoef\tstd err\tz\tP>|z|\t[0.025\t0.975]")
	for j, n := range res.Names {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.3f\t%.3f\t%.4f\t%.4f\n",
			n, res.Params[j], res.StdErr[j], res.Z[j], res.P[j], res.ConfLow[j], res.ConfHigh[j])
	}
	fmt.Fprintln(tw, rule)

	fmt.Fprintf(tw, "Confusion matrix (test, n=%d)\n", cm.Total())
	fmt.Fprintln(tw, "\tpred 0\tpred 1")
	fmt.Fprintf(tw, "true 0\t%d\t%d\n", cm.TN, cm.FP)
	fmt.Fprintf(tw, "true 1\t%d\t%d\n", cm.FN, cm.TP)
	fmt.Fprintln(tw, thin)
	fmt.Fprintf(tw, "Accuracy:\t%.4f\n", cm.Accuracy())
	fmt.Fprintf(tw, "Precision:\t%.4f\n", cm.Precision())
	fmt.Fprintf(tw, "Recall:\t%.4f\n", cm.Recall())
	fmt.Fprintf(tw, "F1:\t%.4f\n", cm.F1())
	fmt.Fprintln(tw)

	return tw.Flush()
}
