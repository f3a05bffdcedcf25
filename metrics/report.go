package metrics

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// ReportRow is one line of a classification report.
type ReportRow struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a structured classification report. String renders it in
// scikit-learn's text layout.
type Report struct {
	Classes     []ReportRow
	Accuracy    float64
	MacroAvg    ReportRow
	WeightedAvg ReportRow
	Total       int
	Digits      int
}

// ReportOption configures ClassificationReport.
type ReportOption func(*reportConfig)

type reportConfig struct {
	digits      int
	targetNames []string
}

// WithDigits sets the number of decimals shown for each score.
func WithDigits(d int) ReportOption {
	return func(c *reportConfig) { c.digits = d }
}

// WithTargetNames replaces numeric labels by display names, in label order.
func WithTargetNames(names ...string) ReportOption {
	return func(c *reportConfig) { c.targetNames = names }
}

// ClassificationReport builds per-class precision, recall, F1 and support
// followed by accuracy, macro average and support-weighted average rows.
func ClassificationReport(yTrue, yPred mat.Matrix, opts ...ReportOption) (*Report, error) {
	cfg := reportConfig{digits: 2}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.digits < 0 {
		return nil, errors.NewValidationError("digits", "must be non-negative", cfg.digits)
	}

	scores, err := PrecisionRecallFScoreSupport(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if cfg.targetNames != nil && len(cfg.targetNames) != len(scores.Labels) {
		return nil, errors.NewValidationError("target_names",
			fmt.Sprintf("expected %d names", len(scores.Labels)), cfg.targetNames)
	}

	cm, _, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	rep := &Report{Digits: cfg.digits}
	k := float64(len(scores.Labels))
	var correct float64
	for i, label := range scores.Labels {
		name := strconv.Itoa(label)
		if cfg.targetNames != nil {
			name = cfg.targetNames[i]
		}
		row := ReportRow{
			Name:      name,
			Precision: scores.Precision[i],
			Recall:    scores.Recall[i],
			F1:        scores.F1[i],
			Support:   scores.Support[i],
		}
		rep.Classes = append(rep.Classes, row)
		rep.Total += row.Support
		correct += cm.At(i, i)

		rep.MacroAvg.Precision += row.Precision / k
		rep.MacroAvg.Recall += row.Recall / k
		rep.MacroAvg.F1 += row.F1 / k
	}

	total := float64(rep.Total)
	for _, row := range rep.Classes {
		w := float64(row.Support) / total
		rep.WeightedAvg.Precision += row.Precision * w
		rep.WeightedAvg.Recall += row.Recall * w
		rep.WeightedAvg.F1 += row.F1 * w
	}
	rep.MacroAvg.Name, rep.MacroAvg.Support = "macro avg", rep.Total
	rep.WeightedAvg.Name, rep.WeightedAvg.Support = "weighted avg", rep.Total
	rep.Accuracy = correct / total
	return rep, nil
}

// String renders the report like sklearn.metrics.classification_report.
func (r *Report) String() string {
	width := len(r.WeightedAvg.Name)
	for _, row := range r.Classes {
		if len(row.Name) > width {
			width = len(row.Name)
		}
	}
	if r.Digits > width {
		width = r.Digits
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s ", width, "")
	for _, h := range []string{"precision", "recall", "f1-score", "support"} {
		fmt.Fprintf(&b, " %9s", h)
	}
	b.WriteString("\n\n")

	writeRow := func(row ReportRow) {
		fmt.Fprintf(&b, "%*s  %9.*f %9.*f %9.*f %9d\n", width, row.Name,
			r.Digits, row.Precision, r.Digits, row.Recall, r.Digits, row.F1, row.Support)
	}
	for _, row := range r.Classes {
		writeRow(row)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.*f %9d\n", width, "accuracy", "", "", r.Digits, r.Accuracy, r.Total)
	writeRow(r.MacroAvg)
	writeRow(r.WeightedAvg)
	return b.String()
}
