package metric

// #region counts
var countDetails = map[string]string{
	"samples":         "the number of samples in the group",
	"errors":          "the number of misclassified samples",
	"positives":       "the number of positive predictions",
	"negatives":       "the number of negative predictions",
	"true_positives":  "the number of positive predictions with positive labels",
	"false_positives": "the number of positive predictions with negative labels",
	"true_negatives":  "the number of negative predictions with negative labels",
	"false_negatives": "the number of negative predictions with positive labels",
}

// ratio returns num/den, or fallback when den is zero.
func ratio(num, den, fallback float64) float64 {
	if den == 0 {
		return fallback
	}
	return num / den
}
// #endregion counts

// #region classification
var (
	Accuracy = Metric{
		Name: "accuracy", Details: "the fraction of correct predictions",
		NeedsLabels: true, Bounded: true,
		compute: func(in Input) Result {
			samples := in.Sensitive.Sum()
			errs := in.Predictions.Sub(in.Labels).Mul(in.Sensitive).Abs().Sum()
			v := 0.0
			if samples != 0 {
				v = 1 - errs/samples
			}
			return Result{Value: v, Fields: []Field{{"samples", samples}, {"errors", errs}}}
		},
	}

	PR = Metric{
		Name: "pr", Details: "the positive rate of predictions",
		Bounded: true,
		compute: func(in Input) Result {
			samples := in.Sensitive.Sum()
			pos := in.Predictions.Mul(in.Sensitive).Sum()
			return Result{Value: ratio(pos, samples, 0), Fields: []Field{{"samples", samples}, {"positives", pos}}}
		},
	}

	Positives = Metric{
		Name: "positives", Details: "the number of positive predictions",
		compute: func(in Input) Result {
			return Result{
				Value:  in.Predictions.Mul(in.Sensitive).Sum(),
				Fields: []Field{{"samples", in.Sensitive.Sum()}},
			}
		},
	}

	TPR = Metric{
		Name: "tpr", Details: "the true positive rate",
		NeedsLabels: true, Bounded: true,
		compute: func(in Input) Result {
			tp := in.Predictions.Mul(in.Labels).Mul(in.Sensitive).Sum()
			pos := in.Predictions.Mul(in.Sensitive).Sum()
			return Result{Value: ratio(tp, pos, 0), Fields: []Field{
				{"positives", pos}, {"true_positives", tp}, {"samples", in.Sensitive.Sum()},
			}}
		},
	}

	FPR = Metric{
		Name: "fpr", Details: "the false positive rate",
		NeedsLabels: true, Bounded: true,
		compute: func(in Input) Result {
			fp := falsePositives(in)
			neg := negatives(in)
			return Result{Value: ratio(fp, neg, 1), Fields: []Field{
				{"negatives", neg}, {"false_positives", fp}, {"samples", in.Sensitive.Sum()},
			}}
		},
	}

	TNR = Metric{
		Name: "tnr", Details: "the true negative rate",
		NeedsLabels: true, Bounded: true,
		compute: func(in Input) Result {
			tn := in.Predictions.RSubScalar(in.MaxPrediction).
				Mul(in.Labels.RSubScalar(in.MaxPrediction)).
				Mul(in.Sensitive).Sum()
			neg := negatives(in)
			return Result{Value: ratio(tn, neg, 0), Fields: []Field{
				{"negatives", neg}, {"true_negatives", tn}, {"samples", in.Sensitive.Sum()},
			}}
		},
	}

	FNR = Metric{
		Name: "fnr", Details: "the false negative rate",
		NeedsLabels: true, Bounded: true,
		compute: func(in Input) Result {
			fn := falseNegatives(in)
			pos := in.Predictions.Mul(in.Sensitive).Sum()
			return Result{Value: ratio(fn, pos, 1), Fields: []Field{
				{"positives", pos}, {"false_negatives", fn}, {"samples", in.Sensitive.Sum()},
			}}
		},
	}

	FAR = Metric{
		Name: "far", Details: "the false acceptance rate",
		NeedsLabels: true, Bounded: true,
		compute: func(in Input) Result {
			fp := falsePositives(in)
			samples := in.Sensitive.Sum()
			return Result{Value: ratio(fp, samples, 1), Fields: []Field{
				{"false_positives", fp}, {"positives", in.Predictions.Mul(in.Sensitive).Sum()}, {"samples", samples},
			}}
		},
	}

	FRR = Metric{
		Name: "frr", Details: "the false rejection rate",
		NeedsLabels: true, Bounded: true,
		compute: func(in Input) Result {
			fn := falseNegatives(in)
			neg := negatives(in)
			samples := in.Sensitive.Sum()
			v := 1.0
			if neg != 0 {
				v = fn / samples
			}
			return Result{Value: v, Fields: []Field{
				{"false_negatives", fn}, {"negatives", neg}, {"samples", samples},
			}}
		},
	}
)

func falsePositives(in Input) float64 {
	return in.Predictions.Mul(in.Labels.RSubScalar(in.MaxPrediction)).Mul(in.Sensitive).Sum()
}

func falseNegatives(in Input) float64 {
	return in.Predictions.RSubScalar(in.MaxPrediction).Mul(in.Labels).Mul(in.Sensitive).Sum()
}

func negatives(in Input) float64 {
	return in.Predictions.RSubScalar(in.MaxPrediction).Mul(in.Sensitive).Sum()
}

// #endregion classification

// #region registry
// All lists the built-in metrics.
var All = []Metric{Accuracy, PR, Positives, TPR, FPR, TNR, FNR, FAR, FRR}

// Defaults are the metrics reported when none are configured. Each is
// bounded for any 0/1 input.
var Defaults = []Metric{Accuracy, PR, TPR, TNR, FAR, FRR}

// Lookup finds a built-in metric by name.
func Lookup(name string) (Metric, bool) {
	for _, m := range All {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}
// #endregion registry
