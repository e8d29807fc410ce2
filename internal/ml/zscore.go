package ml

import "math"

type stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// ZScore scores each row by its largest per-feature distance from the batch
// mean, in standard deviations. Constant features contribute nothing.
type ZScore struct{}

func (ZScore) Name() string { return "zscore" }

func (ZScore) FitAndLabel(x [][]float64, contamination float64) ([]bool, []float64, error) {
	if err := checkContamination(contamination); err != nil {
		return nil, nil, err
	}
	scores := make([]float64, len(x))
	if len(x) < 2 {
		return make([]bool, len(x)), scores, nil
	}
	st := fit(x)
	for i, row := range x {
		for j, v := range row {
			if st[j].Std <= 0 {
				continue
			}
			scores[i] = math.Max(scores[i], math.Abs(v-st[j].Mean)/st[j].Std)
		}
	}
	return label(scores, contamination), scores, nil
}

func fit(x [][]float64) []stats {
	st := make([]stats, len(x[0]))
	n := float64(len(x))
	for j := range st {
		var sum, sumSq float64
		for _, row := range x {
			sum += row[j]
			sumSq += row[j] * row[j]
		}
		mean := sum / n
		variance := sumSq/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		st[j] = stats{Mean: mean, Std: math.Sqrt(variance)}
	}
	return st
}
