package processor

// BinaryPredFromProba labels probabilities at or above threshold as 1.
func BinaryPredFromProba(proba []float64, threshold float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}

// ConfusionMatrix counts binary outcomes with 1 as the positive class.
type ConfusionMatrix struct {
	TN, FP, FN, TP int
}

func NewConfusionMatrix(yTrue []float64, yPred []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range yTrue {
		actual := yTrue[i] == 1
		predicted := yPred[i] == 1
		switch {
		case actual && predicted:
			cm.TP++
		case actual:
			cm.FN++
		case predicted:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm
}

func (cm ConfusionMatrix) Total() int { return cm.TN + cm.FP + cm.FN + cm.TP }

func (cm ConfusionMatrix) Accuracy() float64 {
	if cm.Total() == 0 {
		return 0
	}
	return float64(cm.TP+cm.TN) / float64(cm.Total())
}

func (cm ConfusionMatrix) Precision() float64 {
	if cm.TP+cm.FP == 0 {
		return 0
	}
	return float64(cm.TP) / float64(cm.TP+cm.FP)
}

func (cm ConfusionMatrix) Recall() float64 {
	if cm.TP+cm.FN == 0 {
		return 0
	}
	return float64(cm.TP) / float64(cm.TP+cm.FN)
}

// F1 is 0 when precision and recall are both 0.
func (cm ConfusionMatrix) F1() float64 {
	p, r := cm.Precision(), cm.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
