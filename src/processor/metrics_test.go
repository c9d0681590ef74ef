package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfusionMatrix(t *testing.T) {
	yTrue := []float64{1, 1, 1, 0, 0, 0, 0, 1}
	yPred := []int{1, 1, 0, 0, 0, 1, 0, 1}

	cm := NewConfusionMatrix(yTrue, yPred)
	assert.Equal(t, ConfusionMatrix{TN: 3, FP: 1, FN: 1, TP: 3}, cm)
	assert.Equal(t, 8, cm.Total())
	assert.InDelta(t, 0.75, cm.Accuracy(), 1e-12)
	assert.InDelta(t, 0.75, cm.Precision(), 1e-12)
	assert.InDelta(t, 0.75, cm.Recall(), 1e-12)
	assert.InDelta(t, 0.75, cm.F1(), 1e-12)
}

func TestConfusionMatrixDegenerate(t *testing.T) {
	var empty ConfusionMatrix
	assert.Zero(t, empty.Accuracy())
	assert.Zero(t, empty.Precision())
	assert.Zero(t, empty.Recall())
	assert.Zero(t, empty.F1())

	// never predicts the positive class
	cm := NewConfusionMatrix([]float64{1, 0, 0}, []int{0, 0, 0})
	assert.Equal(t, ConfusionMatrix{TN: 2, FN: 1}, cm)
	assert.Zero(t, cm.Precision())
	assert.Zero(t, cm.F1())
	assert.InDelta(t, 2.0/3, cm.Accuracy(), 1e-12)
}

func TestBinaryPredFromProba(t *testing.T) {
	assert.Equal(t, []int{0, 1, 1, 0}, BinaryPredFromProba([]float64{0.1, 0.5, 0.9, 0.49}, 0.5))
	assert.Equal(t, []int{0, 0, 1, 0}, BinaryPredFromProba([]float64{0.1, 0.5, 0.9, 0.49}, 0.7))
}
