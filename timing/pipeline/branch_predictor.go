package pipeline

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the number of branches resolved against a prediction.
	Predictions uint64
	// Correct is the number of correct predictions.
	Correct uint64
	// Mispredictions is the number of incorrect predictions.
	Mispredictions uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions) * 100
}

// MispredictionRate returns the misprediction rate as a percentage.
func (s BranchPredictorStats) MispredictionRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Predictions) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the address fetched next.
	Target int32
}

// BranchPredictor is a static always-not-taken predictor. Fetch always
// continues sequentially; a BEQ that resolves taken in EX/MEM is a
// misprediction and squashes the younger instructions.
type BranchPredictor struct {
	stats BranchPredictorStats
}

// NewBranchPredictor creates a new branch predictor.
func NewBranchPredictor() *BranchPredictor {
	return &BranchPredictor{}
}

// Predict makes a prediction for the instruction fetched at pc.
func (bp *BranchPredictor) Predict(pc int32) Prediction {
	return Prediction{Taken: false, Target: pc + 1}
}

// Update records the resolved outcome of a branch.
func (bp *BranchPredictor) Update(taken bool) {
	bp.stats.Predictions++
	if taken {
		bp.stats.Mispredictions++
	} else {
		bp.stats.Correct++
	}
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears the statistics.
func (bp *BranchPredictor) Reset() {
	bp.stats = BranchPredictorStats{}
}
