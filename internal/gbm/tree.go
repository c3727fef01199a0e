package gbm

import (
	"math"
	"sort"
)

// Node is one tree node. Feature == -1 marks a leaf.
type Node struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold,omitempty"`
	MissingLeft bool    `json:"missing_left,omitempty"`
	Left        int     `json:"left,omitempty"`
	Right       int     `json:"right,omitempty"`
	Value       float64 `json:"value,omitempty"`
}

// Tree is a single regression tree. Leaf values carry the learning
// rate already applied.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict traverses the tree for one feature row. NaN values follow
// the default direction learned at each split.
func (t *Tree) Predict(row []float64) float64 {
	idx := 0
	for {
		n := &t.Nodes[idx]
		if n.Feature < 0 {
			return n.Value
		}
		v := row[n.Feature]
		if math.IsNaN(v) {
			if n.MissingLeft {
				idx = n.Left
			} else {
				idx = n.Right
			}
			continue
		}
		if v <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

const minSplitGain = 1e-10

// split is a candidate split of a leaf.
type split struct {
	feature     int
	threshold   float64
	missingLeft bool
	gain        float64
}

// grower builds one tree leaf-wise from per-sample gradients.
type grower struct {
	ds       *Dataset
	grad     []float64 // weighted
	hess     []float64 // weighted
	params   Params
	features []int // subsampled column indexes for this tree

	gains map[int]float64 // split-gain accumulation per feature
}

// leafState tracks a growable leaf during construction.
type leafState struct {
	nodeIdx int
	indices []int
	depth   int
	sumG    float64
	sumH    float64
	best    *split
}

// thresholdLeafSum applies the L1 soft-threshold to a gradient sum.
func thresholdLeafSum(g, l1 float64) float64 {
	switch {
	case g > l1:
		return g - l1
	case g < -l1:
		return g + l1
	default:
		return 0
	}
}

func (gr *grower) score(g, h float64) float64 {
	t := thresholdLeafSum(g, gr.params.LambdaL1)
	return t * t / (h + gr.params.LambdaL2)
}

func (gr *grower) leafValue(g, h float64) float64 {
	return -thresholdLeafSum(g, gr.params.LambdaL1) / (h + gr.params.LambdaL2)
}

// bestSplit finds the gain-maximising split of the given samples, or
// nil when no valid split exists. Missing values are tried on both
// sides and the better direction is recorded.
func (gr *grower) bestSplit(indices []int, sumG, sumH float64) *split {
	if len(indices) < 2*gr.params.MinChildSamples {
		return nil
	}
	parentScore := gr.score(sumG, sumH)

	var best *split
	for _, f := range gr.features {
		present := make([]int, 0, len(indices))
		var missG, missH float64
		missCount := 0
		for _, i := range indices {
			if math.IsNaN(gr.ds.X[i][f]) {
				missG += gr.grad[i]
				missH += gr.hess[i]
				missCount++
			} else {
				present = append(present, i)
			}
		}
		if len(present) < 2 {
			continue
		}
		sort.Slice(present, func(a, b int) bool {
			return gr.ds.X[present[a]][f] < gr.ds.X[present[b]][f]
		})

		var leftG, leftH float64
		for pos := 0; pos < len(present)-1; pos++ {
			i := present[pos]
			leftG += gr.grad[i]
			leftH += gr.hess[i]

			cur := gr.ds.X[i][f]
			next := gr.ds.X[present[pos+1]][f]
			if cur == next {
				continue
			}
			threshold := cur + (next-cur)/2

			// Missing samples routed right.
			nL, nR := pos+1, len(present)-pos-1+missCount
			if nL >= gr.params.MinChildSamples && nR >= gr.params.MinChildSamples {
				gain := gr.score(leftG, leftH) + gr.score(sumG-leftG, sumH-leftH) - parentScore
				if gain > minSplitGain && (best == nil || gain > best.gain) {
					best = &split{feature: f, threshold: threshold, missingLeft: false, gain: gain}
				}
			}

			if missCount == 0 {
				continue
			}

			// Missing samples routed left.
			nL, nR = pos+1+missCount, len(present)-pos-1
			if nL >= gr.params.MinChildSamples && nR >= gr.params.MinChildSamples {
				gL, hL := leftG+missG, leftH+missH
				gain := gr.score(gL, hL) + gr.score(sumG-gL, sumH-hL) - parentScore
				if gain > minSplitGain && (best == nil || gain > best.gain) {
					best = &split{feature: f, threshold: threshold, missingLeft: true, gain: gain}
				}
			}
		}
	}
	return best
}

// grow builds the tree and returns it together with the per-leaf
// sample assignment, so the objective can renew leaf values.
func (gr *grower) grow() (*Tree, []*leafState) {
	n := gr.ds.Len()
	rootIdx := make([]int, n)
	var sumG, sumH float64
	for i := 0; i < n; i++ {
		rootIdx[i] = i
		sumG += gr.grad[i]
		sumH += gr.hess[i]
	}

	tree := &Tree{Nodes: []Node{{Feature: -1}}}
	root := &leafState{nodeIdx: 0, indices: rootIdx, depth: 0, sumG: sumG, sumH: sumH}
	root.best = gr.bestSplitFor(root)
	leaves := []*leafState{root}

	for len(leaves) < gr.params.NumLeaves {
		// Pick the leaf whose best split has the highest gain.
		bestIdx := -1
		for li, l := range leaves {
			if l.best == nil {
				continue
			}
			if bestIdx == -1 || l.best.gain > leaves[bestIdx].best.gain {
				bestIdx = li
			}
		}
		if bestIdx == -1 {
			break
		}

		l := leaves[bestIdx]
		s := l.best
		gr.gains[s.feature] += s.gain

		left := &leafState{depth: l.depth + 1}
		right := &leafState{depth: l.depth + 1}
		leftIdx := make([]int, 0, len(l.indices))
		rightIdx := make([]int, 0, len(l.indices))
		for _, i := range l.indices {
			v := gr.ds.X[i][s.feature]
			goLeft := false
			if math.IsNaN(v) {
				goLeft = s.missingLeft
			} else {
				goLeft = v <= s.threshold
			}
			if goLeft {
				leftIdx = append(leftIdx, i)
				left.sumG += gr.grad[i]
				left.sumH += gr.hess[i]
			} else {
				rightIdx = append(rightIdx, i)
				right.sumG += gr.grad[i]
				right.sumH += gr.hess[i]
			}
		}
		left.indices = leftIdx
		right.indices = rightIdx

		left.nodeIdx = len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, Node{Feature: -1})
		right.nodeIdx = len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, Node{Feature: -1})

		parent := &tree.Nodes[l.nodeIdx]
		parent.Feature = s.feature
		parent.Threshold = s.threshold
		parent.MissingLeft = s.missingLeft
		parent.Left = left.nodeIdx
		parent.Right = right.nodeIdx

		left.best = gr.bestSplitFor(left)
		right.best = gr.bestSplitFor(right)

		leaves[bestIdx] = left
		leaves = append(leaves, right)
	}

	for _, l := range leaves {
		tree.Nodes[l.nodeIdx].Value = gr.leafValue(l.sumG, l.sumH)
	}
	return tree, leaves
}

// bestSplitFor honours the depth cap before searching.
func (gr *grower) bestSplitFor(l *leafState) *split {
	if gr.params.MaxDepth > 0 && l.depth >= gr.params.MaxDepth {
		return nil
	}
	return gr.bestSplit(l.indices, l.sumG, l.sumH)
}
