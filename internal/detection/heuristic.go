package detection

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// edgeLevel is the Sobel magnitude at which a pixel counts as an edge.
const edgeLevel = 96

const (
	// minRowEdges is how many edge pixels a row needs to count as ink.
	minRowEdges = 3
	// lineGap is the number of blank rows tolerated inside one print line.
	lineGap = 2
	// blockGap is the largest vertical gap, in rows, between two lines of
	// the same block.
	blockGap = 12
	// minLineHeight and minLineWidth reject specks and rules.
	minLineHeight = 4
	minLineWidth  = 16
	// maxBlockDensity rejects photos and logos, which are mostly edges.
	maxBlockDensity = 0.5
	// padding is added around each block so glyph tails are not cut.
	padding = 2
)

// HeuristicDetector finds blocks of printed lines without a model.
//
// Receipts are a single column of short horizontal lines. The detector
// projects the edge map onto rows to find print lines, groups nearby lines
// into blocks and scores each block. Wide blocks spanning several lines
// score highest; isolated marks score lowest. Every block is reported as
// ClassInvoice, so the pipeline reads all of them into the fallback text.
type HeuristicDetector struct {
	// Confidence is the minimum block score kept. Zero means
	// DefaultConfidence.
	Confidence float64
}

// NewHeuristicDetector returns a local detector with the given threshold.
// Zero selects DefaultConfidence.
func NewHeuristicDetector(confidence float64) *HeuristicDetector {
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	return &HeuristicDetector{Confidence: confidence}
}

// printLine is a run of ink rows and the columns they span, image relative.
type printLine struct {
	top, bottom int // inclusive rows
	left, right int // inclusive columns
}

// Detect returns the print blocks of img in reading order, top to bottom.
func (d *HeuristicDetector) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	minConfidence := d.Confidence
	if minConfidence == 0 {
		minConfidence = DefaultConfidence
	}

	bounds := img.Bounds()
	edges := detectEdges(img)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := findLines(edges)
	regions := make([]Region, 0)
	for _, block := range groupLines(lines) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		box := blockBox(block, bounds.Dx(), bounds.Dy())
		confidence := scoreBlock(edges, box, len(block), bounds.Dx())
		if confidence < minConfidence {
			continue
		}
		regions = append(regions, Region{
			Class: ClassInvoice,
			Box: Box{
				X1: box.left + bounds.Min.X,
				Y1: box.top + bounds.Min.Y,
				X2: box.right + 1 + bounds.Min.X,
				Y2: box.bottom + 1 + bounds.Min.Y,
			},
			Confidence: math.Round(confidence*1000) / 1000,
		})
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Box.Y1 < regions[j].Box.Y1
	})
	return regions, nil
}

// detectEdges thresholds the Sobel gradient of img into a [row][col] mask.
func detectEdges(img image.Image) [][]bool {
	mask := segment.Threshold(effect.Sobel(img), edgeLevel)
	b := mask.Bounds()

	edges := make([][]bool, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		edges[y] = make([]bool, b.Dx())
		for x := 0; x < b.Dx(); x++ {
			edges[y][x] = mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 0
		}
	}
	return edges
}

// findLines projects edges onto rows and returns the print lines that are
// at least minLineHeight tall and minLineWidth wide.
func findLines(edges [][]bool) []printLine {
	lines := make([]printLine, 0)
	var cur *printLine
	blank := 0

	flush := func() {
		if cur != nil && cur.bottom-cur.top+1 >= minLineHeight && cur.right-cur.left+1 >= minLineWidth {
			lines = append(lines, *cur)
		}
		cur = nil
	}

	for y, row := range edges {
		count, left, right := 0, -1, -1
		for x, e := range row {
			if !e {
				continue
			}
			count++
			if left < 0 {
				left = x
			}
			right = x
		}

		if count < minRowEdges {
			blank++
			if cur != nil && blank > lineGap {
				flush()
			}
			continue
		}

		blank = 0
		if cur == nil {
			cur = &printLine{top: y, bottom: y, left: left, right: right}
			continue
		}
		cur.bottom = y
		cur.left = min(cur.left, left)
		cur.right = max(cur.right, right)
	}
	flush()
	return lines
}

// groupLines splits lines, ordered top to bottom, into blocks wherever the
// gap to the previous line exceeds blockGap.
func groupLines(lines []printLine) [][]printLine {
	blocks := make([][]printLine, 0)
	for i, l := range lines {
		if i == 0 || l.top-lines[i-1].bottom-1 > blockGap {
			blocks = append(blocks, []printLine{l})
			continue
		}
		last := len(blocks) - 1
		blocks[last] = append(blocks[last], l)
	}
	return blocks
}

// blockBox is the padded extent of block, clipped to the image.
func blockBox(block []printLine, width, height int) printLine {
	box := block[0]
	for _, l := range block[1:] {
		box.bottom = max(box.bottom, l.bottom)
		box.left = min(box.left, l.left)
		box.right = max(box.right, l.right)
	}
	box.top = max(box.top-padding, 0)
	box.left = max(box.left-padding, 0)
	box.bottom = min(box.bottom+padding, height-1)
	box.right = min(box.right+padding, width-1)
	return box
}

// scoreBlock rates a block in [0,1]. Half the score is the share of
// horizontal edge runs, which is high for print. The rest rewards blocks
// spanning the receipt width and blocks of several lines.
func scoreBlock(edges [][]bool, box printLine, lines, width int) float64 {
	w := box.right - box.left + 1
	h := box.bottom - box.top + 1

	count := 0
	for y := box.top; y <= box.bottom; y++ {
		for x := box.left; x <= box.right; x++ {
			if edges[y][x] {
				count++
			}
		}
	}
	if float64(count)/float64(w*h) > maxBlockDensity {
		return 0
	}

	coverage := float64(w) / float64(width)
	tallness := math.Min(float64(lines)/3, 1)
	horizontal := horizontalScore(edges, box.left, box.top, w, h)

	return 0.5*horizontal + 0.3*coverage + 0.2*tallness
}

// horizontalScore is the share of horizontal edge runs among all runs in
// the window. Lines of print score high.
func horizontalScore(edges [][]bool, x, y, w, h int) float64 {
	horizontalRuns := 0
	verticalRuns := 0

	for row := y; row < y+h; row++ {
		inRun := false
		for col := x; col < x+w; col++ {
			if edges[row][col] {
				if !inRun {
					horizontalRuns++
					inRun = true
				}
			} else {
				inRun = false
			}
		}
	}

	for col := x; col < x+w; col++ {
		inRun := false
		for row := y; row < y+h; row++ {
			if edges[row][col] {
				if !inRun {
					verticalRuns++
					inRun = true
				}
			} else {
				inRun = false
			}
		}
	}

	if horizontalRuns+verticalRuns == 0 {
		return 0
	}
	return float64(horizontalRuns) / float64(horizontalRuns+verticalRuns)
}
