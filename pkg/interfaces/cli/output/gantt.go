package output

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
	"github.com/vsinha/forgetrace/pkg/domain/services"
)

// GanttChart draws the batches of a traceability chain on a time axis, one
// row per stage
type GanttChart struct {
	Width        int
	Height       int
	MarginLeft   int
	MarginTop    int
	MarginRight  int
	MarginBottom int
	RowHeight    int
	StartTime    time.Time
	EndTime      time.Time
}

// GanttBar is one batch on the chart
type GanttBar struct {
	BatchID entities.BatchID
	Stage   entities.StageKind
	Type    entities.BatchType
	Pieces  entities.Pieces
	Start   time.Time
	End     time.Time
	X       int
	Width   int
	Color   string
}

// NewGanttChart sizes a chart for the batches in chain
func NewGanttChart(chain *services.TraceabilityChain) *GanttChart {
	gc := &GanttChart{
		Width:        1000,
		MarginLeft:   140,
		MarginTop:    60,
		MarginRight:  40,
		MarginBottom: 60,
		RowHeight:    30,
	}
	gc.Height = len(entities.Stages)*gc.RowHeight + gc.MarginTop + gc.MarginBottom

	first := true
	for _, link := range chain.Links {
		start, end := batchSpan(link.Batch)
		if first || start.Before(gc.StartTime) {
			gc.StartTime = start
		}
		if first || end.After(gc.EndTime) {
			gc.EndTime = end
		}
		first = false
	}

	// 5% padding either side so edge bars stay visible
	padding := gc.EndTime.Sub(gc.StartTime) / 20
	gc.StartTime = gc.StartTime.Add(-padding)
	gc.EndTime = gc.EndTime.Add(padding)
	return gc
}

// batchSpan returns when a batch occupied its resource. Unfinished batches
// are drawn from application to start.
func batchSpan(b *entities.StageBatch) (time.Time, time.Time) {
	start := b.StartAt
	if start.IsZero() {
		start = b.AppliedAt
	}
	end := b.EndAt
	if end.IsZero() {
		end = start
	}
	return start, end
}

// GenerateSVG renders the chart
func (gc *GanttChart) GenerateSVG(chain *services.TraceabilityChain) string {
	if len(chain.Links) == 0 {
		return gc.generateEmptyChart()
	}

	var svg strings.Builder
	fmt.Fprintf(&svg, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`, gc.Width, gc.Height)
	svg.WriteString(`<defs><style>`)
	svg.WriteString(`.stage-label { font-family: Arial, sans-serif; font-size: 12px; fill: #333; }`)
	svg.WriteString(`.time-label { font-family: Arial, sans-serif; font-size: 10px; fill: #666; }`)
	svg.WriteString(`.title { font-family: Arial, sans-serif; font-size: 16px; font-weight: bold; fill: #333; }`)
	svg.WriteString(`.grid-line { stroke: #e0e0e0; stroke-width: 1; }`)
	svg.WriteString(`.batch-bar { stroke: #333; stroke-width: 1; }`)
	svg.WriteString(`.batch-text { font-family: Arial, sans-serif; font-size: 9px; fill: white; }`)
	svg.WriteString(`</style></defs>`)

	fmt.Fprintf(&svg, `<rect width="%d" height="%d" fill="white"/>`, gc.Width, gc.Height)
	fmt.Fprintf(&svg, `<text x="%d" y="30" class="title" text-anchor="middle">Lot %s</text>`,
		gc.Width/2, html.EscapeString(chain.ItemWorkflowID))

	gc.drawTimeAxis(&svg)
	for i, stage := range entities.Stages {
		y := gc.MarginTop + i*gc.RowHeight
		fmt.Fprintf(&svg, `<text x="%d" y="%d" class="stage-label" text-anchor="end">%s</text>`,
			gc.MarginLeft-15, y+gc.RowHeight/2+4, stage)
		fmt.Fprintf(&svg, `<line x1="%d" y1="%d" x2="%d" y2="%d" class="grid-line"/>`,
			gc.MarginLeft, y+gc.RowHeight, gc.Width-gc.MarginRight, y+gc.RowHeight)
	}
	for _, bar := range gc.createBars(chain) {
		gc.drawBar(&svg, bar)
	}

	svg.WriteString(`</svg>`)
	return svg.String()
}

func (gc *GanttChart) createBars(chain *services.TraceabilityChain) []GanttBar {
	chartWidth := gc.Width - gc.MarginLeft - gc.MarginRight
	total := gc.EndTime.Sub(gc.StartTime)

	bars := make([]GanttBar, 0, len(chain.Links))
	for _, link := range chain.Links {
		start, end := batchSpan(link.Batch)
		bar := GanttBar{
			BatchID: link.Batch.ID,
			Stage:   link.Batch.Kind,
			Type:    link.Batch.Type,
			Pieces:  link.Allocation.CompletedPiecesCount,
			Start:   start,
			End:     end,
			Color:   gc.getBarColor(link.Batch.Type),
		}
		if total > 0 {
			bar.X = gc.MarginLeft + int(float64(start.Sub(gc.StartTime))/float64(total)*float64(chartWidth))
			bar.Width = int(float64(end.Sub(start)) / float64(total) * float64(chartWidth))
		} else {
			bar.X = gc.MarginLeft
			bar.Width = chartWidth
		}
		if bar.Width < 2 {
			bar.Width = 2
		}
		bars = append(bars, bar)
	}
	return bars
}

func (gc *GanttChart) drawTimeAxis(svg *strings.Builder) {
	axisY := gc.Height - gc.MarginBottom + 20
	fmt.Fprintf(svg, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#333"/>`,
		gc.MarginLeft, axisY, gc.Width-gc.MarginRight, axisY)

	const ticks = 5
	chartWidth := gc.Width - gc.MarginLeft - gc.MarginRight
	step := gc.EndTime.Sub(gc.StartTime) / ticks
	for i := 0; i <= ticks; i++ {
		x := gc.MarginLeft + i*chartWidth/ticks
		label := gc.StartTime.Add(time.Duration(i) * step).Format("01-02 15:04")
		fmt.Fprintf(svg, `<text x="%d" y="%d" class="time-label" text-anchor="middle">%s</text>`, x, axisY+15, label)
	}
}

func (gc *GanttChart) drawBar(svg *strings.Builder, bar GanttBar) {
	row := int(bar.Stage)
	barY := gc.MarginTop + row*gc.RowHeight + 2
	barHeight := gc.RowHeight - 4

	fmt.Fprintf(svg, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" class="batch-bar">`,
		bar.X, barY, bar.Width, barHeight, bar.Color)
	fmt.Fprintf(svg, `<title>Batch %d (%s), %d pieces, %s to %s</title></rect>`,
		bar.BatchID, bar.Type, bar.Pieces, bar.Start.Format(time.RFC3339), bar.End.Format(time.RFC3339))

	if bar.Width > 40 {
		fmt.Fprintf(svg, `<text x="%d" y="%d" class="batch-text" text-anchor="middle">%d pcs</text>`,
			bar.X+bar.Width/2, barY+barHeight/2+3, bar.Pieces)
	}
}

func (gc *GanttChart) getBarColor(batchType entities.BatchType) string {
	if batchType == entities.BatchRework {
		return "#FF9800"
	}
	return "#4CAF50"
}

func (gc *GanttChart) generateEmptyChart() string {
	return fmt.Sprintf(`<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`+
		`<rect width="%d" height="%d" fill="white"/>`+
		`<text x="%d" y="%d" text-anchor="middle">No batches in chain</text></svg>`,
		gc.Width, gc.Height, gc.Width, gc.Height, gc.Width/2, gc.Height/2)
}
