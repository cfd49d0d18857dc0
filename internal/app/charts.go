package app

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"rxmediq-tui/internal/service"

	"github.com/charmbracelet/lipgloss"
)

const (
	maxChartRows     = 12
	histogramBuckets = 8
)

type chartBar struct {
	label string
	value float64
}

// renderPlot draws a chart-ready plot as horizontal bars. Traces with x and
// y are drawn as given; traces with only x are counted like a histogram.
func renderPlot(plot service.Plot, width int) string {
	lines := make([]string, 0, maxChartRows+4)
	if title := plotTitle(plot.Layout); title != "" {
		lines = append(lines, subHeaderStyle.Render(title))
	}

	for i, trace := range plot.Data {
		bars := traceBars(trace)
		if len(bars) == 0 {
			continue
		}
		name := strings.TrimSpace(asString(trace["name"]))
		if name == "" && len(plot.Data) > 1 {
			name = fmt.Sprintf("series %d", i+1)
		}
		if name != "" {
			lines = append(lines, jsonKeyStyle.Render(name))
		}
		lines = append(lines, renderBars(bars, width)...)
	}

	if len(lines) == 0 {
		return mutedTextStyle("No chart data.")
	}
	return strings.Join(lines, "\n")
}

func plotTitle(layout map[string]any) string {
	switch title := layout["title"].(type) {
	case string:
		return title
	case map[string]any:
		return asString(title["text"])
	default:
		return ""
	}
}

func traceBars(trace map[string]any) []chartBar {
	xs, _ := trace["x"].([]any)
	ys, _ := trace["y"].([]any)

	if len(ys) > 0 && len(xs) == len(ys) {
		bars := make([]chartBar, 0, len(xs))
		for i := range xs {
			value, ok := asFloat(ys[i])
			if !ok {
				continue
			}
			bars = append(bars, chartBar{label: asString(xs[i]), value: value})
		}
		return bars
	}
	if len(xs) > 0 {
		return histogramBars(xs)
	}
	return nil
}

func histogramBars(values []any) []chartBar {
	numbers := make([]float64, 0, len(values))
	for _, raw := range values {
		if f, ok := asFloat(raw); ok {
			numbers = append(numbers, f)
		}
	}
	if len(numbers) == len(values) {
		return numericBuckets(numbers)
	}

	counts := map[string]float64{}
	for _, raw := range values {
		counts[asString(raw)]++
	}
	bars := make([]chartBar, 0, len(counts))
	for label, count := range counts {
		bars = append(bars, chartBar{label: label, value: count})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].label < bars[j].label })
	return bars
}

func numericBuckets(numbers []float64) []chartBar {
	low, high := numbers[0], numbers[0]
	for _, n := range numbers {
		low = math.Min(low, n)
		high = math.Max(high, n)
	}
	if high == low {
		return []chartBar{{label: formatNumber(low), value: float64(len(numbers))}}
	}

	step := (high - low) / histogramBuckets
	counts := make([]float64, histogramBuckets)
	for _, n := range numbers {
		idx := int((n - low) / step)
		if idx >= histogramBuckets {
			idx = histogramBuckets - 1
		}
		counts[idx]++
	}
	bars := make([]chartBar, 0, histogramBuckets)
	for i, count := range counts {
		from := low + float64(i)*step
		bars = append(bars, chartBar{
			label: fmt.Sprintf("%s-%s", formatNumber(from), formatNumber(from+step)),
			value: count,
		})
	}
	return bars
}

func renderBars(bars []chartBar, width int) []string {
	if len(bars) > maxChartRows {
		bars = bars[:maxChartRows]
	}
	labelW := 4
	peak := 0.0
	for _, bar := range bars {
		labelW = max(labelW, lipgloss.Width(bar.label))
		peak = math.Max(peak, bar.value)
	}
	labelW = min(labelW, 14)
	barW := max(4, width-labelW-10)

	lines := make([]string, 0, len(bars))
	for _, bar := range bars {
		filled := 0
		if peak > 0 {
			filled = int(math.Round(clampFloat(bar.value/peak, 0, 1) * float64(barW)))
		}
		label := truncateText(bar.label, labelW)
		lines = append(lines, fmt.Sprintf("%-*s %s %s",
			labelW,
			label,
			barStyle.Render(strings.Repeat("█", filled))+strings.Repeat(" ", barW-filled),
			formatNumber(bar.value),
		))
	}
	return lines
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e12 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return formatNumber(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
