package app

import (
	"fmt"
	"math"
	"strings"

	"rxmediq-tui/internal/ops"
	"rxmediq-tui/internal/service"

	"github.com/charmbracelet/lipgloss"
)

var (
	chromeBG        = lipgloss.Color("#05090C")
	panelBorder     = lipgloss.Color("#2D6A80")
	accentPrimary   = lipgloss.Color("#50E3C2")
	accentSecondary = lipgloss.Color("#F6AE2D")
	mutedText       = lipgloss.Color("#8CA1AE")
	warningText     = lipgloss.Color("#FF6B6B")
)

var (
	headerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(accentPrimary)

	subHeaderStyle = lipgloss.NewStyle().
			Foreground(mutedText)

	statusStyle = lipgloss.NewStyle().
			Foreground(accentSecondary).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(warningText).
			Bold(true)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelBorder).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedText)

	jsonKeyStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(accentPrimary)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(mutedText)

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(chromeBG).
			Background(accentPrimary)
)

func mutedTextStyle(text string) string {
	return lipgloss.NewStyle().Foreground(mutedText).Render(text)
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.help.Width = m.width
	m.vizPanel.Width = max(20, m.width-8)
	m.vizPanel.Height = clampInt(m.height-26, 4, 16)
	m.pathInput.Width = max(20, m.width-12)
	m.vizPanel.SetContent(m.renderVisualizationList())
}

func (m Model) View() string {
	innerWidth := max(40, m.width-2)

	parts := []string{
		headerStyle.Render("RxMediq") + subHeaderStyle.Render("drug prediction and model retraining"),
		m.renderTabs(),
		m.renderStatusLine(),
	}
	if m.errorText != "" {
		parts = append(parts, errorStyle.Render(m.errorText))
	}

	switch m.screen {
	case screenHome:
		parts = append(parts, m.viewHome(innerWidth))
	case screenInsights:
		parts = append(parts, m.viewInsights(innerWidth))
	case screenPredict:
		parts = append(parts, m.viewPredict(innerWidth))
	case screenRetrain:
		parts = append(parts, m.viewRetrain(innerWidth))
	}
	parts = append(parts, helpStyle.Render(m.help.View(screenKeys{keys: m.keys, screen: m.screen})))

	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#E8F0F2")).
		Width(innerWidth).
		Padding(0, 1).
		Render(strings.Join(parts, "\n"))
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(screenOrder))
	for i, s := range screenOrder {
		label := fmt.Sprintf("F%d %s", i+1, s.title())
		if s == m.screen {
			tabs = append(tabs, activeTabStyle.Render(label))
			continue
		}
		tabs = append(tabs, tabStyle.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderStatusLine() string {
	status := m.statusText
	if m.busy() {
		status = m.spinner.View() + " " + status
	}
	return statusStyle.Render(status)
}

func renderPanel(title, body string, width int, focused bool) string {
	borderColor := panelBorder
	if focused {
		borderColor = accentSecondary
	}
	style := panelStyle.
		BorderForeground(borderColor).
		Width(width)
	return style.Render(panelTitleStyle.Render(title) + "\n" + body)
}

func (m Model) viewHome(width int) string {
	body := strings.Join([]string{
		"Predict a drug for a patient and keep the model current with new data.",
		"",
		jsonKeyStyle.Render("1") + "  Insights   live age and severity distributions",
		jsonKeyStyle.Render("2") + "  Predict    recommend a drug for a patient",
		jsonKeyStyle.Render("3") + "  Retrain    upload a CSV dataset and review the new model",
	}, "\n")
	return renderPanel("Welcome", body, width-4, false)
}

func (m Model) viewInsights(width int) string {
	view := m.liveView
	var body string
	switch {
	case view.Err != "":
		body = errorStyle.Render(view.Err)
	case !view.HasSnapshot || view.Snapshot == nil:
		body = mutedTextStyle("Loading live data...")
	default:
		chartW := max(20, (width-10)/2)
		left := renderPanel("Age distribution", renderPlot(view.Snapshot.AgePlot, chartW-4), chartW, false)
		right := renderPanel("Severity distribution", renderPlot(view.Snapshot.SeverityPlot, chartW-4), chartW, false)
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
		body += "\n" + mutedTextStyle("updated "+view.UpdatedAt.Format("15:04:05"))
	}
	return body
}

func (m Model) viewPredict(width int) string {
	rows := []string{
		m.formRow(fieldDisease, "Disease", m.diseaseInput.View()),
		m.formRow(fieldAge, "Age", m.ageInput.View()+mutedTextStyle(fmt.Sprintf("  (%d-%d)", service.MinAge, service.MaxAge))),
		m.formRow(fieldGender, "Gender", renderChoice(genderLabels(), m.genderIdx)),
		m.formRow(fieldSeverity, "Severity", renderChoice(severityLabels(), m.severityIdx)),
	}
	if m.formError != "" {
		rows = append(rows, "", errorStyle.Render(m.formError))
	}
	form := renderPanel("Patient", strings.Join(rows, "\n"), width-4, true)

	var result string
	switch m.predictState.Kind() {
	case ops.KindPending:
		result = m.spinner.View() + " Predicting..."
	case ops.KindSucceeded:
		value, _ := m.predictState.Value()
		result = "Predicted drug: " + jsonKeyStyle.Render(value.PredictedDrug)
	case ops.KindFailed:
		reason, _ := m.predictState.Reason()
		result = errorStyle.Render(reason)
	default:
		result = mutedTextStyle("Fill in the form and press ctrl+s.")
	}
	return form + "\n" + renderPanel("Prediction", result, width-4, false)
}

func (m Model) formRow(field predictField, label, control string) string {
	marker := "  "
	if m.focusField == field {
		marker = statusStyle.Render("> ")
	}
	return fmt.Sprintf("%s%-9s %s", marker, label, control)
}

func renderChoice(options []string, selected int) string {
	parts := make([]string, 0, len(options))
	for i, option := range options {
		if i == selected {
			parts = append(parts, activeTabStyle.Render(option))
			continue
		}
		parts = append(parts, tabStyle.Render(option))
	}
	return strings.Join(parts, "")
}

func genderLabels() []string {
	labels := make([]string, len(genderOptions))
	for i, g := range genderOptions {
		labels[i] = string(g)
	}
	return labels
}

func severityLabels() []string {
	labels := make([]string, len(severityOptions))
	for i, s := range severityOptions {
		labels[i] = string(s)
	}
	return labels
}

func (m Model) viewRetrain(width int) string {
	upload := []string{
		"Dataset (CSV)",
		m.pathInput.View(),
	}
	if m.payload != nil {
		upload = append(upload, fmt.Sprintf("Selected: %s (%s)", m.payload.Name, formatBytes(m.payload.Size)))
	} else {
		upload = append(upload, mutedTextStyle("enter to select, ctrl+s to upload"))
	}
	if m.payloadNote != "" {
		upload = append(upload, statusStyle.Render(m.payloadNote))
	}
	if m.retrainError != "" {
		upload = append(upload, errorStyle.Render(m.retrainError))
	}

	var outcome string
	switch m.retrainState.Kind() {
	case ops.KindPending:
		outcome = m.spinner.View() + " Retraining..."
	case ops.KindSucceeded:
		value, _ := m.retrainState.Value()
		outcome = renderOutcome(value, width-12)
	case ops.KindFailed:
		reason, _ := m.retrainState.Reason()
		outcome = errorStyle.Render(reason)
	default:
		outcome = mutedTextStyle("No retraining run yet.")
	}

	vizBody := m.vizPanel.View()
	if m.vizView.Err != "" {
		vizBody = errorStyle.Render(m.vizView.Err) + "\n" + vizBody
	}

	return strings.Join([]string{
		renderPanel("Upload", strings.Join(upload, "\n"), width-4, true),
		renderPanel("Result", outcome, width-4, false),
		renderPanel("Visualizations", vizBody, width-4, false),
	}, "\n")
}

func renderOutcome(outcome service.RetrainOutcome, width int) string {
	lines := []string{}
	if outcome.Message != "" {
		lines = append(lines, outcome.Message)
	}
	if outcome.DatasetSize > 0 {
		lines = append(lines, fmt.Sprintf("Dataset size: %d rows", outcome.DatasetSize))
	}
	meterW := max(10, min(40, width-24))
	metrics := []struct {
		name  string
		value float64
	}{
		{"Accuracy", outcome.Metrics.Accuracy},
		{"Precision", outcome.Metrics.Precision},
		{"Recall", outcome.Metrics.Recall},
		{"F1 score", outcome.Metrics.F1Score},
	}
	for _, metric := range metrics {
		lines = append(lines, fmt.Sprintf("%-10s %s %5.1f%%", metric.name, renderMeter(metric.value*100, meterW), metric.value*100))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderVisualizationList() string {
	if len(m.vizLocators) == 0 {
		return mutedTextStyle("No visualizations yet.")
	}
	lines := make([]string, 0, len(m.vizLocators)+1)
	if m.vizSource != "" {
		lines = append(lines, subHeaderStyle.Render("from "+m.vizSource))
	}
	for i, locator := range m.vizLocators {
		lines = append(lines, fmt.Sprintf("%2d. %s", i+1, locator))
	}
	return strings.Join(lines, "\n")
}

func renderMeter(percent float64, width int) string {
	width = max(4, width)
	p := clampFloat(percent, 0, 100)
	filled := int(math.Round((p / 100.0) * float64(width)))
	filled = clampInt(filled, 0, width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func formatBytes(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func truncateText(raw string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	if len(raw) <= maxLen {
		return raw
	}
	return raw[:maxLen-3] + "..."
}

func clampFloat(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
