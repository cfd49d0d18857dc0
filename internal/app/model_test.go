package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rxmediq-tui/internal/notify"
	"rxmediq-tui/internal/ops"
	"rxmediq-tui/internal/service"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeAPI struct {
	mu sync.Mutex

	live    *service.LiveData
	liveErr error

	visualizations []string
	vizErr         error

	prediction  *service.PredictionResult
	predictErr  error
	lastRequest service.PredictionRequest

	outcome    *service.RetrainOutcome
	retrainErr error
	uploaded   string
}

func (f *fakeAPI) LiveData(ctx context.Context) (*service.LiveData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.liveErr
}

func (f *fakeAPI) Visualizations(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visualizations...), f.vizErr
}

func (f *fakeAPI) Predict(ctx context.Context, request service.PredictionRequest) (*service.PredictionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRequest = request
	return f.prediction, f.predictErr
}

func (f *fakeAPI) Retrain(ctx context.Context, payload *service.UploadPayload) (*service.RetrainOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = payload.Name
	return f.outcome, f.retrainErr
}

func newTestModel(t *testing.T, api *fakeAPI, events *notify.Channel[ops.RetrainComplete]) Model {
	t.Helper()
	if events == nil {
		events = notify.New[ops.RetrainComplete]("test", nil)
	}
	m := NewModelWithOptions(api, events, ModelOptions{
		LiveInterval:          time.Hour,
		VisualizationInterval: time.Hour,
	})
	t.Cleanup(func() {
		m.liveFeed.Stop()
		m.vizFeed.Stop()
		m.cancel()
	})
	return m
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// runCmd executes cmd and flattens batches into their messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, runCmd(c)...)
	}
	return out
}

// awaitInbox reads inbox messages until one satisfies match.
func awaitInbox(t *testing.T, m Model, match func(tea.Msg) bool) tea.Msg {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-m.inbox:
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for inbox message")
			return nil
		}
	}
}

func TestNewModelStartsOnHome(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	if m.screen != screenHome {
		t.Fatalf("expected home screen, got %v", m.screen.title())
	}
	if m.predictState.Kind() != ops.KindIdle || m.retrainState.Kind() != ops.KindIdle {
		t.Fatalf("expected idle operations")
	}
	if m.liveFeed.Active() || m.vizFeed.Active() {
		t.Fatalf("expected no feeds running on home")
	}
}

func TestPresetOpensPredictScreen(t *testing.T) {
	t.Parallel()

	preset := service.PredictionRequest{Disease: "flu", Age: 44, Gender: service.GenderFemale, Severity: service.SeverityHigh}
	m := NewModelWithOptions(&fakeAPI{}, notify.New[ops.RetrainComplete]("test", nil), ModelOptions{
		Preset:       &preset,
		PresetSource: "/tmp/patient.json",
	})

	if m.screen != screenPredict {
		t.Fatalf("expected predict screen, got %v", m.screen.title())
	}
	request, err := m.collectPredictionRequest()
	if err != nil {
		t.Fatalf("collectPredictionRequest returned error: %v", err)
	}
	if request != preset {
		t.Fatalf("unexpected request: %#v", request)
	}
	if !strings.Contains(m.statusText, "/tmp/patient.json") {
		t.Fatalf("unexpected status text: %q", m.statusText)
	}
}

func TestScreenCyclingWraps(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlP})
	if m.screen != screenRetrain {
		t.Fatalf("expected retrain after wrapping back, got %v", m.screen.title())
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.screen != screenHome {
		t.Fatalf("expected home after wrapping forward, got %v", m.screen.title())
	}
}

func TestPredictRejectsOutOfRangeAge(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{prediction: &service.PredictionResult{PredictedDrug: "drugX"}}
	m := newTestModel(t, api, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF3})
	m.diseaseInput.SetValue("flu")
	m.ageInput.SetValue("61")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if cmd != nil {
		t.Fatalf("expected no command for invalid form")
	}
	if !strings.Contains(m.formError, "age") {
		t.Fatalf("unexpected form error: %q", m.formError)
	}
	if m.predictState.Kind() != ops.KindIdle {
		t.Fatalf("expected idle prediction, got %v", m.predictState.Kind())
	}
}

func TestPredictRejectsEmptyDisease(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF3})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("expected no command without a disease")
	}
	if m.formError == "" {
		t.Fatalf("expected form error")
	}
}

func TestPredictSubmitSucceeds(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{prediction: &service.PredictionResult{PredictedDrug: "drugX"}}
	m := newTestModel(t, api, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF3})
	m.diseaseInput.SetValue("flu")

	// disease -> age -> gender, then cycle to female
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRight})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if cmd == nil {
		t.Fatalf("expected submit command")
	}
	if !m.predictState.IsPending() {
		t.Fatalf("expected pending prediction, got %v", m.predictState.Kind())
	}
	if _, again := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS}); again != nil {
		t.Fatalf("expected submit to be ignored while pending")
	}

	for _, msg := range runCmd(cmd) {
		if _, ok := msg.(predictionDoneMsg); ok {
			next, _ := m.Update(msg)
			m = next.(Model)
		}
	}

	value, ok := m.predictState.Value()
	if !ok || value.PredictedDrug != "drugX" {
		t.Fatalf("unexpected prediction state: %v", m.predictState.Kind())
	}
	want := service.PredictionRequest{Disease: "flu", Age: 30, Gender: service.GenderFemale, Severity: service.SeverityNormal}
	if api.lastRequest != want {
		t.Fatalf("unexpected request sent: %#v", api.lastRequest)
	}
	if !strings.Contains(m.View(), "drugX") {
		t.Fatalf("expected prediction in view")
	}
}

func TestPredictFailureShowsGenericMessage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{predictErr: errors.New("connection refused")}
	m := newTestModel(t, api, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF3})
	m.diseaseInput.SetValue("flu")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	for _, msg := range runCmd(cmd) {
		if _, ok := msg.(predictionDoneMsg); ok {
			next, _ := m.Update(msg)
			m = next.(Model)
		}
	}

	reason, ok := m.predictState.Reason()
	if !ok || reason != predictFailure {
		t.Fatalf("unexpected failure reason: %q", reason)
	}
	if strings.Contains(m.View(), "connection refused") {
		t.Fatalf("expected transport detail to stay out of the view")
	}
}

func TestInsightsMountStartsAndUnmountStopsFeed(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{live: &service.LiveData{
		AgePlot: service.Plot{Data: []map[string]any{{"x": []any{20.0, 30.0, 30.0}}}},
	}}
	m := newTestModel(t, api, nil)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF2})
	if !m.liveFeed.Active() {
		t.Fatalf("expected live feed to start on insights")
	}

	msg := awaitInbox(t, m, func(msg tea.Msg) bool {
		_, ok := msg.(liveFeedMsg)
		return ok
	})
	next, _ := m.Update(msg)
	m = next.(Model)
	if !m.liveView.HasSnapshot || m.liveView.Snapshot != api.live {
		t.Fatalf("expected live snapshot to be shown")
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF1})
	if m.liveFeed.Active() {
		t.Fatalf("expected live feed to stop when leaving insights")
	}
}

func TestInsightsShowsErrorInPlaceOfCharts(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	m.screen = screenInsights
	next, _ := m.Update(liveFeedMsg{view: ops.FeedView[*service.LiveData]{Err: liveDataFailure, Seq: 1}})
	m = next.(Model)

	view := m.View()
	if !strings.Contains(view, liveDataFailure) {
		t.Fatalf("expected failure message in view")
	}
	if strings.Contains(view, "Age distribution") {
		t.Fatalf("expected charts to be hidden while failing")
	}
}

func TestLiveFeedMsgIgnoresStaleSequence(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	m.screen = screenInsights
	fresh := &service.LiveData{}
	next, _ := m.Update(liveFeedMsg{view: ops.FeedView[*service.LiveData]{Snapshot: fresh, HasSnapshot: true, Seq: 3}})
	m = next.(Model)
	next, _ = m.Update(liveFeedMsg{view: ops.FeedView[*service.LiveData]{Err: liveDataFailure, Seq: 2}})
	m = next.(Model)

	if m.liveView.Seq != 3 || m.liveView.Err != "" {
		t.Fatalf("expected stale update to be dropped, got seq %d err %q", m.liveView.Seq, m.liveView.Err)
	}
}

func TestLiveFeedMsgIgnoredOffScreen(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	next, _ := m.Update(liveFeedMsg{view: ops.FeedView[*service.LiveData]{HasSnapshot: true, Seq: 1}})
	m = next.(Model)
	if m.liveView.HasSnapshot {
		t.Fatalf("expected update to be ignored off the insights screen")
	}
}

func TestSelectDatasetRejectsNonCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(path, []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	m := newTestModel(t, &fakeAPI{}, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF4})
	m.pathInput.SetValue(path)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.payload != nil {
		t.Fatalf("expected no payload for non-csv file")
	}
	if !strings.Contains(m.retrainError, ".csv") {
		t.Fatalf("unexpected error: %q", m.retrainError)
	}
	if _, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS}); cmd != nil {
		t.Fatalf("expected submit without payload to do nothing")
	}
}

func TestRetrainFlowPublishesVisualizations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	if err := os.WriteFile(path, []byte("Disease,Age,Gender,Severity,Drug\nflu,30,male,LOW,drugX\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	events := notify.New[ops.RetrainComplete]("test", nil)
	api := &fakeAPI{outcome: &service.RetrainOutcome{
		Message:        "Model retrained successfully",
		Metrics:        service.Metrics{Accuracy: 0.9, Precision: 0.8, Recall: 0.85, F1Score: 0.82},
		DatasetSize:    1,
		Visualizations: []string{"static/confusion.png", "/static/metrics.png"},
	}}
	m := newTestModel(t, api, events)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF4})
	if events.Len() != 1 {
		t.Fatalf("expected retrain screen to subscribe, got %d listeners", events.Len())
	}
	if !m.vizFeed.Active() {
		t.Fatalf("expected visualization feed to start")
	}

	m.pathInput.SetValue(path)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.payload == nil || m.payload.Name != "dataset.csv" {
		t.Fatalf("expected dataset to be selected, error %q", m.retrainError)
	}

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if !m.retrainState.IsPending() {
		t.Fatalf("expected pending retrain, got %v", m.retrainState.Kind())
	}
	for _, msg := range runCmd(cmd) {
		if _, ok := msg.(retrainDoneMsg); ok {
			next, _ := m.Update(msg)
			m = next.(Model)
		}
	}

	outcome, ok := m.retrainState.Value()
	if !ok || outcome.DatasetSize != 1 {
		t.Fatalf("unexpected retrain state: %v", m.retrainState.Kind())
	}
	if api.uploaded != "dataset.csv" {
		t.Fatalf("unexpected uploaded file: %q", api.uploaded)
	}

	msg := awaitInbox(t, m, func(msg tea.Msg) bool {
		_, ok := msg.(retrainCompleteMsg)
		return ok
	})
	next, _ := m.Update(msg)
	m = next.(Model)

	want := []string{"http://localhost:5000/static/confusion.png", "http://localhost:5000/static/metrics.png"}
	if strings.Join(m.vizLocators, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected visualizations: %v", m.vizLocators)
	}
	if m.vizSource != "latest retraining" {
		t.Fatalf("unexpected source: %q", m.vizSource)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF1})
	if events.Len() != 0 {
		t.Fatalf("expected unsubscribe when leaving retrain, got %d listeners", events.Len())
	}
	if m.vizFeed.Active() {
		t.Fatalf("expected visualization feed to stop")
	}
}

func TestRetrainFailureKeepsPayloadForResubmit(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{retrainErr: errors.New("boom")}
	m := newTestModel(t, api, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF4})
	m.payload = service.NewBytesPayload("data.csv", []byte("a,b\n"))

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	for _, msg := range runCmd(cmd) {
		if _, ok := msg.(retrainDoneMsg); ok {
			next, _ := m.Update(msg)
			m = next.(Model)
		}
	}

	reason, ok := m.retrainState.Reason()
	if !ok || reason != ops.RetrainFailure {
		t.Fatalf("unexpected failure reason: %q", reason)
	}
	if m.payload == nil {
		t.Fatalf("expected payload to be kept after failure")
	}
}

func TestVisualizationPollIgnoredWhileRetrainPending(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF4})
	m.retrainState = ops.Pending[service.RetrainOutcome]()

	next, _ := m.Update(visualizationFeedMsg{view: ops.FeedView[[]string]{
		Snapshot:    []string{"http://localhost:5000/static/old.png"},
		HasSnapshot: true,
		Seq:         m.vizView.Seq + 100,
	}})
	m = next.(Model)
	if len(m.vizLocators) != 0 {
		t.Fatalf("expected listing to be ignored while retraining, got %v", m.vizLocators)
	}
}

func TestRetrainCompleteIgnoredWhenNotSubscribed(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	next, _ := m.Update(retrainCompleteMsg{event: ops.RetrainComplete{Visualizations: []string{"x"}}})
	m = next.(Model)
	if len(m.vizLocators) != 0 {
		t.Fatalf("expected event to be ignored off the retrain screen")
	}
}

func TestSpinnerTickStopsWhenIdle(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	_, cmd := m.Update(spinner.TickMsg{})
	if cmd != nil {
		t.Fatalf("expected no follow-up tick while idle")
	}
}

func TestQuitStopsFeedsAndCancels(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF4})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if m.vizFeed.Active() {
		t.Fatalf("expected visualization feed to stop on quit")
	}
	if m.ctx.Err() == nil {
		t.Fatalf("expected model context to be cancelled")
	}
}

func TestInboxMsgRearmsWait(t *testing.T) {
	t.Parallel()

	m := newTestModel(t, &fakeAPI{}, nil)
	_, cmd := m.Update(inboxMsg{msg: spinner.TickMsg{}})
	if cmd == nil {
		t.Fatalf("expected inbox wait to be re-issued")
	}
}
