package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rxmediq-tui/internal/notify"
	"rxmediq-tui/internal/ops"
	"rxmediq-tui/internal/service"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	predictFailure       = "Failed to get prediction. Please try again."
	liveDataFailure      = "Failed to fetch live data. Please try again later."
	visualizationFailure = "Failed to fetch visualizations. Retrying..."

	defaultLiveInterval          = 2000 * time.Millisecond
	defaultVisualizationInterval = 5000 * time.Millisecond

	inboxSize = 64
)

// API is the part of the service the screens depend on.
type API interface {
	LiveData(ctx context.Context) (*service.LiveData, error)
	Visualizations(ctx context.Context) ([]string, error)
	Predict(ctx context.Context, request service.PredictionRequest) (*service.PredictionResult, error)
	Retrain(ctx context.Context, payload *service.UploadPayload) (*service.RetrainOutcome, error)
}

type screen int

const (
	screenHome screen = iota
	screenInsights
	screenPredict
	screenRetrain
)

var screenOrder = []screen{screenHome, screenInsights, screenPredict, screenRetrain}

func (s screen) title() string {
	switch s {
	case screenHome:
		return "Home"
	case screenInsights:
		return "Insights"
	case screenPredict:
		return "Predict"
	case screenRetrain:
		return "Retrain"
	default:
		return "Unknown"
	}
}

func (s screen) step(delta int) screen {
	n := len(screenOrder)
	return screenOrder[((int(s)+delta)%n+n)%n]
}

type predictField int

const (
	fieldDisease predictField = iota
	fieldAge
	fieldGender
	fieldSeverity
	predictFieldCount
)

var (
	genderOptions   = []service.Gender{service.GenderMale, service.GenderFemale}
	severityOptions = []service.Severity{service.SeverityLow, service.SeverityNormal, service.SeverityHigh}
)

type liveFeedMsg struct {
	view ops.FeedView[*service.LiveData]
}

type visualizationFeedMsg struct {
	view ops.FeedView[[]string]
}

type retrainCompleteMsg struct {
	event ops.RetrainComplete
}

type predictionDoneMsg struct {
	state ops.State[service.PredictionResult]
}

type retrainDoneMsg struct {
	state ops.State[service.RetrainOutcome]
}

// inboxMsg wraps anything posted from controller goroutines.
type inboxMsg struct {
	msg tea.Msg
}

type ModelOptions struct {
	// BaseURL resolves relative visualization locators.
	BaseURL               string
	LiveInterval          time.Duration
	VisualizationInterval time.Duration
	Preset                *service.PredictionRequest
	PresetSource          string
	Logger                *zap.Logger
}

type Model struct {
	api    API
	events *notify.Channel[ops.RetrainComplete]
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan tea.Msg

	liveFeed  *ops.Feed[*service.LiveData]
	vizFeed   *ops.Feed[[]string]
	predictOp *ops.Request[service.PredictionRequest, service.PredictionResult]
	uploadJob *ops.UploadJob

	liveInterval time.Duration
	vizInterval  time.Duration

	ready  bool
	width  int
	height int

	screen  screen
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	statusText string
	errorText  string

	liveView ops.FeedView[*service.LiveData]

	diseaseInput textinput.Model
	ageInput     textinput.Model
	genderIdx    int
	severityIdx  int
	focusField   predictField
	formError    string
	predictState ops.State[service.PredictionResult]

	pathInput    textinput.Model
	payload      *service.UploadPayload
	payloadNote  string
	retrainError string
	retrainState ops.State[service.RetrainOutcome]

	vizView        ops.FeedView[[]string]
	vizLocators    []string
	vizSource      string
	vizPanel       viewport.Model
	unsubscribeViz func()
}

func NewModel(api API, events *notify.Channel[ops.RetrainComplete]) Model {
	return NewModelWithOptions(api, events, ModelOptions{})
}

func NewModelWithOptions(api API, events *notify.Channel[ops.RetrainComplete], opts ModelOptions) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = ops.RetrainEvents()
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = service.DefaultBaseURL
	}
	liveInterval := opts.LiveInterval
	if liveInterval <= 0 {
		liveInterval = defaultLiveInterval
	}
	vizInterval := opts.VisualizationInterval
	if vizInterval <= 0 {
		vizInterval = defaultVisualizationInterval
	}

	inbox := make(chan tea.Msg, inboxSize)
	post := func(msg tea.Msg) {
		select {
		case inbox <- msg:
		default:
			logger.Warn("ui inbox full, dropping update", zap.String("msg", fmt.Sprintf("%T", msg)))
		}
	}

	liveFeed := ops.NewFeed("live_data", func(ctx context.Context) (*service.LiveData, error) {
		return api.LiveData(ctx)
	}, ops.FeedOptions[*service.LiveData]{
		Failure:  liveDataFailure,
		Logger:   logger,
		OnUpdate: func(view ops.FeedView[*service.LiveData]) { post(liveFeedMsg{view: view}) },
	})
	vizFeed := ops.NewFeed("visualizations", func(ctx context.Context) ([]string, error) {
		locators, err := api.Visualizations(ctx)
		if err != nil {
			return nil, err
		}
		return ops.ResolveLocators(baseURL, locators), nil
	}, ops.FeedOptions[[]string]{
		Failure:  visualizationFailure,
		Logger:   logger,
		OnUpdate: func(view ops.FeedView[[]string]) { post(visualizationFeedMsg{view: view}) },
	})
	predictOp := ops.NewRequest("predict", func(ctx context.Context, request service.PredictionRequest) (service.PredictionResult, error) {
		result, err := api.Predict(ctx, request)
		if err != nil {
			return service.PredictionResult{}, err
		}
		if result == nil {
			return service.PredictionResult{}, errors.New("empty prediction response")
		}
		return *result, nil
	}, ops.RequestOptions[service.PredictionResult]{
		Failure: predictFailure,
		Logger:  logger,
	})
	uploadJob := ops.NewUploadJob(func(ctx context.Context, payload *service.UploadPayload) (*service.RetrainOutcome, error) {
		return api.Retrain(ctx, payload)
	}, events, ops.UploadOptions{
		BaseURL: baseURL,
		Logger:  logger,
	})

	disease := textinput.New()
	disease.Prompt = ""
	disease.Placeholder = "Enter disease name"
	disease.CharLimit = 120
	disease.Width = 40

	age := textinput.New()
	age.Prompt = ""
	age.Placeholder = "30"
	age.CharLimit = 3
	age.Width = 6

	pathInput := textinput.New()
	pathInput.Prompt = "> "
	pathInput.Placeholder = "./dataset.csv"
	pathInput.CharLimit = 2048
	pathInput.Width = 60

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(accentSecondary)

	ctx, cancel := context.WithCancel(context.Background())
	model := Model{
		api:          api,
		events:       events,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		inbox:        inbox,
		liveFeed:     liveFeed,
		vizFeed:      vizFeed,
		predictOp:    predictOp,
		uploadJob:    uploadJob,
		liveInterval: liveInterval,
		vizInterval:  vizInterval,
		screen:       screenHome,
		keys:         defaultKeyMap(),
		help:         help.New(),
		spinner:      spin,
		statusText:   "Welcome to RxMediq",
		diseaseInput: disease,
		ageInput:     age,
		pathInput:    pathInput,
		vizPanel:     viewport.New(60, 8),
		predictState: predictOp.State(),
		retrainState: uploadJob.State(),
		width:        100,
		height:       40,
	}
	model.applyPreset(service.DefaultPredictionRequest())
	model.vizPanel.SetContent(model.renderVisualizationList())

	if opts.Preset != nil {
		model.applyPreset(*opts.Preset)
		model.screen = screenPredict
		model.setFocusField(fieldDisease)
		model.statusText = "Loaded patient preset."
		if source := strings.TrimSpace(opts.PresetSource); source != "" {
			model.statusText = "Loaded patient preset from " + source
		}
	}
	return model
}

// Init only starts draining the inbox; the starting screen is Home or
// Predict, and neither owns a feed.
func (m Model) Init() tea.Cmd {
	return waitForInboxCmd(m.inbox)
}

func waitForInboxCmd(inbox <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-inbox
		if !ok {
			return nil
		}
		return inboxMsg{msg: msg}
	}
}

func submitPredictionCmd(ctx context.Context, op *ops.Request[service.PredictionRequest, service.PredictionResult], request service.PredictionRequest) tea.Cmd {
	return func() tea.Msg {
		return predictionDoneMsg{state: op.Submit(ctx, request)}
	}
}

func submitUploadCmd(ctx context.Context, job *ops.UploadJob, payload *service.UploadPayload) tea.Cmd {
	return func() tea.Msg {
		return retrainDoneMsg{state: job.Submit(ctx, payload)}
	}
}

func (m *Model) applyPreset(preset service.PredictionRequest) {
	m.diseaseInput.SetValue(preset.Disease)
	m.ageInput.SetValue(strconv.Itoa(preset.Age))
	m.genderIdx = 0
	for i, g := range genderOptions {
		if g == preset.Gender {
			m.genderIdx = i
		}
	}
	m.severityIdx = 1
	for i, s := range severityOptions {
		if s == preset.Severity {
			m.severityIdx = i
		}
	}
}

// mount starts what a screen owns while it is shown.
func (m *Model) mount(s screen) tea.Cmd {
	m.logger.Debug("screen mounted", zap.String("screen", s.title()))
	switch s {
	case screenInsights:
		m.liveView = ops.FeedView[*service.LiveData]{Seq: m.liveFeed.View().Seq}
		if err := m.liveFeed.Start(m.ctx, m.liveInterval); err != nil {
			m.errorText = err.Error()
		}
	case screenPredict:
		m.setFocusField(m.focusField)
	case screenRetrain:
		m.pathInput.Focus()
		m.vizView = ops.FeedView[[]string]{Seq: m.vizFeed.View().Seq}
		inbox := m.inbox
		m.unsubscribeViz = m.events.Subscribe(func(event ops.RetrainComplete) {
			select {
			case inbox <- retrainCompleteMsg{event: event}:
			default:
			}
		})
		if err := m.vizFeed.Start(m.ctx, m.vizInterval); err != nil {
			m.errorText = err.Error()
		}
	}
	if m.busy() {
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) unmount(s screen) {
	switch s {
	case screenInsights:
		m.liveFeed.Stop()
	case screenPredict:
		m.diseaseInput.Blur()
		m.ageInput.Blur()
	case screenRetrain:
		m.pathInput.Blur()
		m.vizFeed.Stop()
		if m.unsubscribeViz != nil {
			m.unsubscribeViz()
			m.unsubscribeViz = nil
		}
	}
}

func (m *Model) switchScreen(next screen) tea.Cmd {
	if next == m.screen {
		return nil
	}
	m.unmount(m.screen)
	m.screen = next
	m.errorText = ""
	m.statusText = "Viewing " + next.title()
	return m.mount(next)
}

func (m *Model) shutdown() {
	m.unmount(m.screen)
	if m.cancel != nil {
		m.cancel()
	}
}

func (m Model) busy() bool {
	return m.predictState.IsPending() || m.retrainState.IsPending()
}

func (m *Model) setFocusField(field predictField) {
	m.focusField = field
	m.diseaseInput.Blur()
	m.ageInput.Blur()
	switch field {
	case fieldDisease:
		m.diseaseInput.Focus()
	case fieldAge:
		m.ageInput.Focus()
	}
}

// collectPredictionRequest is the input boundary: nothing invalid gets past it.
func (m Model) collectPredictionRequest() (service.PredictionRequest, error) {
	rawAge := strings.TrimSpace(m.ageInput.Value())
	age, err := strconv.Atoi(rawAge)
	if err != nil {
		return service.PredictionRequest{}, fmt.Errorf("age must be a whole number between %d and %d", service.MinAge, service.MaxAge)
	}
	request := service.PredictionRequest{
		Disease:  strings.TrimSpace(m.diseaseInput.Value()),
		Age:      age,
		Gender:   genderOptions[m.genderIdx],
		Severity: severityOptions[m.severityIdx],
	}
	if err := request.Validate(); err != nil {
		return service.PredictionRequest{}, err
	}
	return request, nil
}

func (m *Model) submitPrediction() tea.Cmd {
	if m.predictState.IsPending() {
		return nil
	}
	request, err := m.collectPredictionRequest()
	if err != nil {
		m.formError = err.Error()
		return nil
	}
	m.formError = ""
	m.predictState = ops.Pending[service.PredictionResult]()
	m.statusText = "Requesting prediction..."
	return tea.Batch(m.spinner.Tick, submitPredictionCmd(m.ctx, m.predictOp, request))
}

// selectDataset replaces the held payload with the file at the typed path.
func (m *Model) selectDataset() {
	m.payload = nil
	m.payloadNote = ""
	m.retrainError = ""

	path := strings.TrimSpace(m.pathInput.Value())
	if path == "" {
		m.retrainError = "Enter the path of a CSV file."
		return
	}
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		m.retrainError = "Only .csv files can be uploaded."
		return
	}
	payload, err := service.NewFilePayload(path)
	if err != nil {
		m.retrainError = "Cannot use file: " + err.Error()
		return
	}
	m.payload = payload
	if payload.ExceedsSizeHint() {
		m.payloadNote = "File is larger than 10MB; the service may reject it."
	}
	m.statusText = "Selected " + payload.Name
}

func (m *Model) submitUpload() tea.Cmd {
	if m.payload == nil || m.retrainState.IsPending() {
		return nil
	}
	m.retrainState = ops.Pending[service.RetrainOutcome]()
	m.retrainError = ""
	m.setVisualizations(nil, "")
	m.statusText = "Uploading " + m.payload.Name + "..."
	return tea.Batch(m.spinner.Tick, submitUploadCmd(m.ctx, m.uploadJob, m.payload))
}

func (m *Model) setVisualizations(locators []string, source string) {
	m.vizLocators = append([]string(nil), locators...)
	m.vizSource = source
	m.vizPanel.SetContent(m.renderVisualizationList())
	m.vizPanel.GotoTop()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case inboxMsg:
		next, cmd := m.Update(msg.msg)
		return next, tea.Batch(cmd, waitForInboxCmd(m.inbox))

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case liveFeedMsg:
		if m.screen != screenInsights || msg.view.Seq <= m.liveView.Seq {
			return m, nil
		}
		m.liveView = msg.view
		return m, nil

	case visualizationFeedMsg:
		if m.screen != screenRetrain || msg.view.Seq <= m.vizView.Seq {
			return m, nil
		}
		m.vizView = msg.view
		if msg.view.HasSnapshot && !m.retrainState.IsPending() {
			m.setVisualizations(msg.view.Snapshot, "service listing")
		}
		return m, nil

	case retrainCompleteMsg:
		if m.unsubscribeViz == nil {
			return m, nil
		}
		m.setVisualizations(msg.event.Visualizations, "latest retraining")
		return m, nil

	case predictionDoneMsg:
		m.predictState = m.predictOp.State()
		switch m.predictState.Kind() {
		case ops.KindSucceeded:
			m.statusText = "Prediction ready."
		case ops.KindFailed:
			m.statusText = "Prediction failed."
		}
		return m, nil

	case retrainDoneMsg:
		m.retrainState = m.uploadJob.State()
		switch m.retrainState.Kind() {
		case ops.KindSucceeded:
			m.statusText = "Retraining complete."
		case ops.KindFailed:
			m.statusText = "Retraining failed."
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.shutdown()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Home):
		cmd = m.switchScreen(screenHome)
		return m, cmd
	case key.Matches(msg, m.keys.Insights):
		cmd = m.switchScreen(screenInsights)
		return m, cmd
	case key.Matches(msg, m.keys.Predict):
		cmd = m.switchScreen(screenPredict)
		return m, cmd
	case key.Matches(msg, m.keys.Retrain):
		cmd = m.switchScreen(screenRetrain)
		return m, cmd
	case key.Matches(msg, m.keys.NextScreen):
		cmd = m.switchScreen(m.screen.step(1))
		return m, cmd
	case key.Matches(msg, m.keys.PrevScreen):
		cmd = m.switchScreen(m.screen.step(-1))
		return m, cmd
	}

	switch m.screen {
	case screenHome:
		return m.handleHomeKey(msg)
	case screenPredict:
		return m.handlePredictKey(msg)
	case screenRetrain:
		return m.handleRetrainKey(msg)
	}
	return m, nil
}

func (m Model) handleHomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg.String() {
	case "1", "enter":
		cmd = m.switchScreen(screenInsights)
	case "2":
		cmd = m.switchScreen(screenPredict)
	case "3":
		cmd = m.switchScreen(screenRetrain)
	}
	return m, cmd
}

func (m Model) handlePredictKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Submit), key.Matches(msg, m.keys.Select):
		cmd = m.submitPrediction()
		return m, cmd
	case key.Matches(msg, m.keys.NextField):
		m.setFocusField((m.focusField + 1) % predictFieldCount)
		return m, nil
	case key.Matches(msg, m.keys.PrevField):
		m.setFocusField((m.focusField + predictFieldCount - 1) % predictFieldCount)
		return m, nil
	case key.Matches(msg, m.keys.Cycle) && (m.focusField == fieldGender || m.focusField == fieldSeverity):
		delta := 1
		if msg.String() == "left" {
			delta = -1
		}
		if m.focusField == fieldGender {
			m.genderIdx = (m.genderIdx + delta + len(genderOptions)) % len(genderOptions)
		} else {
			m.severityIdx = (m.severityIdx + delta + len(severityOptions)) % len(severityOptions)
		}
		return m, nil
	}

	switch m.focusField {
	case fieldDisease:
		m.diseaseInput, cmd = m.diseaseInput.Update(msg)
	case fieldAge:
		m.ageInput, cmd = m.ageInput.Update(msg)
	}
	return m, cmd
}

func (m Model) handleRetrainKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Select):
		m.selectDataset()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		cmd = m.submitUpload()
		return m, cmd
	case key.Matches(msg, m.keys.Scroll):
		m.vizPanel, cmd = m.vizPanel.Update(msg)
		return m, cmd
	}
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}
