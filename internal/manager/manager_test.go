package manager

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ovchat/internal/acquire"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
	"ovchat/pkg/types"
)

func TestLoadAndChat(t *testing.T) {
	acq := &fakeAcquirer{}
	be := &fakeBackend{tokens: []string{"Hello", " ", "world"}}
	m, pub := newTestManager(t, acq, be)

	if m.Ready() {
		t.Fatalf("ready before load")
	}
	loaded, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Device != "GPU" || !strings.HasSuffix(loaded.Dir, "DeepSeek-R1-Distill-Qwen-1.5B-INT4-GPU") {
		t.Fatalf("unexpected loaded: %+v", loaded)
	}
	if !m.Ready() || m.Snapshot().State != StateReady {
		t.Fatalf("expected ready, got %+v", m.Snapshot())
	}
	if be.opened[0].device != "GPU" || be.opened[0].path != loaded.Dir {
		t.Fatalf("backend opened with %s %s", be.opened[0].path, be.opened[0].device)
	}

	var buf bytes.Buffer
	res, err := m.Chat(context.Background(), "hi", &buf)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if buf.String() != "Hello world" || res.Content != "Hello world" {
		t.Fatalf("streamed %q, content %q", buf.String(), res.Content)
	}
	cfg := be.opened[0].lastCfg
	if cfg.MaxNewTokens != session.DefaultMaxNewTokens || cfg.Temperature != float32(session.DefaultTemperature) {
		t.Fatalf("unexpected generation config: %+v", cfg)
	}
	if cfg.TopP != defaultTopP || cfg.TopK != defaultTopK {
		t.Fatalf("sampling defaults not applied: %+v", cfg)
	}
	names := strings.Join(pub.Names(), ",")
	if names != "load_start,load_done,chat_start,chat_done" {
		t.Fatalf("events=%s", names)
	}
}

func TestChatUsesCurrentTemperatureAndOverrides(t *testing.T) {
	be := &fakeBackend{tokens: []string{"x"}}
	m, _ := newTestManager(t, &fakeAcquirer{}, be)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Store().SetTemperature(0.2); err != nil {
		t.Fatalf("SetTemperature: %v", err)
	}
	_, err := m.Generate(context.Background(), "hi", ChatOptions{MaxNewTokens: 8, Stop: []string{"\n"}}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cfg := be.opened[0].lastCfg
	if cfg.Temperature != float32(0.2) || cfg.MaxNewTokens != 8 || len(cfg.Stop) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestChatNotLoaded(t *testing.T) {
	m, _ := newTestManager(t, &fakeAcquirer{}, &fakeBackend{})
	_, err := m.Chat(context.Background(), "hi", &bytes.Buffer{})
	if !IsNotLoaded(err) {
		t.Fatalf("expected not loaded, got %v", err)
	}
}

func TestChatEmptyPrompt(t *testing.T) {
	m, _ := newTestManager(t, &fakeAcquirer{}, &fakeBackend{})
	if _, err := m.Chat(context.Background(), "  ", &bytes.Buffer{}); !IsInvalid(err) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestChatSingleInFlight(t *testing.T) {
	be := &fakeBackend{tokens: []string{"a"}, block: make(chan struct{})}
	m, _ := newTestManager(t, &fakeAcquirer{}, be)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := m.Chat(context.Background(), "first", &bytes.Buffer{})
		done <- err
	}()
	select {
	case <-be.opened[0].started:
	case <-time.After(2 * time.Second):
		t.Fatalf("first generation did not start")
	}
	if !m.Status().Generating {
		t.Fatalf("status should report generating")
	}
	if _, err := m.Chat(context.Background(), "second", &bytes.Buffer{}); !IsBusy(err) {
		t.Fatalf("expected busy, got %v", err)
	}
	close(be.block)
	if err := <-done; err != nil {
		t.Fatalf("first chat: %v", err)
	}
}

func TestChatCallbackErrorPropagates(t *testing.T) {
	be := &fakeBackend{tokens: []string{"a", "b"}}
	m, pub := newTestManager(t, &fakeAcquirer{}, be)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	boom := errors.New("write failed")
	_, err := m.Generate(context.Background(), "hi", ChatOptions{}, func(string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	names := pub.Names()
	if names[len(names)-1] != "chat_error" {
		t.Fatalf("events=%v", names)
	}
}

func TestLoadFailureKeepsPreviousPipeline(t *testing.T) {
	acq := &fakeAcquirer{}
	be := &fakeBackend{tokens: []string{"ok"}}
	m, _ := newTestManager(t, acq, be)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	acq.err = errors.New("convert failed: exit status 1")
	if err := m.Store().SetModel("DeepSeek-R1-Distill-Qwen-7B"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if _, err := m.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	snap := m.Snapshot()
	if snap.State != StateError || !strings.Contains(snap.Err, "convert failed") {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Loaded == nil || snap.Loaded.Settings.ModelID != session.DefaultModel {
		t.Fatalf("previous model lost: %+v", snap.Loaded)
	}
	var buf bytes.Buffer
	if _, err := m.Chat(context.Background(), "hi", &buf); err != nil || buf.String() != "ok" {
		t.Fatalf("chat with previous pipeline: %q %v", buf.String(), err)
	}
	if be.opened[0].isClosed() {
		t.Fatalf("previous pipeline closed after failed load")
	}
}

func TestLoadReplacesAndClosesPrevious(t *testing.T) {
	be := &fakeBackend{}
	m, _ := newTestManager(t, &fakeAcquirer{}, be)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Store().SetDevice("CPU"); err != nil {
		t.Fatalf("SetDevice: %v", err)
	}
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !be.opened[0].isClosed() || be.opened[1].isClosed() {
		t.Fatalf("expected first closed and second open")
	}
	if be.opened[1].device != "CPU" || m.Status().LoadsTotal != 2 {
		t.Fatalf("unexpected reload state: device=%s status=%+v", be.opened[1].device, m.Status())
	}
}

func TestLoadNoDevice(t *testing.T) {
	store := session.NewStore(session.Defaults(""), []string{"CPU"}, []string{"NPU"}, nil)
	m := New(Config{Store: store, Acquirer: &fakeAcquirer{}, Backend: &fakeBackend{}, ModelsRoot: t.TempDir()})
	if _, err := m.Load(context.Background()); !IsNoDevice(err) {
		t.Fatalf("expected no device, got %v", err)
	}
	if m.Snapshot().State != StateError {
		t.Fatalf("expected error state")
	}
}

func TestLoadDependencyUnavailable(t *testing.T) {
	be := &fakeBackend{openErr: pipeline.ErrDependencyUnavailable("no server")}
	m, pub := newTestManager(t, &fakeAcquirer{}, be)
	if _, err := m.Load(context.Background()); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if n := pub.Names(); n[len(n)-1] != "load_error" {
		t.Fatalf("events=%v", n)
	}
	noBackend := New(Config{Acquirer: &fakeAcquirer{}})
	if _, err := noBackend.Load(context.Background()); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable without backend, got %v", err)
	}
}

func TestUpdateSessionAtomic(t *testing.T) {
	m, _ := newTestManager(t, &fakeAcquirer{}, &fakeBackend{})
	model := "DeepSeek-R1-Distill-Qwen-7B"
	temp := 1.5
	if _, err := m.UpdateSession(types.SessionUpdate{Model: &model, Temperature: &temp}); !IsInvalid(err) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if m.Settings().ModelID != session.DefaultModel {
		t.Fatalf("partial update applied: %+v", m.Settings())
	}
	temp = 0.3
	variant := "int8"
	dev := "cpu"
	s, err := m.UpdateSession(types.SessionUpdate{Model: &model, Temperature: &temp, Variant: &variant, Device: &dev})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if s.ModelID != model || s.Temperature != 0.3 || s.Variant != acquire.INT8 || s.Device != "CPU" {
		t.Fatalf("unexpected settings: %+v", s)
	}
	view := SessionView(s)
	if view.Model != model || view.Variant != "INT8" {
		t.Fatalf("view=%+v", view)
	}
}

func TestUnload(t *testing.T) {
	be := &fakeBackend{}
	m, _ := newTestManager(t, &fakeAcquirer{}, be)
	if err := m.Unload(context.Background()); err != nil {
		t.Fatalf("unload with nothing open: %v", err)
	}
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.Ready() || !be.opened[0].isClosed() || m.Snapshot().State != StateIdle {
		t.Fatalf("pipeline not released")
	}
}

func TestConversionCommand(t *testing.T) {
	m, _ := newTestManager(t, &fakeAcquirer{}, &fakeBackend{})
	if cmd := m.ConversionCommand(); !strings.Contains(cmd, "--model deepseek-ai/DeepSeek-R1-Distill-Qwen-1.5B") {
		t.Fatalf("cmd=%s", cmd)
	}
	bare := New(Config{ModelsRoot: "/models", Store: session.NewStore(session.Defaults("CPU"), []string{"CPU"}, nil, nil)})
	cmd := bare.ConversionCommand()
	if !strings.HasPrefix(cmd, "optimum-cli export openvino") || !strings.HasSuffix(cmd, "DeepSeek-R1-Distill-Qwen-1.5B-INT4-CPU") {
		t.Fatalf("cmd=%s", cmd)
	}
}

func TestSanityCheck(t *testing.T) {
	store := session.NewStore(session.Defaults(""), []string{"CPU"}, nil, nil)
	m := New(Config{Store: store, Converter: "sh"})
	r := m.SanityCheck()
	if !r.OK() || !r.ConverterFound || !r.DeviceAvailable {
		t.Fatalf("expected healthy report, got %+v", r)
	}
	m = New(Config{Store: store, Converter: "ovchat-missing-converter-xyz"})
	r = m.SanityCheck()
	if r.OK() || r.ConverterFound {
		t.Fatalf("expected missing converter, got %+v", r)
	}
	empty := session.NewStore(session.Defaults(""), []string{"CPU"}, []string{"NPU"}, nil)
	r = New(Config{Store: empty, Converter: "sh"}).SanityCheck()
	if r.OK() || r.DeviceAvailable {
		t.Fatalf("expected device failure, got %+v", r)
	}
}

func TestStatusAndDevices(t *testing.T) {
	m, _ := newTestManager(t, &fakeAcquirer{}, &fakeBackend{})
	st := m.Status()
	if st.State != string(StateIdle) || st.Session.Model != session.DefaultModel || st.ModelDir != "" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st = m.Status()
	if st.State != string(StateReady) || st.Source != "local" || st.LoadedDevice != "GPU" {
		t.Fatalf("unexpected status: %+v", st)
	}
	d := m.Devices()
	if d.Selected != "GPU" || len(d.Available) != 2 || d.Preference[0] != "GPU" {
		t.Fatalf("devices=%+v", d)
	}
}

func TestListModels(t *testing.T) {
	m, _ := newTestManager(t, &fakeAcquirer{}, &fakeBackend{})
	models, err := m.ListModels()
	if err != nil || len(models) != 0 {
		t.Fatalf("expected empty list, got %v %v", models, err)
	}
}

func TestApplyPublishesOnlyAccepted(t *testing.T) {
	m, pub := newTestManager(t, &fakeAcquirer{}, &fakeBackend{})
	if _, err := m.Apply(func(s session.Settings) (session.Settings, error) { return s.WithTemperature(-1) }); !IsInvalid(err) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if len(pub.Names()) != 0 {
		t.Fatalf("rejected change published: %v", pub.Names())
	}
	s, err := m.Apply(func(s session.Settings) (session.Settings, error) { return s.WithMaxNewTokens(64) })
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.MaxNewTokens != 64 || m.Settings().MaxNewTokens != 64 {
		t.Fatalf("settings=%+v", m.Settings())
	}
	if names := pub.Names(); len(names) != 1 || names[0] != EventSessionUpdated {
		t.Fatalf("events=%v", names)
	}
}
