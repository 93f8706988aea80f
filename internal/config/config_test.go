package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

const testPath = "/home/test/.config/dualcam/config.yaml"

func newTestManager(t *testing.T, fs afero.Fs) *Manager {
	t.Helper()
	m, err := NewManagerFs(fs, testPath)
	if err != nil {
		t.Fatalf("NewManagerFs() failed: %v", err)
	}
	return m
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults are invalid: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.Width = 641
	cfg.Stream.Pitch = 512
	cfg.Stream.SurfaceAlign = 100
	cfg.Device.Driver = "v4l2-direct"
	cfg.Heads = append(cfg.Heads, HeadConfig{Name: "tv", Width: 1, Height: 1})
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"even", "pitch", "surface_align", "driver", "duplicate head", "log level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidatePitchMustMatchSurfaceAlign(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.Pitch = 640
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "aligned to surface_align 256 (768)") {
		t.Fatalf("Validate() = %v, want pitch alignment error", err)
	}

	cfg.Stream.SurfaceAlign = 64
	if err := cfg.Validate(); err != nil {
		t.Errorf("pitch 640 with surface_align 64: %v", err)
	}
}

func TestValidateRejectsZeroFPS(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.FPS = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "fps 0 must be positive") {
		t.Fatalf("Validate() = %v, want fps error", err)
	}
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newTestManager(t, fs)

	if ok, _ := afero.Exists(fs, testPath); !ok {
		t.Fatal("config file was not created")
	}
	cfg := m.Get()
	if cfg.Stream.Pitch != 768 || cfg.Stream.FPS != 30 || len(cfg.Heads) != 2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if m.GetConfigDir() != "/home/test/.config/dualcam" {
		t.Errorf("GetConfigDir() = %s", m.GetConfigDir())
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	yaml := "stream:\n  fps: 60\nlog_level: debug\n"
	if err := afero.WriteFile(fs, testPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := newTestManager(t, fs).Get()
	if cfg.Stream.FPS != 60 || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", cfg.Stream)
	}
	if cfg.Stream.Width != 640 || cfg.Stream.Pitch != 768 || cfg.ServerPort != 8080 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DUALCAM_STREAM_FPS", "15")
	t.Setenv("DUALCAM_DEVICE_DRIVER", "gstreamer")

	cfg := newTestManager(t, afero.NewMemMapFs()).Get()
	if cfg.Stream.FPS != 15 {
		t.Errorf("fps = %d, want 15", cfg.Stream.FPS)
	}
	if cfg.Device.Driver != "gstreamer" {
		t.Errorf("driver = %s", cfg.Device.Driver)
	}
}

func TestSetPersists(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newTestManager(t, fs)

	if err := m.Set("server_port", "9090"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := m.SetLogLevel("warn"); err != nil {
		t.Fatal(err)
	}

	reloaded := newTestManager(t, fs).Get()
	if reloaded.ServerPort != 9090 || reloaded.LogLevel != "warn" {
		t.Errorf("reloaded port = %d level = %s", reloaded.ServerPort, reloaded.LogLevel)
	}
}

func TestSetRejectsInvalid(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())

	if err := m.Set("no_such_key", "1"); err == nil {
		t.Error("expected unknown key error")
	}
	if err := m.Set("log_level", "loud"); err == nil {
		t.Error("expected invalid level error")
	}
	if got := m.Get().LogLevel; got != "info" {
		t.Errorf("log level after rejected set = %s", got)
	}
}

func TestBindFlag(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	if err := flags.Parse([]string{"--port", "7000"}); err != nil {
		t.Fatal(err)
	}
	if err := m.BindFlag("server_port", flags.Lookup("port")); err != nil {
		t.Fatal(err)
	}
	if got := m.Get().ServerPort; got != 7000 {
		t.Errorf("port = %d, want 7000", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := newTestManager(t, afero.NewMemMapFs())
	cfg := m.Get()
	cfg.Heads[0].Name = "changed"
	if m.Get().Heads[0].Name != "tv" {
		t.Error("Get() exposed internal state")
	}
}

func TestFileHeadsReplaceDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	yaml := "heads:\n  - name: tv\n    width: 1280\n    height: 720\n    window: true\n"
	if err := afero.WriteFile(fs, testPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	heads := newTestManager(t, fs).Get().Heads
	if len(heads) != 1 || heads[0].Width != 1280 || !heads[0].Window {
		t.Errorf("heads = %+v", heads)
	}
}
