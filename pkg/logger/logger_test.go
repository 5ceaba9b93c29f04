package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_WritesJSONWithServiceField(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	log := Init(Options{Level: "debug", Output: &buf, Service: "tracker-api"})
	log.Info().Str("vehicle", "V1").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "tracker-api" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
	if entry["vehicle"] != "V1" || entry["message"] != "hello" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestInit_OnlyFirstCallApplies(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var first, second bytes.Buffer
	Init(Options{Output: &first})
	Init(Options{Output: &second})
	l := Get()
	l.Info().Msg("x")

	if first.Len() == 0 || second.Len() != 0 {
		t.Error("expected the first Init to win")
	}
}

func TestGet_PanicsBeforeInit(t *testing.T) {
	Reset()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Get()
}

func TestComponent_AddsField(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	Init(Options{Output: &buf})
	l := Component("hub")
	l.Info().Msg("x")

	var entry map[string]any
	_ = json.Unmarshal(buf.Bytes(), &entry)
	if entry["component"] != "hub" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInit_InstanceField(t *testing.T) {
	cases := map[string]struct {
		instance string
		want     any
	}{
		"explicit": {"api-1", "api-1"},
		"disabled": {"-", nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			Reset()
			t.Cleanup(Reset)

			var buf bytes.Buffer
			l := Init(Options{Output: &buf, Instance: tc.instance})
			l.Info().Msg("x")

			var entry map[string]any
			_ = json.Unmarshal(buf.Bytes(), &entry)
			if entry["instance"] != tc.want {
				t.Errorf("expected instance %v, got %v", tc.want, entry["instance"])
			}
		})
	}
}
