package logger

import "testing"

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			if err := Initialize(tt.jsonOutput); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if Logger == nil {
				t.Error("Initialize() did not set global Logger")
			}
			if JSONOutput != tt.jsonOutput {
				t.Errorf("JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
			}

			Logger.Sync()
			Logger = nil
		})
	}
}

func TestNopLoggerBeforeInitialize(t *testing.T) {
	Logger = nil
	// init() should have already installed a no-op logger in a real process,
	// but a test may have zeroed it; the free functions must not panic.
	Info("should not panic")
	Errorw("should not panic", "k", "v")
}

func TestCleanupWithoutInitialize(t *testing.T) {
	saved := Logger
	Logger = nil
	if err := Cleanup(); err != nil {
		t.Errorf("Cleanup() with nil Logger should be a no-op, got %v", err)
	}
	Logger = saved
}
