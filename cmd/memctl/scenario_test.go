package main

import (
	"encoding/json"
	"testing"
)

func TestScenarioCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		json        bool
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "all scenarios",
			wantContain: []string{"PASS roundtrip", "PASS exhaustion", "PASS linear-clear", "PASS stack-lifo", "PASS arena-rewind", "PASS handle-stability"},
		},
		{
			name:        "selected scenario",
			args:        []string{"stack-lifo"},
			wantContain: []string{"PASS stack-lifo", "Kind: stack"},
		},
		{
			name:        "json output",
			args:        []string{"roundtrip"},
			json:        true,
			wantContain: []string{`"name": "roundtrip"`, `"passed": true`},
		},
		{
			name:    "unknown scenario",
			args:    []string{"nope"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			jsonOut = tt.json

			output, err := captureOutput(t, func() error {
				return runScenarios(tt.args)
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("runScenarios() error = %v, wantErr %v\nOutput: %s", err, tt.wantErr, output)
			}
			if tt.json && !tt.wantErr {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.wantContain)
		})
	}
}

func TestScenarioJSONStats(t *testing.T) {
	resetFlags()
	jsonOut = true

	output, err := captureOutput(t, func() error {
		return runScenarios([]string{"roundtrip"})
	})
	if err != nil {
		t.Fatalf("runScenarios() error = %v", err)
	}

	var results []ScenarioResult
	if err := json.Unmarshal([]byte(output), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if got := results[0].Stats; got.Kind != "freelist" || got.Capacity != 2048 || got.Used != 0 {
		t.Errorf("unexpected stats: %+v", got)
	}
}
