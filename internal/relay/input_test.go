package relay

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestDecodeRequest(t *testing.T) {
	raw := `[{"pin": 17, "state": true, "duration": 5, "order": 1}]`

	tests := []struct {
		name    string
		arg     string
		wantLen int
		wantErr bool
	}{
		{name: "raw JSON", arg: raw, wantLen: 1},
		{name: "base64 JSON", arg: base64.StdEncoding.EncodeToString([]byte(raw)), wantLen: 1},
		{name: "surrounding whitespace", arg: "  " + raw + "\n", wantLen: 1},
		{name: "empty", arg: "", wantErr: true},
		{name: "bad base64", arg: "not-base64!", wantErr: true},
		{name: "object not list", arg: base64.StdEncoding.EncodeToString([]byte(`{"pin":17}`)), wantErr: true},
		{name: "list of numbers", arg: `[1, 2]`, wantErr: true},
		{name: "truncated JSON", arg: `[{"pin": 17`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := DecodeRequest(tt.arg)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("DecodeRequest() error = %v, want ErrInvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRequest() error = %v", err)
			}
			if len(records) != tt.wantLen {
				t.Errorf("len(records) = %d, want %d", len(records), tt.wantLen)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []ChannelSpec
		wantErr bool
	}{
		{
			name:  "all fields",
			input: `[{"pin": 17, "state": true, "duration": 5, "order": 1}]`,
			want:  []ChannelSpec{{Channel: 17, TargetActive: true, Duration: 5 * time.Minute, Order: 1}},
		},
		{
			name:  "defaults",
			input: `[{"pin": 17, "state": false}]`,
			want:  []ChannelSpec{{Channel: 17, TargetActive: false, Duration: 10 * time.Minute, Order: 0}},
		},
		{
			name:  "null optional fields use defaults",
			input: `[{"pin": 4, "state": true, "duration": null, "order": null}]`,
			want:  []ChannelSpec{{Channel: 4, TargetActive: true, Duration: 10 * time.Minute}},
		},
		{
			name:  "numeric strings",
			input: `[{"pin": "18", "state": true, "duration": "0.5", "order": "2"}]`,
			want:  []ChannelSpec{{Channel: 18, TargetActive: true, Duration: 30 * time.Second, Order: 2}},
		},
		{
			name:  "fractional minutes",
			input: `[{"pin": 17, "state": true, "duration": 0.01}]`,
			want:  []ChannelSpec{{Channel: 17, TargetActive: true, Duration: 600 * time.Millisecond}},
		},
		{
			name:  "integral float pin",
			input: `[{"pin": 17.0, "state": true, "duration": 0}]`,
			want:  []ChannelSpec{{Channel: 17, TargetActive: true}},
		},
		{
			name:  "longest representable duration",
			input: `[{"pin": 17, "state": true, "duration": 153722867}]`,
			want:  []ChannelSpec{{Channel: 17, TargetActive: true, Duration: 153722867 * time.Minute}},
		},
		{name: "empty list", input: `[]`, wantErr: true},
		{name: "missing pin", input: `[{"state": true}]`, wantErr: true},
		{name: "missing state", input: `[{"pin": 17}]`, wantErr: true},
		{name: "string state", input: `[{"pin": 17, "state": "true"}]`, wantErr: true},
		{name: "non-numeric pin", input: `[{"pin": "abc", "state": true}]`, wantErr: true},
		{name: "fractional pin", input: `[{"pin": 17.5, "state": true}]`, wantErr: true},
		{name: "negative duration", input: `[{"pin": 17, "state": true, "duration": -1}]`, wantErr: true},
		{name: "duration overflowing time.Duration", input: `[{"pin": 17, "state": true, "duration": 1e9}]`, wantErr: true},
		{name: "NaN duration", input: `[{"pin": 17, "state": true, "duration": "NaN"}]`, wantErr: true},
		{name: "boolean duration", input: `[{"pin": 17, "state": true, "duration": true}]`, wantErr: true},
		{name: "fractional order", input: `[{"pin": 17, "state": true, "order": 1.5}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParseRecords([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseRecords() error = %v", err)
			}

			got, err := Validate(records, DefaultDurationMinutes)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("spec[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidate_CustomDefault(t *testing.T) {
	records, err := ParseRecords([]byte(`[{"pin": 5, "state": true}]`))
	if err != nil {
		t.Fatalf("ParseRecords() error = %v", err)
	}
	specs, err := Validate(records, 2)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if specs[0].Duration != 2*time.Minute {
		t.Errorf("Duration = %v, want 2m", specs[0].Duration)
	}
}
