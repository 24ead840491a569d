package record

import "testing"

func TestDefaultBrokenStatusesExclude403(t *testing.T) {
	broken := DefaultBrokenStatuses()
	for _, code := range []int{400, 401, 404} {
		if !broken.Contains(code) {
			t.Errorf("default broken set missing %d", code)
		}
	}
	if broken.Contains(403) {
		t.Error("default broken set must not contain 403")
	}
	if !DefaultHandledStatuses().Contains(403) {
		t.Error("403 should still be a handled crawl status")
	}
}

func TestParseStatusSet(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "400,401,404", want: "400,401,404"},
		{input: " 404 , 400,404 ", want: "400,404"},
		{input: "403", want: "403"},
		{input: "", wantErr: true},
		{input: " , ", wantErr: true},
		{input: "40x", wantErr: true},
		{input: "99", wantErr: true},
		{input: "600", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatusSet(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatusSet(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("ParseStatusSet(%q) = %q, want %q", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestStatusSetZeroValue(t *testing.T) {
	var empty StatusSet
	if empty.Contains(404) {
		t.Error("zero StatusSet should contain nothing")
	}
	if empty.Len() != 0 || empty.String() != "" {
		t.Errorf("zero StatusSet Len=%d String=%q", empty.Len(), empty.String())
	}
}
