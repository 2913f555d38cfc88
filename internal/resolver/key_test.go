package resolver

import "testing"

func TestManufacturerKey(t *testing.T) {
	tests := []struct {
		name      string
		trademark string
		fullName  string
		want      string
	}{
		{
			name:      "short cyrillic with punctuation",
			trademark: "ООО Рога-и-Копыта",
			want:      "ooorogaikopyta",
		},
		{
			name:      "short latin",
			trademark: "Brand",
			fullName:  "LLC",
			want:      "brandllc",
		},
		{
			name: "empty identity",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ManufacturerKey(tt.trademark, tt.fullName); got != tt.want {
				t.Errorf("ManufacturerKey(%q, %q) = %q, want %q", tt.trademark, tt.fullName, got, tt.want)
			}
		})
	}
}

func TestManufacturerKeyNormalizesNoise(t *testing.T) {
	// casing and punctuation must not produce distinct keys
	a := ManufacturerKey("ООО Рога-и-Копыта", "")
	b := ManufacturerKey("ооо рогаикопыта", "")
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}

func TestManufacturerKeyHashesLongNames(t *testing.T) {
	got := ManufacturerKey("Brand", "Brand Limited Liability Company")
	if len(got) != 64 {
		t.Fatalf("long identity should become a sha256 hex digest, got %q (len %d)", got, len(got))
	}

	// stable across calls and across formatting noise
	again := ManufacturerKey("BRAND", "brand limited-liability company")
	if got != again {
		t.Errorf("hash not stable: %q vs %q", got, again)
	}
}
