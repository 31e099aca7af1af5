package knowledge

import "testing"

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeVector_Roundtrip(t *testing.T) {
	vec := []float32{0.1, -0.2, 3.5, 0}
	blob, err := encodeVector(vec)
	if err != nil {
		t.Fatalf("encodeVector: %v", err)
	}
	got, err := decodeVector(blob)
	if err != nil {
		t.Fatalf("decodeVector: %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestDecodeVector_TooShort(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2}); err == nil {
		t.Fatal("expected error for undersized blob")
	}
}
