package faststore

import "testing"

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, DefaultQueryLimit},
		{"negative uses default", -5, DefaultQueryLimit},
		{"within range passes through", 50, 50},
		{"above max clamps", 500, MaxQueryLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeLimit(tc.limit); got != tc.want {
				t.Errorf("NormalizeLimit(%d) = %d, want %d", tc.limit, got, tc.want)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	cases := []struct {
		name  string
		page  int
		limit int
		want  int
	}{
		{"page one has no offset", 1, 20, 0},
		{"page zero clamps to one", 0, 20, 0},
		{"page three", 3, 20, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Offset(tc.page, tc.limit); got != tc.want {
				t.Errorf("Offset(%d, %d) = %d, want %d", tc.page, tc.limit, got, tc.want)
			}
		})
	}
}
