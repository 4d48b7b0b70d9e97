package bridge

import "testing"

func TestPhoneShaped(t *testing.T) {
	t.Parallel()
	cases := []struct {
		value string
		want  bool
	}{
		{"79990000001", true},
		{"+79990000001", true},
		{" 79990000001 ", true},
		{"1234567", true},
		{"123456", false},
		{"conv-uuid-1", false},
		{"7999000x001", false},
		{"", false},
		{"+", false},
	}
	for _, tc := range cases {
		if got := PhoneShaped(tc.value); got != tc.want {
			t.Errorf("PhoneShaped(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
