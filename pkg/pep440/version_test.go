package pep440

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type versionTestcase struct {
	Name string
	In   string
	Err  bool
	Want Version
}

func (tc versionTestcase) Run(t *testing.T) {
	t.Logf("%s → %s", tc.In, tc.Want.String())
	v, err := Parse(tc.In)
	if (err != nil) != tc.Err {
		t.Error(err)
	}
	if !cmp.Equal(tc.Want, v) {
		t.Error(cmp.Diff(tc.Want, v))
	}
}

func TestSimple(t *testing.T) {
	tt := []versionTestcase{
		{
			Name: "Simple",
			In:   "1.0.0",
			Err:  false,
			Want: Version{Release: []int{1, 0, 0}},
		},
		{
			Name: "All",
			In:   "1!2.3.4-a5-post_6.dev7.8",
			Err:  false,
			Want: Version{
				Epoch:   1,
				Release: []int{2, 3, 4},
				Pre: struct {
					Label string
					N     int
				}{
					Label: "a",
					N:     5,
				},
				Post: 6,
				Dev:  7,
			},
		},
		{
			Name: "Date",
			In:   "2019.3",
			Err:  false,
			Want: Version{Release: []int{2019, 3}},
		},
	}

	for _, tc := range tt {
		t.Run(tc.Name, tc.Run)
	}
}

func TestCanonicalString(t *testing.T) {
	tt := []struct{ In, Want string }{
		{"1.0", "1.0"},
		{"v1.2.3", "1.2.3"},
		{"1.0a1", "1.0a1"},
		{"1.0.post1", "1.0.post1"},
		{"1.0.dev1", "1.0.dev1"},
		{"1!2.3.4-a5-post_6.dev7.8", "1!2.3.4a5.post6.dev7"},
	}
	for _, tc := range tt {
		v, err := Parse(tc.In)
		if err != nil {
			t.Fatal(err)
		}
		if got := v.String(); got != tc.Want {
			t.Errorf("Parse(%q).String() = %q, want %q", tc.In, got, tc.Want)
		}
	}
}
