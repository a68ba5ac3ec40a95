package query

import "testing"

var searchTableTests = []struct {
	input                string
	expectedFragments    []string
	expectedNotFragments []string
	expectedFields       map[string][]string
	expectedNotFields    map[string][]string
}{
	{
		"msg",
		[]string{"msg"},
		[]string{},
		map[string][]string{},
		map[string][]string{},
	},
	{
		"\"msg\"",
		[]string{"msg"},
		[]string{},
		map[string][]string{},
		map[string][]string{},
	},
	{
		"NOT msg",
		[]string{},
		[]string{"msg"},
		map[string][]string{},
		map[string][]string{},
	},
	{
		"msg NOT msg2",
		[]string{"msg"},
		[]string{"msg2"},
		map[string][]string{},
		map[string][]string{},
	},
	{
		"msg=msg2",
		[]string{},
		[]string{},
		map[string][]string{"msg": {"msg2"}},
		map[string][]string{},
	},
	{
		"msg=\"msg2\"",
		[]string{},
		[]string{},
		map[string][]string{"msg": {"msg2"}},
		map[string][]string{},
	},
	{
		"msg!=msg2",
		[]string{},
		[]string{},
		map[string][]string{},
		map[string][]string{"msg": {"msg2"}},
	},
	{
		"msg IN (msg2, msg3)",
		[]string{},
		[]string{},
		map[string][]string{"msg": {"msg2", "msg3"}},
		map[string][]string{},
	},
	{
		"msg NOT IN (msg2, msg3)",
		[]string{},
		[]string{},
		map[string][]string{},
		map[string][]string{"msg": {"msg2", "msg3"}},
	},
	{
		"free*text level=error",
		[]string{"free*text"},
		[]string{},
		map[string][]string{"level": {"error"}},
		map[string][]string{},
	},
}

func TestParseSearchTable(t *testing.T) {
	for _, tt := range searchTableTests {
		t.Run(tt.input, func(t *testing.T) {
			res, err := ParseSearch(tt.input)
			if err != nil {
				t.Fatalf("got error when parsing input: %v", err)
			}
			checkFragmentSet(t, tt.expectedFragments, res.Fragments, "Fragments")
			checkFragmentSet(t, tt.expectedNotFragments, res.NotFragments, "NotFragments")
			checkFieldMap(t, tt.expectedFields, res.Fields, "Fields")
			checkFieldMap(t, tt.expectedNotFields, res.NotFields, "NotFields")
		})
	}
}

func TestParseSearchUnclosedQuote(t *testing.T) {
	if _, err := ParseSearch("\"unclosed"); err == nil {
		t.Fatalf("expected an error for an unclosed quote")
	}
}

func checkFragmentSet(t *testing.T, expected []string, actual map[string]struct{}, name string) {
	t.Helper()
	if len(actual) != len(expected) {
		t.Errorf("%v: got unexpected number of fragments. expected=%v, actual=%v", name, len(expected), len(actual))
	}
	for _, f := range expected {
		if _, ok := actual[f]; !ok {
			t.Errorf("%v: did not get expected fragment=%v", name, f)
		}
	}
}

func checkFieldMap(t *testing.T, expected map[string][]string, actual map[string][]string, name string) {
	t.Helper()
	if len(actual) != len(expected) {
		t.Errorf("%v: got unexpected number of fields. expected=%v, actual=%v", name, len(expected), len(actual))
	}
	for k, want := range expected {
		got, ok := actual[k]
		if !ok {
			t.Errorf("%v: did not get expected field=%v", name, k)
			continue
		}
		if len(want) != len(got) {
			t.Errorf("%v: got unexpected number of values for field=%v. expected=%v, actual=%v", name, k, len(want), len(got))
			continue
		}
		for _, wv := range want {
			found := false
			for _, gv := range got {
				if gv == wv {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("%v: did not find expected value=%v for field=%v", name, wv, k)
			}
		}
	}
}
