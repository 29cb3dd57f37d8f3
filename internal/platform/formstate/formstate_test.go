package formstate

import (
	"errors"
	"reflect"
	"testing"
)

type code struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type item struct {
	Department string `json:"department"`
	Days       int    `json:"days"`
}

type inner struct {
	Main  code   `json:"mainDisease"`
	Flags []bool `json:"flags"`
}

type doc struct {
	ID     string            `json:"id"`
	Items  []item            `json:"items"`
	Inner  inner             `json:"inner"`
	Ptr    *code             `json:"ptr,omitempty"`
	Extra  map[string]string `json:"extra"`
	Notes  []string          `json:"notes"`
	hidden string
}

func sample() *doc {
	return &doc{
		ID:    "REC1",
		Items: []item{{Department: "Nội", Days: 2}, {Department: "Ngoại", Days: 3}},
		Inner: inner{Main: code{Name: "Viêm phổi", Code: "J18"}, Flags: []bool{true}},
		Ptr:   &code{Name: "x"},
		Extra: map[string]string{"a": "1"},
		Notes: []string{"n1"},
	}
}

func TestParsePath(t *testing.T) {
	cases := map[string]Path{
		"managementData.transfers[0].department": {"managementData", "transfers", 0, "department"},
		"managementData.transfers.1.department":  {"managementData", "transfers", 1, "department"},
		"a[1][2]":                                {"a", 1, 2},
		"name":                                   {"name"},
	}
	for in, want := range cases {
		got, err := ParsePath(in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", in, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}

	for _, bad := range []string{"", "a..b", "a[x]", "a[1"} {
		if _, err := ParsePath(bad); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("%q: expected ErrInvalidPath, got %v", bad, err)
		}
	}
}

func TestPath_String(t *testing.T) {
	p := Path{"managementData", "transfers", 0, "department"}
	if p.String() != "managementData.transfers[0].department" {
		t.Errorf("unexpected string: %s", p.String())
	}
	if p.Last() != "department" {
		t.Errorf("unexpected last: %s", p.Last())
	}
	if len(p.Parent()) != 3 {
		t.Errorf("unexpected parent: %v", p.Parent())
	}
}

func TestSetIn_NilState(t *testing.T) {
	var s *doc
	out, err := SetIn(s, MustParsePath("inner.mainDisease.name"), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil, got %+v", out)
	}
}

func TestSetIn_NestedStructLeaf(t *testing.T) {
	old := sample()
	out, err := SetIn(old, MustParsePath("inner.mainDisease.code"), "J15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == old {
		t.Fatal("expected a new top-level value")
	}
	if out.Inner.Main.Code != "J15" {
		t.Errorf("expected J15, got %s", out.Inner.Main.Code)
	}
	if old.Inner.Main.Code != "J18" {
		t.Errorf("original mutated: %s", old.Inner.Main.Code)
	}
	// Untouched branches share storage.
	if &out.Items[0] != &old.Items[0] {
		t.Error("expected items slice to be shared")
	}
	if out.Ptr != old.Ptr {
		t.Error("expected pointer branch to be shared")
	}
	if !reflect.DeepEqual(out.Extra, old.Extra) || !reflect.DeepEqual(out.Notes, old.Notes) {
		t.Error("expected untouched branches to be equal")
	}
}

func TestSetIn_SliceElement(t *testing.T) {
	old := sample()
	out, err := SetIn(old, MustParsePath("items[1].department"), "Hồi sức")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Items[1].Department != "Hồi sức" {
		t.Errorf("unexpected department: %s", out.Items[1].Department)
	}
	if old.Items[1].Department != "Ngoại" {
		t.Errorf("original slice mutated: %s", old.Items[1].Department)
	}
	if &out.Items[0] == &old.Items[0] {
		t.Error("expected the edited slice to be copied")
	}
	if out.Items[0] != old.Items[0] {
		t.Error("expected sibling element to be equal")
	}
	if &out.Inner.Flags[0] != &old.Inner.Flags[0] {
		t.Error("expected untouched slice to be shared")
	}
}

func TestSetIn_JSONNumberIntoInt(t *testing.T) {
	out, err := SetIn(sample(), MustParsePath("items.0.days"), float64(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Items[0].Days != 7 {
		t.Errorf("expected 7, got %d", out.Items[0].Days)
	}
}

func TestSetIn_ObjectIntoStruct(t *testing.T) {
	out, err := SetIn(sample(), MustParsePath("inner.mainDisease"), map[string]any{"name": "Lao", "code": "A15"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Inner.Main != (code{Name: "Lao", Code: "A15"}) {
		t.Errorf("unexpected value: %+v", out.Inner.Main)
	}
}

func TestSetIn_PointerAndMap(t *testing.T) {
	old := sample()
	out, err := SetIn(old, MustParsePath("ptr.code"), "Z00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Ptr == old.Ptr || out.Ptr.Code != "Z00" || old.Ptr.Code != "" {
		t.Errorf("pointer branch not copied on write: %+v / %+v", out.Ptr, old.Ptr)
	}

	out, err = SetIn(old, MustParsePath("extra.b"), "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Extra["b"] != "2" || out.Extra["a"] != "1" {
		t.Errorf("unexpected map: %v", out.Extra)
	}
	if _, ok := old.Extra["b"]; ok {
		t.Error("original map mutated")
	}
}

func TestSetIn_Errors(t *testing.T) {
	s := sample()
	if _, err := SetIn(s, MustParsePath("nope"), 1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if _, err := SetIn(s, MustParsePath("items[5].days"), 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := SetIn(s, MustParsePath("items.0.days"), "many"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := SetIn(s, MustParsePath("id.x"), 1); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
	if _, err := SetIn(s, MustParsePath("hidden"), "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected unexported field to be unknown, got %v", err)
	}
}
