package ident

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"[dbo]", "dbo"},
		{`"Orders"`, "Orders"},
		{"`users`", "users"},
		{"Plain", "Plain"},
		{"", ""},
		{"[a]]b]", "a]b"},
		{"  [x]  ", "x"},
		{"[", "["},
	}
	for _, tt := range tests {
		got := Normalize(tt.input)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFoldAndEqual(t *testing.T) {
	if Fold("[Orders]") != "orders" {
		t.Errorf("Fold([Orders]) = %q", Fold("[Orders]"))
	}
	if !Equal("E", "e") {
		t.Error("E and e should be equal")
	}
	if !Equal(`"Foo"`, "[foo]") {
		t.Error(`"Foo" and [foo] should be equal`)
	}
}

func TestSplitParts(t *testing.T) {
	got := SplitParts("[my.schema].[tbl]")
	if len(got) != 2 || got[0] != "my.schema" || got[1] != "tbl" {
		t.Errorf("SplitParts = %v", got)
	}
	got = SplitParts("a.b.c")
	if len(got) != 3 {
		t.Errorf("expected 3 parts, got %v", got)
	}
}

func TestParseQualifiedName(t *testing.T) {
	tests := []struct {
		input string
		want  QualifiedName
	}{
		{"Foo", QualifiedName{Name: "Foo"}},
		{"dbo.Foo", QualifiedName{Schema: "dbo", Name: "Foo"}},
		{"db.dbo.Foo", QualifiedName{Database: "db", Schema: "dbo", Name: "Foo"}},
		{"srv.db.dbo.Foo", QualifiedName{Database: "db", Schema: "dbo", Name: "Foo"}},
		{"[srv].[db].[dbo].[Foo]", QualifiedName{Database: "db", Schema: "dbo", Name: "Foo"}},
		{"db..Foo", QualifiedName{Database: "db", Schema: "", Name: "Foo"}},
	}
	for _, tt := range tests {
		got := ParseQualifiedName(tt.input)
		if got != tt.want {
			t.Errorf("ParseQualifiedName(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestQualifiedNameString(t *testing.T) {
	if s := (QualifiedName{Schema: "dbo", Name: "Foo"}).String(); s != "dbo.Foo" {
		t.Errorf("got %q", s)
	}
	if s := (QualifiedName{Database: "db", Name: "Foo"}).String(); s != "db..Foo" {
		t.Errorf("got %q", s)
	}
}

func TestTempTableForms(t *testing.T) {
	tests := []struct {
		input  string
		temp   bool
		global bool
	}{
		{"#Local", true, false},
		{"##Global", true, true},
		{"[#Local]", true, false},
		{"Orders", false, false},
		{"#", false, false},
	}
	for _, tt := range tests {
		if got := IsTempTable(tt.input); got != tt.temp {
			t.Errorf("IsTempTable(%q) = %v, want %v", tt.input, got, tt.temp)
		}
		if got := IsGlobalTemp(tt.input); got != tt.global {
			t.Errorf("IsGlobalTemp(%q) = %v, want %v", tt.input, got, tt.global)
		}
	}
}

func TestShortName(t *testing.T) {
	if got := ShortName("dbo.Customers"); got != "Customers" {
		t.Errorf("got %q", got)
	}
	if got := ShortName("X"); got != "X" {
		t.Errorf("got %q", got)
	}
}
