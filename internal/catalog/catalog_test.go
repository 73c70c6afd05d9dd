package catalog

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeColumns(t *testing.T) {
	rows := []Row{
		{"column_name": "id", "data_type": "int", "is_nullable": "NO", "is_primary_key": 1, "ordinal_position": int64(1)},
		{"name": "email", "type": "varchar", "nullable": true},
		{"Field": "owner_id", "Type": "int(11)", "Null": "YES", "Key": "MUL", "column_key": "MUL"},
		{"cid": 3, "name": "created", "type": "TEXT", "notnull": 1, "pk": 0},
		{"data_type": "int"}, // no name
	}
	want := []Column{
		{Name: "id", DataType: "int", Nullable: false, IsPrimaryKey: true, OrdinalPosition: 1},
		{Name: "email", DataType: "varchar", Nullable: true, OrdinalPosition: 2},
		{Name: "owner_id", DataType: "int(11)", Nullable: true, IsForeignKey: true, OrdinalPosition: 3},
		{Name: "created", DataType: "TEXT", Nullable: false, OrdinalPosition: 3},
	}
	if diff := cmp.Diff(want, NormalizeColumns(rows)); diff != "" {
		t.Errorf("NormalizeColumns mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeColumnsPrimaryKeyImpliesNotNull(t *testing.T) {
	got := NormalizeColumns([]Row{{"name": "id", "column_key": "PRI", "is_nullable": "YES"}})
	if len(got) != 1 || !got[0].IsPrimaryKey || got[0].Nullable {
		t.Fatalf("got %+v", got)
	}
}

func TestNormalizeVendor(t *testing.T) {
	tests := map[string]string{
		"MSSQL":      VendorSQLServer,
		"sqlserver":  VendorSQLServer,
		"PostgreSQL": VendorPostgres,
		"pg":         VendorPostgres,
		"mariadb":    VendorMySQL,
		"sqlite3":    VendorSQLite,
		" Oracle ":   "oracle",
	}
	for in, want := range tests {
		if got := NormalizeVendor(in); got != want {
			t.Errorf("NormalizeVendor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKnownVendor(t *testing.T) {
	for _, v := range []string{"mssql", "PostgreSQL", "mariadb", "sqlite3"} {
		if !KnownVendor(v) {
			t.Errorf("KnownVendor(%q) = false", v)
		}
	}
	for _, v := range []string{"oracle", ""} {
		if KnownVendor(v) {
			t.Errorf("KnownVendor(%q) = true", v)
		}
	}
}

func TestDefaultSchema(t *testing.T) {
	tests := []struct {
		vendor    string
		overrides map[string]string
		want      string
	}{
		{"sqlserver", nil, "dbo"},
		{"postgresql", nil, "public"},
		{"mysql", nil, ""},
		{"sqlite", nil, ""},
		{"oracle", nil, ""},
		{"sqlserver", map[string]string{"sqlserver": "app"}, "app"},
		{"postgres", map[string]string{"postgres": ""}, ""},
	}
	for _, tt := range tests {
		if got := DefaultSchema(tt.vendor, tt.overrides); got != tt.want {
			t.Errorf("DefaultSchema(%q, %v) = %q, want %q", tt.vendor, tt.overrides, got, tt.want)
		}
	}
}

func TestConfigSerialize(t *testing.T) {
	cfg := Config{"server": "db1", "database": "Sales", "auth": `a"b`}
	want := `{"auth":"a\"b","database":"Sales","server":"db1"}`
	if got := cfg.Serialize(); got != want {
		t.Errorf("Serialize() = %s, want %s", got, want)
	}
	if got := Config(nil).Serialize(); got != "{}" {
		t.Errorf("nil Serialize() = %s", got)
	}

	odd := Config{"password": "p<&>\\\u00e9", "dsn": "a\nb"}
	var back map[string]string
	if err := json.Unmarshal([]byte(odd.Serialize()), &back); err != nil {
		t.Fatalf("Serialize() is not JSON: %v", err)
	}
	if diff := cmp.Diff(map[string]string(odd), back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestColumnCacheKey(t *testing.T) {
	got := ColumnCacheKey("Prod", "Sales", "DBO", "Orders")
	if want := "sqlscope:columns:prod:sales:dbo:orders"; got != want {
		t.Errorf("ColumnCacheKey() = %q, want %q", got, want)
	}
	if got := ColumnCacheKey("p", "d", "", "t"); got != "sqlscope:columns:p:d::t" {
		t.Errorf("empty schema key = %q", got)
	}
}

func TestObjectQualifiedName(t *testing.T) {
	o := &Object{Name: "Orders", Schema: "sales", Database: "Shop", Kind: KindTable}
	if got := o.QualifiedName(); got != "Shop.sales.Orders" {
		t.Errorf("QualifiedName() = %q", got)
	}
	if !(&Object{Kind: KindSynonym}).IsSynonym() {
		t.Error("synonym not reported")
	}
	var nilObj *Object
	if nilObj.IsSynonym() {
		t.Error("nil object reported as synonym")
	}
}
