package dataset

import (
	"testing"

	"github.com/liamcoop/cellrules/rules"
)

func TestSchemaColumns(t *testing.T) {
	schema := Schema{
		{Name: "id", Title: "ID", Type: TypeString},
		{Name: "amount", Type: TypeNumber},
	}

	cols := schema.Columns()
	if len(cols) != 2 {
		t.Fatalf("Columns() returned %d columns, want 2", len(cols))
	}
	if cols[0].ID != "id" || cols[0].Title != "ID" || cols[0].Hideable {
		t.Errorf("first column = %+v", cols[0])
	}
	if cols[1].Title != "amount" || !cols[1].Hideable || !cols[1].Sortable {
		t.Errorf("second column = %+v", cols[1])
	}
}

func TestSchemaLookup(t *testing.T) {
	if got := PaymentSchema.Names(); len(got) != 4 || got[0] != "id" || got[3] != "amount" {
		t.Errorf("Names() = %v", got)
	}
	if f, ok := PaymentSchema.Field("amount"); !ok || f.Type != TypeNumber {
		t.Errorf("Field(amount) = %+v, %v", f, ok)
	}
	if _, ok := PaymentSchema.Field("country"); ok {
		t.Error("Field(country) should not exist")
	}
}

func TestFieldCoerce(t *testing.T) {
	tests := []struct {
		name    string
		typ     FieldType
		in      any
		want    rules.Scalar
		wantErr bool
	}{
		{"nil stays null", TypeNumber, nil, rules.NullValue(), false},
		{"string", TypeString, "failed", rules.StringValue("failed"), false},
		{"number as string", TypeString, 42, rules.StringValue("42"), false},
		{"float", TypeNumber, 316.5, rules.NumberValue(316.5), false},
		{"int", TypeNumber, int64(7), rules.NumberValue(7), false},
		{"numeric bytes", TypeNumber, []byte("316.00"), rules.NumberValue(316), false},
		{"not a number", TypeNumber, "abc", rules.Scalar{}, true},
		{"bool", TypeBool, true, rules.BoolValue(true), false},
		{"bool text", TypeBool, "f", rules.BoolValue(false), false},
		{"bad bool", TypeBool, "maybe", rules.Scalar{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Field{Name: "x", Type: tt.typ}.Coerce(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Coerce(%v) should fail, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v) failed: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Coerce(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFieldTypeValid(t *testing.T) {
	for _, typ := range []FieldType{TypeString, TypeNumber, TypeBool} {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if FieldType("int").Valid() {
		t.Error("int should not be valid")
	}
}
