package safe

import (
	"encoding/json"
	"testing"
)

func TestExtractDefaults(t *testing.T) {
	const def = 42.5
	if got := Extract(map[string]any{}, []string{"missing_key"}, def, ToFloat); got != def {
		t.Errorf("missing key: got %v", got)
	}
	if got := Extract(map[string]any{"k": nil}, []string{"k"}, def, ToFloat); got != def {
		t.Errorf("null value: got %v", got)
	}
	if got := Extract(map[string]any{"k": "not_a_number"}, []string{"k"}, def, ToFloat); got != def {
		t.Errorf("bad cast: got %v", got)
	}
	if got := Extract[float64](nil, []string{"k"}, def, ToFloat); got != def {
		t.Errorf("nil container: got %v", got)
	}
	if got := Extract("scalar", []string{"k"}, def, ToFloat); got != def {
		t.Errorf("scalar container: got %v", got)
	}
}

func TestExtractFirstCandidate(t *testing.T) {
	m := map[string]any{"qty": nil, "quantity": "bad", "origQty": json.Number("10.50")}
	if got := Number(m, "qty", "quantity", "origQty"); got != "10.5" {
		t.Errorf("Number = %q", got)
	}
	if got := String(m, "nope", "origQty"); got != "10.50" {
		t.Errorf("String = %q", got)
	}
}

func TestCasts(t *testing.T) {
	raw, err := Decode([]byte(`{"s":"abc","n":123,"f":"1.25","t":1700000000123,"ft":1.7e12,"b":true,"bs":"false","arr":[["100","1"]],"obj":{"x":1}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := String(raw, "n"); got != "123" {
		t.Errorf("String(n) = %q", got)
	}
	if got := StringUpper(raw, "s"); got != "ABC" {
		t.Errorf("StringUpper = %q", got)
	}
	if ts, ok := Integer(raw, "t"); !ok || ts != 1700000000123 {
		t.Errorf("Integer(t) = %d %v", ts, ok)
	}
	if ts, ok := Integer(raw, "ft"); !ok || ts != 1700000000000 {
		t.Errorf("Integer(ft) = %d %v", ts, ok)
	}
	if _, ok := Integer(raw, "s"); ok {
		t.Errorf("Integer(s) should fail")
	}
	if got := Float(raw, -1, "f"); got != 1.25 {
		t.Errorf("Float(f) = %v", got)
	}
	if b, ok := Bool(raw, "b"); !ok || !b {
		t.Errorf("Bool(b) = %v %v", b, ok)
	}
	if b, ok := Bool(raw, "bs"); !ok || b {
		t.Errorf("Bool(bs) = %v %v", b, ok)
	}
	if _, ok := Bool(raw, "n"); ok {
		t.Errorf("Bool(n) should fail")
	}
	if got := Number(raw, "b"); got != "" {
		t.Errorf("Number(b) = %q", got)
	}
	levels := List(raw, "arr")
	if len(levels) != 1 || String(levels[0], "0") != "100" || String(levels[0], "-1") != "1" {
		t.Errorf("List/index lookup failed: %v", levels)
	}
	if Map(raw, "obj") == nil || Map(raw, "arr") != nil {
		t.Errorf("Map lookup mismatch")
	}
	if !Has(raw, "nope", "s") || Has(raw, "nope") {
		t.Errorf("Has mismatch")
	}
}
