package model

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestRecord_UnmarshalKeepsNumbers(t *testing.T) {
	var rec Record
	in := `{"type":"Feature","id":"12","geometry":null,"properties":{"osm_id":9007199254740993,"area":12.5}}`
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ID != 12 {
		t.Fatalf("id=%d want 12", rec.ID)
	}
	if got := rec.Properties["osm_id"]; got != json.Number("9007199254740993") {
		t.Fatalf("osm_id=%#v", got)
	}
	if got := rec.Properties["area"]; got != json.Number("12.5") {
		t.Fatalf("area=%#v", got)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	props := back["properties"].(map[string]any)
	if props["osm_id"] != json.Number("9007199254740993") {
		t.Fatalf("round trip lost precision: %s", out)
	}
}

func TestRecord_UnmarshalRejectsBadID(t *testing.T) {
	var rec Record
	if err := json.Unmarshal([]byte(`{"id":"abc","properties":{}}`), &rec); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
}
