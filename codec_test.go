package jsandy

import (
	"math/big"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

type codecFixture struct {
	Name    string    `json:"name"`
	When    time.Time `json:"when"`
	Skipped string    `json:"skipped,omitempty"`
}

func TestEncodeBody_PlainWhenUntagged(t *testing.T) {
	body, tagged, err := EncodeBody(map[string]any{"a": 1, "b": "two"})
	assert.NilError(t, err)
	assert.Equal(t, tagged, false)
	assert.Equal(t, body, `{"a":1,"b":"two"}`)
}

func TestEncodeDecodeBody_RoundTripsDate(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	in := codecFixture{Name: "launch", When: when}

	body, tagged, err := EncodeBody(in)
	assert.NilError(t, err)
	assert.Equal(t, tagged, true)

	decoded, err := DecodeBody(body, tagged)
	assert.NilError(t, err)

	fields, ok := decoded.(map[string]any)
	assert.Check(t, ok)
	assert.Equal(t, fields["name"], "launch")

	gotWhen, ok := fields["when"].(time.Time)
	assert.Check(t, ok)
	assert.Check(t, gotWhen.Equal(when))
}

func TestEncodeDecodeField_RoundTripsBigInt(t *testing.T) {
	n := new(big.Int)
	n.SetString("123456789012345678901234567890", 10)

	text, err := EncodeField(n)
	assert.NilError(t, err)

	decoded, err := DecodeField(text)
	assert.NilError(t, err)

	got, ok := decoded.(*big.Int)
	assert.Check(t, ok)
	assert.Equal(t, got.String(), n.String())
}

func TestEncodeDecodeField_RoundTripsOrderedSet(t *testing.T) {
	set := NewOrderedSet("c", "a", "b")

	text, err := EncodeField(set)
	assert.NilError(t, err)

	decoded, err := DecodeField(text)
	assert.NilError(t, err)

	got, ok := decoded.(*OrderedSet[any])
	assert.Check(t, ok)
	assert.DeepEqual(t, got.Values(), []any{"c", "a", "b"})
}

func TestEncodeDecodeField_RoundTripsOrderedMap(t *testing.T) {
	m := NewOrderedMap()
	m.Set("z", 1)
	m.Set("a", 2)

	text, err := EncodeField(m)
	assert.NilError(t, err)

	decoded, err := DecodeField(text)
	assert.NilError(t, err)

	got, ok := decoded.(*OrderedMap)
	assert.Check(t, ok)
	assert.DeepEqual(t, got.Keys(), []string{"z", "a"})
}

func TestEncodeField_Undefined(t *testing.T) {
	text, err := EncodeField(Undefined{})
	assert.NilError(t, err)

	decoded, err := DecodeField(text)
	assert.NilError(t, err)
	assert.DeepEqual(t, decoded, Undefined{})
}

func TestEncodeFields_SplitsPerTopLevelField(t *testing.T) {
	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fields, err := EncodeFields(codecFixture{Name: "a", When: when})
	assert.NilError(t, err)

	_, hasName := fields["name"]
	_, hasWhen := fields["when"]
	assert.Check(t, hasName)
	assert.Check(t, hasWhen)

	decodedWhen, err := DecodeField(fields["when"])
	assert.NilError(t, err)
	got, ok := decodedWhen.(time.Time)
	assert.Check(t, ok)
	assert.Check(t, got.Equal(when))
}

func TestBind_MapsDecodedFieldsOntoStruct(t *testing.T) {
	type target struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	src := map[string]any{"name": "widget", "count": float64(3)}
	out, err := Bind[target](src)
	assert.NilError(t, err)
	assert.Equal(t, out.Name, "widget")
	assert.Equal(t, out.Count, 3)
}
