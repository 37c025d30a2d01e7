package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func codes(errs []FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field+":"+e.Code)
	}
	return out
}

func TestValidateEmptySchemaAlwaysValid(t *testing.T) {
	assert.Empty(t, Validate(map[string]any{"anything": strings.Repeat("x", 5000)}, nil))
	assert.Empty(t, Validate(nil, Schema{}))
}

func TestValidateIgnoresUnknownPayloadKeys(t *testing.T) {
	s := Schema{{Name: "text", Spec: FieldSpec{Required: true}}}
	errs := Validate(map[string]any{"text": "hi", "extra": []any{1, 2, 3}}, s)
	assert.Empty(t, errs)
}

func TestValidateAllowedFalseDominatesRequired(t *testing.T) {
	for _, required := range []bool{true, false} {
		s := Schema{{Name: "link", Spec: FieldSpec{Required: required, Allowed: Bool(false)}}}
		for _, value := range []any{"https://example.com", []any{"a"}, 42, map[string]any{"k": "v"}} {
			errs := Validate(map[string]any{"link": value}, s)
			require.Len(t, errs, 1, "required=%v value=%v", required, value)
			assert.Equal(t, CodeNotAllowed, errs[0].Code)
		}
		// an empty value for a disallowed field is fine, even when required
		assert.Empty(t, Validate(map[string]any{}, s))
		assert.Empty(t, Validate(map[string]any{"link": ""}, s))
	}
}

func TestValidateRequiredEmpty(t *testing.T) {
	s := Schema{{Name: "image_url", Spec: FieldSpec{Required: true}}}
	for _, payload := range []map[string]any{nil, {}, {"image_url": ""}, {"image_url": nil}} {
		errs := Validate(payload, s)
		require.Len(t, errs, 1)
		assert.Equal(t, "required field missing", errs[0].Message)
	}
	assert.Empty(t, Validate(map[string]any{"image_url": "https://cdn/x.png"}, s))

	arr := Schema{{Name: "media", Spec: FieldSpec{Type: TypeArray, Required: true}}}
	require.Len(t, Validate(map[string]any{"media": []any{}}, arr), 1)
	assert.Empty(t, Validate(map[string]any{"media": []any{"a"}}, arr))
}

func TestValidateStringBounds(t *testing.T) {
	s := Schema{{Name: "text", Spec: FieldSpec{Type: TypeString, MaxLength: Int(10)}}}

	assert.Empty(t, Validate(map[string]any{"text": strings.Repeat("a", 10)}, s), "exact boundary")
	assert.Empty(t, Validate(map[string]any{"text": "äöüäöüäöüä"}, s), "length counts characters")

	errs := Validate(map[string]any{"text": strings.Repeat("a", 11)}, s)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeMaxLength, errs[0].Code)
	assert.Equal(t, 11, *errs[0].Observed)
	assert.Equal(t, 10, *errs[0].Limit)

	// non-string values are not length-checked
	assert.Empty(t, Validate(map[string]any{"text": 123456789012}, s))
}

func TestValidateArrayBounds(t *testing.T) {
	s := Schema{{Name: "images", Spec: FieldSpec{Type: TypeArray, MinItems: Int(2), MaxItems: Int(4)}}}

	assert.Empty(t, Validate(map[string]any{"images": []any{1, 2}}, s))
	assert.Empty(t, Validate(map[string]any{"images": []string{"a", "b", "c", "d"}}, s))

	errs := Validate(map[string]any{"images": []any{1}}, s)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeMinItems, errs[0].Code)

	errs = Validate(map[string]any{"images": []any{1, 2, 3, 4, 5}}, s)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeMaxItems, errs[0].Code)
	assert.Equal(t, 5, *errs[0].Observed)
}

func TestValidateAdvisoryTypes(t *testing.T) {
	s := Schema{{Name: "meta", Spec: FieldSpec{Type: "object", MaxLength: Int(1), MaxItems: Int(0)}}}
	assert.Empty(t, Validate(map[string]any{"meta": map[string]any{"a": 1, "b": 2}}, s))
}

func TestValidateOrderAndDeterminism(t *testing.T) {
	s := Schema{
		{Name: "title", Spec: FieldSpec{Required: true}},
		{Name: "link", Spec: FieldSpec{Allowed: Bool(false)}},
		{Name: "text", Spec: FieldSpec{MaxLength: Int(3)}},
		{Name: "tags", Spec: FieldSpec{Type: TypeArray, MaxItems: Int(1)}},
	}
	payload := map[string]any{"link": "x", "text": "abcd", "tags": []any{"a", "b"}}

	first := Validate(payload, s)
	second := Validate(payload, s)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("validate not deterministic (-first +second):\n%s", diff)
	}
	assert.Equal(t, []string{"title:required", "link:not_allowed", "text:max_length", "tags:max_items"}, codes(first))
}

func TestSchemaJSONKeepsOrder(t *testing.T) {
	raw := `{"zeta":{"required":true},"alpha":{"type":"array","max_items":3},"mid":{"allowed":false}}`
	var s Schema
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, s.Names())
	assert.False(t, s[2].Spec.IsAllowed())
	assert.Equal(t, TypeString, s[0].Spec.EffectiveType())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
	assert.True(t, strings.Index(string(out), "zeta") < strings.Index(string(out), "alpha"))
}

func TestSchemaJSONRejectsDuplicates(t *testing.T) {
	var s Schema
	err := json.Unmarshal([]byte(`{"a":{},"a":{}}`), &s)
	assert.Error(t, err)
}

func TestSchemaYAMLKeepsOrder(t *testing.T) {
	doc := `
caption:
  type: string
  required: true
  max_length: 2200
media:
  type: array
  min_items: 1
  max_items: 10
link:
  allowed: false
`
	var s Schema
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	assert.Equal(t, []string{"caption", "media", "link"}, s.Names())
	spec, ok := s.Lookup("caption")
	require.True(t, ok)
	assert.Equal(t, 2200, *spec.MaxLength)

	out, err := yaml.Marshal(s)
	require.NoError(t, err)
	var again Schema
	require.NoError(t, yaml.Unmarshal(out, &again))
	if diff := cmp.Diff(s, again); diff != "" {
		t.Fatalf("yaml round trip changed schema:\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	s := Schema{
		{Name: "", Spec: FieldSpec{}},
		{Name: "a", Spec: FieldSpec{MaxLength: Int(-1)}},
		{Name: "a", Spec: FieldSpec{Type: TypeArray, MinItems: Int(3), MaxItems: Int(1)}},
	}
	errs := Check(s)
	assert.Len(t, errs, 4)
	assert.Empty(t, Check(Schema{{Name: "ok", Spec: FieldSpec{MaxLength: Int(0)}}}))
}
