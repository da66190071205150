package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_PreservesOrder(t *testing.T) {
	t.Parallel()

	in := `{"zeta":"1","alpha":2,"mid":{"b":1,"a":2},"list":[1,"x"],"n":null}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(in), &r))
	assert.Equal(t, []string{"zeta", "alpha", "mid", "list", "n"}, r.Keys())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestRecord_RejectsNonObject(t *testing.T) {
	t.Parallel()

	var r Record
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &r))
}

func TestRecord_SetAndGet(t *testing.T) {
	t.Parallel()

	var r Record
	r.SetString("name", "Sita & <Ram>")
	r.SetString("role", "fellow")
	r.SetString("name", "Gita")

	v, ok := r.Get("name")
	require.True(t, ok)
	assert.Equal(t, `"Gita"`, string(v))
	assert.Equal(t, []string{"name", "role"}, r.Keys())

	assert.Equal(t, `"a & <b>"`, string(String("a & <b>")))
}

func TestText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`"plain"`:          "plain",
		`12.5`:             "12.5",
		`true`:             "true",
		`null`:             "",
		``:                 "",
		`{ "a" : [1, 2] }`: `{"a":[1,2]}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, Text(json.RawMessage(in)), "Text(%s)", in)
	}
}

func TestLines_SkipsBlankAndNonStrings(t *testing.T) {
	t.Parallel()

	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Ram","email":"  ","age":30,"role":"Teacher"}`), &r))
	assert.Equal(t, "name: Ram\nrole: Teacher", r.Lines())

	var empty Record
	require.NoError(t, json.Unmarshal([]byte(`{"n":1}`), &empty))
	assert.Equal(t, "", empty.Lines())
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "éé", Truncate("ééé", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestIsArrayIsObject(t *testing.T) {
	t.Parallel()

	assert.True(t, IsArray(json.RawMessage(" [1]")))
	assert.False(t, IsArray(json.RawMessage(`{"a":1}`)))
	assert.True(t, IsObject(json.RawMessage(`{"a":1}`)))
	assert.False(t, IsObject(json.RawMessage(`"x"`)))
}
