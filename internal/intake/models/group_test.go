package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupWith(t *testing.T) {
	t.Run("writes a leaf and keeps siblings", func(t *testing.T) {
		root := Group{}.
			With(Path{"personal", "first_name"}, Text("Ada")).
			With(Path{"personal", "last_name"}, Text("Lovelace"))

		v, ok := root.Value(Path{"personal", "first_name"})
		require.True(t, ok)
		assert.Equal(t, "Ada", v.Text())
		v, ok = root.Value(Path{"personal", "last_name"})
		require.True(t, ok)
		assert.Equal(t, "Lovelace", v.Text())
	})

	t.Run("previous root is not affected", func(t *testing.T) {
		before := Group{}.With(Path{"medical", "blood_group"}, Text("A+"))
		after := before.With(Path{"medical", "blood_group"}, Text("O-"))

		v, _ := before.Value(Path{"medical", "blood_group"})
		assert.Equal(t, "A+", v.Text())
		v, _ = after.Value(Path{"medical", "blood_group"})
		assert.Equal(t, "O-", v.Text())
	})

	t.Run("untouched sections are shared", func(t *testing.T) {
		before := Group{}.
			With(Path{"personal", "first_name"}, Text("Ada")).
			With(Path{"medical", "blood_group"}, Text("A+"))
		after := before.With(Path{"personal", "first_name"}, Text("Grace"))

		b, _ := before.Section("medical")
		a, _ := after.Section("medical")
		b["probe"] = Text("x")
		_, shared := a["probe"]
		assert.True(t, shared, "sibling section should be the same map")
	})

	t.Run("invalid path is a no-op", func(t *testing.T) {
		root := Group{}.With(Path{"personal", ""}, Text("x"))
		assert.Empty(t, root)
	})

	t.Run("unknown paths read as absent", func(t *testing.T) {
		root := Group{}.With(Path{"personal", "first_name"}, Text("Ada"))
		_, ok := root.Value(Path{"personal", "first_name", "deeper"})
		assert.False(t, ok)
		_, ok = root.Value(Path{"nope"})
		assert.False(t, ok)
		_, ok = root.Value(nil)
		assert.False(t, ok)
	})
}

func TestGroupFillMissing(t *testing.T) {
	local := Group{}.
		With(Path{"personal", "first_name"}, Text("local")).
		With(Path{"personal", "address", "city"}, Text("Lisbon"))
	remote := Group{}.
		With(Path{"personal", "first_name"}, Text("remote")).
		With(Path{"personal", "last_name"}, Text("Remote")).
		With(Path{"personal", "address", "zip"}, Text("1000")).
		With(Path{"medical", "blood_group"}, Text("B+"))

	merged := local.FillMissing(remote)

	v, _ := merged.Value(Path{"personal", "first_name"})
	assert.Equal(t, "local", v.Text(), "local edits win")
	v, _ = merged.Value(Path{"personal", "last_name"})
	assert.Equal(t, "Remote", v.Text(), "absent keys are filled")
	v, _ = merged.Value(Path{"personal", "address", "zip"})
	assert.Equal(t, "1000", v.Text(), "nested groups are filled")
	v, _ = merged.Value(Path{"personal", "address", "city"})
	assert.Equal(t, "Lisbon", v.Text())
	v, _ = merged.Value(Path{"medical", "blood_group"})
	assert.Equal(t, "B+", v.Text(), "remote-only sections are adopted")
}

func TestGroupJSON(t *testing.T) {
	root := Group{}.
		With(Path{"personal", "first_name"}, Text("Ada")).
		With(Path{"medical", "smoker"}, Bool(false)).
		With(Path{"medical", "prior_pregnancy"}, Null()).
		With(Path{"documents", "id_images"}, List("https://cdn/a.png")).
		With(Path{"personal", "address", "city"}, Text("Porto"))

	raw, err := json.Marshal(root)
	require.NoError(t, err)

	var decoded Group
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, root.Equal(decoded))

	t.Run("rejects non-string lists", func(t *testing.T) {
		var g Group
		err := json.Unmarshal([]byte(`{"docs":{"ids":[1,2]}}`), &g)
		assert.Error(t, err)
	})
}

func TestValueContent(t *testing.T) {
	assert.False(t, Text("   ").HasContent())
	assert.True(t, Text("x").HasContent())
	assert.False(t, List("", " ").HasContent())
	assert.True(t, List("", "u").HasContent())
	assert.False(t, Null().HasContent())
	assert.False(t, Bool(true).HasContent())

	appended := Text("a").Append("b")
	assert.Equal(t, []string{"a", "b"}, appended.List())
	assert.Equal(t, []string{"c"}, Null().Append("c").List())
}
