package springview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFuncs(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"number_format", `{=number_format($n, 2)}`, "1,234,567.89"},
		{"number_format rounding", `{=number_format(1234.5)}`, "1,235"},
		{"number_format separators", `{=number_format(-1234.5, 1, ",", ".")}`, "-1.234,5"},
		{"money", `{=money(1234.5)}`, "$1,234.50"},
		{"money negative", `{=money(-3, "€")}`, "-€3.00"},
		{"slugify", `{=slugify("Hello World!")}`, "hello-world"},
		{"strip_tags", `{=strip_tags("<b>bold</b>")}`, "bold"},
		{"ucfirst", `{=ucfirst("ada")}`, "Ada"},
		{"ucwords", `{=ucwords("ada lovelace")}`, "Ada Lovelace"},
		{"strtolower", `{=strtolower("ADA")}`, "ada"},
		{"nl2br", `{=nl2br("a\nb")}`, "a<br />\nb"},
		{"htmlspecialchars", `{=htmlspecialchars("<a href='x'>")}`, "&lt;a href=&#39;x&#39;&gt;"},
		{"str_limit", `{=str_limit("abcdef", 3)}`, "abc..."},
		{"str_limit short", `{=str_limit("ab", 3)}`, "ab"},
		{"implode", `{=implode(", ", $list)}`, "a, b, c"},
		{"in_array", `{?(in_array("b", $list))}yes{/?}`, "yes"},
		{"json_encode", `{=json_encode($m)}`, `{"k":1}`},
		{"date_format", `{=date_format(0, "2006-01-02")}`, "1970-01-01"},
	}
	vars := map[string]any{
		"n":    1234567.891,
		"list": []any{"a", "b", "c"},
		"m":    map[string]any{"k": 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := renderSource(t, tt.src, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSanitize(t *testing.T) {
	out, err := sanitizeOnce(`<a href="https://example.com" onclick="x()">l</a>`)
	require.NoError(t, err)
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, `href="https://example.com"`)
}

func sanitizeOnce(s string) (string, error) {
	v, err := DefaultFuncs()["sanitize"](s)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func TestFuncArgumentErrors(t *testing.T) {
	_, err := numberFormat()
	assert.Error(t, err)
	_, err = numberFormat("abc")
	assert.Error(t, err)
	_, err = strLimit("x")
	assert.Error(t, err)
}

func TestUserFunctionsOverrideDefaults(t *testing.T) {
	shout := Funcs{"strtoupper": func(args ...any) (any, error) { return "!" + toText(arg(args, 0)), nil }}
	out, err := renderSource(t, `{=strtoupper("a")}`, nil, WithFunctions(shout))
	require.NoError(t, err)
	assert.Equal(t, "!a", out)
}
