package springview

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ----------------------------- Functions ------------------------------------

// Func is a function callable from template expressions.
type Func func(args ...any) (any, error)

// Funcs maps expression names to functions.
type Funcs map[string]Func

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

// DefaultFuncs returns the free functions every engine starts with. Names
// avoid the expression language's own builtins.
func DefaultFuncs() Funcs {
	return Funcs{
		"strtoupper":       stringFunc(strings.ToUpper),
		"strtolower":       stringFunc(strings.ToLower),
		"ucfirst":          stringFunc(ucfirst),
		"ucwords":          stringFunc(ucwords),
		"nl2br":            stringFunc(nl2br),
		"htmlspecialchars": stringFunc(htmlEscapeFast),
		"strip_tags":       stringFunc(strictPolicy.Sanitize),
		"sanitize":         stringFunc(ugcPolicy.Sanitize),
		"slugify":          stringFunc(slug.Make),
		"str_limit":        strLimit,
		"implode":          implode,
		"in_array":         inArray,
		"number_format":    numberFormat,
		"money":            money,
		"json_encode":      jsonEncode,
		"date_format":      dateFormat,
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func needArgs(name string, args []any, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s: expected at least %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func stringFunc(fn func(string) string) Func {
	return func(args ...any) (any, error) {
		return fn(toText(arg(args, 0))), nil
	}
}

func ucfirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func ucwords(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		words[i] = ucfirst(w)
	}
	return strings.Join(words, " ")
}

func nl2br(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "<br />\r\n")
	if !strings.Contains(s, "\n") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			sb.WriteString("<br />")
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// str_limit(s, n[, suffix]) cuts s to n runes and appends suffix ("...").
func strLimit(args ...any) (any, error) {
	if err := needArgs("str_limit", args, 2); err != nil {
		return nil, err
	}
	s := toText(args[0])
	n, err := cast.ToIntE(args[1])
	if err != nil {
		return nil, fmt.Errorf("str_limit: %w", err)
	}
	suffix := "..."
	if len(args) > 2 {
		suffix = toText(args[2])
	}
	if utf8.RuneCountInString(s) <= n {
		return s, nil
	}
	return string([]rune(s)[:max(n, 0)]) + suffix, nil
}

// implode(glue, list)
func implode(args ...any) (any, error) {
	if err := needArgs("implode", args, 2); err != nil {
		return nil, err
	}
	items := collectItems(args[1])
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = toText(it.val)
	}
	return strings.Join(parts, toText(args[0])), nil
}

// in_array(needle, list) compares by string form.
func inArray(args ...any) (any, error) {
	if err := needArgs("in_array", args, 2); err != nil {
		return nil, err
	}
	needle := toText(args[0])
	for _, it := range collectItems(args[1]) {
		if toText(it.val) == needle {
			return true, nil
		}
	}
	return false, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return decimal.NewFromInt(cast.ToInt64(x)), nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}

// number_format(n[, decimals[, point[, separator]]]) rounds half away from
// zero and groups thousands.
func numberFormat(args ...any) (any, error) {
	if err := needArgs("number_format", args, 1); err != nil {
		return nil, err
	}
	d, err := toDecimal(args[0])
	if err != nil {
		return nil, fmt.Errorf("number_format: %w", err)
	}
	places := cast.ToInt32(arg(args, 1))
	point, sep := ".", ","
	if len(args) > 2 {
		point = toText(args[2])
	}
	if len(args) > 3 {
		sep = toText(args[3])
	}
	return formatDecimal(d, places, point, sep), nil
}

func formatDecimal(d decimal.Decimal, places int32, point, sep string) string {
	s := d.StringFixed(max(places, 0))
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	for i := range len(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteString(sep)
		}
		sb.WriteByte(intPart[i])
	}
	if frac != "" {
		sb.WriteString(point)
		sb.WriteString(frac)
	}
	return sb.String()
}

// money(n[, symbol]) formats n with two decimals behind symbol ("$").
func money(args ...any) (any, error) {
	if err := needArgs("money", args, 1); err != nil {
		return nil, err
	}
	d, err := toDecimal(args[0])
	if err != nil {
		return nil, fmt.Errorf("money: %w", err)
	}
	symbol := "$"
	if len(args) > 1 {
		symbol = toText(args[1])
	}
	if d.IsNegative() {
		return "-" + symbol + formatDecimal(d.Neg(), 2, ".", ","), nil
	}
	return symbol + formatDecimal(d, 2, ".", ","), nil
}

func jsonEncode(args ...any) (any, error) {
	b, err := json.Marshal(arg(args, 0))
	if err != nil {
		return nil, fmt.Errorf("json_encode: %w", err)
	}
	return string(b), nil
}

// date_format(t[, layout]) accepts a time, unix seconds or a date string.
func dateFormat(args ...any) (any, error) {
	if err := needArgs("date_format", args, 1); err != nil {
		return nil, err
	}
	layout := time.DateTime
	if len(args) > 1 {
		layout = toText(args[1])
	}
	var t time.Time
	switch x := args[0].(type) {
	case time.Time:
		t = x
	case int, int32, int64, uint, uint32, uint64, float64:
		t = time.Unix(cast.ToInt64(x), 0).UTC()
	default:
		var err error
		if t, err = cast.ToTimeE(x); err != nil {
			return nil, fmt.Errorf("date_format: %w", err)
		}
	}
	return t.Format(layout), nil
}
