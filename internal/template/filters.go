package template

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/osteele/liquid"
)

func registerFilters(engine *liquid.Engine) {
	// {{ dest_name | default: "cliente" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	engine.RegisterFilter("capitalize", func(s string) string {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError {
			return s
		}
		return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
	})

	engine.RegisterFilter("first_name", func(s string) string {
		if f := strings.Fields(s); len(f) > 0 {
			return f[0]
		}
		return ""
	})

	engine.RegisterFilter("mask_email", func(s string) string {
		local, domain, ok := strings.Cut(s, "@")
		if !ok {
			return s
		}
		if len(local) <= 2 {
			return "***@" + domain
		}
		return local[:2] + "***@" + domain
	})

	engine.RegisterFilter("nl2br", func(s string) string {
		return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "<br>")
	})
}
