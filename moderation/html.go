package moderation

import "strings"

// inlineAllowed is the set of inline formatting tags a chat message may keep.
// Everything else (scripts, links, block elements) is stripped outright.
var inlineAllowed = map[string]struct{}{
	"b":      {},
	"i":      {},
	"em":     {},
	"strong": {},
	"code":   {},
	"u":      {},
	"s":      {},
}

// StripHTML removes every tag outside the inline allow-list and drops all
// attributes from the tags it keeps. Text outside tags is left untouched;
// a dangling '<' with no closing '>' is treated as literal text.
func StripHTML(input string) string {
	if !strings.ContainsRune(input, '<') {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))

	for i := 0; i < len(input); {
		if input[i] != '<' {
			b.WriteByte(input[i])
			i++
			continue
		}

		end := strings.IndexByte(input[i:], '>')
		if end < 0 {
			b.WriteString(input[i:])
			break
		}

		tag := input[i+1 : i+end]
		i += end + 1

		closing := strings.HasPrefix(tag, "/")
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(tag, "/")))
		if cut := strings.IndexAny(name, " \t\r\n/"); cut >= 0 {
			name = name[:cut]
		}

		if _, ok := inlineAllowed[name]; !ok {
			continue
		}
		if closing {
			b.WriteString("</" + name + ">")
		} else {
			b.WriteString("<" + name + ">")
		}
	}
	return b.String()
}
