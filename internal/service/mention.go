package service

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchAutocompletes 在文本中查找用户可用的补全标记（如 "@alice"），
// 用 replace 的结果替换每个完整匹配（其后不能紧跟单词字符），返回新文本与命中的补全项
func MatchAutocompletes(ctx context.Context, t *Thread, text string, userID uint, replace func(string) string) (string, []AutocompleteItem, error) {
	completes, err := t.Autocompletes(ctx, userID)
	if err != nil {
		return text, nil, err
	}

	triggers := make([]string, 0, len(completes))
	for ch := range completes {
		triggers = append(triggers, ch)
	}
	sort.Strings(triggers)

	var matched []AutocompleteItem
	for _, ch := range triggers {
		for _, item := range completes[ch] {
			var hit bool
			text, hit = replaceToken(text, ch+item.Tag, replace)
			if hit {
				matched = append(matched, item)
			}
		}
	}
	return text, matched, nil
}

// replaceToken 替换 token 的所有完整出现
func replaceToken(text, token string, replace func(string) string) (string, bool) {
	if token == "" {
		return text, false
	}
	var b strings.Builder
	hit := false
	for {
		i := strings.Index(text, token)
		if i < 0 {
			b.WriteString(text)
			break
		}
		end := i + len(token)
		if end < len(text) {
			if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
				b.WriteString(text[:end])
				text = text[end:]
				continue
			}
		}
		b.WriteString(text[:i])
		b.WriteString(replace(token))
		text = text[end:]
		hit = true
	}
	return b.String(), hit
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
