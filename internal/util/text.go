package util

import (
	"bytes"
	"io"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
)

// EnsureUTF8Bytes 将上游返回的非 UTF-8 字节按常见编码解码为 UTF-8 字符串；
// 已是合法 UTF-8 时原样返回，全部解码失败时直接转换
func EnsureUTF8Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	encs := []encoding.Encoding{
		simplifiedchinese.GB18030,
		traditionalchinese.Big5,
		charmap.Windows1252,
		charmap.ISO8859_1,
	}
	for _, enc := range encs {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if utf8.Valid(decoded) {
		return string(decoded), true
	}
	return "", false
}

// SortByName 按显示名进行本地化排序（忽略大小写），相同名称保持原有顺序
func SortByName[T any](items []T, name func(T) string) {
	c := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(name(items[i]), name(items[j])) < 0
	})
}
