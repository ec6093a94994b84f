package markdown

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Render 将 CommonMark 风格文本渲染为 HTML，原始 HTML 标签不会输出
func Render(text string) string {
	// parser 不可复用，每次渲染新建
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	md := markdown.NormalizeNewlines([]byte(text))
	return string(markdown.ToHTML(md, p, r))
}
