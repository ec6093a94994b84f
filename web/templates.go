package web

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var files embed.FS

// Funcs 页面模板函数
var Funcs = template.FuncMap{
	// safeHTML 评论正文已由 markdown 渲染且禁用原始 HTML
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
	"datetime": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}

// Templates 解析内置页面模板
func Templates() (*template.Template, error) {
	return template.New("").Funcs(Funcs).ParseFS(files, "templates/*.html")
}
