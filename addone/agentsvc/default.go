package agentsvc

import "context"

// DefaultPlugin 未识别的服务类型，所有调用返回 ErrUnsupported
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

func (p *DefaultPlugin) Endpoints() []string { return nil }

func (p *DefaultPlugin) Fetch(_ context.Context, _ Connection, _, _ string) ([]byte, error) {
	return nil, ErrUnsupported
}

func (p *DefaultPlugin) Summarize(_ map[string][]byte) (Summary, error) {
	return Summary{}, ErrUnsupported
}

func (p *DefaultPlugin) Format(raw []byte) (string, error) {
	return string(raw), nil
}
