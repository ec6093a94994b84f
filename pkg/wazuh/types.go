package wazuh

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoSCAData SCA 结果中没有任何策略
var ErrNoSCAData = errors.New("no sca policy data")

// SCAPolicy 单个 SCA 策略的汇总
type SCAPolicy struct {
	PolicyID    string `json:"policy_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TotalChecks int    `json:"total_checks"`
	Pass        int    `json:"pass"`
	Fail        int    `json:"fail"`
	Invalid     int    `json:"invalid"`
	Score       int    `json:"score"`
	StartScan   string `json:"start_scan"`
	EndScan     string `json:"end_scan"`
}

// SCAResponse /sca/{agent_id} 响应
type SCAResponse struct {
	Error int `json:"error"`
	Data  struct {
		Items              []SCAPolicy `json:"items"`
		TotalAffectedItems int         `json:"total_affected_items"`
		TotalItems         int         `json:"totalItems"`
	} `json:"data"`
}

// Package 软件包
type Package struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Architecture string `json:"architecture"`
	Vendor       string `json:"vendor"`
	Format       string `json:"format"`
}

// PackagesResponse /syscollector/{agent_id}/packages 响应
type PackagesResponse struct {
	Error int `json:"error"`
	Data  struct {
		Items              []Package `json:"items"`
		TotalAffectedItems int       `json:"total_affected_items"`
		TotalItems         int       `json:"totalItems"`
	} `json:"data"`
}

// FirstSCAPolicy 取第一个策略的检查汇总
func FirstSCAPolicy(raw []byte) (SCAPolicy, error) {
	var resp SCAResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SCAPolicy{}, fmt.Errorf("failed to decode sca response: %w", err)
	}
	if len(resp.Data.Items) == 0 {
		return SCAPolicy{}, ErrNoSCAData
	}
	return resp.Data.Items[0], nil
}

// PrettyJSON 按键排序、4 空格缩进输出
func PrettyJSON(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("failed to decode json: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
