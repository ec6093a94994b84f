package model

import (
	"time"
)

// SystemInstance 信息系统实例
type SystemInstance struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Name          string         `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Description   string         `json:"description" gorm:"type:text"`
	HostInstances []HostInstance `json:"host_instances,omitempty" gorm:"foreignKey:SystemInstanceID"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"autoUpdateTime;index"`
}

// TableName 表名
func (SystemInstance) TableName() string {
	return "system_instances"
}

// HostInstance 系统下的主机实例
type HostInstance struct {
	ID                 uint            `json:"id" gorm:"primaryKey"`
	Name               string          `json:"name" gorm:"type:varchar(255);not null"`
	SystemInstanceID   uint            `json:"system_instance_id" gorm:"not null;index"`
	SystemInstance     *SystemInstance `json:"system_instance,omitempty" gorm:"foreignKey:SystemInstanceID"`
	HostType           string          `json:"host_type" gorm:"type:varchar(64)"`
	OS                 string          `json:"os" gorm:"column:os;type:varchar(128)"`
	Address            string          `json:"address" gorm:"type:varchar(255)"`
	SSHPort            int             `json:"ssh_port" gorm:"column:ssh_port;not null;default:22"`
	Reachable          bool            `json:"reachable" gorm:"not null;default:false"`
	HostKeyFingerprint string          `json:"host_key_fingerprint" gorm:"type:varchar(128)"`
	LastProbeAt        *time.Time      `json:"last_probe_at,omitempty"`
	Agents             []Agent         `json:"agents,omitempty" gorm:"foreignKey:HostInstanceID"`
	CreatedAt          time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"autoUpdateTime;index"`
}

// TableName 表名
func (HostInstance) TableName() string {
	return "host_instances"
}

// AgentService 主机代理所属的监控服务（例如 Wazuh）
type AgentService struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Provider    string    `json:"provider" gorm:"type:varchar(64);not null;default:'wazuh'"`
	APIUser     string    `json:"api_user" gorm:"column:api_user;type:varchar(255)"`
	APIPw       string    `json:"-" gorm:"column:api_pw;type:varchar(255)"`
	APIRootPath string    `json:"api_root_path" gorm:"column:api_root_path;type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime;index"`
}

// TableName 表名
func (AgentService) TableName() string {
	return "agent_services"
}

// ControlService 终端/主机管控服务的 API 访问配置
type ControlService struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	APIUser     string    `json:"api_user" gorm:"column:api_user;type:varchar(255)"`
	APIPw       string    `json:"-" gorm:"column:api_pw;type:varchar(255)"`
	APIRootPath string    `json:"api_root_path" gorm:"column:api_root_path;type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime;index"`
}

// TableName 表名
func (ControlService) TableName() string {
	return "control_services"
}

// Agent 部署在主机上的监控代理，AgentID 为上游服务中的代理编号
type Agent struct {
	ID             uint          `json:"id" gorm:"primaryKey"`
	AgentID        string        `json:"agent_id" gorm:"type:varchar(64);not null"`
	AgentServiceID *uint         `json:"agent_service_id,omitempty" gorm:"index"`
	AgentService   *AgentService `json:"agent_service,omitempty" gorm:"foreignKey:AgentServiceID"`
	HostInstanceID uint          `json:"host_instance_id" gorm:"not null;index"`
	HostInstance   *HostInstance `json:"host_instance,omitempty" gorm:"foreignKey:HostInstanceID"`
	CreatedAt      time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Agent) TableName() string {
	return "agents"
}

// Vendor 厂商
type Vendor struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Website   string    `json:"website" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Vendor) TableName() string {
	return "vendors"
}

// Component 系统组件（软件/产品）
type Component struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	VendorID    *uint     `json:"vendor_id,omitempty" gorm:"index"`
	Vendor      *Vendor   `json:"vendor,omitempty" gorm:"foreignKey:VendorID"`
	Version     string    `json:"version" gorm:"type:varchar(64)"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (Component) TableName() string {
	return "components"
}
