package main

// 引入监控服务插件，触发各平台的 init() 完成注册
import (
	_ "github.com/compliancetracker/compliancetracker/addone/agentsvc/platforms/wazuh"
)
