package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/internal/database"
	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/internal/service"
	"github.com/compliancetracker/compliancetracker/pkg/logger"
)

// 本地开发用种子数据：一个组织、两个用户、一个项目/任务/问题，以及指向模拟 Wazuh 的监控服务
// 重复执行不会产生重复数据
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	password := flag.String("password", "changeme", "password for seeded users")
	wazuhRoot := flag.String("wazuh", "http://127.0.0.1:55000", "api root of the Wazuh agent service")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := database.Init(cfg.Database); err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := seed(context.Background(), database.GetDB(), cfg, *password, *wazuhRoot); err != nil {
		logger.Error("Seed failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Seed complete", "login", "admin / "+*password, "site", cfg.RootURL())
}

func seed(ctx context.Context, db *gorm.DB, cfg *config.Config, password, wazuhRoot string) error {
	accounts := service.NewAccountService(db)
	itsystems := service.NewITSystemsService(db, nil)

	org := model.Organization{Name: "Example Org", Subdomain: "example"}
	if err := db.Where(model.Organization{Subdomain: org.Subdomain}).FirstOrCreate(&org).Error; err != nil {
		return fmt.Errorf("organization: %w", err)
	}

	admin, err := ensureUser(ctx, db, accounts, "admin", "admin@example.com", "Admin User", password)
	if err != nil {
		return err
	}
	auditor, err := ensureUser(ctx, db, accounts, "auditor", "auditor@example.com", "Audrey Auditor", password)
	if err != nil {
		return err
	}
	if err := accounts.AddMember(ctx, org.ID, admin.ID, "", true); err != nil {
		return fmt.Errorf("membership: %w", err)
	}
	if err := accounts.AddMember(ctx, org.ID, auditor.ID, "", false); err != nil {
		return fmt.Errorf("membership: %w", err)
	}

	project := model.Project{OrganizationID: org.ID, Title: "ISO 27001 Readiness"}
	if err := db.Where(project).FirstOrCreate(&project).Error; err != nil {
		return fmt.Errorf("project: %w", err)
	}
	for _, pm := range []model.ProjectMembership{
		{ProjectID: project.ID, UserID: admin.ID, IsAdmin: true},
		{ProjectID: project.ID, UserID: auditor.ID},
	} {
		pm := pm
		if err := db.Where(model.ProjectMembership{ProjectID: pm.ProjectID, UserID: pm.UserID}).FirstOrCreate(&pm).Error; err != nil {
			return fmt.Errorf("project membership: %w", err)
		}
	}
	task := model.Task{ProjectID: project.ID, Title: "Access Control Policy", EditorID: admin.ID}
	if err := db.Where(model.Task{ProjectID: project.ID, Title: task.Title}).FirstOrCreate(&task).Error; err != nil {
		return fmt.Errorf("task: %w", err)
	}
	question := model.TaskQuestion{TaskID: task.ID, Key: "mfa", Title: "Is multi-factor authentication enforced?"}
	if err := db.Where(model.TaskQuestion{TaskID: task.ID, Key: question.Key}).FirstOrCreate(&question).Error; err != nil {
		return fmt.Errorf("question: %w", err)
	}

	svc, err := itsystems.AgentServiceByName(ctx, cfg.AgentService.DefaultName)
	if errors.Is(err, service.ErrNotFound) {
		svc = &model.AgentService{
			Name:        cfg.AgentService.DefaultName,
			Provider:    "wazuh",
			APIUser:     "wazuh-wui",
			APIPw:       "wazuh-wui",
			APIRootPath: wazuhRoot,
		}
		err = itsystems.CreateAgentService(ctx, svc)
	}
	if err != nil {
		return fmt.Errorf("agent service: %w", err)
	}

	systems, err := itsystems.ListSystems(ctx)
	if err != nil {
		return err
	}
	if len(systems) == 0 {
		sys := &model.SystemInstance{Name: "Web Shop", Description: "Public storefront"}
		if err := itsystems.CreateSystem(ctx, sys); err != nil {
			return err
		}
		host := &model.HostInstance{Name: "web-1", SystemInstanceID: sys.ID, HostType: "vm", OS: "Ubuntu 22.04", Address: "127.0.0.1"}
		if err := itsystems.CreateHost(ctx, host); err != nil {
			return err
		}
		if err := itsystems.CreateAgent(ctx, &model.Agent{AgentID: "001", HostInstanceID: host.ID, AgentServiceID: &svc.ID}); err != nil {
			return err
		}
	}

	logger.Info("Seeded data",
		"organization", org.Subdomain,
		"project_id", project.ID,
		"question", question.AbsoluteURL(),
		"agent_service", svc.Name,
	)
	return nil
}

func ensureUser(ctx context.Context, db *gorm.DB, accounts *service.AccountService, username, email, name, password string) (*model.User, error) {
	var u model.User
	err := db.WithContext(ctx).Where(model.User{Username: username}).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return accounts.CreateUser(ctx, username, email, name, password)
}
