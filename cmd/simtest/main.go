package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/compliancetracker/compliancetracker/addone/agentsvc"
	_ "github.com/compliancetracker/compliancetracker/addone/agentsvc/platforms/wazuh"
	"github.com/compliancetracker/compliancetracker/simulate"
)

// simtest 启动 simulate.yaml 中的模拟 manager（或直连 -root 指定的 Wazuh），逐个 agent 拉取合规汇总
func main() {
	simPath := flag.String("simulate", "simulate/simulate.yaml", "simulate config; ignored when -root is set")
	root := flag.String("root", "", "api root of a running Wazuh manager")
	user := flag.String("user", "wazuh-wui", "api user for -root")
	password := flag.String("password", "wazuh-wui", "api password for -root")
	agents := flag.String("agents", "001", "comma separated agent ids for -root")
	flag.Parse()

	type target struct {
		conn   agentsvc.Connection
		agents []string
	}
	var targets []target

	if *root != "" {
		targets = append(targets, target{
			conn:   agentsvc.Connection{Name: "remote", RootPath: *root, User: *user, Password: *password, Timeout: 10 * time.Second},
			agents: strings.Split(*agents, ","),
		})
	} else {
		sc, err := simulate.LoadConfig(*simPath)
		if err != nil {
			fmt.Println("load simulate config error:", err)
			os.Exit(1)
		}
		mgr, err := simulate.Start(sc)
		if err != nil {
			fmt.Println("start simulate error:", err)
			os.Exit(1)
		}
		defer mgr.Stop()
		for name, mc := range sc.Manager {
			ids := make([]string, 0, len(mc.Agents))
			for id := range mc.Agents {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			targets = append(targets, target{
				conn:   agentsvc.Connection{Name: name, RootPath: mgr.Addr(name), User: mc.User, Password: mc.Password, Timeout: 5 * time.Second},
				agents: ids,
			})
		}
	}

	provider := agentsvc.Get("wazuh")
	failed := false
	for _, t := range targets {
		for _, id := range t.agents {
			if err := check(provider, t.conn, strings.TrimSpace(id)); err != nil {
				fmt.Printf("[%s] agent %s: %v\n", t.conn.Name, id, err)
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

func check(p agentsvc.Provider, conn agentsvc.Connection, agentID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payloads := make(map[string][]byte, len(p.Endpoints()))
	for _, ep := range p.Endpoints() {
		raw, err := p.Fetch(ctx, conn, agentID, ep)
		if err != nil {
			return fmt.Errorf("%s: %w", ep, err)
		}
		payloads[ep] = raw
	}
	sum, err := p.Summarize(payloads)
	if err != nil {
		return err
	}
	fmt.Printf("[%s] agent %s: %s pass %d/%d (%.1f%%) fail %d (%.1f%%), %d bytes of packages\n",
		conn.Name, agentID, sum.PolicyName,
		sum.ChecksPass, sum.ChecksTotal, sum.ChecksPassPercent,
		sum.ChecksFail, sum.ChecksFailPercent,
		len(payloads[agentsvc.EndpointPackages]))
	return nil
}
