package playbook

import "github.com/ormasoftchile/irflow/pkg/incident"

// Builtins returns the playbooks seeded into every engine, keyed by
// incident type.
func Builtins() map[string][]Step {
	return map[string][]Step{
		"ransomware":         Ransomware(),
		"account_compromise": AccountCompromise(),
	}
}

// Ransomware is the built-in ransomware response playbook (R1 → R2 → R3).
func Ransomware() []Step {
	return []Step{
		{
			ID:                "R1",
			Title:             "Initial Detection",
			Description:       "Confirm ransomware detection and assess scope",
			Phase:             incident.PhaseDetection,
			RequiredApprovals: []string{"SOC Manager"},
			AutomatedActions: []Action{
				{Name: ActionIsolateEndpoint, Target: Ref(incident.RefAffectedAssets)},
			},
			ManualTasks:       []string{"Verify encryption indicators", "Identify patient zero"},
			EstimatedDuration: 15,
		},
		{
			ID:                "R2",
			Title:             "Scope Assessment",
			Description:       "Determine extent of infection and affected systems",
			Phase:             incident.PhaseAnalysis,
			RequiredApprovals: []string{"CISO"},
			AutomatedActions: []Action{
				{Name: ActionScanNetwork, Target: Ref(incident.RefAllAssets)},
			},
			ManualTasks:       []string{"Review backup integrity", "Identify critical systems"},
			EstimatedDuration: 30,
			Dependencies:      []string{"R1"},
		},
		{
			ID:                "R3",
			Title:             "Containment",
			Description:       "Isolate affected systems to prevent spread",
			Phase:             incident.PhaseContainment,
			RequiredApprovals: []string{"CISO", "Infrastructure Manager"},
			AutomatedActions: []Action{
				{Name: ActionIsolateNetworkSegment, Target: Ref("affected_networks")},
				{Name: ActionDisableAccounts, Target: Ref("compromised_accounts")},
			},
			ManualTasks:       []string{"Document containment actions", "Prepare communication"},
			EstimatedDuration: 45,
			Dependencies:      []string{"R2"},
		},
	}
}

// AccountCompromise covers a compromised identity across all six phases.
func AccountCompromise() []Step {
	return []Step{
		{
			ID:                "A1",
			Title:             "Confirm Compromise",
			Description:       "Pull endpoint detections for the affected hosts",
			Phase:             incident.PhaseDetection,
			RequiredApprovals: []string{"SOC Analyst"},
			AutomatedActions: []Action{
				{Name: ActionCollectEndpointThreats, Target: Ref(incident.RefAffectedAssets), Params: map[string]string{"window": "24h"}},
			},
			ManualTasks:       []string{"Confirm anomalous sign-ins with the account owner"},
			EstimatedDuration: 15,
		},
		{
			ID:           "A2",
			Title:        "Traffic Review",
			Description:  "Collect firewall traffic for known malicious sources",
			Phase:        incident.PhaseAnalysis,
			Dependencies: []string{"A1"},
			AutomatedActions: []Action{
				{Name: ActionCollectTrafficLogs, Target: Ref("malicious_ips"), Params: map[string]string{"window": "72h"}},
			},
			ManualTasks:       []string{"Map lateral movement", "List accessed data stores"},
			EstimatedDuration: 30,
		},
		{
			ID:                "A3",
			Title:             "Contain Identity",
			Description:       "Disable compromised accounts and block attacker infrastructure",
			Phase:             incident.PhaseContainment,
			Dependencies:      []string{"A2"},
			RequiredApprovals: []string{"SOC Manager"},
			AutomatedActions: []Action{
				{Name: ActionDisableAccounts, Target: Ref("compromised_accounts")},
				{Name: ActionBlockIP, Target: Ref("malicious_ips"), Params: map[string]string{"reason": "account compromise", "duration": "24h"}},
				{Name: ActionCollectBlockedIPs, Target: Ref("malicious_ips")},
			},
			ManualTasks:       []string{"Revoke active sessions and tokens"},
			EstimatedDuration: 20,
		},
		{
			ID:           "A4",
			Title:        "Persistence Hunt",
			Description:  "Sweep the estate for persistence left behind",
			Phase:        incident.PhaseEradication,
			Dependencies: []string{"A3"},
			When:         `severity in ["HIGH", "CRITICAL"]`,
			AutomatedActions: []Action{
				{Name: ActionScanNetwork, Target: Ref(incident.RefAllAssets)},
			},
			ManualTasks:       []string{"Remove rogue OAuth grants and mailbox rules"},
			EstimatedDuration: 60,
		},
		{
			ID:                "A5",
			Title:             "Restore Access",
			Description:       "Re-enable accounts after credential reset",
			Phase:             incident.PhaseRecovery,
			Dependencies:      []string{"A3"},
			RequiredApprovals: []string{"IT Operations"},
			AutomatedActions: []Action{
				{Name: ActionEnableAccounts, Target: Ref("compromised_accounts")},
				{Name: ActionRestoreEndpoint, Target: Ref(incident.RefAffectedAssets)},
			},
			ManualTasks:       []string{"Force credential reset", "Enroll accounts in phishing-resistant MFA"},
			EstimatedDuration: 30,
		},
		{
			ID:                "A6",
			Title:             "Post-Incident Review",
			Phase:             incident.PhaseLessonsLearned,
			Dependencies:      []string{"A5"},
			ManualTasks:       []string{"Write the post-incident report", "File detection engineering follow-ups"},
			EstimatedDuration: 90,
		},
	}
}
