package pool

// DefaultAgents is the built-in catalog: six bounded roles per team. The
// description doubles as the system-prompt fragment handed to the engine
// adapter when the agent executes.
func DefaultAgents() []AgentDef {
	return []AgentDef{
		// Development
		{ID: "DEV-001", Name: "Solution-Architect", TeamID: "DEV",
			Description: "You are a solution architect. Produce system designs, component boundaries and technology tradeoffs.",
			Capabilities: []string{"system-design", "architecture-review"},
			Keywords:     []string{"architecture", "scalability", "patterns", "planning", "tradeoffs", "microservices"}},
		{ID: "DEV-002", Name: "Backend-Developer", TeamID: "DEV",
			Description: "You are a backend developer. Implement server-side services, APIs and data access layers.",
			Capabilities: []string{"implementation", "api-design"},
			Keywords:     []string{"backend", "api", "rest", "jwt", "auth", "database", "server", "sql"}},
		{ID: "DEV-003", Name: "Frontend-Developer", TeamID: "DEV",
			Description: "You are a frontend developer. Build user interfaces and client-side application logic.",
			Capabilities: []string{"implementation", "ui"},
			Keywords:     []string{"frontend", "react", "css", "javascript", "typescript", "components"}},
		{ID: "DEV-004", Name: "Mobile-Developer", TeamID: "DEV",
			Description: "You are a mobile developer. Build and review iOS and Android applications.",
			Capabilities: []string{"implementation", "mobile"},
			Keywords:     []string{"mobile", "ios", "android", "flutter", "swift", "kotlin"}},
		{ID: "DEV-005", Name: "Database-Engineer", TeamID: "DEV",
			Description: "You are a database engineer. Design schemas, write migrations and tune queries.",
			Capabilities: []string{"schema-design", "query-tuning"},
			Keywords:     []string{"database", "sql", "schema", "migration", "query", "postgres"}},
		{ID: "DEV-006", Name: "Fullstack-Developer", TeamID: "DEV",
			Description: "You are a fullstack developer. Deliver features end to end across client and server.",
			Capabilities: []string{"implementation", "integration"},
			Keywords:     []string{"fullstack", "web", "node", "integration", "javascript", "app"}},

		// Security
		{ID: "SEC-001", Name: "Penetration-Tester", TeamID: "SEC",
			Description: "You are a penetration tester. Probe systems for exploitable weaknesses and report findings.",
			Capabilities: []string{"offensive-testing", "reporting"},
			Keywords:     []string{"pen-test", "pentest", "exploit", "attack", "redteam", "intrusion"}},
		{ID: "SEC-002", Name: "Security-Auditor", TeamID: "SEC",
			Description: "You are a security auditor. Review systems against compliance and policy requirements.",
			Capabilities: []string{"audit", "compliance"},
			Keywords:     []string{"audit", "compliance", "policy", "review", "gdpr", "soc2"}},
		{ID: "SEC-003", Name: "Vulnerability-Analyst", TeamID: "SEC",
			Description: "You are a vulnerability analyst. Triage CVEs and scanning output, prioritize remediation.",
			Capabilities: []string{"triage", "scanning"},
			Keywords:     []string{"vulnerability", "cve", "scanning", "triage", "patch", "disclosure"}},
		{ID: "SEC-004", Name: "AppSec-Engineer", TeamID: "SEC",
			Description: "You are an application security engineer. Harden code against common attack classes.",
			Capabilities: []string{"code-review", "hardening"},
			Keywords:     []string{"appsec", "owasp", "injection", "xss", "csrf", "hardening"}},
		{ID: "SEC-005", Name: "Crypto-Engineer", TeamID: "SEC",
			Description: "You are a cryptography engineer. Review key management, TLS and cryptographic protocol use.",
			Capabilities: []string{"crypto-review"},
			Keywords:     []string{"cryptography", "encryption", "tls", "certificates", "keys", "hashing"}},
		{ID: "SEC-006", Name: "Incident-Responder", TeamID: "SEC",
			Description: "You are an incident responder. Contain breaches and run forensic investigation.",
			Capabilities: []string{"forensics", "response"},
			Keywords:     []string{"incident", "forensics", "breach", "response", "containment", "malware"}},

		// Infrastructure
		{ID: "INF-001", Name: "SRE", TeamID: "INF",
			Description: "You are a site reliability engineer. Keep services within SLO and design for failure.",
			Capabilities: []string{"reliability", "monitoring"},
			Keywords:     []string{"sre", "reliability", "monitoring", "alerting", "oncall", "slo"}},
		{ID: "INF-002", Name: "DevOps-Engineer", TeamID: "INF",
			Description: "You are a DevOps engineer. Build CI/CD pipelines and release automation.",
			Capabilities: []string{"cicd", "automation"},
			Keywords:     []string{"devops", "cicd", "pipeline", "deploy", "automation", "release"}},
		{ID: "INF-003", Name: "Cloud-Architect", TeamID: "INF",
			Description: "You are a cloud architect. Design cloud topologies, networking and cost structure.",
			Capabilities: []string{"cloud-design"},
			Keywords:     []string{"cloud", "aws", "gcp", "azure", "terraform", "networking"}},
		{ID: "INF-004", Name: "Kubernetes-Operator", TeamID: "INF",
			Description: "You are a Kubernetes operator. Manage clusters, workloads and container platforms.",
			Capabilities: []string{"orchestration"},
			Keywords:     []string{"kubernetes", "k8s", "helm", "containers", "docker", "orchestration"}},
		{ID: "INF-005", Name: "Platform-Engineer", TeamID: "INF",
			Description: "You are a platform engineer. Provide provisioning, scaling and internal tooling.",
			Capabilities: []string{"provisioning", "tooling"},
			Keywords:     []string{"platform", "infrastructure", "provisioning", "scaling", "capacity", "tooling"}},
		{ID: "INF-006", Name: "Network-Engineer", TeamID: "INF",
			Description: "You are a network engineer. Design and troubleshoot DNS, routing and firewalls.",
			Capabilities: []string{"networking"},
			Keywords:     []string{"network", "dns", "firewall", "routing", "vpn", "loadbalancer"}},

		// Quality Assurance
		{ID: "QA-001", Name: "QA-Engineer", TeamID: "QA",
			Description: "You are a QA engineer. Design test cases and guard regression coverage.",
			Capabilities: []string{"test-design"},
			Keywords:     []string{"testing", "tests", "quality", "regression", "coverage", "cases"}},
		{ID: "QA-002", Name: "Load-Tester", TeamID: "QA",
			Description: "You are a load tester. Build performance and stress test suites, analyze latency.",
			Capabilities: []string{"performance-testing"},
			Keywords:     []string{"load", "performance", "stress", "benchmark", "latency", "throughput"}},
		{ID: "QA-003", Name: "Automation-Engineer", TeamID: "QA",
			Description: "You are a test automation engineer. Build end-to-end automation frameworks.",
			Capabilities: []string{"automation"},
			Keywords:     []string{"automation", "selenium", "playwright", "e2e", "framework", "scripts"}},
		{ID: "QA-004", Name: "Test-Architect", TeamID: "QA",
			Description: "You are a test architect. Define test strategy, acceptance criteria and risk coverage.",
			Capabilities: []string{"strategy"},
			Keywords:     []string{"strategy", "plan", "pyramid", "acceptance", "criteria", "risk"}},
		{ID: "QA-005", Name: "Bug-Triager", TeamID: "QA",
			Description: "You are a bug triager. Reproduce defects and classify severity.",
			Capabilities: []string{"triage"},
			Keywords:     []string{"bug", "defect", "triage", "reproduction", "severity", "tracking"}},
		{ID: "QA-006", Name: "Release-Validator", TeamID: "QA",
			Description: "You are a release validator. Run smoke suites and sign off releases.",
			Capabilities: []string{"validation"},
			Keywords:     []string{"release", "validation", "smoke", "verification", "signoff", "rollback"}},
	}
}
