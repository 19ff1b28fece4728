package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// CrowdStrike Falcon
// ---------------------------------------------------------------------------

// CrowdStrikeBaseURL is the default Falcon API endpoint.
const CrowdStrikeBaseURL = "https://api.crowdstrike.com"

// CrowdStrike is a Falcon connector authenticated with OAuth2 client
// credentials.
type CrowdStrike struct {
	c            *client
	clientID     string
	clientSecret string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ EDR = (*CrowdStrike)(nil)

// NewCrowdStrike creates a Falcon connector. An empty baseURL selects
// CrowdStrikeBaseURL.
func NewCrowdStrike(clientID, clientSecret, baseURL string, opts ...Option) *CrowdStrike {
	if baseURL == "" {
		baseURL = CrowdStrikeBaseURL
	}
	cs := &CrowdStrike{c: newClient(baseURL, opts), clientID: clientID, clientSecret: clientSecret}
	cs.c.authorize = cs.authorize
	return cs
}

type csToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Connect exchanges the client credentials for a bearer token.
func (cs *CrowdStrike) Connect(ctx context.Context) error {
	return cs.c.connect(ctx, "crowdstrike", func() error {
		_, err := cs.refresh(ctx)
		return err
	})
}

func (cs *CrowdStrike) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", cs.clientID)
	form.Set("client_secret", cs.clientSecret)

	var tok csToken
	if err := cs.c.postForm(ctx, "/oauth2/token", form, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access_token")
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	cs.mu.Lock()
	cs.token = tok.AccessToken
	cs.tokenExpiry = time.Now().Add(ttl)
	cs.mu.Unlock()
	return tok.AccessToken, nil
}

// authorize attaches a cached token, refreshing it a minute before expiry.
func (cs *CrowdStrike) authorize(ctx context.Context, req *http.Request) error {
	cs.mu.Lock()
	token := cs.token
	valid := token != "" && time.Now().Before(cs.tokenExpiry.Add(-time.Minute))
	cs.mu.Unlock()

	if !valid {
		var err error
		if token, err = cs.refresh(ctx); err != nil {
			return err
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

type csResources[T any] struct {
	Resources []T `json:"resources"`
	Errors    []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (cs *CrowdStrike) deviceAction(ctx context.Context, action, endpointID, comment string) (Result, error) {
	body := map[string]any{"ids": []string{endpointID}}
	if comment != "" {
		body["action_parameters"] = []map[string]string{{"name": "comment", "value": comment}}
	}
	var resp csResources[struct {
		ID string `json:"id"`
	}]
	q := url.Values{"action_name": {action}}
	if err := cs.c.do(ctx, http.MethodPost, "/devices/entities/devices-actions/v2", q, body, &resp); err != nil {
		return Result{Target: endpointID}, fmt.Errorf("crowdstrike %s %s: %w", action, endpointID, err)
	}
	if len(resp.Errors) > 0 {
		return Result{Target: endpointID, Message: resp.Errors[0].Message}, nil
	}
	return Result{Success: true, Target: endpointID, Message: action}, nil
}

// IsolateEndpoint network-contains the host.
func (cs *CrowdStrike) IsolateEndpoint(ctx context.Context, endpointID, reason string) (Result, error) {
	return cs.deviceAction(ctx, "contain", endpointID, reason)
}

// RestoreEndpoint lifts network containment.
func (cs *CrowdStrike) RestoreEndpoint(ctx context.Context, endpointID string) (Result, error) {
	return cs.deviceAction(ctx, "lift_containment", endpointID, "")
}

type csAlert struct {
	CompositeID  string    `json:"composite_id"`
	DisplayName  string    `json:"display_name"`
	SeverityName string    `json:"severity_name"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_timestamp"`
}

// EndpointThreats lists alerts raised for the host inside tr.
func (cs *CrowdStrike) EndpointThreats(ctx context.Context, endpointID string, tr TimeRange) ([]Threat, error) {
	filter := fmt.Sprintf("device.device_id:'%s'+created_timestamp:>='%s'+created_timestamp:<='%s'",
		endpointID, tr.Start.UTC().Format(time.RFC3339), tr.End.UTC().Format(time.RFC3339))
	var resp csResources[csAlert]
	if err := cs.c.do(ctx, http.MethodGet, "/alerts/combined/alerts/v2", url.Values{"filter": {filter}}, nil, &resp); err != nil {
		return nil, fmt.Errorf("crowdstrike threats %s: %w", endpointID, err)
	}
	out := make([]Threat, 0, len(resp.Resources))
	for _, a := range resp.Resources {
		out = append(out, Threat{
			ID:         a.CompositeID,
			EndpointID: endpointID,
			Name:       a.DisplayName,
			Severity:   a.SeverityName,
			Detail:     a.Description,
			DetectedAt: a.CreatedAt,
		})
	}
	return out, nil
}

// FileDetails looks the hash up in Falcon intel.
func (cs *CrowdStrike) FileDetails(ctx context.Context, hash string) (FileDetails, error) {
	var resp csResources[struct {
		Indicator           string `json:"indicator"`
		MaliciousConfidence string `json:"malicious_confidence"`
	}]
	q := url.Values{"filter": {fmt.Sprintf("indicator:'%s'", hash)}}
	if err := cs.c.do(ctx, http.MethodGet, "/intel/combined/indicators/v1", q, nil, &resp); err != nil {
		return FileDetails{Hash: hash}, fmt.Errorf("crowdstrike file %s: %w", hash, err)
	}
	fd := FileDetails{Hash: hash, Verdict: "unknown"}
	if len(resp.Resources) > 0 {
		fd.Verdict = resp.Resources[0].MaliciousConfidence
	}
	return fd, nil
}

// ---------------------------------------------------------------------------
// SentinelOne
// ---------------------------------------------------------------------------

const s1API = "/web/api/v2.1"

// SentinelOne is a Singularity connector authenticated with an API token.
type SentinelOne struct {
	c *client
}

var _ EDR = (*SentinelOne)(nil)

// NewSentinelOne creates a SentinelOne connector for the management console
// at baseURL.
func NewSentinelOne(apiToken, baseURL string, opts ...Option) *SentinelOne {
	s := &SentinelOne{c: newClient(baseURL, opts)}
	s.c.authorize = func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "ApiToken "+apiToken)
		return nil
	}
	return s
}

// Connect checks the console answers with the configured token.
func (s *SentinelOne) Connect(ctx context.Context) error {
	return s.c.connect(ctx, "sentinelone", func() error {
		return s.c.do(ctx, http.MethodGet, s1API+"/system/status", nil, nil, nil)
	})
}

type s1Affected struct {
	Data struct {
		Affected int `json:"affected"`
	} `json:"data"`
}

func (s *SentinelOne) agentAction(ctx context.Context, action, endpointID string) (Result, error) {
	body := map[string]any{"filter": map[string]any{"ids": []string{endpointID}}}
	var resp s1Affected
	if err := s.c.do(ctx, http.MethodPost, s1API+"/agents/actions/"+action, nil, body, &resp); err != nil {
		return Result{Target: endpointID}, fmt.Errorf("sentinelone %s %s: %w", action, endpointID, err)
	}
	if resp.Data.Affected == 0 {
		return Result{Target: endpointID, Message: "no agent matched"}, nil
	}
	return Result{Success: true, Target: endpointID, Message: action}, nil
}

// IsolateEndpoint disconnects the agent from the network.
func (s *SentinelOne) IsolateEndpoint(ctx context.Context, endpointID, _ string) (Result, error) {
	return s.agentAction(ctx, "disconnect", endpointID)
}

// RestoreEndpoint reconnects the agent.
func (s *SentinelOne) RestoreEndpoint(ctx context.Context, endpointID string) (Result, error) {
	return s.agentAction(ctx, "connect", endpointID)
}

type s1Threat struct {
	ID         string `json:"id"`
	ThreatInfo struct {
		ThreatName      string    `json:"threatName"`
		ConfidenceLevel string    `json:"confidenceLevel"`
		Classification  string    `json:"classification"`
		SHA256          string    `json:"sha256"`
		CreatedAt       time.Time `json:"createdAt"`
	} `json:"threatInfo"`
}

func (s *SentinelOne) threats(ctx context.Context, q url.Values) ([]s1Threat, error) {
	var resp struct {
		Data []s1Threat `json:"data"`
	}
	if err := s.c.do(ctx, http.MethodGet, s1API+"/threats", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// EndpointThreats lists threats for the agent created inside tr.
func (s *SentinelOne) EndpointThreats(ctx context.Context, endpointID string, tr TimeRange) ([]Threat, error) {
	q := url.Values{
		"agentIds":       {endpointID},
		"createdAt__gte": {tr.Start.UTC().Format(time.RFC3339)},
		"createdAt__lte": {tr.End.UTC().Format(time.RFC3339)},
	}
	data, err := s.threats(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sentinelone threats %s: %w", endpointID, err)
	}
	out := make([]Threat, 0, len(data))
	for _, t := range data {
		out = append(out, Threat{
			ID:         t.ID,
			EndpointID: endpointID,
			Name:       t.ThreatInfo.ThreatName,
			Severity:   t.ThreatInfo.ConfidenceLevel,
			Detail:     t.ThreatInfo.Classification,
			DetectedAt: t.ThreatInfo.CreatedAt,
		})
	}
	return out, nil
}

// FileDetails reports the first threat matching the content hash.
func (s *SentinelOne) FileDetails(ctx context.Context, hash string) (FileDetails, error) {
	data, err := s.threats(ctx, url.Values{"contentHashes": {hash}, "limit": {"1"}})
	if err != nil {
		return FileDetails{Hash: hash}, fmt.Errorf("sentinelone file %s: %w", hash, err)
	}
	fd := FileDetails{Hash: hash, Verdict: "unknown"}
	if len(data) > 0 {
		fd.Name = data[0].ThreatInfo.ThreatName
		fd.Verdict = data[0].ThreatInfo.ConfidenceLevel
	}
	return fd, nil
}
