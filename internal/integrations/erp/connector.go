// Package erp integrates an Odoo-flavored ERP over its JSON-RPC object
// endpoint: contacts and accounts are res.partner rows split on is_company,
// opportunities are crm.lead, users are res.users. Relational fields come
// back as [id, display-name] pairs.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// SourceName is the literal source stamped on every ref this integration
// produces.
const SourceName = "odoo"

// modelMap maps canonical entity types to ERP models.
var modelMap = map[domain.EntityType]string{
	domain.EntityContact:     "res.partner",
	domain.EntityAccount:     "res.partner",
	domain.EntityOpportunity: "crm.lead",
	domain.EntityActivity:    "mail.activity",
	domain.EntityUser:        "res.users",
}

// Config carries the per-integration connection settings. Credentials are
// opaque to the core; only this connector interprets them.
type Config struct {
	URL      string
	Database string
	Username string
	APIKey   string
	Timeout  time.Duration
}

// Connector speaks JSON-RPC to the ERP.
type Connector struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger

	uid       int
	connected bool
}

// NewConnector creates an ERP connector.
func NewConnector(cfg Config, log *logger.Logger) *Connector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Connector{cfg: cfg, client: &http.Client{Timeout: timeout}, log: log}
}

// SourceName names this integration's source.
func (c *Connector) SourceName() string { return SourceName }

type rpcRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
	ID      int64                  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("erp rpc error %d: %s", e.Code, e.Message)
}

// call executes one JSON-RPC request against the /jsonrpc endpoint.
func (c *Connector) call(ctx context.Context, service, method string, args []interface{}, out interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]interface{}{
			"service": service,
			"method":  method,
			"args":    args,
		},
		ID: time.Now().UnixNano(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "marshal rpc request failed")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionError, "build rpc request failed")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionError, "erp rpc call failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.ErrCodeConnectionError, "erp rpc http status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrap(err, errors.ErrCodeFetchError, "decode rpc response failed")
	}
	if rpcResp.Error != nil {
		return errors.Wrap(rpcResp.Error, errors.ErrCodeFetchError, "erp rpc returned error")
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return errors.Wrap(err, errors.ErrCodeFetchError, "decode rpc result failed")
		}
	}
	return nil
}

// executeKw invokes a model method through the object service with the
// authenticated uid.
func (c *Connector) executeKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}, out interface{}) error {
	if !c.connected {
		return errors.New(errors.ErrCodeConnectionError, "not connected to erp")
	}
	callArgs := []interface{}{c.cfg.Database, c.uid, c.cfg.APIKey, model, method, args}
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}
	return c.call(ctx, "object", "execute_kw", callArgs, out)
}

// Connect authenticates against the common service.
func (c *Connector) Connect(ctx context.Context) error {
	var uid int
	err := c.call(ctx, "common", "login", []interface{}{c.cfg.Database, c.cfg.Username, c.cfg.APIKey}, &uid)
	if err != nil {
		return err
	}
	if uid == 0 {
		return errors.New(errors.ErrCodeConnectionError, "erp authentication failed")
	}
	c.uid = uid
	c.connected = true
	return nil
}

// Disconnect drops the session state; JSON-RPC is stateless beyond the uid.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.uid = 0
	c.connected = false
	return nil
}

// TestConnection probes authentication and reports status.
func (c *Connector) TestConnection(ctx context.Context) components.ConnectionStatus {
	status := components.ConnectionStatus{Source: SourceName, Timestamp: time.Now().UTC()}
	if err := c.Connect(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	defer c.Disconnect(ctx)
	status.Connected = true
	status.Details = map[string]interface{}{"database": c.cfg.Database, "uid": c.uid}
	return status
}

// buildDomain assembles the ERP-side search filter for an entity type, with
// the incremental watermark applied to write_date.
func buildDomain(entityType domain.EntityType, since *time.Time) []interface{} {
	var filter []interface{}
	switch entityType {
	case domain.EntityContact:
		filter = append(filter, []interface{}{"is_company", "=", false})
	case domain.EntityAccount:
		filter = append(filter, []interface{}{"is_company", "=", true})
	}
	if since != nil {
		filter = append(filter, []interface{}{"write_date", ">=", since.UTC().Format("2006-01-02 15:04:05")})
	}
	filter = append(filter, []interface{}{"active", "=", true})
	return filter
}

func fieldsFor(entityType domain.EntityType) []string {
	base := []string{"id", "name", "create_date", "write_date", "active"}
	switch modelMap[entityType] {
	case "res.partner":
		return append(base,
			"email", "phone", "mobile", "website",
			"street", "city", "state_id", "country_id", "zip",
			"is_company", "parent_id", "function",
			"user_id", "team_id", "category_id",
			"comment", "industry_id", "employee")
	case "crm.lead":
		return append(base,
			"partner_id", "stage_id", "probability", "expected_revenue",
			"date_deadline", "date_closed", "type", "priority",
			"user_id", "team_id", "lost_reason_id", "won_status")
	case "mail.activity":
		return append(base,
			"summary", "note", "activity_type_id", "date_deadline",
			"state", "user_id", "res_model", "res_id")
	case "res.users":
		return append(base, "login", "email")
	}
	return base
}

// FetchRecords streams records ordered by write_date ascending, pulling
// pages of batchSize lazily as the pipeline consumes them.
func (c *Connector) FetchRecords(ctx context.Context, entityType domain.EntityType, since *time.Time, batchSize int) (components.RecordStream, error) {
	model, ok := modelMap[entityType]
	if !ok {
		return nil, errors.ErrValidation("unsupported entity type: " + string(entityType))
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &pageStream{
		c: c, model: model,
		domain:    buildDomain(entityType, since),
		fields:    fieldsFor(entityType),
		batchSize: batchSize,
	}, nil
}

// pageStream pages through search_read results.
type pageStream struct {
	c         *Connector
	model     string
	domain    []interface{}
	fields    []string
	batchSize int

	offset    int
	buffer    []components.SourceRecord
	exhausted bool
}

func (s *pageStream) Next(ctx context.Context) (components.SourceRecord, error) {
	if len(s.buffer) == 0 {
		if s.exhausted {
			return nil, components.ErrEndOfStream
		}
		var page []components.SourceRecord
		err := s.c.executeKw(ctx, s.model, "search_read",
			[]interface{}{s.domain},
			map[string]interface{}{
				"fields": s.fields,
				"limit":  s.batchSize,
				"offset": s.offset,
				"order":  "write_date asc",
			}, &page)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFetchError, "erp page fetch failed")
		}
		if len(page) < s.batchSize {
			s.exhausted = true
		}
		if len(page) == 0 {
			return nil, components.ErrEndOfStream
		}
		s.offset += len(page)
		s.buffer = page
	}
	record := s.buffer[0]
	s.buffer = s.buffer[1:]
	return record, nil
}

// FetchRecord reads a single record by its ERP id.
func (c *Connector) FetchRecord(ctx context.Context, entityType domain.EntityType, sourceID string) (components.SourceRecord, error) {
	model, ok := modelMap[entityType]
	if !ok {
		return nil, errors.ErrValidation("unsupported entity type: " + string(entityType))
	}
	var id int
	if _, err := fmt.Sscanf(sourceID, "%d", &id); err != nil {
		return nil, errors.ErrValidation("erp source id must be numeric: " + sourceID)
	}
	var records []components.SourceRecord
	err := c.executeKw(ctx, model, "read",
		[]interface{}{[]interface{}{id}},
		map[string]interface{}{"fields": fieldsFor(entityType)}, &records)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetRecordCount counts matching records server-side.
func (c *Connector) GetRecordCount(ctx context.Context, entityType domain.EntityType, since *time.Time) (int64, error) {
	model, ok := modelMap[entityType]
	if !ok {
		return 0, errors.ErrValidation("unsupported entity type: " + string(entityType))
	}
	var count int64
	err := c.executeKw(ctx, model, "search_count", []interface{}{buildDomain(entityType, since)}, nil, &count)
	return count, err
}
