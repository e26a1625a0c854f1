// Package crm integrates a Salesforce-flavored CRM over its REST query API:
// SOQL queries paginated through nextRecordsUrl, incremental syncs bounded
// by SystemModstamp, bearer-token authentication.
package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/internal/sync/components"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// SourceName is the literal source stamped on every ref this integration
// produces.
const SourceName = "salesforce"

// sobjectMap maps canonical entity types to CRM objects.
var sobjectMap = map[domain.EntityType]string{
	domain.EntityContact:     "Contact",
	domain.EntityAccount:     "Account",
	domain.EntityOpportunity: "Opportunity",
	domain.EntityActivity:    "Task",
	domain.EntityUser:        "User",
}

// queryFields lists the SOQL select list per object.
var queryFields = map[string]string{
	"Contact":     "Id, Name, FirstName, LastName, Email, Phone, MobilePhone, Title, AccountId, MailingStreet, MailingCity, MailingState, MailingCountry, MailingPostalCode, OwnerId, IsDeleted, CreatedDate, LastModifiedDate, SystemModstamp",
	"Account":     "Id, Name, Website, Industry, NumberOfEmployees, AnnualRevenue, BillingStreet, BillingCity, BillingState, BillingCountry, BillingPostalCode, Type, OwnerId, CreatedDate, LastModifiedDate, SystemModstamp",
	"Opportunity": "Id, Name, AccountId, StageName, Probability, Amount, CloseDate, Type, LeadSource, NextStep, IsClosed, IsWon, OwnerId, CreatedDate, LastModifiedDate, SystemModstamp",
	"Task":        "Id, Subject, Description, ActivityDate, Status, Priority, WhoId, WhatId, OwnerId, CreatedDate, LastModifiedDate, SystemModstamp",
	"User":        "Id, Name, Email, Username, Title, IsActive, CreatedDate, LastModifiedDate, SystemModstamp",
}

// Config carries the per-integration connection settings.
type Config struct {
	InstanceURL string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
}

// Connector speaks the CRM REST query API.
type Connector struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger

	connected bool
}

// NewConnector creates a CRM connector.
func NewConnector(cfg Config, log *logger.Logger) *Connector {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v58.0"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Connector{cfg: cfg, client: &http.Client{Timeout: timeout}, log: log}
}

// SourceName names this integration's source.
func (c *Connector) SourceName() string { return SourceName }

func (c *Connector) baseURL() string {
	return strings.TrimRight(c.cfg.InstanceURL, "/") + "/services/data/" + c.cfg.APIVersion
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Connector) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionError, "build crm request failed")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionError, "crm request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrCodeConnectionError, "crm authentication failed, token expired or invalid")
	case resp.StatusCode == http.StatusNotFound:
		return errors.ErrNotFound("crm resource")
	case resp.StatusCode >= 400:
		return errors.Newf(errors.ErrCodeFetchError, "crm http status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, errors.ErrCodeFetchError, "decode crm response failed")
		}
	}
	return nil
}

// Connect verifies the token against the API root.
func (c *Connector) Connect(ctx context.Context) error {
	if c.cfg.InstanceURL == "" || c.cfg.AccessToken == "" {
		return errors.New(errors.ErrCodeConnectionError, "missing crm credentials")
	}
	if err := c.get(ctx, c.baseURL()+"/", nil); err != nil {
		return err
	}
	c.connected = true
	return nil
}

// Disconnect drops the connected flag; the REST API is stateless.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.connected = false
	return nil
}

// TestConnection probes the API and reports status.
func (c *Connector) TestConnection(ctx context.Context) components.ConnectionStatus {
	status := components.ConnectionStatus{Source: SourceName, Timestamp: time.Now().UTC()}
	if err := c.Connect(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	defer c.Disconnect(ctx)
	status.Connected = true
	status.Details = map[string]interface{}{
		"instance_url": c.cfg.InstanceURL,
		"api_version":  c.cfg.APIVersion,
	}
	return status
}

type queryResponse struct {
	TotalSize      int                       `json:"totalSize"`
	Done           bool                      `json:"done"`
	NextRecordsURL string                    `json:"nextRecordsUrl"`
	Records        []components.SourceRecord `json:"records"`
}

// buildQuery assembles the SOQL for an object, bounded by the incremental
// watermark and ordered by modification time ascending.
func buildQuery(object string, since *time.Time) string {
	query := "SELECT " + queryFields[object] + " FROM " + object
	if since != nil {
		query += " WHERE SystemModstamp >= " + since.UTC().Format("2006-01-02T15:04:05Z")
	}
	query += " ORDER BY SystemModstamp ASC"
	return query
}

// FetchRecords streams query results, following nextRecordsUrl pages lazily.
func (c *Connector) FetchRecords(ctx context.Context, entityType domain.EntityType, since *time.Time, batchSize int) (components.RecordStream, error) {
	object, ok := sobjectMap[entityType]
	if !ok {
		return nil, errors.ErrValidation("unsupported entity type: " + string(entityType))
	}
	if !c.connected {
		return nil, errors.New(errors.ErrCodeConnectionError, "not connected to crm")
	}
	query := buildQuery(object, since)
	return &queryStream{
		c:       c,
		nextURL: c.baseURL() + "/query/?q=" + url.QueryEscape(query),
	}, nil
}

// queryStream pages through a SOQL result set.
type queryStream struct {
	c       *Connector
	nextURL string
	buffer  []components.SourceRecord
	done    bool
}

func (s *queryStream) Next(ctx context.Context) (components.SourceRecord, error) {
	if len(s.buffer) == 0 {
		if s.done || s.nextURL == "" {
			return nil, components.ErrEndOfStream
		}
		var page queryResponse
		if err := s.c.get(ctx, s.nextURL, &page); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFetchError, "crm page fetch failed")
		}
		s.buffer = page.Records
		s.done = page.Done
		if page.NextRecordsURL != "" {
			s.nextURL = strings.TrimRight(s.c.cfg.InstanceURL, "/") + page.NextRecordsURL
		} else {
			s.nextURL = ""
		}
		if len(s.buffer) == 0 {
			return nil, components.ErrEndOfStream
		}
	}
	record := s.buffer[0]
	s.buffer = s.buffer[1:]
	return record, nil
}

// FetchRecord reads one record by id through the sobject endpoint.
func (c *Connector) FetchRecord(ctx context.Context, entityType domain.EntityType, sourceID string) (components.SourceRecord, error) {
	object, ok := sobjectMap[entityType]
	if !ok {
		return nil, errors.ErrValidation("unsupported entity type: " + string(entityType))
	}
	var record components.SourceRecord
	err := c.get(ctx, c.baseURL()+"/sobjects/"+object+"/"+url.PathEscape(sourceID), &record)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok && appErr.Code == errors.ErrCodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// GetRecordCount counts matching records with a SOQL COUNT().
func (c *Connector) GetRecordCount(ctx context.Context, entityType domain.EntityType, since *time.Time) (int64, error) {
	object, ok := sobjectMap[entityType]
	if !ok {
		return 0, errors.ErrValidation("unsupported entity type: " + string(entityType))
	}
	query := "SELECT COUNT() FROM " + object
	if since != nil {
		query += " WHERE SystemModstamp >= " + since.UTC().Format("2006-01-02T15:04:05Z")
	}
	var resp queryResponse
	if err := c.get(ctx, c.baseURL()+"/query/?q="+url.QueryEscape(query), &resp); err != nil {
		return 0, err
	}
	return int64(resp.TotalSize), nil
}
