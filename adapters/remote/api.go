package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/artpar/kintone/core/schema"
	"github.com/artpar/kintone/domain/attachment"
	"github.com/artpar/kintone/ports"
)

// Server-side limits of the record endpoints.
const (
	MaxBulkRecords = 100
	MaxPageSize    = 500
)

// API is the record API of one kintone app.
type API struct {
	client       *Client
	appID        int64
	guestSpaceID int64
}

var _ ports.RecordSource = (*API)(nil)

// NewAPI binds client to an app. guestSpaceID is zero outside guest spaces.
func NewAPI(client *Client, appID, guestSpaceID int64) *API {
	return &API{client: client, appID: appID, guestSpaceID: guestSpaceID}
}

// AppID returns the app the API is bound to.
func (a *API) AppID() int64 { return a.appID }

func (a *API) path(endpoint string) string {
	if a.guestSpaceID > 0 {
		return "/k/guest/" + strconv.FormatInt(a.guestSpaceID, 10) + "/v1/" + endpoint
	}
	return "/k/v1/" + endpoint
}

func (a *API) appParams() url.Values {
	return url.Values{"app": {strconv.FormatInt(a.appID, 10)}}
}

// FormJSON returns the raw form field definitions of the app.
func (a *API) FormJSON(ctx context.Context) ([]byte, error) {
	var raw json.RawMessage
	if err := a.client.Request(ctx, http.MethodGet, a.path("app/form/fields.json"), a.appParams(), nil, &raw); err != nil {
		return nil, fmt.Errorf("get form: %w", err)
	}
	return raw, nil
}

// Form returns the field definitions of the app keyed by code.
func (a *API) Form(ctx context.Context) (map[string]*schema.Field, error) {
	raw, err := a.FormJSON(ctx)
	if err != nil {
		return nil, err
	}
	return schema.FieldsFromJSON(raw)
}

// Record fetches a single record.
func (a *API) Record(ctx context.Context, id int64) (*schema.Record, error) {
	params := a.appParams()
	params.Set("id", strconv.FormatInt(id, 10))

	var raw json.RawMessage
	if err := a.client.Request(ctx, http.MethodGet, a.path("record.json"), params, nil, &raw); err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return schema.RecordFromJSON(raw)
}

// Records runs query, which may carry order by, limit and offset clauses.
// An empty fields list returns every field.
func (a *API) Records(ctx context.Context, fields []string, query string, totalCount bool) (*ports.RecordPage, error) {
	params := a.appParams()
	if query != "" {
		params.Set("query", query)
	}
	for i, code := range fields {
		params.Set("fields["+strconv.Itoa(i)+"]", code)
	}
	if totalCount {
		params.Set("totalCount", "true")
	}

	var resp struct {
		Records    json.RawMessage `json:"records"`
		TotalCount *string         `json:"totalCount"`
	}
	if err := a.client.Request(ctx, http.MethodGet, a.path("records.json"), params, nil, &resp); err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}

	result := &ports.RecordPage{TotalCount: -1}
	if len(resp.Records) > 0 {
		records, err := schema.RecordsFromJSON(resp.Records)
		if err != nil {
			return nil, err
		}
		result.Records = records
	}
	if resp.TotalCount != nil {
		n, err := strconv.ParseInt(*resp.TotalCount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse totalCount %q: %w", *resp.TotalCount, err)
		}
		result.TotalCount = n
	}
	return result, nil
}

// RecordRef identifies a stored record version.
type RecordRef struct {
	ID       int64
	Revision int64
}

type refJSON struct {
	ID       string `json:"id"`
	Revision string `json:"revision"`
}

func (r refJSON) ref() (RecordRef, error) {
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return RecordRef{}, fmt.Errorf("parse id %q: %w", r.ID, err)
	}
	rev, err := strconv.ParseInt(r.Revision, 10, 64)
	if err != nil {
		return RecordRef{}, fmt.Errorf("parse revision %q: %w", r.Revision, err)
	}
	return RecordRef{ID: id, Revision: rev}, nil
}

// Insert creates a record. Attachments without a file key must be
// uploaded first, see UploadPending.
func (a *API) Insert(ctx context.Context, rec *schema.Record) (RecordRef, error) {
	body := map[string]any{"app": a.appID, "record": rec.Payload()}
	var resp refJSON
	if err := a.client.Request(ctx, http.MethodPost, a.path("record.json"), nil, body, &resp); err != nil {
		return RecordRef{}, fmt.Errorf("insert record: %w", err)
	}
	return resp.ref()
}

// BulkInsert creates up to MaxBulkRecords records in one request.
func (a *API) BulkInsert(ctx context.Context, recs []*schema.Record) ([]RecordRef, error) {
	if len(recs) > MaxBulkRecords {
		return nil, fmt.Errorf("bulk insert: %d records exceeds the limit of %d", len(recs), MaxBulkRecords)
	}
	payloads := make([]map[string]any, len(recs))
	for i, rec := range recs {
		payloads[i] = rec.Payload()
	}
	body := map[string]any{"app": a.appID, "records": payloads}

	var resp struct {
		IDs       []string `json:"ids"`
		Revisions []string `json:"revisions"`
	}
	if err := a.client.Request(ctx, http.MethodPost, a.path("records.json"), nil, body, &resp); err != nil {
		return nil, fmt.Errorf("bulk insert: %w", err)
	}
	if len(resp.IDs) != len(resp.Revisions) {
		return nil, fmt.Errorf("bulk insert: %d ids but %d revisions", len(resp.IDs), len(resp.Revisions))
	}

	refs := make([]RecordRef, len(resp.IDs))
	for i := range resp.IDs {
		ref, err := refJSON{ID: resp.IDs[i], Revision: resp.Revisions[i]}.ref()
		if err != nil {
			return nil, fmt.Errorf("bulk insert: %w", err)
		}
		refs[i] = ref
	}
	return refs, nil
}

// Update overwrites the fields present in rec. A revision <= 0 skips the
// optimistic lock check. It returns the new revision.
func (a *API) Update(ctx context.Context, id int64, rec *schema.Record, revision int64) (int64, error) {
	body := map[string]any{"app": a.appID, "id": id, "record": rec.Payload()}
	if revision > 0 {
		body["revision"] = revision
	}
	var resp struct {
		Revision string `json:"revision"`
	}
	if err := a.client.Request(ctx, http.MethodPut, a.path("record.json"), nil, body, &resp); err != nil {
		return 0, fmt.Errorf("update record %d: %w", id, err)
	}
	rev, err := strconv.ParseInt(resp.Revision, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse revision %q: %w", resp.Revision, err)
	}
	return rev, nil
}

// RecordUpdate is one entry of a bulk update.
type RecordUpdate struct {
	ID       int64
	Record   *schema.Record
	Revision int64
}

// BulkUpdate updates up to MaxBulkRecords records in one request.
func (a *API) BulkUpdate(ctx context.Context, updates []RecordUpdate) ([]RecordRef, error) {
	if len(updates) > MaxBulkRecords {
		return nil, fmt.Errorf("bulk update: %d records exceeds the limit of %d", len(updates), MaxBulkRecords)
	}
	entries := make([]map[string]any, len(updates))
	for i, u := range updates {
		entry := map[string]any{"id": u.ID, "record": u.Record.Payload()}
		if u.Revision > 0 {
			entry["revision"] = u.Revision
		}
		entries[i] = entry
	}
	body := map[string]any{"app": a.appID, "records": entries}

	var resp struct {
		Records []refJSON `json:"records"`
	}
	if err := a.client.Request(ctx, http.MethodPut, a.path("records.json"), nil, body, &resp); err != nil {
		return nil, fmt.Errorf("bulk update: %w", err)
	}
	refs := make([]RecordRef, len(resp.Records))
	for i, r := range resp.Records {
		ref, err := r.ref()
		if err != nil {
			return nil, fmt.Errorf("bulk update: %w", err)
		}
		refs[i] = ref
	}
	return refs, nil
}

// BulkDelete deletes records by id. revisions is either empty or has one
// entry per id; an entry <= 0 skips the lock check for that record.
func (a *API) BulkDelete(ctx context.Context, ids, revisions []int64) error {
	if len(ids) > MaxBulkRecords {
		return fmt.Errorf("bulk delete: %d records exceeds the limit of %d", len(ids), MaxBulkRecords)
	}
	if len(revisions) > 0 && len(revisions) != len(ids) {
		return fmt.Errorf("bulk delete: %d ids but %d revisions", len(ids), len(revisions))
	}
	body := map[string]any{"app": a.appID, "ids": ids}
	if len(revisions) > 0 {
		revs := make([]int64, len(revisions))
		for i, r := range revisions {
			revs[i] = r
			if r <= 0 {
				revs[i] = -1
			}
		}
		body["revisions"] = revs
	}
	if err := a.client.Request(ctx, http.MethodDelete, a.path("records.json"), nil, body, nil); err != nil {
		return fmt.Errorf("bulk delete: %w", err)
	}
	return nil
}

// BulkDeleteRecords deletes records by their $id and $revision entries.
func (a *API) BulkDeleteRecords(ctx context.Context, recs []*schema.Record) error {
	ids := make([]int64, 0, len(recs))
	revs := make([]int64, 0, len(recs))
	for _, rec := range recs {
		id, ok := rec.ID()
		if !ok {
			return fmt.Errorf("bulk delete: record without %s", schema.CodeID)
		}
		rev, _ := rec.Revision()
		ids = append(ids, id)
		revs = append(revs, rev)
	}
	return a.BulkDelete(ctx, ids, revs)
}

// FileUpload uploads the content of f and stores the returned file key on it.
func (a *API) FileUpload(ctx context.Context, f *attachment.File) error {
	var raw json.RawMessage
	err := a.client.Upload(ctx, a.path("file.json"), f.Name(), f.ContentType(), bytes.NewReader(f.Data()), &raw)
	if err != nil {
		return fmt.Errorf("upload %s: %w", f.Name(), err)
	}
	return f.SetFileKeyFromJSON(raw)
}

// FileDownload writes the content behind fileKey to w.
func (a *API) FileDownload(ctx context.Context, fileKey string, w io.Writer) (int64, error) {
	if fileKey == "" {
		return 0, attachment.ErrNoFileKey
	}
	params := url.Values{"fileKey": {fileKey}}
	n, err := a.client.Download(ctx, a.path("file.json"), params, w)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", fileKey, err)
	}
	return n, nil
}

// UploadPending uploads every attachment of rec that has no file key yet.
func (a *API) UploadPending(ctx context.Context, rec *schema.Record) (int, error) {
	pending := rec.PendingFiles()
	for i, f := range pending {
		if err := a.FileUpload(ctx, f); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}
