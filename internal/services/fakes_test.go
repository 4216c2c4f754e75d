package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/sendgrid"
	"github.com/mementolink/mementolink-backend/internal/types"
)

type fakeTenantRepo struct {
	tenants []*types.Tenant
	listErr error
}

func (f *fakeTenantRepo) Create(ctx context.Context, tx *gorm.DB, tenants []*types.Tenant) ([]*types.Tenant, error) {
	f.tenants = append(f.tenants, tenants...)
	return tenants, nil
}

func (f *fakeTenantRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.Tenant, error) {
	for _, t := range f.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTenantRepo) GetByLegacyID(ctx context.Context, tx *gorm.DB, legacyID string) (*types.Tenant, error) {
	for _, t := range f.tenants {
		if t.LegacyID == legacyID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTenantRepo) GetByCompanyID(ctx context.Context, tx *gorm.DB, companyID string) (*types.Tenant, error) {
	for _, t := range f.tenants {
		if t.CompanyID == companyID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTenantRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Tenant, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tenants, nil
}

type fakeClaimRequestRepo struct {
	records      []*types.ClaimRequest
	getErr       error
	updateErr    error
	updateCalls  int
	lastUpdateID uuid.UUID
	lastFields   map[string]any
}

func (f *fakeClaimRequestRepo) Create(ctx context.Context, tx *gorm.DB, requests []*types.ClaimRequest) ([]*types.ClaimRequest, error) {
	f.records = append(f.records, requests...)
	return requests, nil
}

func (f *fakeClaimRequestRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ClaimRequest, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []*types.ClaimRequest
	for _, r := range f.records {
		for _, id := range ids {
			if r.ID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeClaimRequestRepo) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID string) ([]*types.ClaimRequest, error) {
	var out []*types.ClaimRequest
	for _, r := range f.records {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeClaimRequestRepo) GetLatestByEmailTenants(ctx context.Context, tx *gorm.DB, email string, tenantAliases []string) ([]*types.ClaimRequest, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []*types.ClaimRequest
	for _, r := range f.records {
		if !strings.EqualFold(r.Email, email) {
			continue
		}
		for _, alias := range tenantAliases {
			if r.Tenant == alias {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeClaimRequestRepo) ListByTenants(ctx context.Context, tx *gorm.DB, tenantAliases []string, limit int) ([]*types.ClaimRequest, error) {
	var out []*types.ClaimRequest
	for _, r := range f.records {
		for _, alias := range tenantAliases {
			if r.Tenant == alias {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeClaimRequestRepo) ListAll(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ClaimRequest, error) {
	return f.records, nil
}

func (f *fakeClaimRequestRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updateCalls++
	f.lastUpdateID = id
	f.lastFields = fields
	for _, r := range f.records {
		if r.ID != id {
			continue
		}
		if v, ok := fields["status"]; ok {
			r.Status = v.(string)
		}
		if v, ok := fields["public_page_id"]; ok {
			id := v.(uuid.UUID)
			r.PublicPageID = &id
		}
		if v, ok := fields["public_page_url"]; ok {
			s := v.(string)
			r.PublicPageURL = &s
		}
		if v, ok := fields["login_url"]; ok {
			s := v.(string)
			r.LoginURL = &s
		}
		if v, ok := fields["claimed_by_uid"]; ok {
			id := v.(uuid.UUID)
			r.ClaimedByUID = &id
		}
	}
	return nil
}

type fakeMemoryRepo struct {
	created    []*types.Memory
	createErr  error
	updateErr  error
	lastFields map[string]any
}

func (f *fakeMemoryRepo) Create(ctx context.Context, tx *gorm.DB, memories []*types.Memory) ([]*types.Memory, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, memories...)
	return memories, nil
}

func (f *fakeMemoryRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Memory, error) {
	var out []*types.Memory
	for _, m := range f.created {
		for _, id := range ids {
			if m.ID == id {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (f *fakeMemoryRepo) GetByOwnerUID(ctx context.Context, tx *gorm.DB, ownerUID uuid.UUID) ([]*types.Memory, error) {
	var out []*types.Memory
	for _, m := range f.created {
		if m.OwnerUID == ownerUID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemoryRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.lastFields = fields
	for _, m := range f.created {
		if m.ID != id {
			continue
		}
		if v, ok := fields["public_page_id"]; ok {
			pageID := v.(uuid.UUID)
			m.PublicPageID = &pageID
		}
	}
	return nil
}

type fakePublicPageRepo struct {
	created   []*types.PublicPage
	createErr error
	// dropReads makes GetByIDs return nothing, simulating a page that
	// cannot be read back after create.
	dropReads bool
}

func (f *fakePublicPageRepo) Create(ctx context.Context, tx *gorm.DB, pages []*types.PublicPage) ([]*types.PublicPage, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, pages...)
	return pages, nil
}

func (f *fakePublicPageRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.PublicPage, error) {
	if f.dropReads {
		return nil, nil
	}
	var out []*types.PublicPage
	for _, p := range f.created {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakePublicPageRepo) GetByMemoryID(ctx context.Context, tx *gorm.DB, memoryID uuid.UUID) (*types.PublicPage, error) {
	for _, p := range f.created {
		if p.MemoryID == memoryID {
			return p, nil
		}
	}
	return nil, nil
}

type fakeMailer struct {
	mu       sync.Mutex
	calls    int
	failures int
	lastReq  sendgrid.SendEmailRequest
	// failFor lists recipient addresses that always fail.
	failFor map[string]bool
}

func (f *fakeMailer) Send(ctx context.Context, req sendgrid.SendEmailRequest) (*sendgrid.SendEmailResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("smtp unavailable")
	}
	if len(req.To) > 0 && f.failFor[req.To[0].Email] {
		return nil, fmt.Errorf("recipient rejected")
	}
	return &sendgrid.SendEmailResult{StatusCode: 202, MessageID: "msg-1"}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	inputs []SendInput
	result SendResult
}

func (f *fakeNotifier) Send(ctx context.Context, input SendInput) SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return f.result
}

type fakeResolver struct {
	aliases   map[string][]string
	canonical map[string]string
	all       []string
}

func (f *fakeResolver) Resolve(ctx context.Context, staffTenant *string) ([]string, error) {
	if staffTenant == nil {
		return f.all, nil
	}
	if out, ok := f.aliases[*staffTenant]; ok {
		return out, nil
	}
	return []string{*staffTenant}, nil
}

func (f *fakeResolver) Canonical(ctx context.Context, handle string) string {
	if id, ok := f.canonical[handle]; ok {
		return id
	}
	return handle
}
