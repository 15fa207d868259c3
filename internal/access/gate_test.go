package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const memberM int64 = 42

type scenarioSuite struct {
	suite.Suite
	store *stubStore
	gate  *Gate
	ctx   context.Context
}

func (s *scenarioSuite) SetupTest() {
	s.store = newStubStore()
	s.store.addUser(memberM, "staff", true,
		group(1, PermissionSet{"view": true, "download": true}, RestrictionSet{Companies: []int64{1}}),
		group(2, PermissionSet{"view": true, "delete": true}, RestrictionSet{Companies: []int64{2}, Departments: []int64{9}}),
	)
	s.gate, _ = newTestGate(s.store, EmptyUnrestricted)
	s.ctx = context.Background()
}

func (s *scenarioSuite) TestPermissions() {
	s.True(s.gate.HasPermission(s.ctx, memberM, "download"))
	s.True(s.gate.HasPermission(s.ctx, memberM, "delete"))
	s.False(s.gate.HasPermission(s.ctx, memberM, "edit"))
}

func (s *scenarioSuite) TestResources() {
	s.True(s.gate.CanAccessResource(s.ctx, memberM, AxisCompany, 1))
	s.True(s.gate.CanAccessResource(s.ctx, memberM, AxisCompany, 2))
	s.False(s.gate.CanAccessResource(s.ctx, memberM, AxisCompany, 3))
	s.True(s.gate.CanAccessResource(s.ctx, memberM, AxisDepartment, 9))
	s.True(s.gate.CanAccessResource(s.ctx, memberM, AxisDepartment, 8), "group 1 leaves departments unlisted")
	s.True(s.gate.CanAccessResource(s.ctx, memberM, AxisDocumentType, 77), "unrestricted axis")
}

func (s *scenarioSuite) TestResolvesOnce() {
	s.gate.HasPermission(s.ctx, memberM, "view")
	s.gate.HasAll(s.ctx, memberM, "view", "download")
	s.gate.CanAccessResource(s.ctx, memberM, AxisCompany, 1)
	users, groups := s.store.calls()
	s.Equal(1, users)
	s.Equal(1, groups)
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(scenarioSuite))
}

func TestHasPermissionUnknownKey(t *testing.T) {
	store := newStubStore()
	store.addUser(1, RoleAdmin, true)
	gate, _ := newTestGate(store, EmptyUnrestricted)
	ctx := context.Background()

	assert.False(t, gate.HasPermission(ctx, 1, "launch_missiles"))
	assert.True(t, gate.HasPermission(ctx, 1, " VIEW "))
}

func TestHasAllAndHasAny(t *testing.T) {
	store := newStubStore()
	store.addUser(1, "staff", true, group(1, PermissionSet{"view": true, "upload": true}, RestrictionSet{}))
	gate, _ := newTestGate(store, EmptyUnrestricted)
	ctx := context.Background()

	assert.True(t, gate.HasAll(ctx, 1))
	assert.True(t, gate.HasAll(ctx, 1, "view", "upload"))
	assert.False(t, gate.HasAll(ctx, 1, "view", "delete"))
	assert.False(t, gate.HasAll(ctx, 1, "view", "bogus"))

	assert.False(t, gate.HasAny(ctx, 1))
	assert.True(t, gate.HasAny(ctx, 1, "delete", "upload"))
	assert.False(t, gate.HasAny(ctx, 1, "delete", "share"))
}

func TestCanAccessResourceEmptyPolicy(t *testing.T) {
	store := newStubStore()
	store.addUser(1, "staff", true, group(1, PermissionSet{"view": true}, RestrictionSet{Companies: []int64{1}}))
	store.addUser(2, "staff", true)
	store.addUser(3, RoleAdmin, true)
	ctx := context.Background()

	open, _ := newTestGate(store, EmptyUnrestricted)
	closed, _ := newTestGate(store, EmptyDenied)

	assert.True(t, open.CanAccessResource(ctx, 1, AxisDepartment, 5))
	assert.False(t, closed.CanAccessResource(ctx, 1, AxisDepartment, 5))
	assert.True(t, closed.CanAccessResource(ctx, 1, AxisCompany, 1))

	assert.False(t, open.CanAccessResource(ctx, 2, AxisDepartment, 5), "users without groups see nothing")
	assert.True(t, closed.CanAccessResource(ctx, 3, AxisDepartment, 5), "admins see everything")
	assert.False(t, open.CanAccessResource(ctx, 3, Axis("region"), 5))
}

func TestExtraGroupNeverHidesResources(t *testing.T) {
	open := group(1, PermissionSet{"view": true}, RestrictionSet{})
	restricted := group(2, PermissionSet{"view": true}, RestrictionSet{Companies: []int64{2}})

	for _, policy := range []EmptyPolicy{EmptyUnrestricted, EmptyDenied} {
		t.Run(string(policy), func(t *testing.T) {
			store := newStubStore()
			store.addUser(1, "staff", true, open)
			store.addUser(2, "staff", true, open, restricted)
			gate, _ := newTestGate(store, policy)
			ctx := context.Background()

			for _, company := range []int64{1, 2, 3} {
				if gate.CanAccessResource(ctx, 1, AxisCompany, company) {
					assert.True(t, gate.CanAccessResource(ctx, 2, AxisCompany, company), "company %d", company)
				}
			}
			assert.True(t, gate.CanAccessResource(ctx, 2, AxisCompany, 2))
		})
	}

	store := newStubStore()
	store.addUser(2, "staff", true, open, restricted)
	gate, _ := newTestGate(store, EmptyUnrestricted)
	assert.True(t, gate.CanAccessResource(context.Background(), 2, AxisCompany, 1))
	assert.Equal(t, "1=1", gate.BuildFilter(context.Background(), 2, "d").Where)
}

func TestUnreadableRestrictionsGrantNothing(t *testing.T) {
	repo := NewRepository(nil, nil)
	broken := repo.toGroup(groupRow{
		ID:           5,
		IsActive:     true,
		Permissions:  []byte(`{"view": true}`),
		Restrictions: []byte(`{"companies": ["abc"]}`),
	})
	require.True(t, broken.RestrictionsUnreadable)
	ctx := context.Background()

	for _, policy := range []EmptyPolicy{EmptyUnrestricted, EmptyDenied} {
		t.Run(string(policy), func(t *testing.T) {
			store := newStubStore()
			store.addUser(1, "staff", true, broken)
			store.addUser(2, "staff", true, broken, group(6, PermissionSet{"view": true}, RestrictionSet{Companies: []int64{3}, Departments: []int64{4}, DocumentTypes: []int64{5}}))
			gate, _ := newTestGate(store, policy)

			assert.True(t, gate.HasPermission(ctx, 1, "view"))
			assert.False(t, gate.CanAccessResource(ctx, 1, AxisCompany, 999))
			assert.Equal(t, "1=0", gate.BuildFilter(ctx, 1, "d").Where)

			assert.True(t, gate.CanAccessResource(ctx, 2, AxisCompany, 3))
			assert.False(t, gate.CanAccessResource(ctx, 2, AxisCompany, 999), "an unreadable group must not widen the union")
			assert.Equal(t, "d.company_id IN (?) AND d.department_id IN (?) AND d.document_type_id IN (?)", gate.BuildFilter(ctx, 2, "d").Where)
		})
	}
}

func TestCanAccessDocument(t *testing.T) {
	store := newStubStore()
	store.addUser(1, "staff", true, group(1, PermissionSet{"view": true}, RestrictionSet{Companies: []int64{1}}))
	store.addUser(2, "staff", true, group(2, PermissionSet{"view": true, "delete": true}, RestrictionSet{Companies: []int64{1}}))
	store.addUser(3, RoleAdmin, true)
	store.docs[10] = ResourceLocation{CompanyID: idPtr(1), Status: DocumentActive}
	store.docs[11] = ResourceLocation{CompanyID: idPtr(2), Status: DocumentActive}
	store.docs[12] = ResourceLocation{CompanyID: idPtr(1), Status: DocumentDeleted}
	store.docs[13] = ResourceLocation{Status: DocumentArchived}
	gate, _ := newTestGate(store, EmptyUnrestricted)
	ctx := context.Background()

	assert.True(t, gate.CanAccessDocument(ctx, 1, 10))
	assert.False(t, gate.CanAccessDocument(ctx, 1, 11))
	assert.False(t, gate.CanAccessDocument(ctx, 1, 12), "deleted documents need delete")
	assert.True(t, gate.CanAccessDocument(ctx, 2, 12))
	assert.False(t, gate.CanAccessDocument(ctx, 1, 13), "unassigned company fails a restricted axis")
	assert.True(t, gate.CanAccessDocument(ctx, 3, 13))
	assert.False(t, gate.CanAccessDocument(ctx, 1, 999))
}

func TestCanAccessDocumentStoreFailure(t *testing.T) {
	store := newStubStore()
	store.addUser(3, RoleAdmin, true)
	store.docs[10] = ResourceLocation{Status: DocumentActive}
	store.docErr = errors.New("connection refused")
	gate, _ := newTestGate(store, EmptyUnrestricted)

	assert.False(t, gate.CanAccessDocument(context.Background(), 3, 10))
}

func TestCanAccessDocumentSkipsLookupForGrouplessUsers(t *testing.T) {
	store := newStubStore()
	store.addUser(1, "staff", true)
	store.docs[10] = ResourceLocation{Status: DocumentActive}
	gate, _ := newTestGate(store, EmptyUnrestricted)

	assert.False(t, gate.CanAccessDocument(context.Background(), 1, 10))
	assert.Zero(t, store.docCalls)
}

func TestGateDefaultsToUnrestrictedPolicy(t *testing.T) {
	gate := NewGate(NewResolver(newStubStore(), newStubStore(), nil, nil, nil), newStubStore(), GateOptions{})
	assert.Equal(t, EmptyUnrestricted, gate.Policy())
}

func newQuotaGate(t *testing.T, store *stubStore) (*Gate, *miniredis.Miniredis, *Quota) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	quota := NewQuota(client, time.UTC)
	resolver := NewResolver(store, store, nil, nil, nil)
	return NewGate(resolver, store, GateOptions{Quota: quota, Metrics: NewMetrics(nil)}), mr, quota
}

func TestConsumeQuota(t *testing.T) {
	store := newStubStore()
	limited := group(1, PermissionSet{"download": true}, RestrictionSet{})
	limited.Limits.DownloadDaily = intPtr(2)
	store.addUser(1, "staff", true, limited)
	store.addUser(2, "staff", true, group(2, PermissionSet{"download": true}, RestrictionSet{}))
	store.addUser(3, "staff", true, group(3, PermissionSet{"view": true}, RestrictionSet{}))
	store.addUser(4, RoleAdmin, true)
	gate, _, _ := newQuotaGate(t, store)
	ctx := context.Background()

	assert.True(t, gate.ConsumeQuota(ctx, 1, QuotaDownload))
	assert.True(t, gate.ConsumeQuota(ctx, 1, QuotaDownload))
	assert.False(t, gate.ConsumeQuota(ctx, 1, QuotaDownload))
	left, limitedQuota := gate.RemainingQuota(ctx, 1, QuotaDownload)
	assert.True(t, limitedQuota)
	assert.Zero(t, left)

	assert.True(t, gate.ConsumeQuota(ctx, 2, QuotaDownload), "no limit")
	_, limitedQuota = gate.RemainingQuota(ctx, 2, QuotaDownload)
	assert.False(t, limitedQuota)

	assert.False(t, gate.ConsumeQuota(ctx, 3, QuotaDownload), "needs the download permission")
	assert.False(t, gate.ConsumeQuota(ctx, 1, QuotaUpload))
	assert.False(t, gate.ConsumeQuota(ctx, 1, QuotaKind("print")))
	assert.True(t, gate.ConsumeQuota(ctx, 4, QuotaUpload))
}

func TestConsumeQuotaFailsClosed(t *testing.T) {
	store := newStubStore()
	limited := group(1, PermissionSet{"upload": true}, RestrictionSet{})
	limited.Limits.UploadDaily = intPtr(5)
	store.addUser(1, "staff", true, limited)
	ctx := context.Background()

	withoutQuota, _ := newTestGate(store, EmptyUnrestricted)
	assert.False(t, withoutQuota.ConsumeQuota(ctx, 1, QuotaUpload))

	gate, mr, _ := newQuotaGate(t, store)
	mr.Close()
	assert.False(t, gate.ConsumeQuota(ctx, 1, QuotaUpload))
}

func TestRemainingQuotaCountsDown(t *testing.T) {
	store := newStubStore()
	limited := group(1, PermissionSet{"upload": true}, RestrictionSet{})
	limited.Limits.UploadDaily = intPtr(3)
	store.addUser(1, "staff", true, limited)
	gate, _, _ := newQuotaGate(t, store)
	ctx := context.Background()

	require.True(t, gate.ConsumeQuota(ctx, 1, QuotaUpload))
	left, limitedQuota := gate.RemainingQuota(ctx, 1, QuotaUpload)
	assert.True(t, limitedQuota)
	assert.Equal(t, 2, left)
}
