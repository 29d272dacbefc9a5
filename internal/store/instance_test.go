package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dbaas/internal/fault"
	"github.com/edvin/dbaas/internal/model"
)

func validTestInstance() *model.Instance {
	return &model.Instance{
		TenantID:    "test-tenant-1",
		Name:        "mydb",
		FlavorID:    "flavor-2",
		VolumeSize:  10,
		ServiceType: "mysql",
	}
}

// ---------- Create ----------

func TestInstanceStore_Create_Success(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	inst := validTestInstance()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	err := s.Create(ctx, inst)
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, model.TaskNone.Name, inst.TaskStatusName)
	assert.False(t, inst.CreatedAt.IsZero())
	db.AssertExpectations(t)
}

func TestInstanceStore_Create_Validation(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*model.Instance)
	}{
		{"missing name", func(i *model.Instance) { i.Name = "" }},
		{"missing tenant", func(i *model.Instance) { i.TenantID = "" }},
		{"missing flavor", func(i *model.Instance) { i.FlavorID = "" }},
		{"negative volume size", func(i *model.Instance) { i.VolumeSize = -1 }},
		{"missing service type", func(i *model.Instance) { i.ServiceType = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := validTestInstance()
			tc.mutate(inst)
			err := s.Create(ctx, inst)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.InvalidModel))
		})
	}
	// No Exec calls should have happened for invalid models.
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestInstanceStore_Create_InsertError(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("db error"))

	err := s.Create(ctx, validTestInstance())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert instance")
}

// ---------- GetByID ----------

func TestInstanceStore_GetByID_Success(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "test-instance-1"
		*(dest[1].(*string)) = "test-tenant-1"
		*(dest[2].(*string)) = "mydb"
		*(dest[3].(*string)) = "flavor-2"
		*(dest[4].(*int)) = 10
		*(dest[5].(**string)) = nil
		*(dest[6].(**string)) = nil
		*(dest[7].(**string)) = nil
		*(dest[8].(*string)) = "mysql"
		*(dest[9].(*string)) = model.TaskBuilding.Name
		*(dest[10].(*time.Time)) = now
		*(dest[11].(*time.Time)) = now
		*(dest[12].(*bool)) = false
		*(dest[13].(**time.Time)) = nil
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	inst, err := s.GetByID(ctx, "test-tenant-1", "test-instance-1")
	require.NoError(t, err)
	assert.Equal(t, "test-instance-1", inst.ID)
	assert.Equal(t, model.TaskBuilding.Name, inst.TaskStatusName)
	assert.Nil(t, inst.VolumeID)
	db.AssertExpectations(t)
}

func TestInstanceStore_GetByID_NotFound(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := s.GetByID(ctx, "test-tenant-1", "nope")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestInstanceStore_GetByID_TenantScoping(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}

	// Scoped lookup carries the tenant id as the second argument.
	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return true
	}), []any{"test-instance-1", "test-tenant-1"}).Return(row).Once()

	_, err := s.GetByID(ctx, "test-tenant-1", "test-instance-1")
	require.Error(t, err)

	// Admin lookup (empty tenant) passes only the id.
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"test-instance-1"}).Return(row).Once()

	_, err = s.GetByID(ctx, "", "test-instance-1")
	require.Error(t, err)
	db.AssertExpectations(t)
}

// ---------- ListByTenant ----------

func instanceScanFunc(id string) func(dest ...any) error {
	now := time.Now().UTC()
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "test-tenant-1"
		*(dest[2].(*string)) = "db-" + id
		*(dest[3].(*string)) = "flavor-1"
		*(dest[4].(*int)) = 5
		*(dest[5].(**string)) = nil
		*(dest[6].(**string)) = nil
		*(dest[7].(**string)) = nil
		*(dest[8].(*string)) = "mysql"
		*(dest[9].(*string)) = model.TaskNone.Name
		*(dest[10].(*time.Time)) = now
		*(dest[11].(*time.Time)) = now
		*(dest[12].(*bool)) = false
		*(dest[13].(**time.Time)) = nil
		return nil
	}
}

func TestInstanceStore_ListByTenant_LastPage(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	rows := newMockRows(instanceScanFunc("id-1"), instanceScanFunc("id-2"))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	page, marker, err := s.ListByTenant(ctx, "test-tenant-1", 3, "")
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Empty(t, marker, "last page must carry no marker")
}

func TestInstanceStore_ListByTenant_MarkerIsLastID(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	// limit 2, three rows come back: page is trimmed and the marker is the
	// last id of the page, not the overflow row.
	rows := newMockRows(instanceScanFunc("id-1"), instanceScanFunc("id-2"), instanceScanFunc("id-3"))
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	page, marker, err := s.ListByTenant(ctx, "test-tenant-1", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "id-2", page[1].ID)
	assert.Equal(t, "id-2", marker)
}

func TestInstanceStore_ListByTenant_PassesMarkerAndOverfetch(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	rows := newMockRows()
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{"test-tenant-1", "id-2", 3}).Return(rows, nil)

	page, marker, err := s.ListByTenant(ctx, "test-tenant-1", 2, "id-2")
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Empty(t, marker)
	db.AssertExpectations(t)
}

// ---------- Field updates ----------

func TestInstanceStore_UpdateTaskStatus(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{model.TaskDeleting.Name, "test-instance-1"}).
		Return(pgconn.CommandTag{}, nil)

	require.NoError(t, s.UpdateTaskStatus(ctx, "test-instance-1", model.TaskDeleting.Name))
	db.AssertExpectations(t)
}

func TestInstanceStore_SoftDelete_Error(t *testing.T) {
	db := &mockDB{}
	s := NewInstanceStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, fmt.Errorf("db gone"))

	err := s.SoftDelete(ctx, "test-instance-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soft delete instance")
}
