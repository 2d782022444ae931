package repos

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/NREL/torc-sub002/internal/types"
)

func openPaginationDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&types.Workflow{}))
	for i := 0; i < 25; i++ {
		require.NoError(t, gdb.Create(&types.Workflow{
			Name:   fmt.Sprintf("wf-%02d", i),
			User:   "tester",
			Status: "uninitialized",
		}).Error)
	}
	return gdb
}

func TestPaginateWindowing(t *testing.T) {
	gdb := openPaginationDB(t)

	var items []types.Workflow
	env, err := Paginate(gdb.Model(&types.Workflow{}), Page{Offset: 10, Limit: 10}, &items)
	require.NoError(t, err)
	require.Equal(t, 10, env.Count)
	require.Equal(t, int64(25), env.TotalCount)
	require.Equal(t, 10, env.Offset)
	require.True(t, env.HasMore)
	require.Equal(t, "wf-10", items[0].Name)

	items = nil
	env, err = Paginate(gdb.Model(&types.Workflow{}), Page{Offset: 20, Limit: 10}, &items)
	require.NoError(t, err)
	require.Equal(t, 5, env.Count)
	require.False(t, env.HasMore)
}

func TestPaginateDefaultsAndClamping(t *testing.T) {
	gdb := openPaginationDB(t)

	var items []types.Workflow
	env, err := Paginate(gdb.Model(&types.Workflow{}), Page{}, &items)
	require.NoError(t, err)
	require.Equal(t, MaxRecordTransferCount, env.MaxLimit)
	require.Equal(t, 25, env.Count)

	items = nil
	env, err = Paginate(gdb.Model(&types.Workflow{}), Page{Limit: MaxRecordTransferCount + 1}, &items)
	require.NoError(t, err)
	require.Equal(t, MaxRecordTransferCount, env.MaxLimit)
}

func TestPaginateSortControls(t *testing.T) {
	gdb := openPaginationDB(t)

	var items []types.Workflow
	_, err := Paginate(gdb.Model(&types.Workflow{}), Page{SortBy: "name; DROP TABLE workflow"}, &items)
	require.Error(t, err)

	items = nil
	_, err = Paginate(gdb.Model(&types.Workflow{}), Page{SortBy: "name", ReverseSort: true, Limit: 1}, &items)
	require.NoError(t, err)
	require.Equal(t, "wf-24", items[0].Name)
}
