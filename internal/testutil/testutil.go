// Package testutil opens throwaway sqlite databases with the full schema.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/millroll/internal/config"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	"github.com/smallbiznis/millroll/internal/migration"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns an in-memory database private to the test. A single
// connection keeps every statement on the same memory database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(conn))
	return conn
}

func Node(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// Plant returns a static plant config with the defaults and shiftsPerDay.
func Plant(shiftsPerDay int) *config.PlantConfigHolder {
	cfg := config.DefaultPlantConfig()
	if shiftsPerDay > 0 {
		cfg.ShiftsPerDay = shiftsPerDay
	}
	return config.NewStaticPlantConfigHolder(cfg)
}

func SeedMachine(t *testing.T, db *gorm.DB, node *snowflake.Node, name, label string) *machinedomain.Machine {
	t.Helper()
	now := time.Now().UTC()
	m := &machinedomain.Machine{
		ID:        node.Generate(),
		Name:      name,
		Label:     label,
		SectionID: 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}
