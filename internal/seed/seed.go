package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/config"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureMachines upserts the configured machines by name. Existing rows get
// their label and section updated; machines missing from the list are left
// alone.
func EnsureMachines(ctx context.Context, db *gorm.DB, node *snowflake.Node, seeds []config.MachineSeed) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if len(seeds) == 0 {
		return 0, nil
	}

	changed := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range seeds {
			ok, err := ensureMachineTx(ctx, tx, node, s)
			if err != nil {
				return err
			}
			if ok {
				changed++
			}
		}
		return nil
	})
	return changed, err
}

func ensureMachineTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, s config.MachineSeed) (bool, error) {
	name := strings.TrimSpace(s.Name)
	label := strings.TrimSpace(s.Label)
	now := time.Now().UTC()

	var m machinedomain.Machine
	err := tx.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if err == nil {
		if m.Label == label && m.SectionID == s.SectionID {
			return false, nil
		}
		err = tx.WithContext(ctx).Model(&machinedomain.Machine{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{"label": label, "section_id": s.SectionID, "updated_at": now}).Error
		return err == nil, err
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	m = machinedomain.Machine{
		ID:        node.Generate(),
		Name:      name,
		Label:     label,
		SectionID: s.SectionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&m).Error; err != nil {
		return false, err
	}
	return true, nil
}

func run(conn *gorm.DB, node *snowflake.Node, plant *config.PlantConfigHolder, log *zap.Logger) error {
	seeds := plant.Get().Machines
	changed, err := EnsureMachines(context.Background(), conn, node, seeds)
	if err != nil {
		return err
	}
	if len(seeds) > 0 {
		log.Info("machines seeded", zap.Int("configured", len(seeds)), zap.Int("changed", changed))
	}
	return nil
}
