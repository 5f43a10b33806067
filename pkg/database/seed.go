package database

import (
	"fmt"
	"learnhub_backend/internal/model"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rewardCatalog struct {
	Rewards []model.RewardItem `yaml:"rewards"`
}

// SeedRewards 从 YAML 文件导入奖励目录，按名称去重
func SeedRewards(db *gorm.DB, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var catalog rewardCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	inserted := 0
	for _, item := range catalog.Rewards {
		if item.Kind != model.RewardMerch && item.Kind != model.RewardVirtual {
			return inserted, fmt.Errorf("reward %q: unknown kind %q", item.Name, item.Kind)
		}
		if item.Cost <= 0 {
			return inserted, fmt.Errorf("reward %q: cost must be positive", item.Name)
		}
		item.Active = true
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&item)
		if res.Error != nil {
			return inserted, res.Error
		}
		inserted += int(res.RowsAffected)
	}
	return inserted, nil
}
