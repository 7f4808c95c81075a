package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/go-members/internal/models"
)

// SeedStores loads store reference data from a JSON array file. Existing
// stores are left untouched, so seeding twice is harmless. It returns the
// number of stores inserted.
func SeedStores(ctx context.Context, gdb *gorm.DB, path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read stores seed: %w", err)
	}
	var stores []models.Store
	if err := json.Unmarshal(raw, &stores); err != nil {
		return 0, fmt.Errorf("decode stores seed: %w", err)
	}
	for i, s := range stores {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Name) == "" {
			return 0, fmt.Errorf("stores seed entry %d: id and name are required", i)
		}
	}
	if len(stores) == 0 {
		return 0, nil
	}
	res := gdb.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&stores)
	if res.Error != nil {
		return 0, fmt.Errorf("insert stores: %w", res.Error)
	}
	return res.RowsAffected, nil
}
