package database

import (
	"fmt"
	"reflect"

	"ig-automation/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// serialTables have auto-increment ids whose sequences drift after rows
// are copied in with explicit ids.
var serialTables = []string{
	"flow_nodes",
	"flow_edges",
	"messages",
	"campaign_analytics",
	"scheduled_resumes",
}

const copyBatchSize = 500

// CopyAll copies every table from src into dst, skipping rows that already
// exist. It returns the number of rows read per table.
func CopyAll(src, dst *gorm.DB) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, model := range models.All() {
		stmt := &gorm.Statement{DB: src}
		if err := stmt.Parse(model); err != nil {
			return counts, fmt.Errorf("failed to parse model %T: %w", model, err)
		}
		table := stmt.Schema.Table

		rows := reflect.New(reflect.SliceOf(reflect.TypeOf(model).Elem()))
		if err := src.Find(rows.Interface()).Error; err != nil {
			return counts, fmt.Errorf("error reading %s: %w", table, err)
		}
		n := rows.Elem().Len()
		counts[table] = int64(n)
		if n == 0 {
			continue
		}

		err := dst.Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(rows.Interface(), copyBatchSize).Error
		})
		if err != nil {
			return counts, fmt.Errorf("error writing %s: %w", table, err)
		}
		log.Info().Str("table", table).Int("rows", n).Msg("copied table")
	}
	return counts, nil
}

// SyncSequences moves postgres id sequences past the current maximum id.
func SyncSequences(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return fmt.Errorf("sequence sync requires postgres, got %s", db.Dialector.Name())
	}
	for _, table := range serialTables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			return fmt.Errorf("error syncing sequence for %s: %w", table, err)
		}
		log.Info().Str("table", table).Msg("synced sequence")
	}
	return nil
}
