package migration

import (
	"fmt"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
)

// Models are the chat tables in creation order
func Models() []interface{} {
	return []interface{}{&domain.User{}, &domain.Message{}, &domain.AccessRequest{}}
}

// Run executes AutoMigrate for the chat tables. Existing columns are left as they are.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// Drop removes the chat tables, newest first
func Drop(db *gorm.DB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("drop %T: %w", models[i], err)
		}
	}
	return nil
}

// Check is one integrity query and the number of offending rows it found
type Check struct {
	Label string
	Count int64
}

// OK reports whether the check found nothing wrong
func (c Check) OK() bool {
	return c.Count == 0
}

// Verify counts rows that break the storage invariants: private messages
// without a pair, global messages with one, and requests whose pair key does not
// match their sorted participants.
func Verify(db *gorm.DB) ([]Check, error) {
	queries := []struct {
		label string
		model interface{}
		where string
		args  []interface{}
	}{
		{
			label: "private messages without pair",
			model: &domain.Message{},
			where: "visibility = ? AND (pair_key = '' OR pair_key IS NULL OR participant_a = participant_b)",
			args:  []interface{}{domain.VisibilityPrivate},
		},
		{
			label: "global messages with pair",
			model: &domain.Message{},
			where: "visibility = ? AND pair_key <> ''",
			args:  []interface{}{domain.VisibilityGlobal},
		},
		{
			label: "unknown content kind",
			model: &domain.Message{},
			where: "content_kind NOT IN ?",
			args:  []interface{}{[]domain.ContentKind{domain.ContentText, domain.ContentImage}},
		},
		{
			label: "requests with unsorted pair",
			model: &domain.AccessRequest{},
			where: "participant_a >= participant_b",
		},
		{
			label: "revoked requests not rejected",
			model: &domain.AccessRequest{},
			where: "revoked_by <> '' AND status <> ?",
			args:  []interface{}{domain.RequestRejected},
		},
	}

	checks := make([]Check, 0, len(queries))
	for _, q := range queries {
		var count int64
		if err := db.Model(q.model).Where(q.where, q.args...).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", q.label, err)
		}
		checks = append(checks, Check{Label: q.label, Count: count})
	}

	stale, err := countStalePairKeys(db)
	if err != nil {
		return nil, err
	}
	return append(checks, Check{Label: "requests with stale pair key", Count: stale}), nil
}

// countStalePairKeys compares pair_key against its participants in Go, since
// string concatenation differs between MySQL and SQLite.
func countStalePairKeys(db *gorm.DB) (int64, error) {
	var (
		stale int64
		batch []domain.AccessRequest
	)
	err := db.Model(&domain.AccessRequest{}).
		Select("id", "pair_key", "participant_a", "participant_b").
		FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				if batch[i].PairKey != domain.PairKey(batch[i].ParticipantA, batch[i].ParticipantB) {
					stale++
				}
			}
			return nil
		}).Error
	if err != nil {
		return 0, fmt.Errorf("requests with stale pair key: %w", err)
	}
	return stale, nil
}
