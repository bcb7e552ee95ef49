package persistence

import (
	"context"
	"database/sql"

	"github.com/farmerp/backend/internal/domain/integrity"
	"github.com/farmerp/backend/internal/domain/inventory"
	"github.com/farmerp/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormGraphLoader implements integrity.GraphLoader. It loads the records of a
// scope plus the records they reference, so rules never query the database.
type GormGraphLoader struct {
	db       *gorm.DB
	snapshot bool
}

// NewGormGraphLoader creates a graph loader. With snapshot set every query of
// one Load runs in a single read-only repeatable-read transaction so the
// graph is consistent; sqlite test databases leave it off.
func NewGormGraphLoader(db *gorm.DB, snapshot bool) *GormGraphLoader {
	return &GormGraphLoader{db: db, snapshot: snapshot}
}

// Load implements integrity.GraphLoader
func (l *GormGraphLoader) Load(ctx context.Context, scope integrity.Scope) (*integrity.Graph, error) {
	var data integrity.GraphData
	load := func(tx *gorm.DB) error {
		gl := &graphLoad{tx: tx, scope: scope}
		var err error
		data, err = gl.run()
		return err
	}

	db := l.db.WithContext(ctx)
	var err error
	if l.snapshot {
		err = db.Transaction(load, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	} else {
		err = load(db)
	}
	if err != nil {
		return nil, err
	}
	return integrity.NewGraph(scope, data), nil
}

// graphLoad accumulates one Load. Records are keyed by id so the closure
// steps can add overlapping sets.
type graphLoad struct {
	tx    *gorm.DB
	scope integrity.Scope

	ledgers   map[uuid.UUID]models.StockLedgerEntryModel
	lines     map[uuid.UUID]models.PurchaseLineModel
	batches   map[uuid.UUID]models.PurchaseBatchModel
	mutations map[uuid.UUID]models.MutationRecordModel
	summaries map[uuid.UUID]models.StockSummaryModel
	items     map[uuid.UUID]models.ItemModel
}

func (gl *graphLoad) run() (integrity.GraphData, error) {
	gl.ledgers = map[uuid.UUID]models.StockLedgerEntryModel{}
	gl.lines = map[uuid.UUID]models.PurchaseLineModel{}
	gl.batches = map[uuid.UUID]models.PurchaseBatchModel{}
	gl.mutations = map[uuid.UUID]models.MutationRecordModel{}
	gl.summaries = map[uuid.UUID]models.StockSummaryModel{}
	gl.items = map[uuid.UUID]models.ItemModel{}

	steps := []func() error{
		gl.loadScoped,
		gl.loadDownstreamLedgers,
		gl.loadRelinkCandidates,
		gl.loadSources,
		gl.loadDrawingMutations,
		gl.loadDownstreamLedgers,
		gl.loadGroupSummaries,
		gl.loadBatches,
		gl.loadItems,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return integrity.GraphData{}, err
		}
	}
	return gl.data(), nil
}

// loadScoped loads the records the scope itself selects.
func (gl *graphLoad) loadScoped() error {
	s := gl.scope

	ledgerQ := gl.tx.Model(&models.StockLedgerEntryModel{})
	lineQ := gl.tx.Model(&models.PurchaseLineModel{})
	mutationQ := gl.tx.Model(&models.MutationRecordModel{})
	summaryQ := gl.tx.Model(&models.StockSummaryModel{})

	if s.FarmID != nil {
		ledgerQ = ledgerQ.Where("farm_id = ?", *s.FarmID)
		lineQ = lineQ.Where("batch_id IN (?)", gl.tx.Model(&models.PurchaseBatchModel{}).Select("id").Where("farm_id = ?", *s.FarmID))
		mutationQ = mutationQ.Where("farm_id = ?", *s.FarmID)
		summaryQ = summaryQ.Where("farm_id = ?", *s.FarmID)
	}
	if s.LivestockID != nil {
		ledgerQ = ledgerQ.Where("context_id = ?", *s.LivestockID)
		lineQ = lineQ.Where("batch_id IN (?)", gl.tx.Model(&models.PurchaseBatchModel{}).Select("id").Where("livestock_id = ?", *s.LivestockID))
		mutationQ = mutationQ.Where("from_context_id = ? OR to_context_id = ?", *s.LivestockID, *s.LivestockID)
		summaryQ = summaryQ.Where("context_id = ?", *s.LivestockID)
	}
	if s.RecordID != nil {
		id := *s.RecordID
		ledgerQ = ledgerQ.Where("id = ? OR source_id = ?", id, id)
		lineQ = lineQ.Where("id = ?", id)
		mutationQ = mutationQ.Where("id = ?", id)
		summaryQ = summaryQ.Where("id = ?", id)
	}

	var ledgers []models.StockLedgerEntryModel
	if err := ledgerQ.Find(&ledgers).Error; err != nil {
		return err
	}
	gl.addLedgers(ledgers)

	var lines []models.PurchaseLineModel
	if err := lineQ.Find(&lines).Error; err != nil {
		return err
	}
	gl.addLines(lines)

	var mutations []models.MutationRecordModel
	if err := mutationQ.Preload("Items").Find(&mutations).Error; err != nil {
		return err
	}
	gl.addMutations(mutations)

	var summaries []models.StockSummaryModel
	if err := summaryQ.Find(&summaries).Error; err != nil {
		return err
	}
	gl.addSummaries(summaries)
	return nil
}

// loadDownstreamLedgers loads the ledger entries derived from every loaded
// source, and the entries loaded mutations draw from.
func (gl *graphLoad) loadDownstreamLedgers() error {
	lineIDs := keys(gl.lines)
	mutationIDs := keys(gl.mutations)
	var sourceLedgerIDs []uuid.UUID
	for _, m := range gl.mutations {
		if m.SourceLedgerID != nil {
			sourceLedgerIDs = append(sourceLedgerIDs, *m.SourceLedgerID)
		}
	}

	if len(lineIDs) > 0 {
		var ledgers []models.StockLedgerEntryModel
		if err := gl.tx.Where("source_type = ? AND source_id IN ?", string(inventory.SourceTypePurchase), lineIDs).
			Find(&ledgers).Error; err != nil {
			return err
		}
		gl.addLedgers(ledgers)
	}
	if len(mutationIDs) > 0 {
		var ledgers []models.StockLedgerEntryModel
		if err := gl.tx.Where("source_type = ? AND source_id IN ?", string(inventory.SourceTypeMutation), mutationIDs).
			Find(&ledgers).Error; err != nil {
			return err
		}
		gl.addLedgers(ledgers)
	}
	if len(sourceLedgerIDs) > 0 {
		var ledgers []models.StockLedgerEntryModel
		if err := gl.tx.Where("id IN ?", sourceLedgerIDs).Find(&ledgers).Error; err != nil {
			return err
		}
		gl.addLedgers(ledgers)
	}
	return nil
}

// loadRelinkCandidates loads the sources that could have produced a ledger
// entry with an empty reference: same farm, context and item.
func (gl *graphLoad) loadRelinkCandidates() error {
	for _, e := range gl.ledgers {
		if e.SourceType != "" && e.SourceID != nil && *e.SourceID != uuid.Nil {
			continue
		}

		batchQ := gl.tx.Model(&models.PurchaseBatchModel{}).Select("id").Where("farm_id = ?", e.FarmID)
		if e.ContextID == e.FarmID {
			batchQ = batchQ.Where("livestock_id IS NULL")
		} else {
			batchQ = batchQ.Where("livestock_id = ?", e.ContextID)
		}
		var lines []models.PurchaseLineModel
		if err := gl.tx.Where("item_id = ? AND batch_id IN (?)", e.ItemID, batchQ).Find(&lines).Error; err != nil {
			return err
		}
		gl.addLines(lines)

		var mutations []models.MutationRecordModel
		if err := gl.tx.Preload("Items").
			Where("farm_id = ? AND to_context_id = ? AND item_id = ?", e.FarmID, e.ContextID, e.ItemID).
			Find(&mutations).Error; err != nil {
			return err
		}
		gl.addMutations(mutations)
	}
	return nil
}

// loadSources loads the source record of every referenced ledger entry,
// soft-deleted or not.
func (gl *graphLoad) loadSources() error {
	var lineIDs, mutationIDs []uuid.UUID
	for _, e := range gl.ledgers {
		if e.SourceID == nil {
			continue
		}
		switch inventory.SourceType(e.SourceType) {
		case inventory.SourceTypePurchase:
			if _, ok := gl.lines[*e.SourceID]; !ok {
				lineIDs = append(lineIDs, *e.SourceID)
			}
		case inventory.SourceTypeMutation:
			if _, ok := gl.mutations[*e.SourceID]; !ok {
				mutationIDs = append(mutationIDs, *e.SourceID)
			}
		}
	}
	if len(lineIDs) > 0 {
		var lines []models.PurchaseLineModel
		if err := gl.tx.Where("id IN ?", lineIDs).Find(&lines).Error; err != nil {
			return err
		}
		gl.addLines(lines)
	}
	if len(mutationIDs) > 0 {
		var mutations []models.MutationRecordModel
		if err := gl.tx.Preload("Items").Where("id IN ?", mutationIDs).Find(&mutations).Error; err != nil {
			return err
		}
		gl.addMutations(mutations)
	}
	return nil
}

// loadDrawingMutations loads every mutation debiting a loaded ledger entry,
// needed to recompute amount_mutated.
func (gl *graphLoad) loadDrawingMutations() error {
	ledgerIDs := keys(gl.ledgers)
	if len(ledgerIDs) == 0 {
		return nil
	}
	var mutations []models.MutationRecordModel
	if err := gl.tx.Preload("Items").Where("source_ledger_id IN ?", ledgerIDs).Find(&mutations).Error; err != nil {
		return err
	}
	gl.addMutations(mutations)
	return nil
}

// loadGroupSummaries loads the summary and every ledger entry of each stock
// group touched by a scoped ledger entry or summary.
func (gl *graphLoad) loadGroupSummaries() error {
	if gl.scope.IsSingleRecord() {
		return nil
	}
	groups := map[inventory.StockGroupKey]bool{}
	for _, e := range gl.ledgers {
		entry := e
		if gl.scope.CoversLedger(entry.ToDomain()) {
			groups[inventory.StockGroupKey{FarmID: e.FarmID, ContextID: e.ContextID, ItemID: e.ItemID}] = true
		}
	}
	for _, s := range gl.summaries {
		groups[inventory.StockGroupKey{FarmID: s.FarmID, ContextID: s.ContextID, ItemID: s.ItemID}] = true
	}

	for k := range groups {
		var summaries []models.StockSummaryModel
		if err := gl.tx.Where("farm_id = ? AND context_id = ? AND item_id = ?", k.FarmID, k.ContextID, k.ItemID).
			Find(&summaries).Error; err != nil {
			return err
		}
		gl.addSummaries(summaries)

		var ledgers []models.StockLedgerEntryModel
		if err := gl.tx.Where("farm_id = ? AND context_id = ? AND item_id = ?", k.FarmID, k.ContextID, k.ItemID).
			Find(&ledgers).Error; err != nil {
			return err
		}
		gl.addLedgers(ledgers)
	}
	return nil
}

func (gl *graphLoad) loadBatches() error {
	var ids []uuid.UUID
	for _, l := range gl.lines {
		if _, ok := gl.batches[l.BatchID]; !ok {
			ids = append(ids, l.BatchID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var batches []models.PurchaseBatchModel
	if err := gl.tx.Where("id IN ?", ids).Find(&batches).Error; err != nil {
		return err
	}
	for _, b := range batches {
		gl.batches[b.ID] = b
	}
	return nil
}

func (gl *graphLoad) loadItems() error {
	ids := map[uuid.UUID]bool{}
	for _, e := range gl.ledgers {
		ids[e.ItemID] = true
	}
	for _, l := range gl.lines {
		ids[l.ItemID] = true
	}
	for _, m := range gl.mutations {
		ids[m.ItemID] = true
	}
	for _, s := range gl.summaries {
		ids[s.ItemID] = true
	}
	if len(ids) == 0 {
		return nil
	}
	var items []models.ItemModel
	if err := gl.tx.Preload("Units").Where("id IN ?", keys(ids)).Find(&items).Error; err != nil {
		return err
	}
	for _, it := range items {
		gl.items[it.ID] = it
	}
	return nil
}

func (gl *graphLoad) addLedgers(ms []models.StockLedgerEntryModel) {
	for _, m := range ms {
		gl.ledgers[m.ID] = m
	}
}

func (gl *graphLoad) addLines(ms []models.PurchaseLineModel) {
	for _, m := range ms {
		gl.lines[m.ID] = m
	}
}

func (gl *graphLoad) addMutations(ms []models.MutationRecordModel) {
	for _, m := range ms {
		gl.mutations[m.ID] = m
	}
}

func (gl *graphLoad) addSummaries(ms []models.StockSummaryModel) {
	for _, m := range ms {
		gl.summaries[m.ID] = m
	}
}

func (gl *graphLoad) data() integrity.GraphData {
	var data integrity.GraphData
	for _, m := range gl.items {
		data.Items = append(data.Items, *m.ToDomain())
	}
	for _, m := range gl.batches {
		data.Batches = append(data.Batches, *m.ToDomain())
	}
	for _, m := range gl.lines {
		data.Lines = append(data.Lines, *m.ToDomain())
	}
	for _, m := range gl.ledgers {
		data.Ledgers = append(data.Ledgers, *m.ToDomain())
	}
	for _, m := range gl.mutations {
		data.Mutations = append(data.Mutations, *m.ToDomain())
	}
	for _, m := range gl.summaries {
		data.Summaries = append(data.Summaries, *m.ToDomain())
	}
	return data
}

func keys[V any](m map[uuid.UUID]V) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Ensure GormGraphLoader implements integrity.GraphLoader
var _ integrity.GraphLoader = (*GormGraphLoader)(nil)
