package models

import (
	"github.com/farmerp/backend/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemModel is the persistence model for a stock item.
type ItemModel struct {
	BaseModel
	Name         string          `gorm:"type:varchar(200);not null"`
	SmallestUnit string          `gorm:"type:varchar(20);not null"`
	Precision    int32           `gorm:"not null;check:chk_items_precision,precision BETWEEN 0 AND 4"`
	Units        []ItemUnitModel `gorm:"foreignKey:ItemID;references:ID"`
}

// TableName returns the table name for GORM
func (ItemModel) TableName() string {
	return "items"
}

// ToDomain converts the persistence model to a domain Item.
func (m *ItemModel) ToDomain() *catalog.Item {
	item := &catalog.Item{
		ID:           m.ID,
		Name:         m.Name,
		SmallestUnit: m.SmallestUnit,
		Precision:    m.Precision,
		Units:        make([]catalog.ItemUnit, len(m.Units)),
	}
	for i, u := range m.Units {
		item.Units[i] = u.ToDomain()
	}
	return item
}

// ItemModelFromDomain creates a persistence model from a domain Item.
func ItemModelFromDomain(i *catalog.Item) *ItemModel {
	m := &ItemModel{
		BaseModel:    BaseModel{ID: i.ID},
		Name:         i.Name,
		SmallestUnit: i.SmallestUnit,
		Precision:    i.Precision,
		Units:        make([]ItemUnitModel, len(i.Units)),
	}
	for idx, u := range i.Units {
		m.Units[idx] = ItemUnitModel{BaseModel: BaseModel{ID: u.ID}, ItemID: u.ItemID, UnitCode: u.UnitCode, Ratio: u.Ratio}
	}
	return m
}

// ItemUnitModel is the persistence model for a unit an item can be bought in.
type ItemUnitModel struct {
	BaseModel
	ItemID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_item_unit_code,priority:1"`
	UnitCode string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_item_unit_code,priority:2"`
	Ratio    decimal.Decimal `gorm:"type:decimal(18,6);not null"`
}

// TableName returns the table name for GORM
func (ItemUnitModel) TableName() string {
	return "item_units"
}

// ToDomain converts the persistence model to a domain ItemUnit.
func (m ItemUnitModel) ToDomain() catalog.ItemUnit {
	return catalog.ItemUnit{ID: m.ID, ItemID: m.ItemID, UnitCode: m.UnitCode, Ratio: m.Ratio}
}
