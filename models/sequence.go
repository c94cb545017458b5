package models

import "time"

// DocumentSequence backs the atomic "next document number" operation.
// One row per (shop, kind); NextValue is only ever advanced with a single
// UPDATE statement so concurrent callers serialize on the row lock.
type DocumentSequence struct {
	ID        uint       `gorm:"primary_key" json:"id"`
	ShopId    string     `gorm:"uniqueIndex:idx_document_sequence,priority:1;size:64;not null" json:"shop_id"`
	Kind      RecordKind `gorm:"uniqueIndex:idx_document_sequence,priority:2;size:20;not null" json:"kind"`
	NextValue int64      `gorm:"not null" json:"next_value"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
